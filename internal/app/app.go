package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/metrics"
	"github.com/vk/benchgrid/internal/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW           io.Writer
	ctx            context.Context
	logger         *slog.Logger
	config         *Config
	metrics        *metrics.Collector
	tracerProvider trace.TracerProvider
	backend        Backend
	executor       pool.Executor
	httpServer     *http.Server
}

// Option configures an App.
type Option func(*App)

// WithBackend replaces the store opened from Config.StoreURI.
func WithBackend(b Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithExecutor replaces the local process executor, mainly for tests.
func WithExecutor(e pool.Executor) Option {
	return func(a *App) { a.executor = e }
}

// WithTracerProvider replaces the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) { a.tracerProvider = tp }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, metrics
// registry and store.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:           outW,
		ctx:            ctx,
		logger:         logger,
		config:         cfg,
		metrics:        metrics.NewCollector("benchgrid"),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.backend == nil {
		backend, err := OpenBackend(ctx, cfg.StoreURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open store %s: %w", cfg.StoreURI, err)
		}
		a.backend = backend
		logger.Debug("Store opened.", "uri", cfg.StoreURI)
	}
	return a, nil
}

// Metrics returns the application's collector. This is primarily for testing.
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// Close stops the health check server and closes the store.
func (a *App) Close() error {
	if err := a.closeHealthCheckServer(); err != nil {
		return err
	}
	return a.backend.Close()
}
