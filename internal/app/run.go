package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/ledger"
	"github.com/vk/benchgrid/internal/localexecutor"
	"github.com/vk/benchgrid/internal/pool"
	"github.com/vk/benchgrid/internal/provenance"
	"github.com/vk/benchgrid/internal/run"
	"github.com/vk/benchgrid/internal/sweep"
)

// ErrRunsFailed is returned in strict mode when any run did not succeed.
var ErrRunsFailed = errors.New("not every run succeeded")

// Run executes the campaign named by the configuration and returns the
// summary of every run's outcome. Failed or timed-out jobs are not errors
// unless the configuration is strict.
func (a *App) Run(ctx context.Context) (run.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
		defer func() { _ = a.closeHealthCheckServer() }()
	}

	loader, err := loaderFor(a.config.CampaignPath)
	if err != nil {
		return run.Summary{}, err
	}
	model, err := loader.Load(ctx, a.config.CampaignPath)
	if err != nil {
		return run.Summary{}, fmt.Errorf("failed to load campaign: %w", err)
	}
	logger := a.logger.With("campaign", model.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Campaign loaded and translated into unified model.", "root", model.Root)

	reg := artifact.NewRegistry(
		provenance.New(a.backend),
		artifact.WithMetrics(a.metrics),
		artifact.WithTracerProvider(a.tracerProvider),
	)

	outputRoot := ""
	if a.config.OutputRoot != "" {
		if outputRoot, err = filepath.Abs(a.config.OutputRoot); err != nil {
			return run.Summary{}, err
		}
	}
	plan, err := campaign.Build(ctx, model, reg, campaign.Options{Timeout: a.config.Timeout, OutputRoot: outputRoot})
	if err != nil {
		return run.Summary{}, fmt.Errorf("failed to plan campaign: %w", err)
	}

	if a.config.Build {
		if err := buildArtifacts(ctx, reg.Store(), plan.Artifacts, model.Root); err != nil {
			return run.Summary{}, err
		}
	}

	var expandOpts []sweep.Option
	if a.config.AllowEmpty {
		expandOpts = append(expandOpts, sweep.AllowEmpty())
	}
	descs, err := sweep.Expand(ctx, plan.Sweep, reg, expandOpts...)
	if err != nil {
		return run.Summary{}, fmt.Errorf("failed to expand sweep: %w", err)
	}
	logger.Info("🧮 Sweep expanded.", "runs", len(descs))

	if a.config.PlanOnly {
		return run.Summary{Total: len(descs)}, printPlan(a.outW, plan, descs)
	}

	ldg := ledger.New(a.backend)
	fresh, reused := descs, map[string]*run.Outcome{}
	if !a.config.Rerun {
		if fresh, reused, err = ldg.Partition(ctx, descs); err != nil {
			return run.Summary{}, fmt.Errorf("failed to read run ledger: %w", err)
		}
		if len(reused) > 0 {
			logger.Info("♻️ Reusing earlier results.", "reused", len(reused), "remaining", len(fresh))
		}
	}

	exec := a.executor
	if exec == nil {
		exec = &localexecutor.JobExecutor{Root: model.Root, OutputRoot: outputRoot, Command: plan.Command}
	}
	scheduler := pool.New(exec,
		pool.WithMetrics(a.metrics),
		pool.WithTracerProvider(a.tracerProvider),
		pool.WithOutcomeHook(func(ctx context.Context, d *run.Descriptor, o *run.Outcome) {
			if err := ldg.Record(ctx, o, d); err != nil {
				ctxlog.FromContext(ctx).Error("Failed to record run outcome.", "run", d.String(), "error", err)
			}
		}),
	)

	logger.Info("🚀 Starting concurrent execution...", "runs", len(fresh), "workers", a.config.Workers)
	results, err := scheduler.Run(ctx, fresh, a.config.Workers)
	if err != nil {
		return run.Summary{}, fmt.Errorf("execution failed: %w", err)
	}
	for key, o := range reused {
		results[key] = o
	}

	summary := run.Summarize(results)
	logger.Info("🏁 Execution finished.",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"timed_out", summary.TimedOut,
		"reused", summary.Reused,
	)
	if err := printSummary(a.outW, descs, results); err != nil {
		return summary, err
	}

	if a.config.Strict && !summary.AllSucceeded() {
		return summary, fmt.Errorf("%w: %d of %d runs failed or timed out", ErrRunsFailed, summary.Failed+summary.TimedOut, summary.Total)
	}
	a.logger.Debug("App.Run method finished.")
	return summary, nil
}
