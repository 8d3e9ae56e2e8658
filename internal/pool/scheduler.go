// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/metrics"
	"github.com/vk/benchgrid/internal/run"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/vk/benchgrid/internal/pool"

const (
	// DefaultKillGrace is how long a timed out job may take to stop before its
	// slot is reclaimed.
	DefaultKillGrace = 10 * time.Second
	// DefaultOutputLimit bounds the diagnostic output kept per outcome.
	DefaultOutputLimit = 64 << 10
)

// ErrIntakeStopped is recorded on descriptors that never got a slot because
// the caller cancelled the run.
var ErrIntakeStopped = errors.New("intake stopped before the job was admitted")

// Result is what an Executor reports for one finished process.
type Result struct {
	ExitCode int
	Output   []byte
}

// Executor runs the external job described by a descriptor. It must stop the
// process once ctx is done.
type Executor interface {
	Execute(ctx context.Context, d *run.Descriptor) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, d *run.Descriptor) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, d *run.Descriptor) (Result, error) {
	return f(ctx, d)
}

// OutcomeHook observes every outcome once, including the ones of descriptors
// that were never admitted. Calls are serialised. The hook's context keeps the
// caller's values but is never cancelled, so outcomes of jobs that finish
// after intake stopped can still be persisted.
type OutcomeHook func(ctx context.Context, d *run.Descriptor, o *run.Outcome)

// Scheduler is the bounded job pool.
type Scheduler struct {
	exec        Executor
	metrics     *metrics.Collector
	tracer      trace.Tracer
	killGrace   time.Duration
	hook        OutcomeHook
	outputLimit int
	now         func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scheduler) { s.metrics = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) { s.tracer = tp.Tracer(tracerName) }
}

// WithKillGrace sets how long to wait for a timed out job to return.
func WithKillGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.killGrace = d }
}

func WithOutcomeHook(h OutcomeHook) Option {
	return func(s *Scheduler) { s.hook = h }
}

// WithOutputLimit bounds the bytes of output kept per outcome. The tail of
// the output is kept.
func WithOutputLimit(n int) Option {
	return func(s *Scheduler) { s.outputLimit = n }
}

// New creates a Scheduler running jobs through exec.
func New(exec Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		exec:        exec,
		tracer:      otel.Tracer(tracerName),
		killGrace:   DefaultKillGrace,
		outputLimit: DefaultOutputLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// session is the state of one Run call.
type session struct {
	*Scheduler
	mu      sync.Mutex
	results map[string]*run.Outcome
	hookMu  sync.Mutex
}

// Run executes every descriptor with at most limit running at once and
// returns one outcome per descriptor, keyed by descriptor ID. Only structural
// problems are returned as errors, and they are detected before any job
// starts.
func (s *Scheduler) Run(ctx context.Context, descs []*run.Descriptor, limit int) (map[string]*run.Outcome, error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be at least 1, got %d", limit)
	}
	var queue deque.Deque[*run.Descriptor]
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if d == nil {
			return nil, errors.New("nil run descriptor")
		}
		if seen[d.Key()] {
			return nil, fmt.Errorf("run descriptor %s (%s) submitted twice", d.Key(), d)
		}
		if st := d.Status(); st != run.StatusPending {
			return nil, fmt.Errorf("run descriptor %s is %s, only pending descriptors can be submitted", d, st)
		}
		seen[d.Key()] = true
		queue.PushBack(d)
	}

	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting job pool.", "jobs", len(descs), "limit", limit)

	sess := &session{Scheduler: s, results: make(map[string]*run.Outcome, len(descs))}
	// slots is the only admission limiter; a slot is taken before a job is
	// dequeued so cancellation can stop intake while all slots are busy.
	slots := make(chan struct{}, limit)
	var g errgroup.Group

	s.metrics.SetPending(queue.Len())
intake:
	for queue.Len() > 0 {
		if ctx.Err() != nil {
			break
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break intake
		}
		if ctx.Err() != nil {
			<-slots
			break
		}
		d := queue.PopFront()
		s.metrics.SetPending(queue.Len())
		if err := d.Start(); err != nil {
			<-slots
			logger.Error("Could not start job.", "run", d.String(), "error", err)
			sess.finish(ctx, d, &run.Outcome{RunID: d.Key(), Status: run.StatusFailed, ExitCode: -1, Err: err.Error(), FinishedAt: s.now()})
			continue
		}
		g.Go(func() error {
			defer func() { <-slots }()
			sess.runJob(ctx, d)
			return nil
		})
	}

	if queue.Len() > 0 {
		logger.Warn("Intake stopped, remaining jobs will not run.", "not_admitted", queue.Len(), "reason", context.Cause(ctx))
	}
	for queue.Len() > 0 {
		d := queue.PopFront()
		sess.abandon(ctx, d)
	}
	s.metrics.SetPending(0)

	_ = g.Wait()
	sum := run.Summarize(sess.results)
	logger.Info("🏁 Job pool finished.", "succeeded", sum.Succeeded, "failed", sum.Failed, "timed_out", sum.TimedOut)
	return sess.results, nil
}

type execResult struct {
	res Result
	err error
}

func (sess *session) runJob(ctx context.Context, d *run.Descriptor) {
	jobLogger := ctxlog.FromContext(ctx).With("run", d.String(), "run_id", d.Key())
	started := sess.now()
	sess.metrics.JobAdmitted()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.Timeout())
	defer cancel()
	jobCtx = ctxlog.WithLogger(jobCtx, jobLogger)
	jobCtx, span := startJobSpan(jobCtx, sess.tracer, d)
	defer span.End()

	jobLogger.Info("▶️ Job started.", "outdir", d.OutputDir(), "timeout", d.Timeout())

	done := make(chan execResult, 1)
	go func() {
		res, err := sess.exec.Execute(jobCtx, d)
		done <- execResult{res: res, err: err}
	}()

	var (
		r      execResult
		leaked bool
	)
	select {
	case r = <-done:
	case <-jobCtx.Done():
		grace := time.NewTimer(sess.killGrace)
		select {
		case r = <-done:
		case <-grace.C:
			leaked = true
			jobLogger.Error("Job did not stop within the kill grace period, releasing its slot.", "grace", sess.killGrace)
		}
		grace.Stop()
	}

	o := &run.Outcome{
		RunID:     d.Key(),
		ExitCode:  r.res.ExitCode,
		Output:    tail(r.res.Output, sess.outputLimit),
		StartedAt: started,
	}
	switch {
	case !leaked && r.err == nil && r.res.ExitCode == 0:
		o.Status = run.StatusSucceeded
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		o.Status = run.StatusTimedOut
		o.Err = fmt.Sprintf("job exceeded its timeout of %s", d.Timeout())
	case r.err != nil:
		o.Status = run.StatusFailed
		o.Err = r.err.Error()
	default:
		o.Status = run.StatusFailed
		o.Err = fmt.Sprintf("job exited with status %d", r.res.ExitCode)
	}
	if leaked {
		o.ExitCode = -1
	}
	o.FinishedAt = sess.now()

	if err := d.Finish(o.Status); err != nil {
		jobLogger.Error("Could not finalise job.", "error", err)
	}
	finishJobSpan(span, o)
	sess.metrics.JobFinished(string(o.Status), o.Duration(), true)

	switch o.Status {
	case run.StatusSucceeded:
		jobLogger.Info("✅ Job succeeded.", "duration", o.Duration())
	case run.StatusTimedOut:
		jobLogger.Warn("⏰ Job timed out.", "duration", o.Duration())
	default:
		jobLogger.Warn("❌ Job failed.", "exit_code", o.ExitCode, "error", o.Err)
	}
	sess.finish(ctx, d, o)
}

func (sess *session) abandon(ctx context.Context, d *run.Descriptor) {
	if err := d.Abandon(); err != nil {
		ctxlog.FromContext(ctx).Error("Could not abandon job.", "run", d.String(), "error", err)
	}
	o := &run.Outcome{
		RunID:      d.Key(),
		Status:     run.StatusFailed,
		ExitCode:   -1,
		Err:        ErrIntakeStopped.Error(),
		FinishedAt: sess.now(),
	}
	sess.metrics.JobFinished(string(o.Status), 0, false)
	sess.finish(ctx, d, o)
}

func (sess *session) finish(ctx context.Context, d *run.Descriptor, o *run.Outcome) {
	sess.mu.Lock()
	sess.results[d.Key()] = o
	sess.mu.Unlock()

	if sess.hook != nil {
		sess.hookMu.Lock()
		defer sess.hookMu.Unlock()
		sess.hook(context.WithoutCancel(ctx), d, o)
	}
}

// tail keeps the last limit bytes of out.
func tail(out []byte, limit int) string {
	if limit > 0 && len(out) > limit {
		return "...(truncated)\n" + string(out[len(out)-limit:])
	}
	return string(out)
}
