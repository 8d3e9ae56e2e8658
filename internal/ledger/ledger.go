// Package ledger remembers the outcome of every executed run descriptor so a
// later session can skip the sweep points that already succeeded.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/run"
)

// ErrNotFound is returned by backends when no entry exists for a run ID.
var ErrNotFound = errors.New("run ledger entry not found")

// Entry is the persisted form of one outcome.
type Entry struct {
	RunID      uuid.UUID  `json:"run_id"`
	Campaign   string     `json:"campaign"`
	Params     run.Params `json:"params"`
	OutputDir  string     `json:"output_dir"`
	Status     run.Status `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Output     string     `json:"output,omitempty"`
	Err        string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
	Attempts   int        `json:"attempts"`
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Params = e.Params.Clone()
	return &c
}

// Outcome converts the entry back into an outcome marked as reused.
func (e *Entry) Outcome() *run.Outcome {
	return &run.Outcome{
		RunID:      e.RunID.String(),
		Status:     e.Status,
		ExitCode:   e.ExitCode,
		Output:     e.Output,
		Err:        e.Err,
		StartedAt:  e.StartedAt,
		FinishedAt: e.FinishedAt,
		Reused:     true,
	}
}

// Backend is the durable medium behind a Ledger.
type Backend interface {
	PutRun(ctx context.Context, e *Entry) error
	// GetRun returns the entry for id, or an error wrapping ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListRuns(ctx context.Context) ([]*Entry, error)
}

// Ledger records outcomes through a Backend. Writes are serialised.
type Ledger struct {
	mu      sync.Mutex
	backend Backend
}

func New(backend Backend) *Ledger {
	return &Ledger{backend: backend}
}

// Record persists the outcome of d. Reused outcomes are not written again.
func (l *Ledger) Record(ctx context.Context, o *run.Outcome, d *run.Descriptor) error {
	if o == nil || d == nil {
		return errors.New("ledger record requires an outcome and its descriptor")
	}
	if o.Reused {
		return nil
	}
	if !o.Status.IsTerminal() {
		return fmt.Errorf("ledger only records terminal outcomes, got %s for %s", o.Status, d)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := 1
	prev, err := l.backend.GetRun(ctx, d.ID())
	switch {
	case err == nil:
		attempts = prev.Attempts + 1
	case errors.Is(err, ErrNotFound):
	default:
		return fmt.Errorf("reading ledger entry %s: %w", d.ID(), err)
	}

	e := &Entry{
		RunID:      d.ID(),
		Campaign:   d.Campaign(),
		Params:     d.Params(),
		OutputDir:  d.OutputDir(),
		Status:     o.Status,
		ExitCode:   o.ExitCode,
		Output:     o.Output,
		Err:        o.Err,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Attempts:   attempts,
	}
	if err := l.backend.PutRun(ctx, e); err != nil {
		return fmt.Errorf("writing ledger entry %s: %w", d.ID(), err)
	}
	ctxlog.FromContext(ctx).Debug("Run recorded in ledger.", "run", d.String(), "status", o.Status, "attempt", attempts)
	return nil
}

// Partition splits descriptors into those that still have to run and those
// whose last recorded outcome succeeded. Failed and timed out runs are run
// again. Order of fresh follows the input.
func (l *Ledger) Partition(ctx context.Context, descs []*run.Descriptor) ([]*run.Descriptor, map[string]*run.Outcome, error) {
	fresh := make([]*run.Descriptor, 0, len(descs))
	reused := make(map[string]*run.Outcome)
	for _, d := range descs {
		e, err := l.backend.GetRun(ctx, d.ID())
		switch {
		case err == nil && e.Status == run.StatusSucceeded:
			reused[d.Key()] = e.Outcome()
		case err == nil, errors.Is(err, ErrNotFound):
			fresh = append(fresh, d)
		default:
			return nil, nil, fmt.Errorf("reading ledger entry %s: %w", d.ID(), err)
		}
	}
	return fresh, reused, nil
}

// List returns every entry ordered by finish time.
func (l *Ledger) List(ctx context.Context) ([]*Entry, error) {
	entries, err := l.backend.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].FinishedAt.Equal(entries[j].FinishedAt) {
			return entries[i].FinishedAt.Before(entries[j].FinishedAt)
		}
		return entries[i].RunID.String() < entries[j].RunID.String()
	})
	return entries, nil
}
