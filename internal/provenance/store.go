// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package provenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/ctxlog"
)

// Store is the bookkeeping layer over a Backend. It owns every status
// mutation and serialises writers per identity.
type Store struct {
	backend Backend
	now     func() time.Time
	locks   sync.Map // Key: uuid.UUID, Value: *sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store persisting through backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lock(id uuid.UUID) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Put records a declaration. A new identity is stored as declared. An
// identity that is already recorded with the same recipe is left untouched,
// whatever its status, and the stored record is returned. A different recipe
// fails with a *ConflictError.
func (s *Store) Put(ctx context.Context, rec *Record) (*Record, error) {
	if rec == nil || rec.ID == uuid.Nil {
		return nil, errors.New("provenance record requires an id")
	}
	unlock := s.lock(rec.ID)
	defer unlock()

	logger := ctxlog.FromContext(ctx).With("artifact", rec.Name, "id", rec.ID.String())

	existing, err := s.backend.GetRecord(ctx, rec.ID)
	switch {
	case err == nil:
		if existing.RecipeHash != rec.RecipeHash {
			logger.Error("Artifact re-declared with a different recipe.", "recorded", existing.RecipeHash, "declared", rec.RecipeHash)
			return nil, &ConflictError{
				ID:             rec.ID,
				Name:           rec.Name,
				RecordedRecipe: existing.RecipeHash,
				DeclaredRecipe: rec.RecipeHash,
			}
		}
		logger.Debug("Artifact already recorded with identical recipe.", "status", existing.Status)
		return existing.Clone(), nil
	case errors.Is(err, ErrNotFound):
	default:
		return nil, fmt.Errorf("reading provenance record %s: %w", rec.ID, err)
	}

	stored := rec.Clone()
	now := s.now().UTC()
	stored.Status = StatusDeclared
	stored.Fingerprint = ""
	stored.DeclaredAt = now
	stored.UpdatedAt = now
	if err := s.backend.PutRecord(ctx, stored); err != nil {
		return nil, fmt.Errorf("writing provenance record %s: %w", rec.ID, err)
	}
	logger.Debug("Artifact recorded.", "recipe", stored.RecipeHash)
	return stored.Clone(), nil
}

// Get returns the record for id, or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.backend.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// MarkBuilt moves a declared record to built. Records that are already built
// or verified are left as they are.
func (s *Store) MarkBuilt(ctx context.Context, id uuid.UUID) error {
	return s.advance(ctx, id, func(rec *Record) (bool, error) {
		if rec.Status.AtLeast(StatusBuilt) {
			return false, nil
		}
		rec.Status = StatusBuilt
		return true, nil
	})
}

// MarkVerified records the content fingerprint and moves the record to
// verified. Verifying an already verified record with a different non-empty
// fingerprint fails with a *DriftError and leaves the record unchanged.
func (s *Store) MarkVerified(ctx context.Context, id uuid.UUID, fingerprint string) error {
	return s.advance(ctx, id, func(rec *Record) (bool, error) {
		if rec.Status == StatusVerified {
			if fingerprint != "" && rec.Fingerprint != "" && fingerprint != rec.Fingerprint {
				return false, &DriftError{ID: rec.ID, Name: rec.Name, Recorded: rec.Fingerprint, Observed: fingerprint}
			}
			if rec.Fingerprint == "" && fingerprint != "" {
				rec.Fingerprint = fingerprint
				return true, nil
			}
			return false, nil
		}
		rec.Status = StatusVerified
		rec.Fingerprint = fingerprint
		return true, nil
	})
}

func (s *Store) advance(ctx context.Context, id uuid.UUID, mutate func(*Record) (bool, error)) error {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.backend.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	from := rec.Status
	changed, err := mutate(rec)
	if err != nil || !changed {
		return err
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.backend.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("writing provenance record %s: %w", id, err)
	}
	ctxlog.FromContext(ctx).Debug("Artifact status advanced.", "artifact", rec.Name, "from", from, "to", rec.Status)
	return nil
}

// List returns every record ordered by declaration time, then name.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	recs, err := s.backend.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DeclaredAt.Equal(out[j].DeclaredAt) {
			return out[i].DeclaredAt.Before(out[j].DeclaredAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
