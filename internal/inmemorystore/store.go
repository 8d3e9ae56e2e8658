package inmemorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/ledger"
	"github.com/vk/benchgrid/internal/provenance"
)

// Store keeps provenance records and ledger entries in two independent
// sync.Maps:
//   - records: artifact ID -> *provenance.Record
//   - runs: run ID -> *ledger.Entry
type Store struct {
	records sync.Map // Key: uuid.UUID, Value: *provenance.Record
	runs    sync.Map // Key: uuid.UUID, Value: *ledger.Entry
}

var (
	_ provenance.Backend = (*Store)(nil)
	_ ledger.Backend     = (*Store)(nil)
)

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{}
}

// PutRecord inserts or replaces an artifact record.
func (s *Store) PutRecord(ctx context.Context, rec *provenance.Record) error {
	s.records.Store(rec.ID, rec.Clone())
	return nil
}

// GetRecord retrieves an artifact record.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*provenance.Record, error) {
	v, ok := s.records.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provenance.ErrNotFound, id)
	}
	return v.(*provenance.Record).Clone(), nil
}

// ListRecords returns every artifact record in no particular order.
func (s *Store) ListRecords(ctx context.Context) ([]*provenance.Record, error) {
	var out []*provenance.Record
	s.records.Range(func(_, v any) bool {
		out = append(out, v.(*provenance.Record).Clone())
		return true
	})
	return out, nil
}

// PutRun inserts or replaces a ledger entry.
func (s *Store) PutRun(ctx context.Context, e *ledger.Entry) error {
	s.runs.Store(e.RunID, e.Clone())
	return nil
}

// GetRun retrieves a ledger entry.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	v, ok := s.runs.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return v.(*ledger.Entry).Clone(), nil
}

// ListRuns returns every ledger entry in no particular order.
func (s *Store) ListRuns(ctx context.Context) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	s.runs.Range(func(_, v any) bool {
		out = append(out, v.(*ledger.Entry).Clone())
		return true
	})
	return out, nil
}

// Close is a no-op; it lets the store be used where a closable backend is
// expected.
func (s *Store) Close() error { return nil }
