// Package redisstore persists provenance records and run ledger entries in
// Redis. Values are JSON documents; sorted sets index them by time so a
// listing does not need KEYS or SCAN.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vk/benchgrid/internal/ledger"
	"github.com/vk/benchgrid/internal/provenance"
)

// DefaultKeyPrefix namespaces every key.
const DefaultKeyPrefix = "benchgrid:"

// Store implements provenance.Backend and ledger.Backend on Redis.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

var (
	_ provenance.Backend = (*Store)(nil)
	_ ledger.Backend     = (*Store)(nil)
)

// Open connects using a redis:// URL and checks the connection.
func Open(ctx context.Context, url, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, keyPrefix), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) artifactKey(id uuid.UUID) string { return s.keyPrefix + "artifact:" + id.String() }
func (s *Store) artifactIndexKey() string        { return s.keyPrefix + "artifacts" }
func (s *Store) runKey(id uuid.UUID) string      { return s.keyPrefix + "run:" + id.String() }
func (s *Store) runIndexKey() string             { return s.keyPrefix + "runs" }

func (s *Store) PutRecord(ctx context.Context, rec *provenance.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.artifactKey(rec.ID), data, 0)
	pipe.ZAdd(ctx, s.artifactIndexKey(), redis.Z{Score: score(rec.DeclaredAt), Member: rec.ID.String()})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*provenance.Record, error) {
	data, err := s.client.Get(ctx, s.artifactKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", provenance.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var rec provenance.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provenance record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListRecords(ctx context.Context) ([]*provenance.Record, error) {
	ids, err := s.client.ZRange(ctx, s.artifactIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*provenance.Record, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt artifact index entry %q: %w", raw, err)
		}
		rec, err := s.GetRecord(ctx, id)
		if errors.Is(err, provenance.ErrNotFound) {
			continue // index entry outlived its value
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PutRun(ctx context.Context, e *ledger.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(e.RunID), data, 0)
	pipe.ZAdd(ctx, s.runIndexKey(), redis.Z{Score: score(e.FinishedAt), Member: e.RunID.String()})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var e ledger.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entry %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*ledger.Entry, error) {
	ids, err := s.client.ZRange(ctx, s.runIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*ledger.Entry, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt run index entry %q: %w", raw, err)
		}
		e, err := s.GetRun(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func score(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli())
}
