package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/ledger"
	"github.com/vk/benchgrid/internal/provenance"
	"github.com/vk/benchgrid/internal/run"
)

// ProvenanceBackendContract checks the behaviour every provenance.Backend must
// share. newBackend must return an empty backend.
func ProvenanceBackendContract(t *testing.T, newBackend func(t *testing.T) provenance.Backend) {
	t.Helper()
	ctx := context.Background()
	declared := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing record", func(t *testing.T) {
		_, err := newBackend(t).GetRecord(ctx, uuid.New())
		assert.ErrorIs(t, err, provenance.ErrNotFound)
	})

	t.Run("put, replace, get and list", func(t *testing.T) {
		b := newBackend(t)
		repo := &provenance.Record{
			ID: uuid.New(), Name: "gem5_repo", Kind: "repository", Path: "gem5/", Cwd: "./",
			Command: "git clone https://gem5.googlesource.com/public/gem5", RecipeHash: "r1",
			Status: provenance.StatusDeclared, DeclaredAt: declared, UpdatedAt: declared,
		}
		bin := &provenance.Record{
			ID: uuid.New(), Name: "gem5_binary", Kind: "binary", Path: "gem5/build/X86/gem5.opt", Cwd: "gem5/",
			Inputs: []uuid.UUID{repo.ID}, RecipeHash: "r2", Documentation: "default build",
			Status: provenance.StatusDeclared, DeclaredAt: declared.Add(time.Second), UpdatedAt: declared.Add(time.Second),
		}
		require.NoError(t, b.PutRecord(ctx, repo))
		require.NoError(t, b.PutRecord(ctx, bin))

		got, err := b.GetRecord(ctx, bin.ID)
		require.NoError(t, err)
		assertRecordEqual(t, bin, got)

		bin.Status = provenance.StatusVerified
		bin.Fingerprint = "sha256:abc"
		bin.UpdatedAt = declared.Add(time.Minute)
		require.NoError(t, b.PutRecord(ctx, bin))
		got, err = b.GetRecord(ctx, bin.ID)
		require.NoError(t, err)
		assertRecordEqual(t, bin, got)

		all, err := b.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})
}

func assertRecordEqual(t *testing.T, want, got *provenance.Record) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Cwd, got.Cwd)
	assert.Equal(t, want.Command, got.Command)
	assert.Equal(t, want.Documentation, got.Documentation)
	assert.Equal(t, len(want.Inputs), len(got.Inputs))
	for i := range want.Inputs {
		assert.Equal(t, want.Inputs[i], got.Inputs[i])
	}
	assert.Equal(t, want.RecipeHash, got.RecipeHash)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Fingerprint, got.Fingerprint)
	assert.True(t, want.DeclaredAt.Equal(got.DeclaredAt), "declared_at: want %s, got %s", want.DeclaredAt, got.DeclaredAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %s, got %s", want.UpdatedAt, got.UpdatedAt)
}

// LedgerBackendContract checks the behaviour every ledger.Backend must share.
func LedgerBackendContract(t *testing.T, newBackend func(t *testing.T) ledger.Backend) {
	t.Helper()
	ctx := context.Background()
	finished := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("missing entry", func(t *testing.T) {
		_, err := newBackend(t).GetRun(ctx, uuid.New())
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("put, replace, get and list", func(t *testing.T) {
		b := newBackend(t)
		e := &ledger.Entry{
			RunID:      uuid.New(),
			Campaign:   "spec2017",
			Params:     run.Params{{Axis: "cpu", Value: "o3"}, {Axis: "size", Value: "ref"}},
			OutputDir:  "results/o3/ref",
			Status:     run.StatusTimedOut,
			ExitCode:   -1,
			Err:        "job exceeded its timeout of 40m0s",
			StartedAt:  finished.Add(-40 * time.Minute),
			FinishedAt: finished,
			Attempts:   1,
		}
		require.NoError(t, b.PutRun(ctx, e))

		e.Status = run.StatusSucceeded
		e.ExitCode = 0
		e.Err = ""
		e.Output = "Exiting @ tick 1000000"
		e.Attempts = 2
		require.NoError(t, b.PutRun(ctx, e))

		other := &ledger.Entry{
			RunID: uuid.New(), Campaign: "spec2017", Params: run.Params{{Axis: "cpu", Value: "atomic"}},
			OutputDir: "results/atomic", Status: run.StatusFailed, ExitCode: 1, FinishedAt: finished.Add(time.Hour), Attempts: 1,
		}
		require.NoError(t, b.PutRun(ctx, other))

		got, err := b.GetRun(ctx, e.RunID)
		require.NoError(t, err)
		assert.Equal(t, e.RunID, got.RunID)
		assert.Equal(t, e.Campaign, got.Campaign)
		assert.Equal(t, e.Params, got.Params)
		assert.Equal(t, e.OutputDir, got.OutputDir)
		assert.Equal(t, run.StatusSucceeded, got.Status)
		assert.Equal(t, 0, got.ExitCode)
		assert.Equal(t, e.Output, got.Output)
		assert.Equal(t, 2, got.Attempts)
		assert.True(t, e.StartedAt.Equal(got.StartedAt))
		assert.True(t, e.FinishedAt.Equal(got.FinishedAt))

		all, err := b.ListRuns(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}
