package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/localexecutor"
	"github.com/vk/benchgrid/internal/provenance"
)

// ErrBuildFailed is returned when an artifact's build command exits non-zero.
var ErrBuildFailed = errors.New("artifact build failed")

// buildArtifacts builds every artifact that has not been built yet, inputs
// first, and records a fingerprint of each. A fingerprint that differs from
// the recorded one stops the campaign with a *provenance.DriftError.
func buildArtifacts(ctx context.Context, store *provenance.Store, order []*artifact.Artifact, root string) error {
	shell := &localexecutor.Shell{Root: root}
	verifier := &localexecutor.Verifier{Root: root}

	for _, a := range order {
		logger := ctxlog.FromContext(ctx).With("artifact", a.Name())

		rec, err := store.Get(ctx, a.ID())
		if err != nil {
			return fmt.Errorf("reading provenance of %q: %w", a.Name(), err)
		}
		if rec.Status.AtLeast(provenance.StatusBuilt) {
			logger.Debug("Artifact already built, skipping build.", "status", rec.Status)
		} else {
			res, err := shell.BuildArtifact(ctx, a)
			if err != nil {
				return fmt.Errorf("building artifact %q: %w", a.Name(), err)
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("%w: %q exited with code %d: %s", ErrBuildFailed, a.Name(), res.ExitCode, res.Output)
			}
			if err := store.MarkBuilt(ctx, a.ID()); err != nil {
				return err
			}
		}

		fingerprint, err := verifier.Fingerprint(ctx, a.Path())
		if err != nil {
			return fmt.Errorf("verifying artifact %q: %w", a.Name(), err)
		}
		if err := store.MarkVerified(ctx, a.ID(), fingerprint); err != nil {
			return err
		}
		logger.Info("🔎 Artifact verified.", "fingerprint", fingerprint)
	}
	return nil
}
