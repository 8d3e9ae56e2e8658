package campaign

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/run"
	"github.com/vk/benchgrid/internal/sweep"
)

// ErrInvalidCampaign is returned for models that cannot be planned.
var ErrInvalidCampaign = errors.New("invalid campaign")

// Plan is a campaign whose artifacts are registered and whose sweep is ready
// to be expanded.
type Plan struct {
	Campaign string
	// Artifacts lists the campaign's artifacts, inputs before dependents.
	Artifacts []*artifact.Artifact
	Sweep     sweep.Spec
	// Command builds the argv of a descriptor's job.
	Command func(d *run.Descriptor) ([]string, error)
}

// Options adjusts a plan.
type Options struct {
	// Timeout overrides the job block's timeout when positive.
	Timeout time.Duration
	// OutputRoot is prefixed to the output directory the job command sees.
	// Descriptors keep their relative directory either way.
	OutputRoot string
}

// Build registers every artifact of m in file order and prepares the sweep.
// Inputs and job artifacts must name artifacts declared earlier in the file;
// anything else fails with artifact.ErrUnknownDependency.
func Build(ctx context.Context, m *Model, reg *artifact.Registry, opts Options) (*Plan, error) {
	logger := ctxlog.FromContext(ctx).With("campaign", m.Name)
	if m.Job == nil {
		return nil, fmt.Errorf("%w: campaign %q has no job block", ErrInvalidCampaign, m.Name)
	}
	if m.Job.Command == nil {
		return nil, fmt.Errorf("%w: campaign %q has no job command", ErrInvalidCampaign, m.Name)
	}

	byName := make(map[string]*artifact.Artifact, len(m.Artifacts))
	registered := make([]*artifact.Artifact, 0, len(m.Artifacts))
	for _, spec := range m.Artifacts {
		inputs := make([]artifact.ID, 0, len(spec.Inputs))
		for _, name := range spec.Inputs {
			in, ok := byName[name]
			if !ok {
				return nil, &artifact.DependencyError{Artifact: spec.Name, Ref: "artifact." + name}
			}
			inputs = append(inputs, in.ID())
		}
		a, err := reg.Register(ctx, artifact.Declaration{
			Name:          spec.Name,
			Kind:          artifact.Kind(spec.Kind),
			Path:          spec.Path,
			Cwd:           spec.Cwd,
			Command:       spec.Command,
			Documentation: spec.Documentation,
			Inputs:        inputs,
		})
		if err != nil {
			return nil, err
		}
		byName[spec.Name] = a
		registered = append(registered, a)
	}
	ordered, err := dependencyOrder(reg, registered)
	if err != nil {
		return nil, err
	}

	var jobArtifacts []artifact.ID
	for _, name := range m.Job.Artifacts {
		a, ok := byName[name]
		if !ok {
			return nil, &artifact.DependencyError{Ref: "artifact." + name}
		}
		jobArtifacts = append(jobArtifacts, a.ID())
	}

	axes := make([]sweep.Axis, len(m.Axes))
	for i, a := range m.Axes {
		axes[i] = sweep.Axis{Name: a.Name, Values: a.Values, Allowed: a.Allowed}
	}

	timeout := m.Job.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	spec := sweep.Spec{
		Campaign:  m.Name,
		Axes:      axes,
		Artifacts: jobArtifacts,
		Timeout:   timeout,
		Recipe:    m.Job.Recipe,
	}
	if m.Job.OutputDir != nil {
		spec.OutputDir = func(p run.Params) (string, error) {
			return m.Job.OutputDir(JobEnv{Campaign: m.Name, Params: p, Artifacts: byName})
		}
	}

	command := func(d *run.Descriptor) ([]string, error) {
		outdir := d.OutputDir()
		if opts.OutputRoot != "" {
			outdir = filepath.Join(opts.OutputRoot, outdir)
		}
		return m.Job.Command(JobEnv{
			Campaign:  m.Name,
			Params:    d.Params(),
			Artifacts: byName,
			OutputDir: outdir,
			RunID:     d.Key(),
		})
	}

	logger.Info("📋 Campaign planned.", "artifacts", len(registered), "axes", len(axes), "timeout", timeout)
	return &Plan{Campaign: m.Name, Artifacts: ordered, Sweep: spec, Command: command}, nil
}

// dependencyOrder checks the registry's graph for cycles and returns the
// campaign's artifacts in topological order.
func dependencyOrder(reg *artifact.Registry, registered []*artifact.Artifact) ([]*artifact.Artifact, error) {
	order, err := reg.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: artifact graph: %w", ErrInvalidCampaign, err)
	}
	mine := make(map[artifact.ID]bool, len(registered))
	for _, a := range registered {
		mine[a.ID()] = true
	}
	out := make([]*artifact.Artifact, 0, len(registered))
	for _, a := range order {
		if mine[a.ID()] {
			out = append(out, a)
			delete(mine, a.ID())
		}
	}
	return out, nil
}
