// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/run"
)

type options struct {
	allowEmpty bool
}

// Option configures Expand.
type Option func(*options)

// AllowEmpty makes a sweep that prunes every combination return no
// descriptors instead of ErrEmptySweep.
func AllowEmpty() Option {
	return func(o *options) { o.allowEmpty = true }
}

// Expand validates spec and returns one pending descriptor per legal
// combination, in depth-first order over the declared axes.
func Expand(ctx context.Context, spec Spec, resolver Resolver, opts ...Option) ([]*run.Descriptor, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := validate(spec); err != nil {
		return nil, err
	}
	for _, id := range spec.Artifacts {
		if _, err := resolver.Resolve(id); err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				return nil, &artifact.DependencyError{Missing: id}
			}
			return nil, err
		}
	}
	outputDir := spec.OutputDir
	if outputDir == nil {
		outputDir = DefaultOutputDir
	}

	logger := ctxlog.FromContext(ctx).With("campaign", spec.Campaign)
	e := &expander{spec: spec, outputDir: outputDir, seen: make(map[string]run.Params)}
	if err := e.walk(ctx, 0, nil); err != nil {
		return nil, err
	}

	if len(e.out) == 0 && !o.allowEmpty {
		return nil, fmt.Errorf("%w: every combination of %d axes was pruned", ErrEmptySweep, len(spec.Axes))
	}
	logger.Debug("Sweep expanded.", "descriptors", len(e.out), "pruned", e.pruned)
	return e.out, nil
}

func validate(spec Spec) error {
	if len(spec.Axes) == 0 {
		return fmt.Errorf("%w: no axes declared", ErrInvalidSpec)
	}
	if spec.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidSpec)
	}
	names := make(map[string]bool, len(spec.Axes))
	for _, axis := range spec.Axes {
		if axis.Name == "" {
			return fmt.Errorf("%w: axis without a name", ErrInvalidSpec)
		}
		if names[axis.Name] {
			return fmt.Errorf("%w: axis %q declared twice", ErrInvalidSpec, axis.Name)
		}
		names[axis.Name] = true
		if len(axis.Values) == 0 {
			return fmt.Errorf("%w: axis %q has no values", ErrInvalidSpec, axis.Name)
		}
		values := make(map[string]bool, len(axis.Values))
		for _, v := range axis.Values {
			if v == "" {
				return fmt.Errorf("%w: axis %q has an empty value", ErrInvalidSpec, axis.Name)
			}
			if values[v] {
				return fmt.Errorf("%w: axis %q lists %q twice", ErrInvalidSpec, axis.Name, v)
			}
			values[v] = true
		}
	}
	return nil
}

type expander struct {
	spec      Spec
	outputDir OutputDirFunc
	seen      map[string]run.Params
	out       []*run.Descriptor
	pruned    int
}

func (e *expander) walk(ctx context.Context, depth int, chosen run.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(e.spec.Axes) {
		return e.leaf(chosen)
	}

	axis := e.spec.Axes[depth]
	values, err := legalValues(ctx, axis, chosen)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		e.pruned++
		ctxlog.FromContext(ctx).Debug("Sweep branch pruned.", "axis", axis.Name, "prefix", chosen.String())
		return nil
	}
	for _, v := range values {
		if err := e.walk(ctx, depth+1, chosen.With(axis.Name, v)); err != nil {
			return err
		}
	}
	return nil
}

// legalValues intersects the legality answer with the declared domain,
// keeping declared order.
func legalValues(ctx context.Context, axis Axis, chosen run.Params) ([]string, error) {
	if axis.Allowed == nil {
		return axis.Values, nil
	}
	allowed, err := axis.Allowed(ctx, chosen.Clone())
	if err != nil {
		return nil, fmt.Errorf("evaluating legal values of axis %q for %s: %w", axis.Name, chosen, err)
	}
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		if !slices.Contains(axis.Values, v) {
			return nil, fmt.Errorf("%w: axis %q allows %q for %s, which is not one of its values", ErrInvalidSpec, axis.Name, v, chosen)
		}
		set[v] = true
	}
	out := make([]string, 0, len(set))
	for _, v := range axis.Values {
		if set[v] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (e *expander) leaf(params run.Params) error {
	dir, err := e.outputDir(params)
	if err != nil {
		return fmt.Errorf("output directory for %s: %w", params, err)
	}
	if !filepath.IsLocal(dir) {
		return fmt.Errorf("%w: output directory %q for %s must be relative and stay inside the output root", ErrInvalidSpec, dir, params)
	}
	key := filepath.Clean(dir)
	if other, ok := e.seen[key]; ok {
		return fmt.Errorf("%w: %s and %s both write to %q", ErrOutputCollision, other, params, key)
	}
	e.seen[key] = params

	d, err := run.NewDescriptor(run.Config{
		Campaign:  e.spec.Campaign,
		Params:    params,
		Artifacts: e.spec.Artifacts,
		OutputDir: key,
		Timeout:   e.spec.Timeout,
		Recipe:    e.spec.Recipe,
		Index:     len(e.out),
	})
	if err != nil {
		return err
	}
	e.out = append(e.out, d)
	return nil
}
