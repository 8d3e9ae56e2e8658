// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package sweep

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/run"
)

var (
	// ErrInvalidSpec is returned for malformed axes or output directories.
	ErrInvalidSpec = errors.New("invalid sweep")
	// ErrEmptySweep is returned when every combination was pruned.
	ErrEmptySweep = errors.New("sweep produced no runs")
	// ErrOutputCollision is returned when two descriptors would write to the
	// same output directory.
	ErrOutputCollision = errors.New("output directory collision")
)

// LegalityFunc returns the values of an axis that are legal given the values
// chosen for the earlier axes. Returning a value outside the axis's declared
// domain is an error.
type LegalityFunc func(ctx context.Context, chosen run.Params) ([]string, error)

// Axis is one dimension of the sweep.
type Axis struct {
	Name   string
	Values []string
	// Allowed restricts Values per prefix. Nil allows every value.
	Allowed LegalityFunc
}

// OutputDirFunc maps a complete set of parameters to a relative directory.
type OutputDirFunc func(run.Params) (string, error)

// Spec describes a sweep.
type Spec struct {
	Campaign  string
	Axes      []Axis
	Artifacts []artifact.ID
	Timeout   time.Duration
	// OutputDir defaults to DefaultOutputDir.
	OutputDir OutputDirFunc
	// Recipe is copied into every descriptor and becomes part of its identity.
	Recipe string
}

// Resolver looks up registered artifacts. *artifact.Registry implements it.
type Resolver interface {
	Resolve(id artifact.ID) (*artifact.Artifact, error)
}

// DefaultOutputDir places a run under results/ with one path segment per axis
// value, in axis order. Values are path-escaped, so distinct parameter sets
// always map to distinct directories.
func DefaultOutputDir(p run.Params) (string, error) {
	segments := make([]string, 0, len(p)+1)
	segments = append(segments, "results")
	for _, v := range p.Values() {
		segments = append(segments, escapeSegment(v))
	}
	return path.Join(segments...), nil
}

func escapeSegment(v string) string {
	s := url.PathEscape(v)
	if s == "." || s == ".." {
		s = strings.ReplaceAll(s, ".", "%2E")
	}
	return s
}
