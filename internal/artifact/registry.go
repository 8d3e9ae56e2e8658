// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package artifact

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/dag"
	"github.com/vk/benchgrid/internal/metrics"
	"github.com/vk/benchgrid/internal/provenance"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vk/benchgrid/internal/artifact"

// Registry holds the artifacts of one campaign and the graph of their inputs.
type Registry struct {
	mu      sync.RWMutex
	store   *provenance.Store
	graph   *dag.Graph
	byID    map[ID]*Artifact
	byName  map[string]*Artifact
	order   []*Artifact
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics counts registrations per kind.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) { r.tracer = tp.Tracer(tracerName) }
}

// NewRegistry creates an empty registry that forwards every registration to
// store. A nil store keeps the registry purely in memory.
func NewRegistry(store *provenance.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		graph:  dag.New(),
		byID:   make(map[ID]*Artifact),
		byName: make(map[string]*Artifact),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates a declaration and adds it to the registry. Registering
// the same declaration twice returns the artifact registered first.
func (r *Registry) Register(ctx context.Context, decl Declaration) (*Artifact, error) {
	ctx, span := r.tracer.Start(ctx, "artifact.register",
		trace.WithAttributes(
			attribute.String("artifact.name", decl.Name),
			attribute.String("artifact.kind", string(decl.Kind)),
		))
	defer span.End()

	a, err := r.register(ctx, decl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("artifact.id", a.id.String()))
	return a, nil
}

func (r *Registry) register(ctx context.Context, decl Declaration) (*Artifact, error) {
	decl, err := normalise(decl)
	if err != nil {
		return nil, err
	}
	a := &Artifact{
		id:         NewID(decl.Kind, decl.Name),
		decl:       decl,
		recipeHash: RecipeHash(decl),
	}
	logger := ctxlog.FromContext(ctx).With("artifact", decl.Name, "kind", decl.Kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, in := range decl.Inputs {
		if in == a.id {
			return nil, fmt.Errorf("%w: artifact %q lists itself as an input", ErrInvalidDeclaration, decl.Name)
		}
		if _, ok := r.byID[in]; !ok {
			return nil, &DependencyError{Artifact: decl.Name, Missing: in}
		}
	}

	if existing, ok := r.byID[a.id]; ok {
		if existing.recipeHash == a.recipeHash {
			logger.Debug("Artifact already registered with identical recipe.")
			return existing, nil
		}
		return nil, &provenance.ConflictError{
			ID:             a.id,
			Name:           decl.Name,
			RecordedRecipe: existing.recipeHash,
			DeclaredRecipe: a.recipeHash,
		}
	}
	if other, ok := r.byName[decl.Name]; ok {
		return nil, fmt.Errorf("%w: name %q is already used by %s", ErrInvalidDeclaration, decl.Name, other)
	}

	if r.store != nil {
		if _, err := r.store.Put(ctx, a.Record()); err != nil {
			return nil, fmt.Errorf("recording artifact %q: %w", decl.Name, err)
		}
	}

	key := a.id.String()
	r.graph.AddNode(key)
	for _, in := range decl.Inputs {
		if err := r.graph.AddEdge(in.String(), key); err != nil {
			return nil, fmt.Errorf("linking artifact %q: %w", decl.Name, err)
		}
	}
	r.byID[a.id] = a
	r.byName[decl.Name] = a
	r.order = append(r.order, a)
	r.metrics.ArtifactRegistered(string(decl.Kind))

	logger.Info("📦 Artifact registered.", "id", key, "inputs", len(decl.Inputs))
	return a, nil
}

func normalise(decl Declaration) (Declaration, error) {
	kind, err := ParseKind(string(decl.Kind))
	if err != nil {
		return decl, err
	}
	decl.Kind = kind
	decl.Name = strings.TrimSpace(decl.Name)

	var missing []string
	if decl.Name == "" {
		missing = append(missing, "name")
	}
	if decl.Path == "" {
		missing = append(missing, "path")
	}
	if decl.Cwd == "" {
		missing = append(missing, "cwd")
	}
	if len(missing) > 0 {
		return decl, fmt.Errorf("%w: %s artifact %q is missing %s", ErrInvalidDeclaration, kind, decl.Name, strings.Join(missing, ", "))
	}

	seen := make(map[ID]bool, len(decl.Inputs))
	inputs := make([]ID, 0, len(decl.Inputs))
	for _, in := range decl.Inputs {
		if seen[in] {
			return decl, fmt.Errorf("%w: artifact %q lists input %s twice", ErrInvalidDeclaration, decl.Name, in)
		}
		seen[in] = true
		inputs = append(inputs, in)
	}
	decl.Inputs = inputs
	return decl, nil
}

// Resolve returns the artifact registered under id.
func (r *Registry) Resolve(id ID) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Lookup returns the artifact registered under a logical name.
func (r *Registry) Lookup(name string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// TopologicalOrder lists every artifact after all of its inputs. Artifacts
// that become ready together keep registration order.
func (r *Registry) TopologicalOrder() ([]*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	out := make([]*Artifact, 0, len(ids))
	for _, key := range ids {
		out = append(out, r.byID[uuid.MustParse(key)])
	}
	return out, nil
}

// All returns the artifacts in registration order.
func (r *Registry) All() []*Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Artifact, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Store returns the provenance store the registry forwards to, or nil.
func (r *Registry) Store() *provenance.Store { return r.store }
