package artifact

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/inmemorystore"
	"github.com/vk/benchgrid/internal/metrics"
	"github.com/vk/benchgrid/internal/provenance"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

func newRegistry(t *testing.T, opts ...Option) (*Registry, *provenance.Store) {
	t.Helper()
	store := provenance.New(inmemorystore.New())
	return NewRegistry(store, opts...), store
}

func gem5Repo() Declaration {
	return Declaration{
		Name:          "gem5_repo",
		Kind:          "git repo",
		Path:          "gem5/",
		Cwd:           "./",
		Command:       "git clone https://gem5.googlesource.com/public/gem5",
		Documentation: "cloned gem5 master",
	}
}

func gem5Binary(repo ID) Declaration {
	return Declaration{
		Name:    "gem5_binary",
		Kind:    KindBinary,
		Path:    "gem5/build/X86/gem5.opt",
		Cwd:     "gem5/",
		Command: "scons build/X86/gem5.opt -j8",
		Inputs:  []ID{repo},
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"repository":   KindRepository,
		"git repo":     KindRepository,
		"gem5 binary":  KindBinary,
		"Disk Image":   KindDiskImage,
		"disk_image":   KindDiskImage,
		"kernel":       KindKernelImage,
		"kernel-image": KindKernelImage,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("checkpoint")
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}

func TestRegister_DeterministicIdentity(t *testing.T) {
	ctx := context.Background()
	r1, _ := newRegistry(t)
	r2, _ := newRegistry(t)

	a1, err := r1.Register(ctx, gem5Repo())
	require.NoError(t, err)
	a2, err := r2.Register(ctx, gem5Repo())
	require.NoError(t, err)

	assert.Equal(t, a1.ID(), a2.ID())
	assert.Equal(t, a1.RecipeHash(), a2.RecipeHash())
	assert.Equal(t, KindRepository, a1.Kind())
	assert.Equal(t, NewID(KindRepository, "gem5_repo"), a1.ID())
}

func TestRegister_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	a, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)

	decl := gem5Repo()
	decl.Documentation = "different docs do not change the recipe"
	b, err := r.Register(ctx, decl)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_ChangedRecipeConflicts(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	_, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)

	decl := gem5Repo()
	decl.Command = "git clone --branch develop https://gem5.googlesource.com/public/gem5"
	_, err = r.Register(ctx, decl)
	assert.ErrorIs(t, err, provenance.ErrConflict)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_ConflictWithEarlierSession(t *testing.T) {
	ctx := context.Background()
	store := provenance.New(inmemorystore.New())

	_, err := NewRegistry(store).Register(ctx, gem5Repo())
	require.NoError(t, err)

	decl := gem5Repo()
	decl.Path = "gem5-develop/"
	_, err = NewRegistry(store).Register(ctx, decl)
	assert.ErrorIs(t, err, provenance.ErrConflict)
}

func TestRegister_UnknownDependency(t *testing.T) {
	r, _ := newRegistry(t)
	missing := uuid.New()

	_, err := r.Register(context.Background(), gem5Binary(missing))
	require.ErrorIs(t, err, ErrUnknownDependency)
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, missing, depErr.Missing)
	assert.Equal(t, "gem5_binary", depErr.Artifact)
	assert.Equal(t, 0, r.Len())
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	repo, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)

	noPath := gem5Repo()
	noPath.Name = "other"
	noPath.Path = ""
	_, err = r.Register(ctx, noPath)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	dup := gem5Binary(repo.ID())
	dup.Inputs = append(dup.Inputs, repo.ID())
	_, err = r.Register(ctx, dup)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	sameNameOtherKind := gem5Repo()
	sameNameOtherKind.Kind = KindDiskImage
	_, err = r.Register(ctx, sameNameOtherKind)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	self := gem5Repo()
	self.Name = "loop"
	self.Inputs = []ID{NewID(KindRepository, "loop")}
	_, err = r.Register(ctx, self)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}

func TestRegister_ForwardsDeclaredRecord(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	repo, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)
	bin, err := r.Register(ctx, gem5Binary(repo.ID()))
	require.NoError(t, err)

	rec, err := store.Get(ctx, bin.ID())
	require.NoError(t, err)
	assert.Equal(t, provenance.StatusDeclared, rec.Status)
	assert.Equal(t, bin.RecipeHash(), rec.RecipeHash)
	assert.Equal(t, []uuid.UUID{repo.ID()}, rec.Inputs)
}

func TestLookupAndResolve(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	repo, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)

	got, err := r.Lookup("gem5_repo")
	require.NoError(t, err)
	assert.Same(t, repo, got)
	got, err = r.Resolve(repo.ID())
	require.NoError(t, err)
	assert.Same(t, repo, got)

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTopologicalOrder_Gem5Chain(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	repo, err := r.Register(ctx, gem5Repo())
	require.NoError(t, err)
	spec, err := r.Register(ctx, Declaration{Name: "spec_repo", Kind: KindRepository, Path: "spec/", Cwd: "./"})
	require.NoError(t, err)
	bin, err := r.Register(ctx, gem5Binary(repo.ID()))
	require.NoError(t, err)
	disk, err := r.Register(ctx, Declaration{
		Name: "disk_image", Kind: KindDiskImage, Path: "disk-image/spec-2017/spec-2017-image/spec-2017",
		Cwd: "disk-image/", Command: "./build.sh", Inputs: []ID{spec.ID()},
	})
	require.NoError(t, err)

	order, err := r.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []*Artifact{repo, spec, bin, disk}, order)
	assert.Equal(t, []*Artifact{repo, spec, bin, disk}, r.All())
}

// TestTopologicalOrder_Property registers random DAGs (inputs always drawn
// from earlier artifacts) and checks every artifact follows its inputs.
func TestTopologicalOrder_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry(nil)
		n := rapid.IntRange(1, 25).Draw(rt, "n")
		var ids []ID
		for i := 0; i < n; i++ {
			var inputs []ID
			if len(ids) > 0 {
				picks := rapid.SliceOfNDistinct(rapid.IntRange(0, len(ids)-1), 0, len(ids), rapid.ID[int]).Draw(rt, "inputs")
				for _, p := range picks {
					inputs = append(inputs, ids[p])
				}
			}
			a, err := r.Register(context.Background(), Declaration{
				Name:   fmt.Sprintf("artifact_%d", i),
				Kind:   KindBinary,
				Path:   "p",
				Cwd:    "c",
				Inputs: inputs,
			})
			if err != nil {
				rt.Fatalf("register: %v", err)
			}
			ids = append(ids, a.ID())
		}

		order, err := r.TopologicalOrder()
		if err != nil {
			rt.Fatalf("order: %v", err)
		}
		pos := make(map[ID]int, len(order))
		for i, a := range order {
			pos[a.ID()] = i
		}
		if len(pos) != n {
			rt.Fatalf("expected %d artifacts, got %d", n, len(pos))
		}
		for _, a := range order {
			for _, in := range a.Inputs() {
				if pos[in] >= pos[a.ID()] {
					rt.Fatalf("%s ordered before its input %s", a, in)
				}
			}
		}
	})
}

func TestRegister_SpansAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	collector := metrics.NewCollector("test")
	r, _ := newRegistry(t, WithTracerProvider(tp), WithMetrics(collector))

	_, err := r.Register(context.Background(), gem5Repo())
	require.NoError(t, err)
	_, err = r.Register(context.Background(), gem5Binary(uuid.New()))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "artifact.register", spans[0].Name())
	assert.Len(t, spans[1].Events(), 1, "the failed registration records its error")
}
