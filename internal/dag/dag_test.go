package dag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
	assert.Zero(t, g.Len())
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	assert.True(t, g.HasNode("b"))
	assert.Equal(t, []string{"a", "b"}, g.order)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // Transitive edge
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a")) // Cycle
		err := g.DetectCycles()
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("longer cycle is detected", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		g.AddNode("d")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		require.NoError(t, g.AddEdge("d", "a")) // Cycle back to the start
		err := g.DetectCycles()
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		// Component 1 (valid)
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))

		// Component 2 (has a cycle)
		g.AddNode("x")
		g.AddNode("y")
		g.AddNode("z")
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y")) // Cycle

		err := g.DetectCycles()
		assert.ErrorIs(t, err, ErrCycleDetected)
	})
}

func TestDependenciesAndDependents(t *testing.T) {
	g := New()
	for _, id := range []string{"repo", "binary", "m5", "image"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("repo", "binary"))
	require.NoError(t, g.AddEdge("repo", "m5"))
	require.NoError(t, g.AddEdge("m5", "image"))

	deps, err := g.Dependencies("image")
	require.NoError(t, err)
	assert.Equal(t, []string{"m5"}, deps)

	dependents, err := g.Dependents("repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"binary", "m5"}, dependents)

	_, err = g.Dependencies("dne")
	assert.ErrorContains(t, err, "node not found")
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("ties follow insertion order", func(t *testing.T) {
		g := New()
		for _, id := range []string{"experiments", "gem5", "binary", "m5", "packer", "image", "kernel"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("gem5", "binary"))
		require.NoError(t, g.AddEdge("gem5", "m5"))
		require.NoError(t, g.AddEdge("packer", "image"))
		require.NoError(t, g.AddEdge("experiments", "image"))
		require.NoError(t, g.AddEdge("m5", "image"))
		require.NoError(t, g.AddEdge("experiments", "kernel"))

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"experiments", "gem5", "binary", "m5", "packer", "image", "kernel"}, order)
	})

	t.Run("dependency inserted later still comes first", func(t *testing.T) {
		g := New()
		g.AddNode("b")
		g.AddNode("a")
		require.NoError(t, g.AddEdge("a", "b"))

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("cycle is reported", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.TopologicalOrder()
		assert.ErrorIs(t, err, ErrCycleDetected)
	})
}

// TestTopologicalOrder_Property checks that for random DAGs every node is
// listed after all of its dependencies.
func TestTopologicalOrder_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 25).Draw(t, "nodes")
		g := New()
		for i := 0; i < n; i++ {
			g.AddNode(fmt.Sprintf("n%d", i))
		}
		// Edges only go from lower to higher index, so the graph is acyclic.
		for to := 1; to < n; to++ {
			for from := 0; from < to; from++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", from, to)) {
					require.NoError(t, g.AddEdge(fmt.Sprintf("n%d", from), fmt.Sprintf("n%d", to)))
				}
			}
		}

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, id := range order {
			pos[id] = i
		}
		for _, id := range order {
			deps, err := g.Dependencies(id)
			require.NoError(t, err)
			for _, dep := range deps {
				require.Less(t, pos[dep], pos[id], "%s must precede %s", dep, id)
			}
		}
	})
}
