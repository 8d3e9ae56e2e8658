package hcl

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/run"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestLookup(t *testing.T) {
	sizes, err := ToCtyValue(map[string]any{
		"atomic": []any{"test"},
		"o3":     []any{"test", "ref"},
	})
	require.NoError(t, err)
	scope := Scope{Locals: map[string]cty.Value{"sizes": sizes}}

	testCases := []struct {
		cpu  string
		want []string
	}{
		{"atomic", []string{"test"}},
		{"o3", []string{"test", "ref"}},
		{"minor", []string{}},
	}
	for _, tc := range testCases {
		t.Run(tc.cpu, func(t *testing.T) {
			scope.Axes = run.Params{{Axis: "cpu", Value: tc.cpu}}
			got, err := EvalStrings(parseExpr(t, `lookup(local.sizes, axis.cpu, [])`), scope)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = EvalStrings(parseExpr(t, `lookup(local.sizes, "minor")`), scope)
	assert.Error(t, err)
}

func TestFunctions(t *testing.T) {
	scope := Scope{Axes: run.Params{{Axis: "cpu", Value: "o3"}}}
	got, err := EvalString(parseExpr(t, `format("%s-%s", upper(axis.cpu), join("+", concat(["a"], ["b"])))`), scope)
	require.NoError(t, err)
	assert.Equal(t, "O3-a+b", got)
}

func TestToStrings(t *testing.T) {
	got, err := ToStrings(cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.NumberIntVal(2), cty.True}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2", "true"}, got)

	got, err = ToStrings(cty.NullVal(cty.List(cty.String)))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ToStrings(cty.StringVal("a"))
	assert.Error(t, err)
	_, err = ToStrings(cty.TupleVal([]cty.Value{cty.EmptyObjectVal}))
	assert.Error(t, err)
}

func TestToCtyValue(t *testing.T) {
	v, err := ToCtyValue(map[string]any{"n": 3, "f": 1.5, "ok": true, "list": []any{"x"}, "empty": []any{}})
	require.NoError(t, err)
	assert.True(t, v.GetAttr("n").Equals(cty.NumberIntVal(3)).True())
	assert.True(t, v.GetAttr("ok").True())
	assert.Equal(t, 1, v.GetAttr("list").LengthInt())
	assert.Equal(t, 0, v.GetAttr("empty").LengthInt())

	_, err = ToCtyValue(struct{}{})
	assert.Error(t, err)
}

func TestRefsCheck(t *testing.T) {
	refs := Refs{
		Owner:     "gem5_binary",
		Locals:    Set("sizes"),
		Artifacts: Set("gem5_repo"),
		Axes:      Set("cpu"),
		Run:       Set("outdir"),
	}

	require.NoError(t, refs.Check(parseExpr(t, `[artifact.gem5_repo.path, local.sizes, axis.cpu, run.outdir, upper("x")]`)))
	require.NoError(t, refs.Check(parseExpr(t, `[for s in local.sizes : s]`)))

	err := refs.Check(parseExpr(t, `artifact.m5.path`))
	var depErr *artifact.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "gem5_binary", depErr.Artifact)
	assert.Equal(t, "artifact.m5", depErr.Ref)

	for _, src := range []string{`axis.size`, `run.id`, `local.other`, `var.x`, `reverse([])`, `axis`} {
		t.Run(src, func(t *testing.T) {
			assert.ErrorIs(t, refs.Check(parseExpr(t, src)), campaign.ErrInvalidCampaign)
		})
	}

	noArtifacts := Refs{}
	assert.ErrorIs(t, noArtifacts.Check(parseExpr(t, `artifact.gem5_repo.path`)), campaign.ErrInvalidCampaign)
}

func TestAnalyze(t *testing.T) {
	refs, funcs := analyze(parseExpr(t, `lookup(local.sizes, axis.cpu, length(keys(local.sizes)) > 0 ? [] : ["x"])`))
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = TraversalKey(r)
	}
	assert.Equal(t, []string{"axis.cpu", "local.sizes"}, keys)
	assert.Equal(t, []string{"keys", "length", "lookup"}, funcs)
}

func TestEvalCommand(t *testing.T) {
	argv, err := EvalCommand(parseExpr(t, `"make -j8"`), Scope{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "make -j8"}, argv)

	_, err = EvalCommand(parseExpr(t, `[]`), Scope{})
	assert.Error(t, err)
}
