package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/run"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the functions campaign expressions may call.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"lookup":   lookupFunc,
		"contains": stdlib.ContainsFunc,
		"concat":   stdlib.ConcatFunc,
		"length":   stdlib.LengthFunc,
		"format":   stdlib.FormatFunc,
		"join":     stdlib.JoinFunc,
		"upper":    stdlib.UpperFunc,
		"lower":    stdlib.LowerFunc,
		"keys":     stdlib.KeysFunc,
	}
}

// lookupFunc behaves like stdlib's lookup but returns the default as
// written instead of converting it to the element type, so
// lookup(local.sizes, axis.cpu, []) works when the elements are tuples of
// different lengths.
var lookupFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "inputMap", Type: cty.DynamicPseudoType},
		{Name: "key", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.DynamicPseudoType, AllowNull: true},
	Type:     function.StaticReturnType(cty.DynamicPseudoType),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if len(args) > 3 {
			return cty.NilVal, fmt.Errorf("lookup takes at most one default value")
		}
		coll, key := args[0], args[1]
		ty := coll.Type()
		switch {
		case ty.IsObjectType():
			if ty.HasAttribute(key.AsString()) {
				return coll.GetAttr(key.AsString()), nil
			}
		case ty.IsMapType():
			if coll.HasIndex(key).True() {
				return coll.Index(key), nil
			}
		default:
			return cty.NilVal, function.NewArgErrorf(0, "lookup needs a map or object, got %s", ty.FriendlyName())
		}
		if len(args) == 3 {
			return args[2], nil
		}
		return cty.NilVal, function.NewArgErrorf(1, "no element with key %q", key.AsString())
	},
})

// Scope holds the variables visible to an expression.
type Scope struct {
	Locals    map[string]cty.Value
	Artifacts map[string]cty.Value
	Axes      run.Params
	Run       map[string]string
}

// EvalContext builds the evaluation context for the scope.
func (s Scope) EvalContext() *hcl.EvalContext {
	axes := make(map[string]cty.Value, len(s.Axes))
	for _, p := range s.Axes {
		axes[p.Axis] = cty.StringVal(p.Value)
	}
	runVars := make(map[string]cty.Value, len(s.Run))
	for k, v := range s.Run {
		runVars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"local":    objectVal(s.Locals),
			"artifact": objectVal(s.Artifacts),
			"axis":     objectVal(axes),
			"run":      objectVal(runVars),
		},
		Functions: Functions(),
	}
}

// JobScope returns the scope of the job's command and output directory
// templates for one run.
func JobScope(locals map[string]cty.Value, env campaign.JobEnv) Scope {
	artifacts := make(map[string]cty.Value, len(env.Artifacts))
	for name, a := range env.Artifacts {
		artifacts[name] = ArtifactValue(a)
	}
	return Scope{
		Locals:    locals,
		Artifacts: artifacts,
		Axes:      env.Params,
		Run: map[string]string{
			"campaign": env.Campaign,
			"id":       env.RunID,
			"outdir":   env.OutputDir,
		},
	}
}

// ArtifactValue exposes a registered artifact to expressions.
func ArtifactValue(a *artifact.Artifact) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"id":      cty.StringVal(a.ID().String()),
		"name":    cty.StringVal(a.Name()),
		"kind":    cty.StringVal(string(a.Kind())),
		"path":    cty.StringVal(a.Path()),
		"cwd":     cty.StringVal(a.Cwd()),
		"command": cty.StringVal(a.Command()),
		"recipe":  cty.StringVal(a.RecipeHash()),
	})
}

// DeclaredValue exposes an artifact that is declared but not registered
// yet. It lacks the identity and recipe of a registered one.
func DeclaredValue(spec *campaign.ArtifactSpec) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"name":    cty.StringVal(spec.Name),
		"kind":    cty.StringVal(spec.Kind),
		"path":    cty.StringVal(spec.Path),
		"cwd":     cty.StringVal(spec.Cwd),
		"command": cty.StringVal(spec.Command),
	})
}

func objectVal(m map[string]cty.Value) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(m)
}

// Refs restricts what an expression may refer to. A nil set forbids the
// whole root.
type Refs struct {
	// Owner is the artifact whose attribute is checked, reported in
	// dependency errors.
	Owner     string
	Locals    map[string]bool
	Artifacts map[string]bool
	Axes      map[string]bool
	Run       map[string]bool
}

// Check reports the first reference or function call the expression is not
// allowed to make. References to unknown artifacts fail with a
// *artifact.DependencyError.
func (r Refs) Check(expr hcl.Expression) error {
	traversals, funcs := analyze(expr)

	known := Functions()
	for _, name := range funcs {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%s: %w: call to unknown function %q", expr.Range(), campaign.ErrInvalidCampaign, name)
		}
	}

	for _, tr := range traversals {
		root := tr.RootName()
		name, ok := refAttr(tr)
		if !ok {
			return fmt.Errorf("%s: %w: reference %q must name an attribute of %q", tr.SourceRange(), campaign.ErrInvalidCampaign, TraversalKey(tr), root)
		}
		switch root {
		case "local":
			if !r.Locals[name] {
				return fmt.Errorf("%s: %w: local %q is not declared before this expression", tr.SourceRange(), campaign.ErrInvalidCampaign, name)
			}
		case "artifact":
			if r.Artifacts == nil {
				return fmt.Errorf("%s: %w: artifacts cannot be referenced here", tr.SourceRange(), campaign.ErrInvalidCampaign)
			}
			if !r.Artifacts[name] {
				return &artifact.DependencyError{Artifact: r.Owner, Ref: "artifact." + name}
			}
		case "axis":
			if !r.Axes[name] {
				return fmt.Errorf("%s: %w: axis %q is not declared before this expression", tr.SourceRange(), campaign.ErrInvalidCampaign, name)
			}
		case "run":
			if !r.Run[name] {
				return fmt.Errorf("%s: %w: run.%s is not available here", tr.SourceRange(), campaign.ErrInvalidCampaign, name)
			}
		default:
			return fmt.Errorf("%s: %w: unknown variable %q", tr.SourceRange(), campaign.ErrInvalidCampaign, root)
		}
	}
	return nil
}

// ParseTemplate parses an HCL template such as "results/${axis.cpu}" as
// found in non-HCL campaign formats.
func ParseTemplate(src, filename string, line int) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), filename, hcl.Pos{Line: line, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse template %q: %w", src, diags)
	}
	return expr, nil
}

// EvalString evaluates expr in scope and converts the result to a string.
func EvalString(expr hcl.Expression, scope Scope) (string, error) {
	val, diags := expr.Value(scope.EvalContext())
	if diags.HasErrors() {
		return "", diags
	}
	return ToString(val)
}

// EvalStrings evaluates expr in scope and converts the result to a list of
// strings.
func EvalStrings(expr hcl.Expression, scope Scope) ([]string, error) {
	val, diags := expr.Value(scope.EvalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	return ToStrings(val)
}

// EvalCommand evaluates a job command. A list is used as the argv; a single
// string is run through the shell.
func EvalCommand(expr hcl.Expression, scope Scope) ([]string, error) {
	val, diags := expr.Value(scope.EvalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	if !val.IsNull() && val.Type() == cty.String {
		s, err := ToString(val)
		if err != nil {
			return nil, err
		}
		return []string{"sh", "-c", s}, nil
	}
	argv, err := ToStrings(val)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: job command is empty", expr.Range())
	}
	return argv, nil
}

// Set builds a visibility set for Refs.
func Set(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func setOfKeys[V any](m map[string]V) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
