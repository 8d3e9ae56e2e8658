package hcl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/run"
	"github.com/zclconf/go-cty/cty"
)

type translator struct {
	files  map[string]*hcl.File
	locals map[string]cty.Value
}

func (t *translator) translate(ctx context.Context, root *fileRoot) (*campaign.Model, error) {
	c, diags := findUniqueBlock(root.Campaigns, "campaign", func(b *campaignBlock) hcl.Range { return b.DefRange })
	if diags.HasErrors() {
		return nil, diags
	}
	if c == nil {
		return nil, fmt.Errorf("%w: no campaign block found", campaign.ErrInvalidCampaign)
	}
	model := &campaign.Model{Name: c.Name, Description: c.Description}

	if err := t.evalLocals(ctx, root.Locals); err != nil {
		return nil, err
	}

	declared := make(map[string]*campaign.ArtifactSpec)
	for _, block := range root.Artifacts {
		spec, err := t.translateArtifact(block, declared)
		if err != nil {
			return nil, err
		}
		declared[spec.Name] = spec
		model.Artifacts = append(model.Artifacts, spec)
	}

	sweep, diags := findUniqueBlock(root.Sweeps, "sweep", func(b *sweepBlock) hcl.Range { return b.DefRange })
	if diags.HasErrors() {
		return nil, diags
	}
	if sweep == nil {
		return nil, fmt.Errorf("%w: no sweep block found", campaign.ErrInvalidCampaign)
	}
	axes, err := t.translateSweep(sweep)
	if err != nil {
		return nil, err
	}
	model.Axes = axes

	job, diags := findUniqueBlock(root.Jobs, "job", func(b *jobBlock) hcl.Range { return b.DefRange })
	if diags.HasErrors() {
		return nil, diags
	}
	if job == nil {
		return nil, fmt.Errorf("%w: no job block found", campaign.ErrInvalidCampaign)
	}
	model.Job, err = t.translateJob(job, setOfKeys(declared), axisNames(axes))
	if err != nil {
		return nil, err
	}
	return model, nil
}

// evalLocals evaluates locals in declaration order. A local may refer to
// locals declared above it.
func (t *translator) evalLocals(ctx context.Context, blocks []*localsBlock) error {
	t.locals = make(map[string]cty.Value)
	for _, block := range blocks {
		attrs, diags := block.Body.JustAttributes()
		if diags.HasErrors() {
			return diags
		}
		ordered := make([]*hcl.Attribute, 0, len(attrs))
		for _, attr := range attrs {
			ordered = append(ordered, attr)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Range.Start.Byte < ordered[j].Range.Start.Byte })

		for _, attr := range ordered {
			if _, dup := t.locals[attr.Name]; dup {
				return fmt.Errorf("%s: %w: local %q declared twice", attr.NameRange, campaign.ErrInvalidCampaign, attr.Name)
			}
			if err := (Refs{Locals: setOfKeys(t.locals)}).Check(attr.Expr); err != nil {
				return err
			}
			val, diags := attr.Expr.Value(Scope{Locals: t.locals}.EvalContext())
			if diags.HasErrors() {
				return diags
			}
			t.locals[attr.Name] = val
		}
	}
	ctxlog.FromContext(ctx).Debug("Evaluated locals.", "count", len(t.locals))
	return nil
}

func (t *translator) translateArtifact(block *artifactBlock, declared map[string]*campaign.ArtifactSpec) (*campaign.ArtifactSpec, error) {
	if _, dup := declared[block.Name]; dup {
		return nil, fmt.Errorf("%s: %w: artifact %q declared twice", block.DefRange, campaign.ErrInvalidCampaign, block.Name)
	}
	content, diags := block.Body.Content(artifactSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	refs := Refs{Owner: block.Name, Locals: setOfKeys(t.locals), Artifacts: setOfKeys(declared)}
	visible := make(map[string]cty.Value, len(declared))
	for name, spec := range declared {
		visible[name] = DeclaredValue(spec)
	}
	scope := Scope{Locals: t.locals, Artifacts: visible}

	str := func(name, fallback string) (string, error) {
		attr, ok := content.Attributes[name]
		if !ok {
			return fallback, nil
		}
		if err := refs.Check(attr.Expr); err != nil {
			return "", err
		}
		s, err := EvalString(attr.Expr, scope)
		if err != nil {
			return "", fmt.Errorf("%s: artifact %q attribute %q: %w", attr.Range, block.Name, name, err)
		}
		return s, nil
	}

	spec := &campaign.ArtifactSpec{Name: block.Name}
	var err error
	if spec.Kind, err = str("kind", ""); err != nil {
		return nil, err
	}
	if spec.Path, err = str("path", ""); err != nil {
		return nil, err
	}
	if spec.Cwd, err = str("cwd", "."); err != nil {
		return nil, err
	}
	if spec.Command, err = str("command", ""); err != nil {
		return nil, err
	}
	if spec.Documentation, err = str("documentation", ""); err != nil {
		return nil, err
	}
	if attr, ok := content.Attributes["inputs"]; ok {
		if spec.Inputs, err = artifactRefs(attr.Expr, block.Name, setOfKeys(declared)); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// artifactRefs reads a list of bare artifact references such as
// [artifact.gem5_repo] and returns the names.
func artifactRefs(expr hcl.Expression, owner string, visible map[string]bool) ([]string, error) {
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		tr, diags := hcl.AbsTraversalForExpr(item)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %w: expected a reference like artifact.<name>", item.Range(), campaign.ErrInvalidCampaign)
		}
		name, ok := refAttr(tr)
		if !ok || tr.RootName() != "artifact" || len(tr) != 2 {
			return nil, fmt.Errorf("%s: %w: expected a reference like artifact.<name>, got %q", item.Range(), campaign.ErrInvalidCampaign, TraversalKey(tr))
		}
		if !visible[name] {
			return nil, &artifact.DependencyError{Artifact: owner, Ref: "artifact." + name}
		}
		names = append(names, name)
	}
	return names, nil
}

func (t *translator) translateSweep(block *sweepBlock) ([]*campaign.AxisSpec, error) {
	var axes []*campaign.AxisSpec
	earlier := make(map[string]bool)
	for _, ab := range block.Axes {
		if earlier[ab.Name] {
			return nil, fmt.Errorf("%w: axis %q declared twice", campaign.ErrInvalidCampaign, ab.Name)
		}
		content, diags := ab.Body.Content(axisSchema)
		if diags.HasErrors() {
			return nil, diags
		}

		valuesAttr := content.Attributes["values"]
		if err := (Refs{Locals: setOfKeys(t.locals)}).Check(valuesAttr.Expr); err != nil {
			return nil, err
		}
		values, err := EvalStrings(valuesAttr.Expr, Scope{Locals: t.locals})
		if err != nil {
			return nil, fmt.Errorf("%s: axis %q values: %w", valuesAttr.Range, ab.Name, err)
		}

		axis := &campaign.AxisSpec{Name: ab.Name, Values: values}
		if attr, ok := content.Attributes["allowed"]; ok {
			if err := (Refs{Locals: setOfKeys(t.locals), Axes: copySet(earlier)}).Check(attr.Expr); err != nil {
				return nil, err
			}
			axis.Allowed = t.legality(ab.Name, attr)
		}
		axes = append(axes, axis)
		earlier[ab.Name] = true
	}
	return axes, nil
}

func (t *translator) legality(axis string, attr *hcl.Attribute) func(context.Context, run.Params) ([]string, error) {
	locals := t.locals
	return func(ctx context.Context, chosen run.Params) ([]string, error) {
		values, err := EvalStrings(attr.Expr, Scope{Locals: locals, Axes: chosen})
		if err != nil {
			return nil, fmt.Errorf("%s: axis %q allowed: %w", attr.Range, axis, err)
		}
		return values, nil
	}
}

func (t *translator) translateJob(block *jobBlock, artifacts, axes map[string]bool) (*campaign.JobSpec, error) {
	content, diags := block.Body.Content(jobSchema)
	if diags.HasErrors() {
		return nil, diags
	}
	job := &campaign.JobSpec{}

	timeoutAttr := content.Attributes["timeout"]
	if err := (Refs{Locals: setOfKeys(t.locals)}).Check(timeoutAttr.Expr); err != nil {
		return nil, err
	}
	raw, err := EvalString(timeoutAttr.Expr, Scope{Locals: t.locals})
	if err != nil {
		return nil, fmt.Errorf("%s: job timeout: %w", timeoutAttr.Range, err)
	}
	if job.Timeout, err = time.ParseDuration(raw); err != nil {
		return nil, fmt.Errorf("%s: %w: job timeout %q: %v", timeoutAttr.Range, campaign.ErrInvalidCampaign, raw, err)
	}

	if attr, ok := content.Attributes["artifacts"]; ok {
		if job.Artifacts, err = artifactRefs(attr.Expr, "", artifacts); err != nil {
			return nil, err
		}
	}

	locals := t.locals
	commandAttr := content.Attributes["command"]
	commandRefs := Refs{Locals: setOfKeys(locals), Artifacts: artifacts, Axes: axes, Run: Set("campaign", "id", "outdir")}
	if err := commandRefs.Check(commandAttr.Expr); err != nil {
		return nil, err
	}
	job.Command = func(env campaign.JobEnv) ([]string, error) {
		return EvalCommand(commandAttr.Expr, JobScope(locals, env))
	}

	recipe := sha256.New()
	recipe.Write(t.source(commandAttr.Expr.Range()))
	recipe.Write([]byte{0})

	if attr, ok := content.Attributes["outdir"]; ok {
		outdirRefs := Refs{Locals: setOfKeys(locals), Artifacts: artifacts, Axes: axes, Run: Set("campaign")}
		if err := outdirRefs.Check(attr.Expr); err != nil {
			return nil, err
		}
		job.OutputDir = func(env campaign.JobEnv) (string, error) {
			return EvalString(attr.Expr, JobScope(locals, env))
		}
		recipe.Write(t.source(attr.Expr.Range()))
	}
	job.Recipe = "sha256:" + hex.EncodeToString(recipe.Sum(nil))
	return job, nil
}

func axisNames(axes []*campaign.AxisSpec) map[string]bool {
	out := make(map[string]bool, len(axes))
	for _, a := range axes {
		out[a.Name] = true
	}
	return out
}

func copySet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
