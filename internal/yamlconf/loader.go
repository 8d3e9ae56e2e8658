// Package yamlconf provides the YAML implementation of campaign.Loader.
// Strings may contain HCL templates such as "${axis.cpu}"; they are checked
// and evaluated with the same rules as HCL campaigns.
package yamlconf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	hclv2 "github.com/hashicorp/hcl/v2"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/fsutil"
	"github.com/vk/benchgrid/internal/hcl"
	"github.com/vk/benchgrid/internal/run"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML-specific implementation of the campaign.Loader interface.
type Loader struct{}

var _ campaign.Loader = (*Loader)(nil)

// NewLoader creates a new YAML campaign loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every .yaml and .yml file under paths.
func (l *Loader) Load(ctx context.Context, paths ...string) (*campaign.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .yaml files found in %v", campaign.ErrInvalidCampaign, paths)
	}

	var (
		merged  campaignFile
		jobFile string
	)
	merged.Locals = make(map[string]any)
	for _, file := range files {
		doc, err := parseFile(file)
		if err != nil {
			return nil, err
		}
		if doc.Campaign != "" {
			if merged.Campaign != "" {
				return nil, fmt.Errorf("%s: %w: campaign named twice (%q and %q)", file, campaign.ErrInvalidCampaign, merged.Campaign, doc.Campaign)
			}
			merged.Campaign, merged.Description = doc.Campaign, doc.Description
		}
		for k, v := range doc.Locals {
			if _, dup := merged.Locals[k]; dup {
				return nil, fmt.Errorf("%s: %w: local %q declared twice", file, campaign.ErrInvalidCampaign, k)
			}
			merged.Locals[k] = v
		}
		merged.Artifacts = append(merged.Artifacts, doc.Artifacts...)
		if len(doc.Sweep) > 0 {
			if len(merged.Sweep) > 0 {
				return nil, fmt.Errorf("%s: %w: sweep declared twice", file, campaign.ErrInvalidCampaign)
			}
			merged.Sweep = doc.Sweep
		}
		if doc.Job != nil {
			if merged.Job != nil {
				return nil, fmt.Errorf("%s: %w: job declared twice", file, campaign.ErrInvalidCampaign)
			}
			merged.Job, jobFile = doc.Job, file
		}
	}

	t := &translator{jobFile: jobFile}
	model, err := t.translate(&merged)
	if err != nil {
		return nil, err
	}
	model.Root = fsutil.RootDir(paths)

	logger.Debug("YAML loading complete.", "campaign", model.Name, "artifacts", len(model.Artifacts), "axes", len(model.Axes))
	return model, nil
}

func parseFile(path string) (*campaignFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaign file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc campaignFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}
	for i := range doc.Artifacts {
		doc.Artifacts[i].File = path
	}
	return &doc, nil
}

type translator struct {
	jobFile string
	locals  map[string]cty.Value
}

func (t *translator) translate(doc *campaignFile) (*campaign.Model, error) {
	if doc.Campaign == "" {
		return nil, fmt.Errorf("%w: no campaign name found", campaign.ErrInvalidCampaign)
	}
	model := &campaign.Model{Name: doc.Campaign, Description: doc.Description}

	t.locals = make(map[string]cty.Value, len(doc.Locals))
	for k, v := range doc.Locals {
		val, err := hcl.ToCtyValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: local %q: %v", campaign.ErrInvalidCampaign, k, err)
		}
		t.locals[k] = val
	}
	localNames := localSet(t.locals)

	declared := make(map[string]*campaign.ArtifactSpec)
	for i := range doc.Artifacts {
		spec, err := t.translateArtifact(&doc.Artifacts[i], declared, localNames)
		if err != nil {
			return nil, err
		}
		declared[spec.Name] = spec
		model.Artifacts = append(model.Artifacts, spec)
	}

	axes, err := translateSweep(doc.Sweep)
	if err != nil {
		return nil, err
	}
	model.Axes = axes

	if doc.Job == nil {
		return nil, fmt.Errorf("%w: no job found", campaign.ErrInvalidCampaign)
	}
	names := make(map[string]bool, len(declared))
	for n := range declared {
		names[n] = true
	}
	axisNames := make(map[string]bool, len(axes))
	for _, a := range axes {
		axisNames[a.Name] = true
	}
	model.Job, err = t.translateJob(doc.Job, names, axisNames, localNames)
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (t *translator) translateArtifact(e *artifactEntry, declared map[string]*campaign.ArtifactSpec, locals map[string]bool) (*campaign.ArtifactSpec, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("%s:%d: %w: artifact without a name", e.File, e.Line, campaign.ErrInvalidCampaign)
	}
	if _, dup := declared[e.Name]; dup {
		return nil, fmt.Errorf("%s:%d: %w: artifact %q declared twice", e.File, e.Line, campaign.ErrInvalidCampaign, e.Name)
	}

	visible := make(map[string]bool, len(declared))
	values := make(map[string]cty.Value, len(declared))
	for name, spec := range declared {
		visible[name] = true
		values[name] = hcl.DeclaredValue(spec)
	}
	refs := hcl.Refs{Owner: e.Name, Locals: locals, Artifacts: visible}
	scope := hcl.Scope{Locals: t.locals, Artifacts: values}

	eval := func(field, src string) (string, error) {
		expr, err := hcl.ParseTemplate(src, e.File, e.Line)
		if err != nil {
			return "", err
		}
		if err := refs.Check(expr); err != nil {
			return "", err
		}
		s, err := hcl.EvalString(expr, scope)
		if err != nil {
			return "", fmt.Errorf("artifact %q %s: %w", e.Name, field, err)
		}
		return s, nil
	}

	cwd := e.Cwd
	if cwd == "" {
		cwd = "."
	}
	spec := &campaign.ArtifactSpec{Name: e.Name, Kind: e.Kind}
	var err error
	if spec.Path, err = eval("path", e.Path); err != nil {
		return nil, err
	}
	if spec.Cwd, err = eval("cwd", cwd); err != nil {
		return nil, err
	}
	if spec.Command, err = eval("command", e.Command); err != nil {
		return nil, err
	}
	spec.Documentation = e.Documentation

	for _, in := range e.Inputs {
		if !visible[in] {
			return nil, &artifact.DependencyError{Artifact: e.Name, Ref: "artifact." + in}
		}
		spec.Inputs = append(spec.Inputs, in)
	}
	return spec, nil
}

func translateSweep(entries []axisEntry) ([]*campaign.AxisSpec, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no sweep axes found", campaign.ErrInvalidCampaign)
	}
	var axes []*campaign.AxisSpec
	earlier := make(map[string]bool)
	for _, e := range entries {
		if earlier[e.Axis] {
			return nil, fmt.Errorf("%w: axis %q declared twice", campaign.ErrInvalidCampaign, e.Axis)
		}
		axis := &campaign.AxisSpec{Name: e.Axis, Values: e.Values}
		if e.AllowedBy != nil {
			if !earlier[e.AllowedBy.Axis] {
				return nil, fmt.Errorf("%w: axis %q is allowed by %q, which is not declared before it", campaign.ErrInvalidCampaign, e.Axis, e.AllowedBy.Axis)
			}
			axis.Allowed = e.AllowedBy.legality()
		}
		axes = append(axes, axis)
		earlier[e.Axis] = true
	}
	return axes, nil
}

func (a *allowedBy) legality() func(context.Context, run.Params) ([]string, error) {
	table := make(map[string][]string, len(a.Values))
	for k, v := range a.Values {
		table[k] = slices.Clone(v)
	}
	fallback := slices.Clone(a.Default)
	on := a.Axis
	return func(_ context.Context, chosen run.Params) ([]string, error) {
		v, ok := chosen.Get(on)
		if !ok {
			return nil, fmt.Errorf("axis %q has no value yet", on)
		}
		if allowed, ok := table[v]; ok {
			return allowed, nil
		}
		return fallback, nil
	}
}

func (t *translator) translateJob(j *jobEntry, artifacts, axes, locals map[string]bool) (*campaign.JobSpec, error) {
	timeout, err := time.ParseDuration(j.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%s:%d: %w: job timeout %q: %v", t.jobFile, j.Line, campaign.ErrInvalidCampaign, j.Timeout, err)
	}
	job := &campaign.JobSpec{Timeout: timeout}

	for _, name := range j.Artifacts {
		if !artifacts[name] {
			return nil, &artifact.DependencyError{Ref: "artifact." + name}
		}
		job.Artifacts = append(job.Artifacts, name)
	}

	if !j.Command.Set {
		return nil, fmt.Errorf("%s:%d: %w: job has no command", t.jobFile, j.Line, campaign.ErrInvalidCampaign)
	}
	commandRefs := hcl.Refs{Locals: locals, Artifacts: artifacts, Axes: axes, Run: hcl.Set("campaign", "id", "outdir")}
	recipe := sha256.New()

	var shell hclv2.Expression
	var argv []hclv2.Expression
	if j.Command.Argv == nil {
		if shell, err = t.template(j.Command.Shell, j.Command.Line, commandRefs); err != nil {
			return nil, err
		}
		recipe.Write([]byte(j.Command.Shell))
	} else {
		if len(j.Command.Argv) == 0 {
			return nil, fmt.Errorf("%s:%d: %w: job command is empty", t.jobFile, j.Command.Line, campaign.ErrInvalidCampaign)
		}
		for _, arg := range j.Command.Argv {
			expr, err := t.template(arg, j.Command.Line, commandRefs)
			if err != nil {
				return nil, err
			}
			argv = append(argv, expr)
			recipe.Write([]byte(arg))
			recipe.Write([]byte{0})
		}
	}
	recipe.Write([]byte{0})

	tlocals := t.locals
	job.Command = func(env campaign.JobEnv) ([]string, error) {
		scope := hcl.JobScope(tlocals, env)
		if shell != nil {
			s, err := hcl.EvalString(shell, scope)
			if err != nil {
				return nil, err
			}
			return []string{"sh", "-c", s}, nil
		}
		out := make([]string, len(argv))
		for i, expr := range argv {
			s, err := hcl.EvalString(expr, scope)
			if err != nil {
				return nil, fmt.Errorf("job command argument %d: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	}

	if j.Outdir != "" {
		outdirRefs := hcl.Refs{Locals: locals, Artifacts: artifacts, Axes: axes, Run: hcl.Set("campaign")}
		expr, err := t.template(j.Outdir, j.Line, outdirRefs)
		if err != nil {
			return nil, err
		}
		job.OutputDir = func(env campaign.JobEnv) (string, error) {
			return hcl.EvalString(expr, hcl.JobScope(tlocals, env))
		}
		recipe.Write([]byte(j.Outdir))
	}
	job.Recipe = "sha256:" + hex.EncodeToString(recipe.Sum(nil))
	return job, nil
}

func (t *translator) template(src string, line int, refs hcl.Refs) (hclv2.Expression, error) {
	expr, err := hcl.ParseTemplate(src, t.jobFile, line)
	if err != nil {
		return nil, err
	}
	if err := refs.Check(expr); err != nil {
		return nil, err
	}
	return expr, nil
}

func localSet(locals map[string]cty.Value) map[string]bool {
	out := make(map[string]bool, len(locals))
	for k := range locals {
		out[k] = true
	}
	return out
}
