package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the campaign.Loader interface.
type Loader struct{}

var _ campaign.Loader = (*Loader)(nil)

// NewLoader creates a new HCL campaign loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths, merges their blocks in file order
// and translates them into the format-agnostic model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*campaign.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .hcl files found in %v", campaign.ErrInvalidCampaign, paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var merged fileRoot
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		merged.Campaigns = append(merged.Campaigns, root.Campaigns...)
		merged.Locals = append(merged.Locals, root.Locals...)
		merged.Artifacts = append(merged.Artifacts, root.Artifacts...)
		merged.Sweeps = append(merged.Sweeps, root.Sweeps...)
		merged.Jobs = append(merged.Jobs, root.Jobs...)
	}

	t := &translator{files: parser.Files()}
	model, err := t.translate(ctx, &merged)
	if err != nil {
		return nil, err
	}
	model.Root = fsutil.RootDir(paths)

	logger.Debug("HCL loading complete.", "campaign", model.Name, "artifacts", len(model.Artifacts), "axes", len(model.Axes))
	return model, nil
}

// source returns the text of a range as written.
func (t *translator) source(rng hcl.Range) []byte {
	f, ok := t.files[rng.Filename]
	if !ok || rng.End.Byte > len(f.Bytes) || rng.Start.Byte > rng.End.Byte {
		return nil
	}
	return f.Bytes[rng.Start.Byte:rng.End.Byte]
}
