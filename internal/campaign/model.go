package campaign

import (
	"context"
	"time"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/run"
	"github.com/vk/benchgrid/internal/sweep"
)

// Loader is the interface for a format-specific campaign loader.
type Loader interface {
	// Load reads the campaign from the given files or directories and
	// translates it into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Model is the unified representation of a campaign file.
type Model struct {
	Name        string
	Description string
	// Root is the directory the campaign was loaded from. Artifact paths,
	// working directories and output directories are relative to it.
	Root      string
	Artifacts []*ArtifactSpec
	Axes      []*AxisSpec
	Job       *JobSpec
}

// ArtifactSpec is the format-agnostic representation of an `artifact` block.
type ArtifactSpec struct {
	Name          string
	Kind          string
	Path          string
	Cwd           string
	Command       string
	Documentation string
	// Inputs are names of artifacts declared earlier in the campaign.
	Inputs []string
}

// AxisSpec is one sweep dimension.
type AxisSpec struct {
	Name    string
	Values  []string
	Allowed sweep.LegalityFunc
}

// JobEnv is everything a job template can refer to.
type JobEnv struct {
	Campaign  string
	Params    run.Params
	Artifacts map[string]*artifact.Artifact
	// OutputDir is empty while the output directory itself is being computed.
	OutputDir string
	RunID     string
}

// JobSpec is the format-agnostic representation of the `job` block.
type JobSpec struct {
	Timeout time.Duration
	// Artifacts are names of the artifacts every run needs.
	Artifacts []string
	Command   func(env JobEnv) ([]string, error)
	// OutputDir is optional; sweep.DefaultOutputDir is used when nil.
	OutputDir func(env JobEnv) (string, error)
	// Recipe fingerprints the command and output directory templates as
	// written, so editing them invalidates earlier results.
	Recipe string
}
