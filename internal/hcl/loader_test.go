package hcl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/campaign"
	"github.com/vk/benchgrid/internal/hcl"
	"github.com/vk/benchgrid/internal/run"
	"github.com/vk/benchgrid/internal/sweep"
)

const spec2017 = `
campaign "spec2017" {
  description = "SPEC CPU 2017 on gem5"
}

locals {
  sizes = {
    atomic = ["test"]
    o3     = ["test", "ref"]
  }
  script = "run_spec.py"
}

artifact "gem5_repo" {
  kind    = "repository"
  path    = "gem5/"
  cwd     = "./"
  command = "git clone https://gem5.googlesource.com/public/gem5"
}

artifact "gem5_binary" {
  kind    = "binary"
  path    = "${artifact.gem5_repo.path}build/X86/gem5.opt"
  cwd     = artifact.gem5_repo.path
  command = "scons build/X86/gem5.opt -j8"
  inputs  = [artifact.gem5_repo]
}

sweep {
  axis "cpu" {
    values = ["atomic", "o3"]
  }
  axis "size" {
    values  = ["test", "ref"]
    allowed = lookup(local.sizes, axis.cpu, [])
  }
  axis "benchmark" {
    values = ["531.deepsjeng_r"]
  }
}

job {
  timeout   = "40m"
  artifacts = [artifact.gem5_binary]
  command   = [artifact.gem5_binary.path, local.script, axis.cpu, axis.benchmark, axis.size, run.outdir]
  outdir    = "results/${axis.cpu}/${axis.size}/${axis.benchmark}"
}
`

func writeCampaign(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func load(t *testing.T, src string) (*campaign.Model, error) {
	t.Helper()
	dir := writeCampaign(t, map[string]string{"campaign.hcl": src})
	return hcl.NewLoader().Load(context.Background(), dir)
}

func TestLoad_Spec2017(t *testing.T) {
	ctx := context.Background()
	dir := writeCampaign(t, map[string]string{"campaign.hcl": spec2017})

	model, err := hcl.NewLoader().Load(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, "spec2017", model.Name)
	assert.Equal(t, "SPEC CPU 2017 on gem5", model.Description)
	assert.Equal(t, filepath.Clean(dir), model.Root)

	require.Len(t, model.Artifacts, 2)
	assert.Equal(t, "gem5_repo", model.Artifacts[0].Name)
	binary := model.Artifacts[1]
	assert.Equal(t, "binary", binary.Kind)
	assert.Equal(t, "gem5/build/X86/gem5.opt", binary.Path)
	assert.Equal(t, "gem5/", binary.Cwd)
	assert.Equal(t, []string{"gem5_repo"}, binary.Inputs)

	require.Len(t, model.Axes, 3)
	assert.Nil(t, model.Axes[0].Allowed)
	require.NotNil(t, model.Axes[1].Allowed)
	assert.Equal(t, 40*time.Minute, model.Job.Timeout)
	assert.Equal(t, []string{"gem5_binary"}, model.Job.Artifacts)
	assert.Contains(t, model.Job.Recipe, "sha256:")

	reg := artifact.NewRegistry(nil)
	plan, err := campaign.Build(ctx, model, reg, campaign.Options{})
	require.NoError(t, err)

	descs, err := sweep.Expand(ctx, plan.Sweep, reg)
	require.NoError(t, err)
	require.Len(t, descs, 3)

	var got [][]string
	for _, d := range descs {
		got = append(got, d.Params().Values())
	}
	assert.Equal(t, [][]string{
		{"atomic", "test", "531.deepsjeng_r"},
		{"o3", "test", "531.deepsjeng_r"},
		{"o3", "ref", "531.deepsjeng_r"},
	}, got)
	assert.Equal(t, "results/o3/ref/531.deepsjeng_r", descs[2].OutputDir())

	argv, err := plan.Command(descs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gem5/build/X86/gem5.opt", "run_spec.py", "atomic", "531.deepsjeng_r", "test",
		"results/atomic/test/531.deepsjeng_r",
	}, argv)
}

func TestLoad_RecipeTracksTemplates(t *testing.T) {
	first, err := load(t, spec2017)
	require.NoError(t, err)
	again, err := load(t, spec2017)
	require.NoError(t, err)
	assert.Equal(t, first.Job.Recipe, again.Job.Recipe)

	edited, err := load(t, strings.Replace(spec2017, `local.script, axis.cpu`, `"other.py", axis.cpu`, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.Job.Recipe, edited.Job.Recipe)
}

func TestLoad_SplitAcrossFiles(t *testing.T) {
	dir := writeCampaign(t, map[string]string{
		"a_campaign.hcl": `campaign "split" {}`,
		"b_artifacts.hcl": `
artifact "kernel" {
  kind = "kernel"
  path = "vmlinux"
}`,
		"c_sweep.hcl": `
sweep {
  axis "n" { values = ["1", "2"] }
}
job {
  timeout   = "1m"
  artifacts = [artifact.kernel]
  command   = "echo ${axis.n} > ${run.outdir}/n"
}`,
		"notes.txt": "ignored",
	})

	model, err := hcl.NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "split", model.Name)
	require.Len(t, model.Artifacts, 1)
	assert.Equal(t, ".", model.Artifacts[0].Cwd)
	assert.Nil(t, model.Job.OutputDir)

	argv, err := model.Job.Command(campaign.JobEnv{
		Campaign:  "split",
		Params:    run.Params{{Axis: "n", Value: "2"}},
		OutputDir: "results/2",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "echo 2 > results/2/n"}, argv)
}

func TestLoad_Errors(t *testing.T) {
	const tail = `
sweep {
  axis "n" { values = ["1"] }
}
job {
  timeout = "1m"
  command = ["true"]
}`
	testCases := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name: "input declared later",
			src: `campaign "c" {}
artifact "bin" {
  kind   = "binary"
  path   = "bin"
  inputs = [artifact.repo]
}
artifact "repo" {
  kind = "repository"
  path = "repo"
}` + tail,
			wantErr: artifact.ErrUnknownDependency,
		},
		{
			name: "attribute refers to undeclared artifact",
			src: `campaign "c" {}
artifact "bin" {
  kind = "binary"
  path = artifact.nowhere.path
}` + tail,
			wantErr: artifact.ErrUnknownDependency,
		},
		{
			name: "job needs undeclared artifact",
			src: `campaign "c" {}
sweep {
  axis "n" { values = ["1"] }
}
job {
  timeout   = "1m"
  artifacts = [artifact.ghost]
  command   = ["true"]
}`,
			wantErr: artifact.ErrUnknownDependency,
		},
		{
			name:    "missing campaign block",
			src:     tail,
			wantErr: campaign.ErrInvalidCampaign,
		},
		{
			name: "axis refers to a later axis",
			src: `campaign "c" {}
sweep {
  axis "a" {
    values  = ["1"]
    allowed = [axis.b]
  }
  axis "b" { values = ["1"] }
}
job {
  timeout = "1m"
  command = ["true"]
}`,
			wantErr: campaign.ErrInvalidCampaign,
		},
		{
			name: "unknown function",
			src: `campaign "c" {}
sweep {
  axis "n" { values = reverse(["1"]) }
}
job {
  timeout = "1m"
  command = ["true"]
}`,
			wantErr: campaign.ErrInvalidCampaign,
		},
		{
			name: "outdir cannot use run.outdir",
			src: `campaign "c" {}
sweep {
  axis "n" { values = ["1"] }
}
job {
  timeout = "1m"
  command = ["true"]
  outdir  = "${run.outdir}/x"
}`,
			wantErr: campaign.ErrInvalidCampaign,
		},
		{
			name: "bad timeout",
			src: `campaign "c" {}
sweep {
  axis "n" { values = ["1"] }
}
job {
  timeout = "forever"
  command = ["true"]
}`,
			wantErr: campaign.ErrInvalidCampaign,
		},
		{
			name: "local refers to a later local",
			src: `campaign "c" {}
locals {
  a = local.b
  b = "x"
}` + tail,
			wantErr: campaign.ErrInvalidCampaign,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestLoad_DuplicateBlocks(t *testing.T) {
	_, err := load(t, `campaign "a" {}
campaign "b" {}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Duplicate "campaign" block`)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := hcl.NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
