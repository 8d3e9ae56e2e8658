package localexecutor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/run"
)

func TestShell_Run(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "gem5"), 0o755))
	sh := &Shell{Root: root, Env: []string{"BUILD_FLAVOUR=opt"}}

	res, err := sh.Run(context.Background(), "gem5", `echo "building $BUILD_FLAVOUR in $(basename "$PWD")"`)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "building opt in gem5\n", string(res.Output))

	res, err = sh.Run(context.Background(), ".", "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", string(res.Output))

	_, err = sh.Run(context.Background(), ".", "")
	assert.Error(t, err)
}

func TestShell_KillsProcessGroupOnTimeout(t *testing.T) {
	sh := &Shell{Root: t.TempDir()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := sh.Run(ctx, ".", "sleep 30 & sleep 30; wait")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShell_TimeoutWithDetachedChild(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	sh := &Shell{Root: t.TempDir()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := sh.Run(ctx, ".", "setsid sleep 5 & sleep 30")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 100*time.Millisecond+WaitDelay+time.Second)
}

func TestShell_ExitedShellWithDetachedChild(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	sh := &Shell{Root: t.TempDir()}

	start := time.Now()
	res, err := sh.Run(context.Background(), ".", "setsid sleep 5 & echo done")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "done\n", string(res.Output))
	assert.Less(t, time.Since(start), WaitDelay+time.Second)
}

func TestShell_OutputIsBounded(t *testing.T) {
	sh := &Shell{Root: t.TempDir(), OutputLimit: 8}
	res, err := sh.Run(context.Background(), ".", "printf 'aaaaaaaaaaaaaaaaTAIL1234'")
	require.NoError(t, err)
	assert.Equal(t, "TAIL1234", string(res.Output))
}

func TestShell_BuildArtifact(t *testing.T) {
	root := t.TempDir()
	reg := artifact.NewRegistry(nil)
	a, err := reg.Register(context.Background(), artifact.Declaration{
		Name: "marker", Kind: artifact.KindBinary, Path: "marker.bin", Cwd: ".", Command: "echo built > marker.bin",
	})
	require.NoError(t, err)

	res, err := (&Shell{Root: root}).BuildArtifact(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	data, err := os.ReadFile(filepath.Join(root, "marker.bin"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))

	provided, err := reg.Register(context.Background(), artifact.Declaration{
		Name: "vmlinux", Kind: artifact.KindKernelImage, Path: "vmlinux", Cwd: ".",
	})
	require.NoError(t, err)
	res, err = (&Shell{Root: root}).BuildArtifact(context.Background(), provided)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestJobExecutor_Execute(t *testing.T) {
	root := t.TempDir()
	d, err := run.NewDescriptor(run.Config{
		Campaign:  "spec2017",
		Params:    run.Params{{Axis: "cpu", Value: "o3"}, {Axis: "size", Value: "test"}},
		OutputDir: "results/o3/test",
		Timeout:   time.Minute,
	})
	require.NoError(t, err)

	exec := &JobExecutor{
		Root: root,
		Command: func(d *run.Descriptor) ([]string, error) {
			cpu, _ := d.Params().Get("cpu")
			return []string{"sh", "-c", `echo "cpu=$1"; touch "$BENCHGRID_OUTDIR/stats.txt"`, "sh", cpu}, nil
		},
	}
	res, err := exec.Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "cpu=o3\n", string(res.Output))

	logData, err := os.ReadFile(filepath.Join(root, "results/o3/test", LogFileName))
	require.NoError(t, err)
	assert.Equal(t, "cpu=o3\n", string(logData))
	assert.FileExists(t, filepath.Join(root, "results/o3/test/stats.txt"))
}

func TestJobExecutor_OutputRoot(t *testing.T) {
	root, outRoot := t.TempDir(), t.TempDir()
	d, err := run.NewDescriptor(run.Config{
		Params: run.Params{{Axis: "cpu", Value: "atomic"}}, OutputDir: "results/atomic", Timeout: time.Minute,
	})
	require.NoError(t, err)

	exec := &JobExecutor{
		Root:       root,
		OutputRoot: outRoot,
		Command: func(*run.Descriptor) ([]string, error) {
			return []string{"sh", "-c", `pwd > "$BENCHGRID_OUTDIR/cwd.txt"`}, nil
		},
	}
	res, err := exec.Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	assert.FileExists(t, filepath.Join(outRoot, "results/atomic", LogFileName))
	assert.NoDirExists(t, filepath.Join(root, "results"))
	cwd, err := os.ReadFile(filepath.Join(outRoot, "results/atomic/cwd.txt"))
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Contains(t, []string{root + "\n", resolved + "\n"}, string(cwd))
}

func TestJobExecutor_MissingBinary(t *testing.T) {
	d, err := run.NewDescriptor(run.Config{
		Params: run.Params{{Axis: "cpu", Value: "o3"}}, OutputDir: "results/o3", Timeout: time.Minute,
	})
	require.NoError(t, err)
	exec := &JobExecutor{
		Root:    t.TempDir(),
		Command: func(*run.Descriptor) ([]string, error) { return []string{"./gem5/build/X86/gem5.opt"}, nil },
	}
	_, err = exec.Execute(context.Background(), d)
	assert.ErrorContains(t, err, "failed to start command")
}

func TestVerifier_Fingerprint(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "vmlinux"), []byte("kernel"), 0o644))
	v := &Verifier{Root: root}

	fp, err := v.Fingerprint(context.Background(), "vmlinux")
	require.NoError(t, err)
	assert.Equal(t, "sha256:6923dd1bc0460082c5d55a831908c24a282860b7f1cd6c2b79cf1bc8857c639c", fp)

	require.NoError(t, os.Mkdir(filepath.Join(root, "plain"), 0o755))
	fp, err = v.Fingerprint(context.Background(), "plain")
	require.NoError(t, err)
	assert.Empty(t, fp)

	_, err = v.Fingerprint(context.Background(), "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerifier_GitHead(t *testing.T) {
	root := t.TempDir()
	const commit = "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"

	writeGit := func(repo string, files map[string]string) {
		for name, content := range files {
			p := filepath.Join(root, repo, ".git", name)
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		}
	}
	writeGit("loose", map[string]string{"HEAD": "ref: refs/heads/stable\n", "refs/heads/stable": commit + "\n"})
	writeGit("packed", map[string]string{"HEAD": "ref: refs/heads/develop\n", "packed-refs": "# pack-refs with: peeled\n" + commit + " refs/heads/develop\n"})
	writeGit("detached", map[string]string{"HEAD": commit + "\n"})

	v := &Verifier{Root: root}
	for _, repo := range []string{"loose", "packed", "detached"} {
		fp, err := v.Fingerprint(context.Background(), repo)
		require.NoError(t, err, repo)
		assert.Equal(t, "git:"+commit, fp, repo)
	}

	writeGit("dangling", map[string]string{"HEAD": "ref: refs/heads/gone\n"})
	_, err := v.Fingerprint(context.Background(), "dangling")
	assert.Error(t, err)
}
