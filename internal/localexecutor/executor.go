// Package localexecutor runs artifact build commands and benchmark jobs as
// local processes, and fingerprints what they produce.
package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vk/benchgrid/internal/artifact"
	"github.com/vk/benchgrid/internal/ctxlog"
	"github.com/vk/benchgrid/internal/pool"
	"github.com/vk/benchgrid/internal/run"
)

// LogFileName is written into every job's output directory.
const LogFileName = "benchgrid.log"

// DefaultOutputLimit bounds the output kept in memory per process.
const DefaultOutputLimit = 64 << 10

// WaitDelay bounds how long output is still drained once a process has been
// killed or has exited. Descendants that left the process group can hold the
// output pipe open indefinitely.
const WaitDelay = 500 * time.Millisecond

// Shell runs command strings with sh -c.
type Shell struct {
	// Root is the directory relative working directories are resolved against.
	Root string
	// Env is appended to the current process environment.
	Env         []string
	OutputLimit int
}

// Run executes command in dir (relative to Root) and returns its exit code
// and combined output. The whole process group is killed when ctx ends.
func (s *Shell) Run(ctx context.Context, dir, command string) (pool.Result, error) {
	if command == "" {
		return pool.Result{}, errors.New("empty command")
	}
	cmd := newCommand(ctx, "sh", "-c", command)
	cmd.Dir = filepath.Join(s.Root, dir)
	cmd.Env = append(os.Environ(), s.Env...)

	out := newTailBuffer(limitOrDefault(s.OutputLimit))
	code, err := runProcess(ctx, cmd, out)
	return pool.Result{ExitCode: code, Output: out.Bytes()}, err
}

// BuildArtifact runs the artifact's command in its working directory.
// Artifacts without a command are considered provided by the operator.
func (s *Shell) BuildArtifact(ctx context.Context, a *artifact.Artifact) (pool.Result, error) {
	if a.Command() == "" {
		ctxlog.FromContext(ctx).Debug("Artifact has no build command, skipping.", "artifact", a.Name())
		return pool.Result{}, nil
	}
	ctxlog.FromContext(ctx).Info("🔨 Building artifact.", "artifact", a.Name(), "cwd", a.Cwd())
	return s.Run(ctx, a.Cwd(), a.Command())
}

// CommandFunc builds the argv of the job for a descriptor.
type CommandFunc func(d *run.Descriptor) ([]string, error)

// JobExecutor runs one benchmark job per descriptor. It implements
// pool.Executor.
type JobExecutor struct {
	// Root is the campaign root. Jobs run there; output directories are
	// created beneath it unless OutputRoot is set.
	Root        string
	OutputRoot  string
	Command     CommandFunc
	Env         []string
	OutputLimit int
}

var _ pool.Executor = (*JobExecutor)(nil)

// Execute creates the descriptor's output directory, runs its command from
// Root and mirrors the combined output into the directory's log file. The
// job sees BENCHGRID_OUTDIR and BENCHGRID_RUN_ID in its environment.
func (e *JobExecutor) Execute(ctx context.Context, d *run.Descriptor) (pool.Result, error) {
	argv, err := e.Command(d)
	if err != nil {
		return pool.Result{}, fmt.Errorf("building command for %s: %w", d, err)
	}
	if len(argv) == 0 || argv[0] == "" {
		return pool.Result{}, fmt.Errorf("empty command for %s", d)
	}

	base := e.Root
	if e.OutputRoot != "" {
		base = e.OutputRoot
	}
	outdir := filepath.Join(base, d.OutputDir())
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return pool.Result{}, fmt.Errorf("creating output directory: %w", err)
	}
	logFile, err := os.Create(filepath.Join(outdir, LogFileName))
	if err != nil {
		return pool.Result{}, fmt.Errorf("creating job log: %w", err)
	}
	defer logFile.Close()

	absOut, err := filepath.Abs(outdir)
	if err != nil {
		return pool.Result{}, err
	}
	cmd := newCommand(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Root
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env, "BENCHGRID_OUTDIR="+absOut, "BENCHGRID_RUN_ID="+d.Key())

	ctxlog.FromContext(ctx).Debug("Launching job process.", "argv", argv, "outdir", outdir)
	out := newTailBuffer(limitOrDefault(e.OutputLimit))
	code, err := runProcess(ctx, cmd, io.MultiWriter(out, logFile))
	return pool.Result{ExitCode: code, Output: out.Bytes()}, err
}

// newCommand builds a command that runs in its own process group. Once ctx is
// done the whole group is killed with SIGKILL.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = WaitDelay
	return cmd
}

// runProcess runs cmd and waits for it. A non-zero exit is reported through
// the exit code, not the error.
func runProcess(ctx context.Context, cmd *exec.Cmd, out io.Writer) (int, error) {
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start command: %w", err)
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		return -1, fmt.Errorf("process killed: %w", context.Cause(ctx))
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		ctxlog.FromContext(ctx).Warn("Process exited but its output was still held open, stopped reading.", "pid", cmd.Process.Pid)
		return cmd.ProcessState.ExitCode(), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("failed to execute command: %w", err)
	}
	return 0, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultOutputLimit
	}
	return n
}
