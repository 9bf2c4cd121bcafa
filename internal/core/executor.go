package core

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
)

// DefaultStopGrace is how long a cancelled child gets between SIGTERM and
// SIGKILL.
const DefaultStopGrace = 10 * time.Second

// ExecutionResult is the outcome of one child process.
type ExecutionResult struct {
	// ExitCode is the child's exit status; 0 means success.
	ExitCode int

	Duration time.Duration

	// LogPath is the tee'd output file, empty when no log directory is set.
	LogPath string
}

// Executor runs invocations as child processes.
//
// Output is streamed, never buffered: the training script runs for hours and
// its progress belongs on the terminal.
type Executor struct {
	// WorkingDir is the directory children are started in. Empty means the
	// runner's own working directory.
	WorkingDir string

	// Stdout and Stderr receive the child's output. Nil means os.Stdout and
	// os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// LogDir, when set, additionally receives <exp_name>.log per child.
	LogDir string

	// StopGrace overrides DefaultStopGrace when positive.
	StopGrace time.Duration
}

// NewExecutor creates an Executor that passes output through to the
// runner's stdout and stderr.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir}
}

// Execute starts the invocation and blocks until it exits.
//
// A non-zero exit is reported through ExecutionResult.ExitCode with a nil
// error. A non-nil error means the child could not be started or the context
// was cancelled; in the latter case the child's whole process group has
// been terminated before Execute returns.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (*ExecutionResult, error) {
	if len(inv.Argv) == 0 {
		return nil, errors.New("invocation argv is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}

	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = e.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)

	// Own process group so cancellation reaches the script's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, stderr := e.Stdout, e.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	res := &ExecutionResult{}
	if e.LogDir != "" {
		logFile, path, err := openJobLog(e.LogDir, inv.ExpName)
		if err != nil {
			return nil, err
		}
		defer logFile.Close()
		res.LogPath = path
		stdout = io.MultiWriter(stdout, logFile)
		stderr = io.MultiWriter(stderr, logFile)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", inv.Argv[0], err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		e.stopGroup(cmd, done)
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case err = <-done:
	}
	res.Duration = time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to wait for %q: %w", inv.Argv[0], err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// stopGroup sends SIGTERM to the child's process group and escalates to
// SIGKILL once the grace period expires. It returns after the child is reaped.
func (e *Executor) stopGroup(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	grace := e.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-done
	}
}

func openJobLog(dir, expName string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(dir, expName+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("opening job log: %w", err)
	}
	return f, path, nil
}

// mergeEnv appends extra on top of base; later entries win for duplicate keys.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, sortedEnvPairs(extra)...)
	return out
}
