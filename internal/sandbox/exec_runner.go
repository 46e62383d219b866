package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// ExecRunner is a development/test Runner that executes the command
// directly in its own process group, with no real syscall or filesystem
// isolation. Only the wall-clock limit is enforced (WallClockLimit, or twice
// CPUTimeLimit when unset), by killing the process when it expires; CPU time
// and memory are measured afterwards but not capped. It is the Go analogue of the teacher's
// Executor.Execute (exec.Command + exit-status extraction): that code ran
// arbitrary shell jobs for an agent; here the same plumbing is narrowed to
// the judging contract of spec'd Spec/Result types, still without real
// sandboxing. A production deployment replaces this with a real isolation
// layer (seccomp/cgroups/namespaces) behind the same Runner interface —
// deliberately out of this core's scope (§1).
type ExecRunner struct{}

// NewExecRunner returns a Runner with no isolation, suitable for local
// development and tests that don't need security guarantees.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{}, errors.New("sandbox: empty argv")
	}

	wallLimit := spec.Limits.WallClockLimit
	if wallLimit <= 0 {
		wallLimit = 2 * spec.Limits.CPUTimeLimit
	}
	runCtx, cancel := context.WithTimeout(ctx, wallLimit)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.ChdirPath
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if spec.Redirect.Stdout != "" {
		// Opened read-write so that a FIFO target does not block here
		// waiting for its reader.
		f, err := os.OpenFile(filepath.Join(spec.ChdirPath, spec.Redirect.Stdout), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return Result{Status: SandboxError, Detail: err.Error()}, nil
		}
		defer f.Close()
		cmd.Stdout = f
	}

	if spec.Redirect.Stdin != "" {
		f, err := os.Open(filepath.Join(spec.ChdirPath, spec.Redirect.Stdin))
		if err != nil {
			return Result{Status: SandboxError, Detail: err.Error()}, nil
		}
		defer f.Close()
		cmd.Stdin = f
	}

	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Status: Timeout, WallTime: wall}, nil
	}

	if err == nil {
		return Result{
			Status:   OK,
			ExitCode: 0,
			WallTime: wall,
			CPUTime:  cmd.ProcessState.UserTime() + cmd.ProcessState.SystemTime(),
			Memory:   maxRSS(cmd.ProcessState),
		}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Result{
				Status:   Signal,
				Signal:   int(ws.Signal()),
				WallTime: wall,
				Detail:   ws.Signal().String(),
			}, nil
		}
		return Result{
			Status:   OK,
			ExitCode: exitErr.ExitCode(),
			WallTime: wall,
			CPUTime:  cmd.ProcessState.UserTime() + cmd.ProcessState.SystemTime(),
			Memory:   maxRSS(cmd.ProcessState),
		}, nil
	}

	return Result{Status: SandboxError, WallTime: wall, Detail: err.Error()}, nil
}

var _ Runner = (*ExecRunner)(nil)
