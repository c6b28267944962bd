// Package runner spawns external scan tools with enforced timeouts,
// bounded output capture, and typed outcome classification.
package runner

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// MaxCapture bounds stdout/stderr capture; surplus is discarded and
// the result marked truncated.
const MaxCapture = 2 << 20 // 2 MiB

// killGrace is how long a tool gets between SIGTERM and SIGKILL.
const killGrace = 2 * time.Second

// Result is the raw outcome of one subprocess run.
type Result struct {
	Tool            string
	StartedAt       time.Time
	FinishedAt      time.Time
	ExitCode        int
	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
	NotInstalled    bool
	SpawnErr        string
}

// Runner executes commands. LookPath and StartFn are swappable for
// tests.
type Runner struct {
	// LookPath is the preflight binary check.
	LookPath func(file string) (string, error)
}

// New returns a Runner with the real exec preflight.
func New() *Runner {
	return &Runner{LookPath: exec.LookPath}
}

// Run executes command (a space-separated argv, no shell) with the
// given timeout. On expiry the process receives SIGTERM, then SIGKILL
// after a short grace period.
func (r *Runner) Run(ctx context.Context, tool, command string, timeout time.Duration) Result {
	res := Result{Tool: tool, StartedAt: time.Now().UTC()}

	argv := strings.Fields(command)
	if len(argv) == 0 {
		res.FinishedAt = res.StartedAt
		res.ExitCode = -1
		res.SpawnErr = "empty command"
		return res
	}

	// Preflight: a missing binary is a classified outcome, not a crash.
	if _, err := r.LookPath(argv[0]); err != nil {
		res.FinishedAt = time.Now().UTC()
		res.ExitCode = 127
		res.NotInstalled = true
		res.SpawnErr = err.Error()
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	stdout := newBoundedBuffer(MaxCapture)
	stderr := newBoundedBuffer(MaxCapture)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res.FinishedAt = time.Now().UTC()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.StdoutTruncated = stdout.Truncated()
	res.StderrTruncated = stderr.Truncated()

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode == -1 && exitErr.ProcessState != nil {
				if ws, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
					// Signal deaths surface as 128+signal, the shell way.
					res.ExitCode = 128 + int(ws.Signal())
				}
			}
		} else {
			res.ExitCode = -1
			res.SpawnErr = err.Error()
		}
	}
	return res
}
