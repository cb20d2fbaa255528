// Package runner provides the subprocess capability the session
// manager drives the container runtime through. Everything above this
// package sees plain argv in, captured text out — nothing
// runtime-specific leaks upward, and tests substitute the interface.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a process exceeds its bounded wait.
var ErrTimeout = errors.New("process timed out")

// Request describes one subprocess invocation.
type Request struct {
	Args    []string // full argv, Args[0] is the binary
	Stdin   string   // optional data piped to the process
	Timeout time.Duration
}

// Result captures the output of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner invokes external processes. Implementations must honor the
// request timeout; no invocation may block forever.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Exec is the real Runner backed by os/exec.
type Exec struct{}

// Run starts the process and waits for it to exit or for the timeout
// to elapse. A non-zero exit is not an error: the exit code is
// reported in the Result and the caller decides what it means.
func (Exec) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Args) == 0 {
		return Result{}, fmt.Errorf("empty argv")
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, req.Args[0], req.Args[1:]...)
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", req.Args[0], err)
	}
	return res, nil
}
