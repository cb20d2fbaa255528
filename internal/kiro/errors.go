package kiro

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAgentUnavailable means the container could not be started or
	// disappeared out from under an operation.
	ErrAgentUnavailable = errors.New("agent unavailable")

	// ErrAgentBusy means another operation currently owns the
	// container; the caller should retry shortly.
	ErrAgentBusy = errors.New("agent is busy")

	// ErrAgentTimeout means the agent did not finish within the
	// configured bound. The underlying process may still be running;
	// the next container operation reconciles.
	ErrAgentTimeout = errors.New("agent timed out")

	// ErrPathEscape means a workspace path resolved outside the
	// workspace root. Rejected before any process invocation.
	ErrPathEscape = errors.New("path escapes workspace")
)

// ExecFailedError reports a prompt invocation that exited non-zero.
type ExecFailedError struct {
	Code   int
	Detail string
}

func (e *ExecFailedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("agent exited with code %d", e.Code)
	}
	return fmt.Sprintf("agent exited with code %d: %s", e.Code, e.Detail)
}

// UnsupportedModelError reports a model switch to an unknown model.
type UnsupportedModelError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("model %q not supported, choose from {%s}", e.Name, strings.Join(e.Supported, ", "))
}

// WorkspaceError reports a failed workspace file operation.
type WorkspaceError struct {
	Op   string // "list", "read", "write"
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }
