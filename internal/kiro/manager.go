// Package kiro manages the single external coding-agent session: one
// long-lived container per deployment, a resumable conversation against
// it, and file operations scoped to its workspace mount.
//
// The container has no concurrency control of its own, so every
// operation that touches it runs under a single busy token. Pure reads
// (Status, ReadLog) only look at cached fields and never block on the
// container.
package kiro

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carikbot/carik/internal/runner"
)

// Status is a snapshot of the session state. Reading it never touches
// the container.
type Status struct {
	Running            bool
	Busy               bool
	ConversationActive bool
	Model              string
	LastActivity       time.Time
}

// Manager owns the agent session lifecycle. All mutable session state
// lives here, behind one mutex; nothing else in the process touches
// the container.
type Manager struct {
	run runner.Runner
	cfg Config

	mu           sync.Mutex
	models       []string
	model        string
	running      bool
	busy         bool
	stale        bool // a prompt timed out; the agent may still be running
	conversation bool
	lastOutput   string
	lastActivity time.Time
	epoch        uint64 // bumped by Kill so in-flight operations observe it
}

// New creates a manager. The container is not started until the first
// operation needs it.
func New(run runner.Runner, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		run:    run,
		cfg:    cfg,
		models: cfg.Models,
		model:  cfg.DefaultModel,
	}
}

// begin takes the busy token, reconciles a stale session, and ensures
// the container is running. On success the caller owns the container
// until it clears busy.
func (m *Manager) begin(ctx context.Context) (epoch uint64, model string, resume bool, err error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return 0, "", false, ErrAgentBusy
	}
	m.busy = true
	stale, running := m.stale, m.running
	epoch, model, resume = m.epoch, m.model, m.conversation
	m.mu.Unlock()

	fail := func(e error) (uint64, string, bool, error) {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
		return 0, "", false, e
	}

	if stale {
		// A previous prompt timed out. Check whether the agent process
		// is still alive before allowing a new invocation to race it.
		res, perr := m.run.Run(ctx, runner.Request{Args: m.cfg.probeArgs(), Timeout: m.cfg.FileTimeout})
		switch {
		case perr == nil && res.ExitCode == 0:
			return fail(ErrAgentBusy)
		case perr == nil && res.ExitCode == 1:
			// Agent finished on its own; container is alive.
			m.mu.Lock()
			m.stale = false
			m.mu.Unlock()
		default:
			// Container is gone; recreate below.
			m.mu.Lock()
			m.stale, m.running = false, false
			m.mu.Unlock()
			running = false
		}
	}

	if !running {
		// Clear any leftover container from a previous process, then
		// create a fresh one with the workspace mounted.
		_, _ = m.run.Run(ctx, runner.Request{Args: m.cfg.removeArgs(), Timeout: m.cfg.StartTimeout})
		res, cerr := m.run.Run(ctx, runner.Request{Args: m.cfg.createArgs(), Timeout: m.cfg.StartTimeout})
		if cerr != nil {
			return fail(fmt.Errorf("%w: %v", ErrAgentUnavailable, cerr))
		}
		if res.ExitCode != 0 {
			return fail(fmt.Errorf("%w: %s", ErrAgentUnavailable, strings.TrimSpace(res.Stderr)))
		}
		m.mu.Lock()
		if m.epoch != epoch {
			m.busy = false
			m.mu.Unlock()
			return 0, "", false, ErrAgentUnavailable
		}
		m.running = true
		resume = m.conversation
		m.mu.Unlock()
	}
	return epoch, model, resume, nil
}

// SendPrompt sends one prompt to the agent and returns its output.
// Creates the container on first use. The conversation resumes unless
// StartFresh or Kill cleared it.
func (m *Manager) SendPrompt(ctx context.Context, text string) (string, error) {
	epoch, model, resume, err := m.begin(ctx)
	if err != nil {
		return "", err
	}

	res, err := m.run.Run(ctx, runner.Request{
		Args:    m.cfg.promptArgs(model, text, resume),
		Timeout: m.cfg.PromptTimeout,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if m.epoch != epoch {
		// Killed mid-flight; whatever came back is not trustworthy.
		return "", ErrAgentUnavailable
	}
	if errors.Is(err, runner.ErrTimeout) {
		m.stale = true
		return "", ErrAgentTimeout
	}
	if err != nil {
		// Unrecoverable executor failure: treat as an implicit kill.
		m.running = false
		m.conversation = false
		return "", fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	if res.ExitCode != 0 {
		return "", &ExecFailedError{Code: res.ExitCode, Detail: strings.TrimSpace(res.Stderr)}
	}

	out := strings.TrimSpace(res.Stdout)
	if res.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += strings.TrimSpace(res.Stderr)
	}
	m.lastOutput = out
	m.conversation = true
	m.lastActivity = time.Now()
	return out, nil
}

// StartFresh clears the conversation without touching the container.
// The next prompt starts a new conversation.
func (m *Manager) StartFresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrAgentBusy
	}
	m.conversation = false
	return nil
}

// Kill stops and removes the container. Idempotent: killing a session
// that was never started is a no-op success. Kill is the only
// operation allowed while the session is busy; an in-flight prompt
// observes the kill and fails rather than returning stale output.
func (m *Manager) Kill(ctx context.Context) error {
	m.mu.Lock()
	hadContainer := m.running || m.busy || m.stale
	m.running = false
	m.conversation = false
	m.stale = false
	m.epoch++
	m.mu.Unlock()

	if !hadContainer {
		return nil
	}
	// Best effort: the container may already be gone.
	_, _ = m.run.Run(ctx, runner.Request{Args: m.cfg.removeArgs(), Timeout: m.cfg.StartTimeout})
	return nil
}

// Status returns cached session state. Never blocks on the container.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:            m.running,
		Busy:               m.busy,
		ConversationActive: m.conversation,
		Model:              m.model,
		LastActivity:       m.lastActivity,
	}
}

// ReadLog returns the last captured agent output and whether a prompt
// is currently in flight. Pure read of cached state.
func (m *Manager) ReadLog() (output string, busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOutput, m.busy
}

// SwitchModel selects the model for subsequent prompts. The container
// is not restarted. Unknown models are rejected and the prior model
// kept.
func (m *Manager) SwitchModel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.models {
		if s == name {
			m.model = name
			return nil
		}
	}
	return &UnsupportedModelError{Name: name, Supported: append([]string(nil), m.models...)}
}

// SetModels replaces the supported model list, used on config reload.
// If the active model is no longer supported it falls back to the
// first entry.
func (m *Manager) SetModels(models []string) {
	if len(models) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = append([]string(nil), models...)
	for _, s := range m.models {
		if s == m.model {
			return
		}
	}
	m.model = m.models[0]
}

// ListFiles lists a directory under the workspace mount.
func (m *Manager) ListFiles(ctx context.Context, dir string) (string, error) {
	return m.fileOp(ctx, "list", dir, func(resolved string) runner.Request {
		return runner.Request{Args: m.cfg.listArgs(resolved), Timeout: m.cfg.FileTimeout}
	})
}

// ReadFile returns the contents of a file under the workspace mount.
func (m *Manager) ReadFile(ctx context.Context, file string) (string, error) {
	return m.fileOp(ctx, "read", file, func(resolved string) runner.Request {
		return runner.Request{Args: m.cfg.readArgs(resolved), Timeout: m.cfg.FileTimeout}
	})
}

// WriteFile writes content to a file under the workspace mount.
func (m *Manager) WriteFile(ctx context.Context, file, content string) error {
	_, err := m.fileOp(ctx, "write", file, func(resolved string) runner.Request {
		return runner.Request{Args: m.cfg.writeArgs(resolved), Stdin: content, Timeout: m.cfg.FileTimeout}
	})
	return err
}

// fileOp runs a single confined workspace invocation under the busy
// token. Path confinement is checked before anything executes.
func (m *Manager) fileOp(ctx context.Context, op, p string, build func(resolved string) runner.Request) (string, error) {
	resolved, err := m.cfg.resolvePath(p)
	if err != nil {
		return "", &WorkspaceError{Op: op, Path: p, Err: err}
	}

	epoch, _, _, err := m.begin(ctx)
	if err != nil {
		return "", err
	}

	res, err := m.run.Run(ctx, build(resolved))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if m.epoch != epoch {
		return "", ErrAgentUnavailable
	}
	if errors.Is(err, runner.ErrTimeout) {
		m.stale = true
		return "", &WorkspaceError{Op: op, Path: p, Err: ErrAgentTimeout}
	}
	if err != nil {
		m.running = false
		return "", &WorkspaceError{Op: op, Path: p, Err: err}
	}
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return "", &WorkspaceError{Op: op, Path: p, Err: errors.New(detail)}
	}
	m.lastActivity = time.Now()
	return res.Stdout, nil
}
