package kiro

import (
	"path"
	"strings"
	"time"
)

// Config describes the agent container and its workspace mount.
type Config struct {
	Runtime       string        // container runtime binary, default "docker"
	Image         string        // agent container image
	Container     string        // container name, one per deployment
	HostWorkspace string        // host directory mounted into the container
	Workspace     string        // mount target inside the container
	AgentBin      string        // agent CLI inside the container
	Models        []string      // supported model names
	DefaultModel  string
	PromptTimeout time.Duration // bound on a single prompt
	FileTimeout   time.Duration // bound on a single file operation
	StartTimeout  time.Duration // bound on container creation
}

// DefaultConfig returns the stock container settings.
func DefaultConfig() Config {
	return Config{
		Runtime:       "docker",
		Image:         "carikbot/kiro-agent:latest",
		Container:     "carik-kiro",
		HostWorkspace: "/var/lib/carik/workspace",
		Workspace:     "/workspace",
		AgentBin:      "kiro",
		Models:        []string{"sonnet", "opus", "haiku"},
		DefaultModel:  "sonnet",
		PromptTimeout: 5 * time.Minute,
		FileTimeout:   30 * time.Second,
		StartTimeout:  2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Runtime == "" {
		c.Runtime = def.Runtime
	}
	if c.Image == "" {
		c.Image = def.Image
	}
	if c.Container == "" {
		c.Container = def.Container
	}
	if c.HostWorkspace == "" {
		c.HostWorkspace = def.HostWorkspace
	}
	if c.Workspace == "" {
		c.Workspace = def.Workspace
	}
	if c.AgentBin == "" {
		c.AgentBin = def.AgentBin
	}
	if len(c.Models) == 0 {
		c.Models = def.Models
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.Models[0]
	}
	if c.PromptTimeout <= 0 {
		c.PromptTimeout = def.PromptTimeout
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = def.FileTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	return c
}

// createArgs starts a long-lived idle container with the workspace
// mounted. The agent is invoked per prompt via exec.
func (c Config) createArgs() []string {
	return []string{
		c.Runtime, "run", "-d",
		"--name", c.Container,
		"-v", c.HostWorkspace + ":" + c.Workspace,
		"-w", c.Workspace,
		c.Image,
		"sleep", "infinity",
	}
}

// promptArgs invokes the agent CLI with the prompt. The resume flag
// continues the stored conversation; without it the agent starts a
// fresh one.
func (c Config) promptArgs(model, prompt string, resume bool) []string {
	args := []string{c.Runtime, "exec", c.Container, c.AgentBin, "--model", model}
	if resume {
		args = append(args, "--resume")
	}
	return append(args, "--prompt", prompt)
}

// removeArgs force-removes the container. Safe to run when the
// container does not exist.
func (c Config) removeArgs() []string {
	return []string{c.Runtime, "rm", "-f", c.Container}
}

// probeArgs checks whether an agent process is still running inside
// the container. Exit 0 means yes.
func (c Config) probeArgs() []string {
	return []string{c.Runtime, "exec", c.Container, "pgrep", "-x", c.AgentBin}
}

func (c Config) listArgs(resolved string) []string {
	return []string{c.Runtime, "exec", c.Container, "ls", "-la", resolved}
}

func (c Config) readArgs(resolved string) []string {
	return []string{c.Runtime, "exec", c.Container, "cat", resolved}
}

func (c Config) writeArgs(resolved string) []string {
	return []string{c.Runtime, "exec", "-i", c.Container, "sh", "-c", "cat > " + shellQuote(resolved)}
}

// resolvePath confines a user-supplied path to the workspace mount.
// Absolute paths and traversal outside the root are rejected before
// anything reaches the container runtime.
func (c Config) resolvePath(rel string) (string, error) {
	if rel == "" || rel == "." {
		return c.Workspace, nil
	}
	if path.IsAbs(rel) {
		return "", ErrPathEscape
	}
	joined := path.Join(c.Workspace, rel)
	if joined != c.Workspace && !strings.HasPrefix(joined, c.Workspace+"/") {
		return "", ErrPathEscape
	}
	return joined, nil
}

// shellQuote wraps s in single quotes for the sh -c redirect target.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
