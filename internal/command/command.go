// Package command parses chat text into commands and dispatches them
// through the access gate to their handlers. Every denial and failure
// comes back as user-visible text; nothing a handler does can crash
// the dispatcher.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/carikbot/carik/internal/access"
)

// DefaultPrefix marks command messages.
const DefaultPrefix = "/"

// HandlerFunc runs a command for an identity. The returned string is
// sent back to the caller verbatim.
type HandlerFunc func(ctx context.Context, identity, args string) (string, error)

// Command binds a name to its handler and access requirements.
type Command struct {
	Name    string
	MinRole access.Role
	Charged bool // consumes a rate-limit slot when run
	Help    string
	Handler HandlerFunc
}

// Registry holds the static command table. It is populated at startup
// and read-only afterwards.
type Registry struct {
	byName map[string]Command
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Command)}
}

// Register adds a command. Registering the same name twice is a
// configuration error, not a silent overwrite.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("command with empty name")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command %s has no handler", cmd.Name)
	}
	if _, dup := r.byName[cmd.Name]; dup {
		return fmt.Errorf("command %s registered twice", cmd.Name)
	}
	r.byName[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	return nil
}

// Get looks up a command by exact name.
func (r *Registry) Get(name string) (Command, bool) {
	cmd, ok := r.byName[name]
	return cmd, ok
}

// All returns commands in registration order.
func (r *Registry) All() []Command {
	cmds := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.byName[name])
	}
	return cmds
}

// Split parses raw text into a command name and its argument string.
// ok is false when the text does not start with the prefix; such text
// is not a command and belongs to the free-form pipeline.
func Split(text, prefix string) (name, args string, ok bool) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(text, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, prefix)
	if rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}
