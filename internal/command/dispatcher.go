package command

import (
	"context"
	"fmt"
	"log"

	"github.com/carikbot/carik/internal/access"
)

// Dispatcher routes parsed commands through the access gate to their
// handlers and turns every outcome into reply text.
type Dispatcher struct {
	registry *Registry
	gate     *access.Gate
	prefix   string
}

// NewDispatcher creates a dispatcher over the given registry and gate.
// Empty prefix defaults to "/".
func NewDispatcher(registry *Registry, gate *access.Gate, prefix string) *Dispatcher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Dispatcher{registry: registry, gate: gate, prefix: prefix}
}

// Prefix returns the active command prefix.
func (d *Dispatcher) Prefix() string { return d.prefix }

// Dispatch handles one raw text message from an identity. handled is
// false when the text is not a command at all; the caller routes such
// text to the free-form pipeline. When handled, reply is always
// non-empty — unknown commands, denials, and handler failures all
// produce a user-visible message.
func (d *Dispatcher) Dispatch(ctx context.Context, identity, raw string) (reply string, handled bool) {
	name, args, ok := Split(raw, d.prefix)
	if !ok {
		return "", false
	}

	cmd, known := d.registry.Get(name)
	if !known {
		return fmt.Sprintf("Unknown command: %s%s. Try %shelp.", d.prefix, name, d.prefix), true
	}

	decision, err := d.gate.Authorize(identity, cmd.MinRole, cmd.Charged)
	if err != nil {
		log.Printf("dispatch: authorize %s for %s: %v", name, identity, err)
		return "Something went wrong checking permissions. Try again later.", true
	}
	if !decision.Allowed {
		return decision.Message(), true
	}

	out, err := cmd.Handler(ctx, identity, args)
	if err != nil {
		log.Printf("dispatch: %s%s for %s: %v", d.prefix, name, identity, err)
		return fmt.Sprintf("Command %s%s failed: %v", d.prefix, name, err), true
	}
	return out, true
}
