package access

import (
	"fmt"
	"time"

	"github.com/carikbot/carik/internal/ratelimit"
)

// DenyReason classifies why an authorization was refused.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyRole
	DenyRate
)

// Decision is the outcome of a single authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason

	// Set when Reason == DenyRole.
	Role     Role // the caller's actual role
	Required Role

	// Set when Reason == DenyRate.
	Window     ratelimit.Window
	RetryAfter time.Duration
}

// Message renders the decision as user-facing text. Allowed decisions
// have no message.
func (d Decision) Message() string {
	switch d.Reason {
	case DenyRole:
		return fmt.Sprintf("This command requires the %s role (you are %s).", d.Required, d.Role)
	case DenyRate:
		secs := int(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf("Rate limit reached (%s window). Try again in %ds.", d.Window, secs)
	}
	return ""
}

// Gate performs authorization: role check first, then the rate
// limiter. Owners are exempt from rate limiting; quota-exempt commands
// never consume a slot.
type Gate struct {
	roles   RoleStore
	limiter *ratelimit.Limiter
}

// NewGate creates a gate over the given role store and limiter.
func NewGate(roles RoleStore, limiter *ratelimit.Limiter) *Gate {
	return &Gate{roles: roles, limiter: limiter}
}

// Authorize checks the identity against the command's minimum role and,
// for quota-charging commands, the rate limiter. The limiter records
// the attempt only when the request is allowed and charged.
func (g *Gate) Authorize(identity string, required Role, charged bool) (Decision, error) {
	role, err := g.roles.GetRole(identity)
	if err != nil {
		return Decision{}, fmt.Errorf("role lookup for %s: %w", identity, err)
	}

	if !role.AtLeast(required) {
		return Decision{
			Reason:   DenyRole,
			Role:     role,
			Required: required,
		}, nil
	}

	if charged && role != RoleOwner {
		if denial := g.limiter.CheckAndRecord(identity); denial != nil {
			return Decision{
				Reason:     DenyRate,
				Window:     denial.Window,
				RetryAfter: denial.RetryAfter,
			}, nil
		}
	}

	return Decision{Allowed: true}, nil
}
