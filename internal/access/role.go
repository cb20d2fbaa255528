// Package access decides whether an identity may run a command. It
// combines the role lookup, the command's minimum-role requirement,
// and the rate limiter into a single authorize-or-reject decision.
package access

import (
	"errors"
	"fmt"
	"time"
)

// Role is the ordered privilege level of an identity. The numeric
// order is meaningful: higher roles may do everything lower roles can.
type Role int

const (
	RoleGuest Role = iota
	RoleUser
	RoleAdmin
	RoleOwner
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole converts a stored role name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "guest":
		return RoleGuest, nil
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "owner":
		return RoleOwner, nil
	}
	return RoleGuest, fmt.Errorf("unknown role %q", s)
}

// AtLeast reports whether r meets the given minimum. Every role
// comparison in the codebase goes through this one function.
func (r Role) AtLeast(min Role) bool { return r >= min }

// ErrNotPending is returned when approving an identity that has no
// pending guest request.
var ErrNotPending = errors.New("no pending request for identity")

// UserRole pairs an identity with its assigned role.
type UserRole struct {
	Identity string
	Role     Role
}

// GuestRequest is a guest's pending ask for promotion to user.
type GuestRequest struct {
	Identity    string
	RequestedAt time.Time
}

// RoleStore is the persistent identity→role mapping plus the pending
// guest set. Implementations must be safe for concurrent use.
type RoleStore interface {
	// GetRole returns the identity's role. Unknown identities are
	// guests, not an error.
	GetRole(identity string) (Role, error)
	SetRole(identity string, role Role) error

	// AddPendingGuest records a guest's promotion request. Re-adding
	// an already-pending identity is a no-op.
	AddPendingGuest(identity string) error

	// ApproveGuest promotes a pending identity to user and removes the
	// request. Returns ErrNotPending if the identity is not pending;
	// approval is never a silent success for unknown identities.
	ApproveGuest(identity string) error

	ListUsers() ([]UserRole, error)
	ListPending() ([]GuestRequest, error)
}
