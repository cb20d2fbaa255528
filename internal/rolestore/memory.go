package rolestore

import (
	"sort"
	"sync"
	"time"

	"github.com/carikbot/carik/internal/access"
)

// Memory is a volatile access.RoleStore. Used by tests and the console
// transport, where persistence across restarts does not matter.
type Memory struct {
	mu      sync.Mutex
	roles   map[string]access.Role
	pending map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		roles:   make(map[string]access.Role),
		pending: make(map[string]time.Time),
	}
}

func (m *Memory) GetRole(identity string) (access.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[identity], nil
}

func (m *Memory) SetRole(identity string, role access.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[identity] = role
	return nil
}

func (m *Memory) AddPendingGuest(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[identity]; !ok {
		m.pending[identity] = time.Now().UTC()
	}
	return nil
}

func (m *Memory) ApproveGuest(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[identity]; !ok {
		return access.ErrNotPending
	}
	delete(m.pending, identity)
	m.roles[identity] = access.RoleUser
	return nil
}

func (m *Memory) ListUsers() ([]access.UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]access.UserRole, 0, len(m.roles))
	for identity, role := range m.roles {
		users = append(users, access.UserRole{Identity: identity, Role: role})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Identity < users[j].Identity })
	return users, nil
}

func (m *Memory) ListPending() ([]access.GuestRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := make([]access.GuestRequest, 0, len(m.pending))
	for identity, at := range m.pending {
		pending = append(pending, access.GuestRequest{Identity: identity, RequestedAt: at})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].RequestedAt.Before(pending[j].RequestedAt) })
	return pending, nil
}
