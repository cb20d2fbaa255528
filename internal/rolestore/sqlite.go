// Package rolestore persists identity→role assignments and pending
// guest requests. The SQLite store survives process restarts; the
// memory store backs tests and the local console mode.
package rolestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/carikbot/carik/internal/access"
)

const schema = `
CREATE TABLE IF NOT EXISTS roles (
	identity   TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_guests (
	identity     TEXT PRIMARY KEY,
	requested_at TEXT NOT NULL
);
`

// SQLite is an access.RoleStore backed by a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if necessary) the role database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open role db: %w", err)
	}
	// Single connection: SQLite allows one writer, and traffic is
	// human-rate anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init role db schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// GetRole returns the identity's stored role. Unknown identities are
// guests.
func (s *SQLite) GetRole(identity string) (access.Role, error) {
	var name string
	err := s.db.QueryRow(`SELECT role FROM roles WHERE identity = ?`, identity).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return access.RoleGuest, nil
	}
	if err != nil {
		return access.RoleGuest, fmt.Errorf("get role: %w", err)
	}
	role, err := access.ParseRole(name)
	if err != nil {
		return access.RoleGuest, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// SetRole assigns a role to the identity, replacing any previous one.
func (s *SQLite) SetRole(identity string, role access.Role) error {
	_, err := s.db.Exec(`
		INSERT INTO roles (identity, role, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		identity, role.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}

// AddPendingGuest records a guest's promotion request. Repeated
// requests from the same identity keep the original timestamp.
func (s *SQLite) AddPendingGuest(identity string) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_guests (identity, requested_at) VALUES (?, ?)
		ON CONFLICT(identity) DO NOTHING`,
		identity, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add pending guest: %w", err)
	}
	return nil
}

// ApproveGuest promotes a pending identity to user and removes the
// request. Approving an identity that is not pending returns
// access.ErrNotPending.
func (s *SQLite) ApproveGuest(identity string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("approve guest: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM pending_guests WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("approve guest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve guest: %w", err)
	}
	if n == 0 {
		return access.ErrNotPending
	}

	if _, err := tx.Exec(`
		INSERT INTO roles (identity, role, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		identity, access.RoleUser.String(), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("approve guest: %w", err)
	}
	return tx.Commit()
}

// ListUsers returns all identities with stored roles, sorted by
// identity.
func (s *SQLite) ListUsers() ([]access.UserRole, error) {
	rows, err := s.db.Query(`SELECT identity, role FROM roles ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []access.UserRole
	for rows.Next() {
		var identity, name string
		if err := rows.Scan(&identity, &name); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		role, err := access.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, access.UserRole{Identity: identity, Role: role})
	}
	return users, rows.Err()
}

// ListPending returns pending guest requests, oldest first.
func (s *SQLite) ListPending() ([]access.GuestRequest, error) {
	rows, err := s.db.Query(`SELECT identity, requested_at FROM pending_guests ORDER BY requested_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var pending []access.GuestRequest
	for rows.Next() {
		var identity, at string
		if err := rows.Scan(&identity, &at); err != nil {
			return nil, fmt.Errorf("list pending: %w", err)
		}
		requestedAt, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("list pending: %w", err)
		}
		pending = append(pending, access.GuestRequest{Identity: identity, RequestedAt: requestedAt})
	}
	return pending, rows.Err()
}
