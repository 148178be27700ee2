package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// PostgresUsers looks users up in the shared users table.
//
// NOTE: assumes a table users(id text primary key, role text, deleted_at timestamptz null).
type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers { return &PostgresUsers{db: db} }

func (p *PostgresUsers) UserExists(ctx context.Context, userID, role string) (bool, error) {
	const q = `
SELECT 1
FROM users
WHERE id = $1 AND role = $2 AND deleted_at IS NULL
`
	var one int
	if err := p.db.QueryRowContext(ctx, q, userID, role).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MemoryUsers is an in-memory directory useful for tests and local runs.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]string // userID -> role
}

func NewMemoryUsers() *MemoryUsers { return &MemoryUsers{users: make(map[string]string)} }

func (m *MemoryUsers) Add(userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = role
}

func (m *MemoryUsers) UserExists(_ context.Context, userID, role string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.users[userID]
	return ok && r == role, nil
}
