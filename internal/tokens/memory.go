package tokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adminkit/adminkit/internal/shared"
)

// MemoryStore is an in-process Store used by tests and local tooling.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*Token

	// RoleMembers resolves the users holding a role for RevokeAllByRole.
	RoleMembers func(roleID int64) []int64
	// DisabledUsers lists users whose tokens RevokeAllOfDisabledUsers revokes.
	DisabledUsers func() []int64

	// Writes counts successful Save calls.
	Writes int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]*Token)}
}

func (m *MemoryStore) Save(_ context.Context, token *Token) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token.Type == "" {
		token.Type = TypeBearer
	}
	if token.ID == 0 {
		for _, row := range m.rows {
			if row.Token == token.Token {
				return nil, fmt.Errorf("tokens: %w: token already stored", shared.ErrConflict)
			}
		}
		m.nextID++
		saved := *token
		saved.ID = m.nextID
		m.rows[saved.ID] = &saved
		m.Writes++
		out := saved
		return &out, nil
	}
	row, ok := m.rows[token.ID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	row.Revoked = row.Revoked || token.Revoked
	row.Expiration = token.Expiration
	m.Writes++
	out := *row
	return &out, nil
}

func (m *MemoryStore) FindByToken(_ context.Context, token string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Token == token {
			out := *row
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MemoryStore) FindActiveByTokenAndType(ctx context.Context, token string, typ Type) (*Token, error) {
	row, err := m.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if row.Revoked || row.Type != typ {
		return nil, shared.ErrNotFound
	}
	return row, nil
}

func (m *MemoryStore) Revoke(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Revoked {
		return false, nil
	}
	row.Revoked = true
	m.Writes++
	return true, nil
}

func (m *MemoryStore) RevokeAll(_ context.Context, userID int64, typ Type) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(func(row *Token) bool { return row.UserID == userID && row.Type == typ }), nil
}

func (m *MemoryStore) RevokeAllByRole(_ context.Context, roleID int64, typ Type) (int64, error) {
	var members []int64
	if m.RoleMembers != nil {
		members = m.RoleMembers(roleID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(func(row *Token) bool { return row.Type == typ && contains(members, row.UserID) }), nil
}

func (m *MemoryStore) RevokeAllOfDisabledUsers(_ context.Context, typ Type) (int64, error) {
	var disabled []int64
	if m.DisabledUsers != nil {
		disabled = m.DisabledUsers()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeLocked(func(row *Token) bool { return row.Type == typ && contains(disabled, row.UserID) }), nil
}

func (m *MemoryStore) PurgeExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, row := range m.rows {
		if row.Expiration.Before(cutoff) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// DeleteByUser removes every token of a user.
func (m *MemoryStore) DeleteByUser(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, row := range m.rows {
		if row.UserID == userID {
			delete(m.rows, id)
			n++
		}
	}
	return n
}

// All returns a snapshot of every stored token ordered by ID.
func (m *MemoryStore) All() []Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Token, 0, len(m.rows))
	for id := int64(1); id <= m.nextID; id++ {
		if row, ok := m.rows[id]; ok {
			out = append(out, *row)
		}
	}
	return out
}

func (m *MemoryStore) revokeLocked(match func(*Token) bool) int64 {
	var n int64
	for _, row := range m.rows {
		if !row.Revoked && match(row) {
			row.Revoked = true
			n++
		}
	}
	return n
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
