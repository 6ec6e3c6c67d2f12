package users

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
)

// MemoryRepository is an in-process Repository backed by maps. User writes
// inside WithTx are rolled back when fn fails. It is used by tests and local
// tooling.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
	roles  map[int64]rbac.Role
	store  *tokens.MemoryStore
}

// NewMemoryRepository constructs a repository sharing store for token writes.
func NewMemoryRepository(store *tokens.MemoryStore) *MemoryRepository {
	m := &MemoryRepository{
		users: make(map[int64]*User),
		roles: make(map[int64]rbac.Role),
		store: store,
	}
	store.RoleMembers = m.roleMembers
	store.DisabledUsers = m.disabledUsers
	return m
}

// Add stores a user, assigning an ID, and registers its roles.
func (m *MemoryRepository) Add(u User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	for _, role := range u.Roles {
		m.roles[role.ID] = role
	}
	m.users[u.ID] = &u
	out := u
	return &out
}

// AddRole registers a role that can later be assigned.
func (m *MemoryRepository) AddRole(role rbac.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role.ID] = role
}

func (m *MemoryRepository) FindByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *MemoryRepository) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *MemoryRepository) FindEnabledByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *User) bool { return u.Enabled && strings.EqualFold(u.Email, email) })
}

func (m *MemoryRepository) List(_ context.Context, q ListQuery) ([]User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := q.Page.Normalize()

	var matched []User
	for _, u := range m.users {
		if matchesFilter(u, q.Filter) {
			c := *u
			c.Roles = slices.Clone(u.Roles)
			matched = append(matched, c)
		}
	}
	key, ok := SortColumns[page.Sort]
	if !ok {
		key = "id"
	}
	slices.SortFunc(matched, func(a, b User) int {
		c := compareUsers(a, b, key)
		if page.Direction == shared.SortDesc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return c
	})

	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.PerPage, len(matched))
	return append([]User{}, matched[start:end]...), total, nil
}

func matchesFilter(u *User, f ListFilter) bool {
	for _, field := range []struct{ value, want string }{
		{u.Username, f.Username},
		{u.Email, f.Email},
		{u.Name, f.Name},
		{u.Surname, f.Surname},
	} {
		want := strings.TrimSpace(field.want)
		if want != "" && !strings.Contains(strings.ToLower(field.value), strings.ToLower(want)) {
			return false
		}
	}
	if len(f.RoleIDs) == 0 {
		return true
	}
	for _, role := range u.Roles {
		if slices.Contains(f.RoleIDs, role.ID) {
			return true
		}
	}
	return false
}

func compareUsers(a, b User, column string) int {
	switch column {
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "surname":
		return strings.Compare(a.Surname, b.Surname)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}

// WithTx holds the repository lock for the duration of fn. Token callbacks
// that read users must not be triggered from inside fn.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[int64]*User, len(m.users))
	for id, u := range m.users {
		c := *u
		c.Roles = slices.Clone(u.Roles)
		snapshot[id] = &c
	}
	if err := fn(ctx, memTx{m}); err != nil {
		m.users = snapshot
		return err
	}
	return nil
}

func (m *MemoryRepository) find(match func(*User) bool) (*User, error) {
	for _, u := range m.users {
		if match(u) {
			out := *u
			out.Roles = slices.Clone(u.Roles)
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MemoryRepository) roleMembers(roleID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, u := range m.users {
		for _, role := range u.Roles {
			if role.ID == roleID {
				ids = append(ids, u.ID)
			}
		}
	}
	return ids
}

func (m *MemoryRepository) disabledUsers() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, u := range m.users {
		if !u.Enabled {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

type memTx struct {
	m *MemoryRepository
}

func (t memTx) FindByID(_ context.Context, id int64) (*User, error) {
	return t.m.find(func(u *User) bool { return u.ID == id })
}

func (t memTx) Create(_ context.Context, nu NewUser) (int64, error) {
	for _, other := range t.m.users {
		if other.Username == nu.Username || strings.EqualFold(other.Email, nu.Email) {
			return 0, fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
		}
	}
	t.m.nextID++
	now := time.Now().UTC()
	t.m.users[t.m.nextID] = &User{
		ID:           t.m.nextID,
		Username:     nu.Username,
		PasswordHash: nu.PasswordHash,
		Name:         nu.Name,
		Surname:      nu.Surname,
		Email:        nu.Email,
		Enabled:      nu.Enabled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return t.m.nextID, nil
}

func (t memTx) UpdatePassword(_ context.Context, userID int64, hash string) error {
	u, ok := t.m.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (t memTx) UpdateProfile(_ context.Context, userID int64, p Profile) error {
	u, ok := t.m.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	for id, other := range t.m.users {
		if id != userID && (other.Username == p.Username || strings.EqualFold(other.Email, p.Email)) {
			return fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
		}
	}
	u.Username, u.Name, u.Surname, u.Email, u.Enabled = p.Username, p.Name, p.Surname, p.Email, p.Enabled
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (t memTx) ReplaceRoles(_ context.Context, userID int64, roleIDs []int64) error {
	u, ok := t.m.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	roles := make([]rbac.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, ok := t.m.roles[id]
		if !ok {
			return fmt.Errorf("%w: unknown role id", shared.ErrBadRequest)
		}
		roles = append(roles, role)
	}
	u.Roles = roles
	return nil
}

func (t memTx) Delete(_ context.Context, userID int64) error {
	if _, ok := t.m.users[userID]; !ok {
		return shared.ErrNotFound
	}
	delete(t.m.users, userID)
	// Mirrors ON DELETE CASCADE on tokens.user_id.
	t.m.store.DeleteByUser(userID)
	return nil
}

func (t memTx) Tokens() tokens.Store {
	return t.m.store
}

var (
	_ Repository   = (*MemoryRepository)(nil)
	_ TxRepository = memTx{}
)
