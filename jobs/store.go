package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adminkit/adminkit/internal/shared"
)

// Store persists job definitions.
type Store interface {
	Load(ctx context.Context) ([]Definition, error)
	Get(ctx context.Context, name, group string) (*Definition, error)
	Upsert(ctx context.Context, def Definition) error
	Delete(ctx context.Context, name, group string) error
}

// PGStore keeps definitions in the scheduled_jobs table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const definitionColumns = `name, job_group, kind, cron, task_type, description`

func (s *PGStore) Load(ctx context.Context) ([]Definition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+definitionColumns+` FROM scheduled_jobs ORDER BY job_group, name`)
	if err != nil {
		return nil, fmt.Errorf("jobs: load definitions: %w", err)
	}
	defs, err := pgx.CollectRows(rows, scanDefinition)
	if err != nil {
		return nil, fmt.Errorf("jobs: load definitions: %w", err)
	}
	return defs, nil
}

func (s *PGStore) Get(ctx context.Context, name, group string) (*Definition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+definitionColumns+` FROM scheduled_jobs WHERE name = $1 AND job_group = $2`, name, group)
	if err != nil {
		return nil, fmt.Errorf("jobs: get definition: %w", err)
	}
	def, err := pgx.CollectExactlyOneRow(rows, scanDefinition)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("jobs: get definition: %w", err)
	}
	return &def, nil
}

func (s *PGStore) Upsert(ctx context.Context, def Definition) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO scheduled_jobs (name, job_group, kind, cron, task_type, description)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name, job_group) DO UPDATE
SET kind = EXCLUDED.kind, cron = EXCLUDED.cron, task_type = EXCLUDED.task_type,
    description = EXCLUDED.description, updated_at = NOW()`,
		def.Name, def.Group, string(def.Kind), def.Cron, def.TaskType, def.Description)
	if err != nil {
		return fmt.Errorf("jobs: upsert %s: %w", def.key(), err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, name, group string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scheduled_jobs WHERE name = $1 AND job_group = $2`, name, group); err != nil {
		return fmt.Errorf("jobs: delete %s/%s: %w", group, name, err)
	}
	return nil
}

func scanDefinition(row pgx.CollectableRow) (Definition, error) {
	var def Definition
	var kind string
	err := row.Scan(&def.Name, &def.Group, &kind, &def.Cron, &def.TaskType, &def.Description)
	def.Kind = Kind(kind)
	return def, err
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu   sync.Mutex
	defs map[string]Definition
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]Definition)}
}

func (m *MemoryStore) Load(context.Context) ([]Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Definition, 0, len(m.defs))
	for _, def := range m.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, name, group string) (*Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[Definition{Name: name, Group: group}.key()]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &def, nil
}

func (m *MemoryStore) Upsert(_ context.Context, def Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.key()] = def
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.defs, Definition{Name: name, Group: group}.key())
	return nil
}
