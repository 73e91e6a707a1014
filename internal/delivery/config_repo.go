package delivery

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// ConfigRepo persists delivery configuration per owner. Get returns
// DefaultConfig when the owner has none stored.
type ConfigRepo interface {
	Get(ctx context.Context, ownerID string) (Config, error)
	Put(ctx context.Context, cfg Config) (Config, error)
}

// PGConfigRepo implements ConfigRepo using Postgres.
type PGConfigRepo struct {
	DB *sql.DB
}

// Get returns the stored configuration for ownerID.
func (r *PGConfigRepo) Get(ctx context.Context, ownerID string) (Config, error) {
	const query = `
SELECT send_to_candidate, send_to_supervisor, supervisor_email, updated_at
FROM delivery_configs
WHERE owner_id = $1`
	cfg := Config{OwnerID: ownerID}
	var supervisor sql.NullString
	err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(
		&cfg.SendToCandidate,
		&cfg.SendToSupervisor,
		&supervisor,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultConfig(ownerID), nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg.SupervisorEmail = supervisor.String
	return cfg, nil
}

// Put upserts the configuration and returns the stored row.
func (r *PGConfigRepo) Put(ctx context.Context, cfg Config) (Config, error) {
	const query = `
INSERT INTO delivery_configs (owner_id, send_to_candidate, send_to_supervisor, supervisor_email, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (owner_id) DO UPDATE
SET send_to_candidate = EXCLUDED.send_to_candidate,
    send_to_supervisor = EXCLUDED.send_to_supervisor,
    supervisor_email = EXCLUDED.supervisor_email,
    updated_at = EXCLUDED.updated_at`
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	var supervisor sql.NullString
	if cfg.SupervisorEmail != "" {
		supervisor = sql.NullString{String: cfg.SupervisorEmail, Valid: true}
	}
	if _, err := r.DB.ExecContext(ctx, query,
		cfg.OwnerID,
		cfg.SendToCandidate,
		cfg.SendToSupervisor,
		supervisor,
		cfg.UpdatedAt,
	); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MemoryConfigRepo stores configuration in memory.
type MemoryConfigRepo struct {
	mu      sync.RWMutex
	byOwner map[string]Config
}

// NewMemoryConfigRepo constructs an empty MemoryConfigRepo.
func NewMemoryConfigRepo() *MemoryConfigRepo {
	return &MemoryConfigRepo{byOwner: make(map[string]Config)}
}

func (r *MemoryConfigRepo) Get(ctx context.Context, ownerID string) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byOwner[ownerID]
	if !ok {
		return DefaultConfig(ownerID), nil
	}
	return cfg, nil
}

func (r *MemoryConfigRepo) Put(ctx context.Context, cfg Config) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOwner[cfg.OwnerID] = cfg
	return cfg, nil
}

var (
	_ ConfigRepo = (*PGConfigRepo)(nil)
	_ ConfigRepo = (*MemoryConfigRepo)(nil)
)
