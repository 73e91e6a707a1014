package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service encapsulates health-related checks.
type Service struct {
	DB       *sql.DB
	Renderer string
	Storage  string
}

// NewService constructs a new health service. db may be nil when the
// in-memory repositories are in use.
func NewService(db *sql.DB, renderer, storage string) *Service {
	return &Service{DB: db, Renderer: renderer, Storage: storage}
}

// Status reports liveness plus the database reachability.
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{
		"ok":       true,
		"renderer": s.Renderer,
		"storage":  s.Storage,
		"database": "memory",
	}
	if s.DB == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		out["ok"] = false
		out["database"] = "unreachable"
		return out
	}
	out["database"] = "ok"
	return out
}
