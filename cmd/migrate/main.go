package main

// Apply the attempts and delivery_configs schema:
//   go run ./cmd/migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"disc-report/internal/bootstrap"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/storage/db"
	"disc-report/internal/shared/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		stop()
		os.Exit(1)
	}
	telemetry.Info("migrate.done", nil)
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	opts := db.Defaults(db.ProfileMigrate).With(bootstrap.PoolOptions(cfg))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := db.RequireTables(ctx, pool, "attempts", "delivery_configs"); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}
