package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns a migrated database for one test package: either a fresh container
// or an isolated schema inside the database named by DEALFLOW_TEST_PG_DSN.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
	dsn       string
}

func NewHarness(ctx context.Context) (*Harness, error) {
	pgC, dsn, err := StartPostgres16(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, pgC.Shared())
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	return &Harness{
		container: pgC,
		pool:      pool,
		teardown:  teardown,
		dsn:       dsn,
	}, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

func (h *Harness) DSN() string {
	return h.dsn
}

// Close drops the isolated schema, if any, and stops the container.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates every domain table, leaving schema_migrations alone.
func (h *Harness) Reset(ctx context.Context) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range []string{"deals", "referrals", "users"} {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}

// SeedUser inserts a bare user row and returns its id.
func (h *Harness) SeedUser(ctx context.Context, email string) (string, error) {
	var id string
	err := h.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, 'x') RETURNING id::text`,
		"Seed User", email,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("seed user %s: %w", email, err)
	}
	return id, nil
}
