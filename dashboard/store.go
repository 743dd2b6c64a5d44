package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/deal"
	"dealflow/workspace"
)

// DealTotals aggregates the deals table in one pass.
type DealTotals struct {
	Count        int64
	WithReferral int64
	TotalValue   float64
}

type Store interface {
	CountReferrals(ctx context.Context, scope workspace.Scope) (int64, error)
	DealTotals(ctx context.Context, scope workspace.Scope) (DealTotals, error)
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CountReferrals(ctx context.Context, scope workspace.Scope) (int64, error) {
	where, args := scope.Where("user_id", 1)

	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("dashboard: count referrals: %w", err)
	}
	return n, nil
}

// DealTotals sums parsable deal values; anything else counts as 0. The sum is
// clamped so the float8 cast cannot overflow.
func (s *PGStore) DealTotals(ctx context.Context, scope workspace.Scope) (DealTotals, error) {
	where, args := scope.Where("user_id", 1)
	query := `
		SELECT COUNT(*),
		       COUNT(referral_id),
		       GREATEST(LEAST(COALESCE(SUM(` + deal.NumericValueSQL + `), 0), 1e300), -1e300)::float8
		FROM deals
		WHERE ` + where

	var t DealTotals
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&t.Count, &t.WithReferral, &t.TotalValue); err != nil {
		return DealTotals{}, fmt.Errorf("dashboard: deal totals: %w", err)
	}
	return t, nil
}
