package deal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/workspace"
)

// DefaultSortKey is used when a report asks for an unknown or empty sort key.
const DefaultSortKey = "title"

// MaxNumericValueLen bounds the stored text read as a number. Longer values,
// which only pre-validation rows can hold, evaluate to 0.
const MaxNumericValueLen = 32

// NumericValueSQL evaluates deals.value as a number. Text that is not a plain
// decimal, or is longer than MaxNumericValueLen, evaluates to 0 so a single bad
// row never fails a sort or a sum.
const NumericValueSQL = `(CASE WHEN length(value) <= 32 AND value ~ '^ *-?([0-9]+(\.[0-9]*)?|\.[0-9]+) *$' THEN trim(value)::numeric ELSE 0 END)`

type Repository interface {
	Create(ctx context.Context, d Deal) (Deal, error)
	List(ctx context.Context, scope workspace.Scope) ([]Deal, error)
	ListSorted(ctx context.Context, scope workspace.Scope, sortBy string) ([]Deal, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectColumns = `id, title, referral_id, value, client_name, stage, expected_close_date,
	description, created_at, user_id`

func (r *PGRepository) Create(ctx context.Context, d Deal) (Deal, error) {
	const query = `
		INSERT INTO deals (id, title, referral_id, value, client_name, stage, expected_close_date,
			description, created_at, user_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3::uuid, $4, $5, $6, $7::date, $8,
			COALESCE($9, now()), $10)
		RETURNING ` + selectColumns

	var createdAt any
	if !d.CreatedAt.IsZero() {
		createdAt = d.CreatedAt
	}

	row := r.pool.QueryRow(ctx, query,
		d.ID,
		d.Title,
		d.ReferralID,
		d.Value,
		d.ClientName,
		d.Stage,
		d.ExpectedCloseDate.Format(DateLayout),
		d.Description,
		createdAt,
		d.UserID,
	)

	created, err := scanDeal(row)
	if err != nil {
		return Deal{}, fmt.Errorf("deal: create: %w", err)
	}
	return created, nil
}

// List returns every visible deal, newest first.
func (r *PGRepository) List(ctx context.Context, scope workspace.Scope) ([]Deal, error) {
	where, args := scope.Where("user_id", 1)
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE %s ORDER BY created_at DESC, id DESC`, selectColumns, where)
	return r.query(ctx, "list", query, args...)
}

// ListSorted returns every visible deal ordered by an allow-listed key. Sorting
// by value is always descending; every other key ascends.
func (r *PGRepository) ListSorted(ctx context.Context, scope workspace.Scope, sortBy string) ([]Deal, error) {
	where, args := scope.Where("user_id", 1)
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE %s ORDER BY %s`, selectColumns, where, orderBy(sortBy))
	return r.query(ctx, "list sorted", query, args...)
}

func (r *PGRepository) query(ctx context.Context, op, query string, args ...any) ([]Deal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deal: query %s: %w", op, err)
	}
	defer rows.Close()

	list := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("deal: scan %s: %w", op, err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate %s: %w", op, err)
	}
	return list, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	return d, row.Scan(
		&d.ID,
		&d.Title,
		&d.ReferralID,
		&d.Value,
		&d.ClientName,
		&d.Stage,
		&d.ExpectedCloseDate,
		&d.Description,
		&d.CreatedAt,
		&d.UserID,
	)
}

type sortKey struct {
	expr string
	desc bool
}

// mapSortKey accepts snake or camel case keys and resolves them to fixed SQL.
func mapSortKey(key string) sortKey {
	switch key {
	case "title":
		return sortKey{expr: "title"}
	case "client_name", "clientName":
		return sortKey{expr: "client_name"}
	case "value":
		return sortKey{expr: NumericValueSQL, desc: true}
	case "stage":
		return sortKey{expr: "stage"}
	case "expected_close_date", "expectedCloseDate":
		return sortKey{expr: "expected_close_date"}
	case "created_at", "createdAt":
		return sortKey{expr: "created_at"}
	default:
		return sortKey{expr: DefaultSortKey}
	}
}

func orderBy(sortBy string) string {
	k := mapSortKey(sortBy)
	if k.desc {
		return k.expr + " DESC, id ASC"
	}
	return k.expr + " ASC, id ASC"
}
