package referral

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/workspace"
)

// DefaultSortKey is used when a report asks for an unknown or empty sort key.
const DefaultSortKey = "client_name"

type Repository interface {
	Create(ctx context.Context, ref Referral) (Referral, error)
	List(ctx context.Context, scope workspace.Scope) ([]Referral, error)
	ListSorted(ctx context.Context, scope workspace.Scope, sortBy string) ([]Referral, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectColumns = `id, referring_company, client_name, contact_person, contact_email, contact_phone,
	service, status, notes, created_at, user_id`

func (r *PGRepository) Create(ctx context.Context, ref Referral) (Referral, error) {
	const query = `
		INSERT INTO referrals (id, referring_company, client_name, contact_person, contact_email, contact_phone,
			service, status, notes, created_at, user_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9,
			COALESCE($10, now()), $11)
		RETURNING ` + selectColumns

	var createdAt any
	if !ref.CreatedAt.IsZero() {
		createdAt = ref.CreatedAt
	}

	row := r.pool.QueryRow(ctx, query,
		ref.ID,
		ref.ReferringCompany,
		ref.ClientName,
		ref.ContactPerson,
		ref.ContactEmail,
		ref.ContactPhone,
		ref.Service,
		ref.Status,
		ref.Notes,
		createdAt,
		ref.UserID,
	)

	created, err := scanReferral(row)
	if err != nil {
		return Referral{}, fmt.Errorf("referral: create: %w", err)
	}
	return created, nil
}

// List returns every visible referral, newest first.
func (r *PGRepository) List(ctx context.Context, scope workspace.Scope) ([]Referral, error) {
	where, args := scope.Where("user_id", 1)
	query := fmt.Sprintf(`SELECT %s FROM referrals WHERE %s ORDER BY created_at DESC, id DESC`, selectColumns, where)
	return r.query(ctx, "list", query, args...)
}

// ListSorted returns every visible referral ascending by an allow-listed column.
func (r *PGRepository) ListSorted(ctx context.Context, scope workspace.Scope, sortBy string) ([]Referral, error) {
	where, args := scope.Where("user_id", 1)
	query := fmt.Sprintf(`SELECT %s FROM referrals WHERE %s ORDER BY %s`, selectColumns, where, orderBy(sortBy))
	return r.query(ctx, "list sorted", query, args...)
}

func (r *PGRepository) query(ctx context.Context, op, query string, args ...any) ([]Referral, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("referral: query %s: %w", op, err)
	}
	defer rows.Close()

	list := []Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("referral: scan %s: %w", op, err)
		}
		list = append(list, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("referral: iterate %s: %w", op, err)
	}
	return list, nil
}

func scanReferral(row pgx.Row) (Referral, error) {
	var ref Referral
	return ref, row.Scan(
		&ref.ID,
		&ref.ReferringCompany,
		&ref.ClientName,
		&ref.ContactPerson,
		&ref.ContactEmail,
		&ref.ContactPhone,
		&ref.Service,
		&ref.Status,
		&ref.Notes,
		&ref.CreatedAt,
		&ref.UserID,
	)
}

// mapSortKey resolves a requested sort key, snake or camel case, to a fixed column.
// The raw key never reaches the SQL text.
func mapSortKey(key string) string {
	switch key {
	case "client_name", "clientName":
		return "client_name"
	case "referring_company", "referringCompany":
		return "referring_company"
	case "status":
		return "status"
	case "created_at", "createdAt":
		return "created_at"
	default:
		return DefaultSortKey
	}
}

func orderBy(sortBy string) string {
	return mapSortKey(sortBy) + " ASC, id ASC"
}
