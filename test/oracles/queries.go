package oracles

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/dashboard"
	"dealflow/deal"
)

type Oracle struct {
	Name string
	SQL  string
}

// All lists queries that must return no rows at any point of a run.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_email",
			SQL:  `SELECT email, COUNT(*) FROM users GROUP BY email HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_referral_status_domain",
			SQL: `SELECT id, status FROM referrals
			      WHERE status NOT IN ('new','contacted','meeting_scheduled','qualified','unqualified')`,
		},
		{
			Name: "O3_deal_stage_domain",
			SQL: `SELECT id, stage FROM deals
			      WHERE stage NOT IN ('prospecting','qualification','proposal','negotiation','closed_won','closed_lost')`,
		},
		{
			Name: "O4_referral_required_fields",
			SQL: `SELECT id FROM referrals
			      WHERE btrim(referring_company) = '' OR btrim(client_name) = '' OR btrim(contact_person) = ''
			         OR btrim(contact_email) = '' OR btrim(contact_phone) = '' OR btrim(service) = ''`,
		},
		{
			Name: "O5_validated_deal_value",
			SQL: `SELECT id, value FROM deals
			      WHERE title NOT LIKE 'legacy %' AND value !~ '^[0-9]+(\.[0-9]+)?$'`,
		},
		{
			Name: "O6_password_hash_present",
			SQL:  `SELECT id FROM users WHERE password_hash NOT LIKE '$2%'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}

// CheckStats recomputes the shared-workspace dashboard with plain SQL and compares.
// Only meaningful once writers have stopped.
func CheckStats(ctx context.Context, pool *pgxpool.Pool, got dashboard.Stats) error {
	var (
		referrals, deals, linked int64
		total                    float64
	)
	err := pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM referrals),
		       (SELECT COUNT(*) FROM deals),
		       (SELECT COUNT(*) FROM deals WHERE referral_id IS NOT NULL)`,
	).Scan(&referrals, &deals, &linked)
	if err != nil {
		return fmt.Errorf("stats oracle: %w", err)
	}

	values, err := allValues(ctx, pool)
	if err != nil {
		return err
	}
	for _, v := range values {
		total += NumericValue(v)
	}

	want := dashboard.Stats{
		ReferralCount:  referrals,
		DealCount:      deals,
		TotalDealValue: total,
		ConversionRate: dashboard.ConversionRate(linked, referrals),
	}
	if got.ReferralCount != want.ReferralCount || got.DealCount != want.DealCount ||
		got.ConversionRate != want.ConversionRate || math.Abs(got.TotalDealValue-want.TotalDealValue) > 0.01 {
		return fmt.Errorf("stats oracle: got %+v want %+v", got, want)
	}
	return nil
}

// CheckValueOrder verifies a value-sorted listing never increases.
func CheckValueOrder(list []deal.Deal) error {
	for i := 1; i < len(list); i++ {
		prev, cur := NumericValue(list[i-1].Value), NumericValue(list[i].Value)
		if cur > prev {
			return fmt.Errorf("value order: %s (%q) after %s (%q)", list[i].ID, list[i].Value, list[i-1].ID, list[i-1].Value)
		}
	}
	return nil
}

var numericRe = regexp.MustCompile(`^ *-?([0-9]+(\.[0-9]*)?|\.[0-9]+) *$`)

// NumericValue reads a stored deal value the way the database does: parsable
// decimals count at face value, everything else as 0.
func NumericValue(v string) float64 {
	if len(v) > deal.MaxNumericValueLen || !numericRe.MatchString(v) {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func allValues(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT value FROM deals`)
	if err != nil {
		return nil, fmt.Errorf("stats oracle: values: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
