package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dealflow/workspace"
)

func validParams() CreateParams {
	return CreateParams{
		Title:             "Annual support contract",
		Value:             "12500.50",
		ClientName:        "Globex",
		Stage:             StageProposal,
		ExpectedCloseDate: "2024-09-30",
	}
}

func strPtr(s string) *string { return &s }

func TestService_CreateAssignsServerFields(t *testing.T) {
	repo := &fakeRepository{}
	notifier := &countingNotifier{}
	now := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	svc := NewService(repo, notifier).
		WithIDGenerator(func() string { return "deal-1" }).
		WithClock(func() time.Time { return now })

	params := validParams()
	params.Value = " 42 "
	params.ReferralID = strPtr("6F9619FF-8B86-D011-B42D-00CF4FC964FF")
	params.Description = strPtr("")

	got, err := svc.Create(context.Background(), "user-1", params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID != "deal-1" || got.UserID != "user-1" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected server fields %+v", got)
	}
	if got.Value != "42" {
		t.Fatalf("expected trimmed value, got %q", got.Value)
	}
	if got.ReferralID == nil || *got.ReferralID != "6f9619ff-8b86-d011-b42d-00cf4fc964ff" {
		t.Fatalf("expected canonical referral id, got %v", got.ReferralID)
	}
	if got.Description != nil {
		t.Fatal("expected empty description to be dropped")
	}
	if got.ExpectedCloseDate.Format(DateLayout) != "2024-09-30" {
		t.Fatalf("unexpected close date %s", got.ExpectedCloseDate)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one invalidation, got %d", notifier.calls)
	}
}

func TestService_CreateWithoutReferral(t *testing.T) {
	svc := NewService(&fakeRepository{}, nil)

	params := validParams()
	params.ReferralID = strPtr("  ")
	params.Stage = ""

	got, err := svc.Create(context.Background(), "user-1", params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ReferralID != nil {
		t.Fatalf("expected nil referral id, got %q", *got.ReferralID)
	}
	if got.Stage != StageProspecting {
		t.Fatalf("expected default stage, got %q", got.Stage)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(&fakeRepository{}, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"missing title", func(p *CreateParams) { p.Title = "" }, ErrMissingField},
		{"missing client", func(p *CreateParams) { p.ClientName = " " }, ErrMissingField},
		{"negative value", func(p *CreateParams) { p.Value = "-5" }, ErrInvalidValue},
		{"non numeric value", func(p *CreateParams) { p.Value = "12k" }, ErrInvalidValue},
		{"empty value", func(p *CreateParams) { p.Value = "" }, ErrInvalidValue},
		{"trailing dot", func(p *CreateParams) { p.Value = "10." }, ErrInvalidValue},
		{"sixteen integer digits", func(p *CreateParams) { p.Value = "1234567890123456" }, ErrInvalidValue},
		{"three decimals", func(p *CreateParams) { p.Value = "10.125" }, ErrInvalidValue},
		{"huge value", func(p *CreateParams) { p.Value = "1" + strings.Repeat("0", 400) }, ErrInvalidValue},
		{"beyond numeric input", func(p *CreateParams) { p.Value = strings.Repeat("9", 131073) }, ErrInvalidValue},
		{"unknown stage", func(p *CreateParams) { p.Stage = "won" }, ErrInvalidStage},
		{"bad date", func(p *CreateParams) { p.ExpectedCloseDate = "30/09/2024" }, ErrInvalidCloseDate},
		{"bad referral id", func(p *CreateParams) { p.ReferralID = strPtr("ref-1") }, ErrInvalidReferralID},
	}
	for _, tc := range cases {
		p := validParams()
		tc.mutate(&p)
		if _, err := svc.Create(ctx, "user-1", p); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := svc.Create(ctx, "", validParams()); !errors.Is(err, ErrMissingOwner) {
		t.Fatalf("expected ErrMissingOwner, got %v", err)
	}
}

func TestService_CreateAcceptsValueBounds(t *testing.T) {
	svc := NewService(&fakeRepository{}, nil)
	for _, v := range []string{"0", "999999999999999", "999999999999999.99", "0.5"} {
		p := validParams()
		p.Value = v
		if _, err := svc.Create(context.Background(), "user-1", p); err != nil {
			t.Fatalf("value %q: %v", v, err)
		}
	}
}

func TestNumericValueSQL_BoundsLength(t *testing.T) {
	guard := fmt.Sprintf("length(value) <= %d AND", MaxNumericValueLen)
	if !strings.Contains(NumericValueSQL, guard) {
		t.Fatalf("expected %q in %s", guard, NumericValueSQL)
	}
}

func TestService_ListUsesVisibility(t *testing.T) {
	repo := &fakeRepository{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	if _, err := svc.List(ctx, "viewer"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lastScope.Visibility != workspace.Shared || repo.lastScope.ViewerID != "viewer" {
		t.Fatalf("unexpected scope %+v", repo.lastScope)
	}

	if _, err := svc.WithVisibility(workspace.OwnerOnly).ListSorted(ctx, "viewer", "value"); err != nil {
		t.Fatalf("list sorted: %v", err)
	}
	if repo.lastScope.Visibility != workspace.OwnerOnly || repo.lastSort != "value" {
		t.Fatalf("unexpected scope %+v sort %q", repo.lastScope, repo.lastSort)
	}
}

func TestOrderBy(t *testing.T) {
	cases := map[string]string{
		"title":               "title ASC, id ASC",
		"client_name":         "client_name ASC, id ASC",
		"stage":               "stage ASC, id ASC",
		"expected_close_date": "expected_close_date ASC, id ASC",
		"created_at":          "created_at ASC, id ASC",
		"expectedCloseDate":   "expected_close_date ASC, id ASC",
		"":                    "title ASC, id ASC",
		"value; DROP":         "title ASC, id ASC",
		"user_id":             "title ASC, id ASC",
	}
	for in, want := range cases {
		if got := orderBy(in); got != want {
			t.Fatalf("orderBy(%q) = %q, want %q", in, got, want)
		}
	}

	got := orderBy("value")
	if !strings.HasPrefix(got, NumericValueSQL) || !strings.HasSuffix(got, " DESC, id ASC") {
		t.Fatalf("value must sort numerically descending, got %q", got)
	}
}

type countingNotifier struct{ calls int }

func (n *countingNotifier) Invalidate(context.Context, string) { n.calls++ }

type fakeRepository struct {
	items     []Deal
	lastScope workspace.Scope
	lastSort  string
}

func (f *fakeRepository) Create(_ context.Context, d Deal) (Deal, error) {
	f.items = append(f.items, d)
	return d, nil
}

func (f *fakeRepository) List(_ context.Context, scope workspace.Scope) ([]Deal, error) {
	f.lastScope = scope
	return f.items, nil
}

func (f *fakeRepository) ListSorted(_ context.Context, scope workspace.Scope, sortBy string) ([]Deal, error) {
	f.lastScope = scope
	f.lastSort = sortBy
	return f.items, nil
}
