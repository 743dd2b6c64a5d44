package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealflow/auth"
	"dealflow/dashboard"
	"dealflow/deal"
	"dealflow/logging"
	"dealflow/metrics"
	"dealflow/referral"
)

type stubAuth struct {
	tokens      *auth.TokenService
	registerErr error
	loginErr    error
}

func (s *stubAuth) Register(_ context.Context, req auth.RegisterRequest) (auth.LoginResult, error) {
	if s.registerErr != nil {
		return auth.LoginResult{}, s.registerErr
	}
	tok, err := s.tokens.Issue("user-1", req.Email, req.Name)
	if err != nil {
		return auth.LoginResult{}, err
	}
	return auth.LoginResult{Token: tok, User: auth.User{ID: "user-1", Name: req.Name, Email: req.Email}}, nil
}

func (s *stubAuth) Login(_ context.Context, req auth.LoginRequest) (auth.LoginResult, error) {
	if s.loginErr != nil {
		return auth.LoginResult{}, s.loginErr
	}
	tok, err := s.tokens.Issue("user-1", req.Email, "Alice")
	if err != nil {
		return auth.LoginResult{}, err
	}
	return auth.LoginResult{Token: tok, User: auth.User{ID: "user-1", Name: "Alice", Email: req.Email}}, nil
}

func (s *stubAuth) VerifyToken(token string) (auth.Claims, error) {
	return s.tokens.Verify(token)
}

type stubReferrals struct {
	items     []referral.Referral
	err       error
	lastOwner string
	lastIn    referral.CreateParams
}

func (s *stubReferrals) Create(_ context.Context, ownerID string, p referral.CreateParams) (referral.Referral, error) {
	s.lastOwner = ownerID
	s.lastIn = p
	if s.err != nil {
		return referral.Referral{}, s.err
	}
	return referral.Referral{ID: "ref-1", ClientName: p.ClientName, Status: referral.StatusNew, UserID: ownerID}, nil
}

func (s *stubReferrals) List(context.Context, string) ([]referral.Referral, error) {
	return s.items, s.err
}

type stubDeals struct {
	items     []deal.Deal
	err       error
	lastOwner string
	lastIn    deal.CreateParams
}

func (s *stubDeals) Create(_ context.Context, ownerID string, p deal.CreateParams) (deal.Deal, error) {
	s.lastOwner = ownerID
	s.lastIn = p
	if s.err != nil {
		return deal.Deal{}, s.err
	}
	return deal.Deal{
		ID:                "deal-1",
		Title:             p.Title,
		ReferralID:        p.ReferralID,
		Value:             p.Value,
		Stage:             deal.StageProspecting,
		ExpectedCloseDate: time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
		UserID:            ownerID,
	}, nil
}

func (s *stubDeals) List(context.Context, string) ([]deal.Deal, error) {
	return s.items, s.err
}

type stubReports struct {
	referrals []referral.Referral
	deals     []deal.Deal
	lastSort  string
}

func (s *stubReports) Referrals(_ context.Context, _ string, sortBy string) ([]referral.Referral, error) {
	s.lastSort = sortBy
	return s.referrals, nil
}

func (s *stubReports) Deals(_ context.Context, _ string, sortBy string) ([]deal.Deal, error) {
	s.lastSort = sortBy
	return s.deals, nil
}

type stubStats struct {
	stats dashboard.Stats
	err   error
}

func (s *stubStats) Stats(context.Context, string) (dashboard.Stats, error) {
	return s.stats, s.err
}

type stubHealth struct{ err error }

func (s stubHealth) Ping(context.Context) error { return s.err }

type testEnv struct {
	server    *Server
	auth      *stubAuth
	referrals *stubReferrals
	deals     *stubDeals
	reports   *stubReports
	stats     *stubStats
	now       time.Time
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		referrals: &stubReferrals{},
		deals:     &stubDeals{},
		reports:   &stubReports{},
		stats:     &stubStats{},
		now:       time.Now(),
	}
	env.auth = &stubAuth{
		tokens: auth.NewTokenService("test-secret", 24*time.Hour).WithClock(func() time.Time { return env.now }),
	}
	env.server = New(Deps{
		Auth:      env.auth,
		Referrals: env.referrals,
		Deals:     env.deals,
		Reports:   env.reports,
		Stats:     env.stats,
		Health:    stubHealth{},
		Logger:    logging.Discard(),
	}, opts)
	return env
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := e.auth.tokens.Issue("user-42", "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func decodeMessage(t *testing.T, raw []byte) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body.Message
}

func TestRegister_Created(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Alice","email":"alice@example.com","password":"supersafe"}`, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, raw)
	}

	var payload authResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Token == "" || payload.User.ID != "user-1" || payload.User.Email != "alice@example.com" || payload.User.Name != "Alice" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if strings.Contains(string(raw), "password") {
		t.Fatalf("response leaks password fields: %s", raw)
	}
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Alice","email":"not-an-email","password":"supersafe"}`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid email: expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != "email must be a valid email address" {
		t.Fatalf("invalid email: unexpected message %q", msg)
	}

	resp, raw = env.do(t, http.MethodPost, "/api/auth/register", `{"name":"Alice"`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d: %s", resp.StatusCode, raw)
	}

	env.auth.registerErr = auth.ErrDuplicateEmail
	resp, raw = env.do(t, http.MethodPost, "/api/auth/register",
		`{"name":"Alice","email":"alice@example.com","password":"supersafe"}`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != msgDuplicateEmail {
		t.Fatalf("duplicate: unexpected message %q", msg)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"supersafe"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	env.auth.loginErr = auth.ErrInvalidCredentials
	resp, raw = env.do(t, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"wrong-pass"}`, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != msgInvalidCredentials {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAuthGate(t *testing.T) {
	env := newTestEnv(t, Options{})
	valid := env.token(t)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"no header", "", http.StatusUnauthorized, msgMissingToken},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, msgMissingToken},
		{"empty bearer", "Bearer  ", http.StatusUnauthorized, msgMissingToken},
		{"tampered", "Bearer " + tampered, http.StatusForbidden, msgInvalidToken},
		{"garbage", "Bearer garbage", http.StatusForbidden, msgInvalidToken},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/referrals", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := env.server.App().Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
		if msg := decodeMessage(t, raw); msg != tc.msg {
			t.Fatalf("%s: unexpected message %q", tc.name, msg)
		}
	}

	env.now = env.now.Add(25 * time.Hour)
	resp, _ := env.do(t, http.MethodGet, "/api/referrals", "", valid)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expired: expected 403, got %d", resp.StatusCode)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodGet, "/api/auth/me", "", env.token(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var me userResponse
	if err := json.Unmarshal(raw, &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.ID != "user-42" || me.Name != "Bob" {
		t.Fatalf("unexpected identity %+v", me)
	}
}

func TestReferrals(t *testing.T) {
	env := newTestEnv(t, Options{})
	created := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	env.referrals.items = []referral.Referral{
		{ID: "r2", ReferringCompany: "Acme", ClientName: "Globex", Status: referral.StatusContacted, CreatedAt: created, UserID: "user-7"},
	}

	resp, raw := env.do(t, http.MethodGet, "/api/referrals", "", env.token(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["referring_company"] != "Acme" || rows[0]["user_id"] != "user-7" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if _, ok := rows[0]["notes"]; !ok {
		t.Fatalf("expected notes key to be present: %v", rows[0])
	}

	body := `{"referringCompany":"Acme","clientName":"Globex","contactPerson":"Hank","contactEmail":"hank@globex.test","contactPhone":"555-0100","service":"consultation","status":"new"}`
	resp, raw = env.do(t, http.MethodPost, "/api/referrals", body, env.token(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, raw)
	}
	if env.referrals.lastOwner != "user-42" {
		t.Fatalf("owner should come from the token, got %q", env.referrals.lastOwner)
	}
	if env.referrals.lastIn.ContactEmail != "hank@globex.test" {
		t.Fatalf("unexpected create params %+v", env.referrals.lastIn)
	}

	short := strings.Replace(body, `"555-0100"`, `"555"`, 1)
	resp, raw = env.do(t, http.MethodPost, "/api/referrals", short, env.token(t))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short phone: expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != "contactPhone must be at least 5 characters" {
		t.Fatalf("short phone: unexpected message %q", msg)
	}

	env.referrals.err = referral.ErrInvalidStatus
	resp, _ = env.do(t, http.MethodPost, "/api/referrals", body, env.token(t))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400, got %d", resp.StatusCode)
	}
}

func TestDeals(t *testing.T) {
	env := newTestEnv(t, Options{})

	body := `{"title":"Support","referralId":"","value":"1500","clientName":"Globex","stage":"prospecting","expectedCloseDate":"2024-09-30"}`
	resp, raw := env.do(t, http.MethodPost, "/api/deals", body, env.token(t))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, raw)
	}
	if env.deals.lastOwner != "user-42" || env.deals.lastIn.Value != "1500" {
		t.Fatalf("unexpected create call owner=%q params=%+v", env.deals.lastOwner, env.deals.lastIn)
	}

	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row["expected_close_date"] != "2024-09-30" || row["value"] != "1500" {
		t.Fatalf("unexpected row %v", row)
	}

	env.deals.err = deal.ErrInvalidValue
	resp, raw = env.do(t, http.MethodPost, "/api/deals", body, env.token(t))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid value: expected 400, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); !strings.Contains(msg, "non-negative") {
		t.Fatalf("invalid value: unexpected message %q", msg)
	}

	env.deals.err = errors.New("connection reset by peer")
	resp, raw = env.do(t, http.MethodGet, "/api/deals", "", env.token(t))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("store failure: expected 500, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != msgServerError {
		t.Fatalf("store failure: cause leaked in %q", msg)
	}
}

func TestReports(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.reports.deals = []deal.Deal{
		{ID: "d1", Title: "Big", Value: "900", ExpectedCloseDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	resp, raw := env.do(t, http.MethodGet, "/api/reports/deals?sortBy=value", "", env.token(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json report: expected 200, got %d", resp.StatusCode)
	}
	if env.reports.lastSort != "value" {
		t.Fatalf("sortBy not forwarded, got %q", env.reports.lastSort)
	}
	var rows []dealResponse
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) != 1 {
		t.Fatalf("decode report: %v %s", err, raw)
	}

	resp, raw = env.do(t, http.MethodGet, "/api/reports/deals?sortBy=bogus&format=csv", "", env.token(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv report: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "deals_report.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,title,referral_id,value") {
		t.Fatalf("unexpected csv %q", raw)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/reports/referrals?format=csv", "", env.token(t))
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "referrals_report.csv") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.stats.stats = dashboard.Stats{ReferralCount: 3, DealCount: 3, TotalDealValue: 1250.5, ConversionRate: 67}

	resp, raw := env.do(t, http.MethodGet, "/api/dashboard/stats", "", env.token(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got map[string]float64
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["referralCount"] != 3 || got["dealCount"] != 3 || got["totalDealValue"] != 1250.5 || got["conversionRate"] != 67 {
		t.Fatalf("unexpected stats %v", got)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "rid-123")
	resp, err := env.server.App().Test(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "rid-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	env.server.health = stubHealth{err: errors.New("db down")}
	resp, _ = env.do(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := New(Deps{
		Auth:           &stubAuth{tokens: auth.NewTokenService("test-secret", time.Hour)},
		Health:         stubHealth{},
		Logger:         logging.Discard(),
		Metrics:        m,
		MetricsHandler: m.Handler(),
	}, Options{})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `dealflow_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Fatalf("expected /health to be counted, got:\n%s", raw)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, raw := env.do(t, http.MethodGet, "/api/nope", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != msgNotFound {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{AuthRateLimitMax: 2, AuthRateLimitSpan: time.Minute})
	body := `{"email":"alice@example.com","password":"supersafe"}`

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/auth/login", body, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}
	resp, raw := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if msg := decodeMessage(t, raw); msg != msgTooManyRequests {
		t.Fatalf("unexpected message %q", msg)
	}

	// Protected routes are not limited.
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, http.MethodGet, "/api/auth/me", "", env.token(t))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("me %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}
}
