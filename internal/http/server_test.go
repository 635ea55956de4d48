package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"homeledger/internal/cache"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/middleware/ratelimit"
	"homeledger/internal/services"
	"homeledger/internal/storage"
)

type apiClient struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T, rl ratelimit.Config) *apiClient {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := applog.New(applog.Config{Format: applog.FormatText, Output: io.Discard})
	m := metrics.New()
	svc := services.NewLedgerService(repo, cache.NewMemoryFactory(64, nil), services.Options{
		Metrics: m,
		Logger:  logger,
	})
	srv := NewServer(":0", Deps{
		Ledger:    svc,
		Health:    repo,
		Metrics:   m,
		Logger:    logger,
		RateLimit: rl,
	})
	t.Cleanup(func() { srv.limiter.Stop() })
	return &apiClient{t: t, srv: srv}
}

func generousLimits() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000}
}

// do sends a request; ids holds the user and household id headers when set.
func (c *apiClient) do(method, path, body string, ids ...int64) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if len(ids) > 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(ids[0], 10))
	}
	if len(ids) > 1 {
		req.Header.Set(HeaderHouseholdID, strconv.FormatInt(ids[1], 10))
	}
	rr := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rr.Code, want, rr.Body.String())
	}
}

type household struct {
	id           int64
	alice, bob   int64
	outsiderUser int64
}

// setupHousehold creates alice (admin), bob (member) and an outsider.
func (c *apiClient) setupHousehold() household {
	t := c.t
	t.Helper()
	var h household
	for _, name := range []string{"alice", "bob", "mallory"} {
		rr := c.do(http.MethodPost, "/api/users", `{"username": "`+name+`", "email": "`+name+`@example.com"}`)
		expectStatus(t, rr, http.StatusCreated)
		u := decode[userView](t, rr)
		switch name {
		case "alice":
			h.alice = u.ID
		case "bob":
			h.bob = u.ID
		default:
			h.outsiderUser = u.ID
		}
	}

	rr := c.do(http.MethodPost, "/api/households", "", h.alice)
	expectStatus(t, rr, http.StatusCreated)
	hv := decode[householdView](t, rr)
	if hv.Name != "alice's Household" {
		t.Fatalf("household name = %q", hv.Name)
	}
	h.id = hv.ID

	rr = c.do(http.MethodPost, "/api/household/members",
		`{"user_id": `+strconv.FormatInt(h.bob, 10)+`, "role": "member"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusNoContent)
	return h
}

func TestHealthAndReady(t *testing.T) {
	c := newTestServer(t, generousLimits())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := c.do(http.MethodGet, path, "")
		expectStatus(t, rr, http.StatusOK)
	}
	ready := decode[map[string]any](t, c.do(http.MethodGet, "/readyz", ""))
	if ready["status"] != "ready" {
		t.Errorf("readyz = %v", ready)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	c := newTestServer(t, generousLimits())

	rr := c.do(http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if id := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("X-Request-ID = %q", id)
	}

	rr = c.do(http.MethodGet, "/metrics", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "homeledger_http_requests_total") {
		t.Error("metrics missing request counter")
	}
}

func TestSessionHeaders(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	expectStatus(t, c.do(http.MethodGet, "/api/goals", ""), http.StatusUnauthorized)
	expectStatus(t, c.do(http.MethodGet, "/api/goals", "", h.alice), http.StatusUnauthorized)
	expectStatus(t, c.do(http.MethodGet, "/api/goals", "", h.outsiderUser, h.id), http.StatusForbidden)
	expectStatus(t, c.do(http.MethodPost, "/api/households", ""), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
	req.Header.Set(HeaderUserID, "abc")
	rr := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusBadRequest)

	expectStatus(t, c.do(http.MethodGet, "/api/goals", "", h.bob, h.id), http.StatusOK)
}

func TestProfileAndHouseholds(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	households := decode[[]membershipView](t, c.do(http.MethodGet, "/api/households", "", h.bob))
	if len(households) != 1 || households[0].HouseholdID != h.id || households[0].Role != "member" {
		t.Fatalf("households = %+v", households)
	}
	outsider := decode[[]membershipView](t, c.do(http.MethodGet, "/api/households", "", h.outsiderUser))
	if len(outsider) != 0 {
		t.Fatalf("outsider households = %+v", outsider)
	}
	expectStatus(t, c.do(http.MethodGet, "/api/households", ""), http.StatusUnauthorized)

	rr := c.do(http.MethodPatch, "/api/users/me", `{"username": "robert"}`, h.bob)
	expectStatus(t, rr, http.StatusOK)
	if u := decode[userView](t, rr); u.Username != "robert" {
		t.Fatalf("renamed user = %+v", u)
	}
	expectStatus(t, c.do(http.MethodPatch, "/api/users/me", `{"username": "alice"}`, h.bob), http.StatusConflict)
	expectStatus(t, c.do(http.MethodPatch, "/api/users/me", `{"username": ""}`, h.bob), http.StatusBadRequest)

	members := decode[[]memberView](t, c.do(http.MethodGet, "/api/household/members", "", h.alice, h.id))
	found := false
	for _, m := range members {
		found = found || (m.UserID == h.bob && m.Username == "robert")
	}
	if !found {
		t.Fatalf("members after rename = %+v", members)
	}

	overview := decode[householdOverviewView](t, c.do(http.MethodGet, "/api/household", "", h.bob, h.id))
	if overview.ID != h.id || overview.Role != "member" || overview.Members != 2 || overview.Transactions != 0 {
		t.Fatalf("household overview = %+v", overview)
	}
	expectStatus(t, c.do(http.MethodGet, "/api/household", "", h.outsiderUser, h.id), http.StatusForbidden)
}

func TestAdminGating(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	rr := c.do(http.MethodPost, "/api/goals", `{"name": "Sofa", "target": "100"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusForbidden)
	rr = c.do(http.MethodPost, "/api/bills", `{"name": "Rent", "amount": "900", "due_date": "2030-01-01"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusForbidden)
	rr = c.do(http.MethodPost, "/api/categories", `{"name": "Food"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusForbidden)

	rr = c.do(http.MethodPost, "/api/goals", `{"name": "Sofa", "target": "100"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusCreated)
}

func TestContributionFlow(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	rr := c.do(http.MethodPost, "/api/goals", `{"name": "Europe Trip", "target": "100.00"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusCreated)
	goal := decode[goalView](t, rr)
	path := "/api/goals/" + strconv.FormatInt(goal.ID, 10) + "/contributions"

	rr = c.do(http.MethodPost, path, `{"amount": "80"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusOK)
	ok := decode[contributionResponse](t, rr)
	if ok.Message != "Payment added successfully" || ok.Goal == nil || ok.Goal.Current.Cents != 8000 {
		t.Fatalf("contribution response = %+v", ok)
	}

	rr = c.do(http.MethodPost, path, `{"amount": "25"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusConflict)
	declined := decode[contributionResponse](t, rr)
	if declined.Message != "Payment would exceed target amount" || declined.Error == "" {
		t.Errorf("declined response = %+v", declined)
	}

	rr = c.do(http.MethodPost, path, `{"amount": "-5"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusBadRequest)
	if got := decode[contributionResponse](t, rr); got.Message != "Payment amount must be positive" {
		t.Errorf("negative amount message = %q", got.Message)
	}

	rr = c.do(http.MethodPost, "/api/goals/999/contributions", `{"amount": "1"}`, h.bob, h.id)
	expectStatus(t, rr, http.StatusNotFound)
	if got := decode[contributionResponse](t, rr); got.Message != "Goal not found" {
		t.Errorf("missing goal message = %q", got.Message)
	}

	rr = c.do(http.MethodPost, path, `{"amount": "20"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[contributionResponse](t, rr); !got.Goal.Achieved {
		t.Errorf("goal should be achieved: %+v", got.Goal)
	}

	txs := decode[[]transactionView](t, c.do(http.MethodGet, "/api/transactions?days=30", "", h.bob, h.id))
	if len(txs) != 2 || txs[0].SourceKind != "goal" || txs[0].Category != "Contribution" {
		t.Errorf("transactions = %+v", txs)
	}
	spending := decode[spendingView](t, c.do(http.MethodGet, "/api/spending", "", h.bob, h.id))
	if len(spending.ByCategory) != 1 || spending.ByCategory[0].Name != "Europe Trip" || spending.Total.Cents != 10000 {
		t.Errorf("spending = %+v", spending)
	}
}

func TestBillFlow(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	rr := c.do(http.MethodPost, "/api/bills", `{"name": "Electricity", "amount": "45", "due_date": "`+yesterday+`"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusCreated)
	bill := decode[billView](t, rr)
	if bill.Status != "pending" {
		t.Fatalf("new bill status = %s", bill.Status)
	}

	bills := decode[[]billView](t, c.do(http.MethodGet, "/api/bills", "", h.bob, h.id))
	if len(bills) != 1 || bills[0].Status != "overdue" {
		t.Fatalf("bills after sweep = %+v", bills)
	}
	upcoming := decode[[]billView](t, c.do(http.MethodGet, "/api/bills/upcoming", "", h.bob, h.id))
	if len(upcoming) != 0 {
		t.Errorf("upcoming = %+v", upcoming)
	}

	settle := "/api/bills/" + strconv.FormatInt(bill.ID, 10) + "/settle"
	rr = c.do(http.MethodPost, settle, "", h.bob, h.id)
	expectStatus(t, rr, http.StatusOK)
	if paid := decode[billView](t, rr); paid.Status != "paid" {
		t.Errorf("settled bill = %+v", paid)
	}
	expectStatus(t, c.do(http.MethodPost, settle, "", h.bob, h.id), http.StatusConflict)
	expectStatus(t, c.do(http.MethodPost, "/api/bills/abc/settle", "", h.bob, h.id), http.StatusBadRequest)

	cats := decode[[]categoryView](t, c.do(http.MethodGet, "/api/categories?type=bill", "", h.bob, h.id))
	if len(cats) != 1 || cats[0].Name != "Bill" {
		t.Fatalf("bill categories = %+v", cats)
	}
	rr = c.do(http.MethodDelete, "/api/categories/"+strconv.FormatInt(cats[0].ID, 10), "", h.alice, h.id)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestPaymentFlow(t *testing.T) {
	c := newTestServer(t, generousLimits())
	h := c.setupHousehold()

	rr := c.do(http.MethodPost, "/api/categories", `{"name": "Groceries"}`, h.alice, h.id)
	expectStatus(t, rr, http.StatusCreated)
	cat := decode[categoryView](t, rr)

	body := `{"receiver_id": ` + strconv.FormatInt(h.alice, 10) +
		`, "category_id": ` + strconv.FormatInt(cat.ID, 10) + `, "amount": "25.50"}`
	rr = c.do(http.MethodPost, "/api/payments", body, h.bob, h.id)
	expectStatus(t, rr, http.StatusCreated)
	s := decode[settlementView](t, rr)
	if s.Status != "settled" || s.ReceiverName != "alice" || s.Amount.Cents != 2550 {
		t.Errorf("settlement = %+v", s)
	}

	self := `{"receiver_id": ` + strconv.FormatInt(h.bob, 10) +
		`, "category_id": ` + strconv.FormatInt(cat.ID, 10) + `, "amount": "1"}`
	expectStatus(t, c.do(http.MethodPost, "/api/payments", self, h.bob, h.id), http.StatusBadRequest)

	outsider := `{"receiver_id": ` + strconv.FormatInt(h.outsiderUser, 10) +
		`, "category_id": ` + strconv.FormatInt(cat.ID, 10) + `, "amount": "1"}`
	expectStatus(t, c.do(http.MethodPost, "/api/payments", outsider, h.bob, h.id), http.StatusNotFound)

	got := decode[[]settlementView](t, c.do(http.MethodGet, "/api/settlements", "", h.alice, h.id))
	if len(got) != 1 {
		t.Errorf("alice settlements = %+v", got)
	}
	mine := decode[mySpendingView](t, c.do(http.MethodGet, "/api/spending/me?days=7", "", h.bob, h.id))
	if len(mine.ByCategory) != 1 || mine.ByCategory[0].Name != "Groceries" || len(mine.Daily) != 1 {
		t.Errorf("my spending = %+v", mine)
	}

	rr = c.do(http.MethodDelete, "/api/categories/"+strconv.FormatInt(cat.ID, 10), "", h.alice, h.id)
	expectStatus(t, rr, http.StatusConflict)
}

func TestRateLimit(t *testing.T) {
	c := newTestServer(t, ratelimit.Config{RequestsPerSecond: 0.5, Burst: 2})

	for i := 0; i < 2; i++ {
		expectStatus(t, c.do(http.MethodGet, "/healthz", ""), http.StatusOK)
	}
	rr := c.do(http.MethodGet, "/healthz", "")
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}
