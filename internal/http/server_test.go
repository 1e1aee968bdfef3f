package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"glassbooks/internal/core"
	"glassbooks/internal/ledger"
	applog "glassbooks/internal/log"
	"glassbooks/internal/scan"
	"glassbooks/internal/services"
	"glassbooks/internal/storage/memory"
)

type fakeRecognizer struct {
	result scan.Result
	err    error
}

func (f *fakeRecognizer) AnalyzeReceipt(ctx context.Context, image []byte, mimeType string) (scan.Result, error) {
	return f.result, f.err
}

func newTestServer(t *testing.T, pin string, recognizer scan.Recognizer) *Server {
	t.Helper()
	store := ledger.New(memory.New())
	svc := services.NewLedgerService(store, nil, recognizer)
	logger := applog.New(applog.Config{Level: slog.LevelError, Component: "test"})
	srv := NewServer(Options{Addr: ":0", AccessPIN: pin}, svc, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func validTransaction() core.Transaction {
	return core.Transaction{
		Date:     core.NewDate(2026, 3, 14),
		Merchant: "Blick Art Materials",
		Amount:   core.Money{Cents: 4550},
		Category: core.ArtMaterials,
		Tags:     []string{"painting"},
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, "", nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	srv := newTestServer(t, "", nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created createdTransactionResponse
	decodeBody(t, rec, &created)
	if created.Transaction.ID == "" {
		t.Error("expected a generated transaction id")
	}
	if !created.Persisted {
		t.Error("memory store should always persist")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var list transactionsResponse
	decodeBody(t, rec, &list)
	if list.Total != 1 || len(list.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", list.Total)
	}
	if list.Transactions[0].Merchant != "Blick Art Materials" {
		t.Errorf("merchant = %q", list.Transactions[0].Merchant)
	}
}

func TestCreateTransactionRejectsInvalid(t *testing.T) {
	srv := newTestServer(t, "", nil)

	tx := validTransaction()
	tx.Merchant = "  "
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", tx, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}

	tx = validTransaction()
	tx.Category = "Gambling"
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", tx, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category: got %d, want 400", rec.Code)
	}
}

func TestCreateTransactionUnknownProject(t *testing.T) {
	srv := newTestServer(t, "", nil)
	tx := validTransaction()
	tx.ProjectID = "no-such-project"
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", tx, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	srv := newTestServer(t, "", nil)

	groceries := validTransaction()
	groceries.Category = core.Food
	groceries.Merchant = "Trader Joe's"
	doJSON(t, srv, http.MethodPost, "/api/transactions", groceries, "")
	doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")

	rec := doJSON(t, srv, http.MethodGet, "/api/transactions?category="+
		strings.ReplaceAll(string(core.ArtMaterials), " ", "%20"), nil, "")
	var list transactionsResponse
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Fatalf("category filter: got %d, want 1", list.Total)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?limit=1", nil, "")
	decodeBody(t, rec, &list)
	if list.Total != 2 || len(list.Transactions) != 1 {
		t.Fatalf("limit: total %d len %d", list.Total, len(list.Transactions))
	}
}

func TestListTransactionsYearFilterCoversWholeYear(t *testing.T) {
	srv := newTestServer(t, "", nil)

	march := validTransaction() // dated 2026-03-14
	doJSON(t, srv, http.MethodPost, "/api/transactions", march, "")
	november := validTransaction()
	november.Date = core.NewDate(2026, 11, 2)
	doJSON(t, srv, http.MethodPost, "/api/transactions", november, "")
	lastYear := validTransaction()
	lastYear.Date = core.NewDate(2025, 6, 1)
	doJSON(t, srv, http.MethodPost, "/api/transactions", lastYear, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/transactions?year=2026", nil, "")
	var list transactionsResponse
	decodeBody(t, rec, &list)
	if list.Total != 2 {
		t.Fatalf("year filter: got %d, want 2", list.Total)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?year=2026&month=11", nil, "")
	decodeBody(t, rec, &list)
	if list.Total != 1 || !list.Transactions[0].Date.SameDay(november.Date) {
		t.Fatalf("year+month filter: got %d", list.Total)
	}
}

func TestCreatedTransactionEmitsArrays(t *testing.T) {
	srv := newTestServer(t, "", nil)

	tx := validTransaction()
	tx.Items = nil
	tx.Tags = nil
	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", tx, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/snapshot", nil, "")
	body := rec.Body.String()
	for _, key := range []string{`"items":[]`, `"tags":[]`} {
		if !strings.Contains(body, key) {
			t.Errorf("exported bundle missing %s: %s", key, body)
		}
	}
}

func TestProjectLifecycle(t *testing.T) {
	srv := newTestServer(t, "", nil)

	project := core.Project{Name: "Kitchen remodel", Budget: core.Money{Cents: 500000}}
	rec := doJSON(t, srv, http.MethodPost, "/api/projects", project, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Project core.Project `json:"project"`
	}
	decodeBody(t, rec, &created)
	if created.Project.ID == "" || created.Project.Status != core.ProjectActive {
		t.Fatalf("project defaults not applied: %+v", created.Project)
	}

	tx := validTransaction()
	tx.ProjectID = created.Project.ID
	doJSON(t, srv, http.MethodPost, "/api/transactions", tx, "")

	rec = doJSON(t, srv, http.MethodGet, "/api/projects", nil, "")
	var list projectsResponse
	decodeBody(t, rec, &list)
	if len(list.Projects) != 1 {
		t.Fatalf("got %d projects", len(list.Projects))
	}
	view := list.Projects[0]
	if view.Spend.Cents != 4550 || view.Count != 1 {
		t.Errorf("spend = %d cents over %d txs", view.Spend.Cents, view.Count)
	}
	if view.BudgetStatus != "normal" {
		t.Errorf("status = %s", view.BudgetStatus)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/projects/"+created.Project.ID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: got %d", rec.Code)
	}

	// The transaction keeps its dangling reference.
	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	var txs transactionsResponse
	decodeBody(t, rec, &txs)
	if txs.Transactions[0].ProjectID != created.Project.ID {
		t.Error("project reference should survive deletion")
	}
}

func TestDeleteUnknownProject(t *testing.T) {
	srv := newTestServer(t, "", nil)
	rec := doJSON(t, srv, http.MethodDelete, "/api/projects/ghost", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestBudgetsEvaluation(t *testing.T) {
	srv := newTestServer(t, "", nil)

	budget := core.Budget{Category: core.ArtMaterials, Limit: core.Money{Cents: 5000}}
	rec := doJSON(t, srv, http.MethodPut, "/api/budgets", budget, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: got %d, body %s", rec.Code, rec.Body.String())
	}

	doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")

	rec = doJSON(t, srv, http.MethodGet, "/api/budgets?year=2026&month=3", nil, "")
	var resp budgetsResponse
	decodeBody(t, rec, &resp)
	if resp.Year != 2026 || resp.Month != 3 {
		t.Fatalf("period = %d-%d", resp.Year, resp.Month)
	}

	var found bool
	for _, view := range resp.Budgets {
		if view.Category != core.ArtMaterials {
			continue
		}
		found = true
		if view.Spend.Cents != 4550 {
			t.Errorf("spend = %d, want 4550", view.Spend.Cents)
		}
		// 4550 of 5000 is past the 90% warning threshold.
		if view.Status != "warning" {
			t.Errorf("status = %s, want warning", view.Status)
		}
	}
	if !found {
		t.Fatal("art materials budget missing from response")
	}
}

func TestUpsertBudgetRejectsNegativeLimit(t *testing.T) {
	srv := newTestServer(t, "", nil)
	b := core.Budget{Category: core.Food, Limit: core.Money{Cents: -1}}
	rec := doJSON(t, srv, http.MethodPut, "/api/budgets", b, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestMonthlyStats(t *testing.T) {
	srv := newTestServer(t, "", nil)

	doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")
	salary := core.Transaction{
		Date:     core.NewDate(2026, 3, 1),
		Merchant: "Acme Corp",
		Amount:   core.Money{Cents: 300000},
		Category: core.Salary,
	}
	doJSON(t, srv, http.MethodPost, "/api/transactions", salary, "")

	rec := doJSON(t, srv, http.MethodGet, "/api/stats/monthly?year=2026&month=3", nil, "")
	var stats struct {
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
		Net     core.Money `json:"net"`
	}
	decodeBody(t, rec, &stats)
	if stats.Income.Cents != 300000 {
		t.Errorf("income = %d", stats.Income.Cents)
	}
	if stats.Expense.Cents != 4550 {
		t.Errorf("expense = %d", stats.Expense.Cents)
	}
	if stats.Net.Cents != 295450 {
		t.Errorf("net = %d", stats.Net.Cents)
	}
}

func TestDailyStatsRejectsBadDate(t *testing.T) {
	srv := newTestServer(t, "", nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/stats/daily?date=03/14/2026", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestSnapshotExportImportRoundTrip(t *testing.T) {
	srv := newTestServer(t, "", nil)
	doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")

	rec := doJSON(t, srv, http.MethodGet, "/api/snapshot", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "glassbooks-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	bundle := rec.Body.Bytes()

	// Import into a fresh server.
	fresh := newTestServer(t, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/snapshot/import", bytes.NewReader(bundle))
	rec = httptest.NewRecorder()
	fresh.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("import: got %d, body %s", rec.Code, rec.Body.String())
	}

	listRec := doJSON(t, fresh, http.MethodGet, "/api/transactions", nil, "")
	var list transactionsResponse
	decodeBody(t, listRec, &list)
	if list.Total != 1 {
		t.Fatalf("imported %d transactions, want 1", list.Total)
	}
}

func TestValidateSnapshotReportsFields(t *testing.T) {
	srv := newTestServer(t, "", nil)

	bad := `{"transactions":[{"id":"x","date":"2026-01-01","merchant":"","amount":5,"category":"Food & Drink"}],"projects":[],"budgets":[],"exportedAt":"2026-01-01T00:00:00Z","version":"1.0"}`
	req := httptest.NewRequest(http.MethodPost, "/api/snapshot/validate", strings.NewReader(bad))
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var resp struct {
		Valid  bool                `json:"valid"`
		Fields []ledger.FieldError `json:"fields"`
	}
	decodeBody(t, rec, &resp)
	if resp.Valid {
		t.Fatal("empty merchant should not validate")
	}
	if len(resp.Fields) == 0 {
		t.Error("expected field-level errors")
	}

	// A validate call never mutates the ledger.
	listRec := doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	var list transactionsResponse
	decodeBody(t, listRec, &list)
	if list.Total != 0 {
		t.Errorf("validate mutated the ledger: %d transactions", list.Total)
	}
}

func TestResetClearsLedger(t *testing.T) {
	srv := newTestServer(t, "", nil)
	doJSON(t, srv, http.MethodPost, "/api/transactions", validTransaction(), "")

	rec := doJSON(t, srv, http.MethodPost, "/api/reset", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	var list transactionsResponse
	decodeBody(t, rec, &list)
	if list.Total != 0 {
		t.Errorf("ledger not empty after reset: %d", list.Total)
	}

	// Default budgets come back.
	rec = doJSON(t, srv, http.MethodGet, "/api/budgets", nil, "")
	var budgets budgetsResponse
	decodeBody(t, rec, &budgets)
	if len(budgets.Budgets) == 0 {
		t.Error("expected default budgets after reset")
	}
}

func TestScanReceipt(t *testing.T) {
	recognizer := &fakeRecognizer{result: scan.Result{
		Merchant: "Blick Art Materials",
		Date:     "2026-03-14",
		Total:    19.99,
		Category: string(core.ArtMaterials),
		Tags:     []string{"#paint"},
	}}
	srv := newTestServer(t, "", recognizer)

	rec := postReceipt(t, srv, "image/jpeg")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp scanResponse
	decodeBody(t, rec, &resp)
	if resp.Candidate.Amount.Cents != 1999 {
		t.Errorf("amount = %d, want 1999", resp.Candidate.Amount.Cents)
	}
	if resp.Candidate.ID != "" {
		t.Error("candidate must not carry an id")
	}
	if len(resp.Candidate.Tags) != 1 || resp.Candidate.Tags[0] != "paint" {
		t.Errorf("tags = %v", resp.Candidate.Tags)
	}

	// The candidate was not recorded.
	listRec := doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	var list transactionsResponse
	decodeBody(t, listRec, &list)
	if list.Total != 0 {
		t.Error("scan must not write to the ledger")
	}
}

func TestScanReceiptRecognitionFailure(t *testing.T) {
	recognizer := &fakeRecognizer{err: fmt.Errorf("%w: upstream 500", scan.ErrRecognition)}
	srv := newTestServer(t, "", recognizer)

	rec := postReceipt(t, srv, "image/png")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("got %d, want 502", rec.Code)
	}
}

func TestScanReceiptWithoutRecognizer(t *testing.T) {
	srv := newTestServer(t, "", nil)
	rec := postReceipt(t, srv, "image/jpeg")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("got %d, want 502", rec.Code)
	}
}

func TestScanReceiptRejectsUnsupportedType(t *testing.T) {
	srv := newTestServer(t, "", &fakeRecognizer{})
	rec := postReceipt(t, srv, "application/pdf")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d, want 415", rec.Code)
	}
}

func postReceipt(t *testing.T, srv *Server, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="receipt.jpg"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("fake image bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/scan", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, "4271", nil)

	// Everything but login is locked.
	rec := doJSON(t, srv, http.MethodGet, "/api/transactions", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: got %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", loginRequest{PIN: "0000"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong pin: got %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", loginRequest{PIN: "4271"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d", rec.Code)
	}
	var login loginResponse
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatal("empty session token")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated list: got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/lock", nil, login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("lock: got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, login.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("locked session still valid: got %d", rec.Code)
	}
}

func TestHandlerLogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	store := ledger.New(memory.New())
	svc := services.NewLedgerService(store, nil, nil)
	logger := applog.New(applog.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(&buf, nil),
	})
	srv := NewServer(Options{Addr: ":0", AccessPIN: "4271"}, svc, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", loginRequest{PIN: "0000"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}

	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("missing X-Request-ID header")
	}
	out := buf.String()
	if !strings.Contains(out, "Login rejected") {
		t.Fatalf("rejection not logged: %s", out)
	}
	if !strings.Contains(out, requestID) {
		t.Errorf("handler log line missing request id %s: %s", requestID, out)
	}
}

func TestAuthDisabledWithoutPIN(t *testing.T) {
	srv := newTestServer(t, "", nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", loginRequest{PIN: "anything"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("login without pin configured: got %d, want 409", rec.Code)
	}
}

func TestMalformedJSONBody(t *testing.T) {
	srv := newTestServer(t, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < rateLimitPerMinute; i++ {
		if !rl.allow("10.1.2.3") {
			t.Fatalf("request %d rejected inside the window", i+1)
		}
	}
	if rl.allow("10.1.2.3") {
		t.Error("request over the limit allowed")
	}
	if !rl.allow("10.9.9.9") {
		t.Error("other clients must not share the window")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.7:1234", "", "203.0.113.7"},
		{"trusted proxy honors xff", "127.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"untrusted peer ignores xff", "203.0.113.9:1234", "198.51.100.1", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
