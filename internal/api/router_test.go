package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/infra/sqlstore"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/dvloznov/cashflow-tracker/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type routeRecorder struct {
	metrics.NoOpCollector
	mu     sync.Mutex
	routes []string
}

func (c *routeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = append(c.routes, method+" "+route)
}

func (c *routeRecorder) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.routes...)
}

type testServer struct {
	handler http.Handler
	repo    *sqlstore.Store
	metrics *routeRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	repo, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, jobStore, inmemory.WithBackoff(time.Millisecond))
	router := jobs.Router{
		jobs.JobTypeReconcileBalance: reconcile.New(repo, zerolog.Nop()).JobHandler(),
	}
	require.NoError(t, queue.Start(ctx, router.Handle))
	t.Cleanup(func() { queue.Close() })

	rec := &routeRecorder{}
	h := NewRouter(Deps{
		Repo:      repo,
		Jobs:      jobStore,
		Publisher: queue,
		Metrics:   rec,
		Now:       func() time.Time { return fixedNow },
		Log:       zerolog.Nop(),
	})
	return &testServer{handler: h, repo: repo, metrics: rec}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decimalField(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected decimal encoded as string, got %T", v)
	return decimal.RequireFromString(s)
}

func (s *testServer) createUser(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/users", "", map[string]any{"name": "Ana", "currency": "€"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decodeBody(t, w)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", decodeBody(t, w)["error"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodOptions, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.UserIDHeader)
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/users", "", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Name is required", decodeBody(t, w)["error"])

	id := s.createUser(t)
	w = s.do(t, http.MethodGet, "/api/users/me", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Ana", body["name"])
	assert.True(t, decimalField(t, body["currentBalance"]).IsZero())

	w = s.do(t, http.MethodGet, "/api/users/me", "nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decodeBody(t, w)["error"])
}

func TestTransactionLifecycleKeepsBalance(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)

	w := s.do(t, http.MethodPost, "/api/transactions", uid, map[string]any{
		"type": "income", "amount": 200, "description": "Invoice 42", "category": "Sales", "date": "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	assert.Equal(t, "Transaction added successfully", created["message"])
	assert.True(t, decimal.NewFromInt(200).Equal(decimalField(t, created["currentBalance"])))
	incomeID := created["transaction"].(map[string]any)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/transactions", uid, map[string]any{
		"type": "expense", "amount": "50.25", "description": "Paper", "tags": []string{"office"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	expense := decodeBody(t, w)
	assert.True(t, decimal.RequireFromString("149.75").Equal(decimalField(t, expense["currentBalance"])))
	expenseTx := expense["transaction"].(map[string]any)
	assert.Equal(t, "Uncategorized", expenseTx["category"])
	expenseID := expenseTx["id"].(string)

	w = s.do(t, http.MethodPut, "/api/transactions/"+expenseID, uid, map[string]any{"amount": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(100).Equal(decimalField(t, decodeBody(t, w)["currentBalance"])))

	w = s.do(t, http.MethodPut, "/api/transactions/"+expenseID, uid, map[string]any{"type": "income"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(300).Equal(decimalField(t, decodeBody(t, w)["currentBalance"])))

	w = s.do(t, http.MethodDelete, "/api/transactions/"+incomeID, uid, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decimal.NewFromInt(100).Equal(decimalField(t, decodeBody(t, w)["currentBalance"])))

	w = s.do(t, http.MethodGet, "/api/transactions/"+incomeID, uid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Transaction not found", decodeBody(t, w)["error"])

	w = s.do(t, http.MethodGet, "/api/users/me", uid, nil)
	assert.True(t, decimal.NewFromInt(100).Equal(decimalField(t, decodeBody(t, w)["currentBalance"])))
}

func TestCreateTransactionValidation(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)

	tests := []struct {
		body map[string]any
		want string
	}{
		{map[string]any{"type": "transfer", "amount": 1, "description": "x"}, "Invalid or missing transaction type"},
		{map[string]any{"type": "income", "amount": -5, "description": "x"}, "Amount must be a positive number"},
		{map[string]any{"type": "income", "description": "x"}, "Amount must be a positive number"},
		{map[string]any{"type": "income", "amount": 5, "description": "  "}, "Description is required"},
	}
	for _, tt := range tests {
		w := s.do(t, http.MethodPost, "/api/transactions", uid, tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, tt.want, decodeBody(t, w)["error"])
	}

	w := s.do(t, http.MethodPost, "/api/transactions", "ghost", map[string]any{"type": "income", "amount": 5, "description": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decodeBody(t, w)["error"])

	w = s.do(t, http.MethodGet, "/api/transactions", uid, nil)
	assert.Equal(t, float64(0), decodeBody(t, w)["total"])
}

func TestTransactionQueries(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)
	for _, tx := range []map[string]any{
		{"type": "income", "amount": 1000, "description": "Sale", "category": "Sales", "date": "2024-03-01"},
		{"type": "expense", "amount": 30, "description": "Coffee", "category": "Food", "date": "2024-03-05"},
		{"type": "expense", "amount": 70, "description": "Lunch", "category": "Food", "date": "2024-03-10"},
	} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", uid, tx).Code)
	}

	w := s.do(t, http.MethodGet, "/api/transactions?type=expense&limit=1&page=2", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody(t, w)
	assert.Equal(t, float64(2), list["total"])
	assert.Equal(t, float64(2), list["page"])
	assert.Equal(t, float64(1), list["limit"])
	txs := list["transactions"].([]any)
	require.Len(t, txs, 1)
	assert.Equal(t, "Coffee", txs[0].(map[string]any)["description"], "newest first")

	w = s.do(t, http.MethodGet, "/api/transactions?type=bogus", uid, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/transactions?type=expense&limit=1&page=3", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["transactions"])

	for _, p := range []string{"9223372036854775807", "1000001", "0", "x"} {
		w = s.do(t, http.MethodGet, "/api/transactions?limit=50&page="+p, uid, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
	}

	w = s.do(t, http.MethodGet, "/api/transactions/category/Food", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/transactions/date-range?startDate=2024-03-05&endDate=2024-03-10", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodGet, "/api/transactions/date-range?startDate=2024-03-05", uid, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "startDate and endDate are required", decodeBody(t, w)["error"])

	w = s.do(t, http.MethodGet, "/api/transactions/stats", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody(t, w)
	assert.True(t, decimal.NewFromInt(1000).Equal(decimalField(t, stats["totalIncome"])))
	assert.True(t, decimal.NewFromInt(100).Equal(decimalField(t, stats["totalExpenses"])))
	assert.Equal(t, float64(3), stats["count"])
}

func TestAnalytics(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", uid, map[string]any{
		"type": "income", "amount": 3000, "description": "Retainer", "date": "2024-03-02",
	}).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", uid, map[string]any{
		"type": "expense", "amount": 300, "description": "Rent", "date": "2024-03-03",
	}).Code)

	w := s.do(t, http.MethodGet, "/api/analytics/cashflow-status", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody(t, w)
	assert.True(t, decimal.NewFromInt(10).Equal(decimalField(t, status["dailyBurnRate"])))
	assert.Equal(t, float64(270), status["daysRemaining"])
	assert.Equal(t, "green", status["indicator"])

	w = s.do(t, http.MethodGet, "/api/analytics/financial-summary", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["monthly"], 6)

	w = s.do(t, http.MethodGet, "/api/analytics/financial-summary?months=24", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["monthly"], 24)

	for _, m := range []string{"50000", "25", "0", "-3", "abc"} {
		w = s.do(t, http.MethodGet, "/api/analytics/financial-summary?months="+m, uid, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, m)
		assert.Equal(t, "Invalid months. Use a value between 1 and 24", decodeBody(t, w)["error"])
	}

	w = s.do(t, http.MethodGet, "/api/analytics/insights", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	ai := body["aiInsights"].(map[string]any)
	assert.Equal(t, false, ai["available"])
	assert.Equal(t, []any{}, ai["recommendations"])
	assert.Contains(t, body["insights"].(map[string]any), "healthScore")

	w = s.do(t, http.MethodGet, "/api/analytics/data?period=7", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["points"], 7)

	for _, p := range []string{"14", "abc", "0"} {
		w = s.do(t, http.MethodGet, "/api/analytics/data?period="+p, uid, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, p)
	}

	w = s.do(t, http.MethodGet, "/api/analytics/insights", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatbot(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)

	w := s.do(t, http.MethodPost, "/api/chatbot/chat", uid, map[string]any{"userMessage": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Message is required", decodeBody(t, w)["error"])

	w = s.do(t, http.MethodPost, "/api/chatbot/chat", "ghost", map[string]any{"userMessage": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/chatbot/chat", uid, map[string]any{"userMessage": "What is my balance?"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decodeBody(t, w)
	assert.Equal(t, false, reply["aiAvailable"])
	assert.Equal(t, "Your current balance is €0.00. Consider reviewing your expenses to improve cash flow.", reply["response"])

	w = s.do(t, http.MethodGet, "/api/chatbot/history", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decodeBody(t, w)
	assert.Equal(t, []any{}, hist["history"])
	assert.Equal(t, "Chat history stored in session", hist["message"])
}

func TestReconcileJob(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/transactions", uid, map[string]any{
		"type": "income", "amount": 10, "description": "Tip",
	}).Code)

	w := s.do(t, http.MethodPost, "/api/users/me/reconcile", uid, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	jobID := decodeBody(t, w)["job"].(map[string]any)["jobId"].(string)

	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/jobs/"+jobID, uid, nil)
		return w.Code == http.StatusOK && decodeBody(t, w)["status"] == string(jobs.JobStatusCompleted)
	}, 5*time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodGet, "/api/jobs/"+jobID, uid, nil)
	result := decodeBody(t, w)["result"].(map[string]any)
	assert.Equal(t, true, result["consistent"])

	w = s.do(t, http.MethodGet, "/api/jobs/"+jobID, "someone-else", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/jobs/no-such-job", uid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found", decodeBody(t, w)["error"])

	w = s.do(t, http.MethodGet, "/api/jobs", uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodPost, "/api/users/me/reconcile", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportDisabled(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)
	w := s.do(t, http.MethodPost, "/api/users/me/export", uid, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsUseRouteTemplates(t *testing.T) {
	s := newTestServer(t)
	uid := s.createUser(t)
	s.do(t, http.MethodGet, "/api/transactions/abc", uid, nil)
	s.do(t, http.MethodGet, "/api/transactions/stats", uid, nil)

	seen := s.metrics.seen()
	assert.Contains(t, seen, "POST /api/users")
	assert.Contains(t, seen, "GET /api/transactions/{id}")
	assert.Contains(t, seen, "GET /api/transactions/stats")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decodeBody(t, w)["error"])
}
