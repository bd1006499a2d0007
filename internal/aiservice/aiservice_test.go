package aiservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestHTTPDelegate_Insights(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"recommendations":["Raise prices"],"cashflowTips":["Invoice weekly"]}`))
	}))
	defer srv.Close()

	d := NewHTTPDelegate(srv.URL+"/", srv.Client())
	reply, err := d.Insights(context.Background(), InsightsRequest{
		Insights:     insights.Result{HealthScore: 80},
		BusinessInfo: &domain.BusinessSetup{BusinessName: "Acme"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/ai/insights", gotPath)
	assert.Equal(t, []string{"Raise prices"}, reply.Recommendations)
	assert.Equal(t, []string{"Invoice weekly"}, reply.CashflowTips)

	require.Contains(t, gotBody, "insights")
	assert.Equal(t, float64(80), gotBody["insights"].(map[string]any)["healthScore"])
	assert.Equal(t, "Acme", gotBody["businessInfo"].(map[string]any)["businessName"])
	assert.NotContains(t, gotBody, "userInfo")
}

func TestHTTPDelegate_Chat(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"Hello","suggestions":["a"],"insights":{"k":1}}`))
	}))
	defer srv.Close()

	reply, err := NewHTTPDelegate(srv.URL, nil).Chat(context.Background(), ChatRequest{
		UserMessage: "hi",
		UserData:    ChatUserData{Name: "Ana", CurrentBalance: decimal.NewFromInt(10), Currency: "€"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply.Response)
	assert.Equal(t, []string{"a"}, reply.Suggestions)
	assert.Equal(t, float64(1), reply.Insights["k"])

	assert.Equal(t, "hi", got.UserMessage)
	assert.Equal(t, "Ana", got.UserData.Name)
	assert.True(t, decimal.NewFromInt(10).Equal(got.UserData.CurrentBalance))
}

func TestHTTPDelegate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"recommendations":["x"]}`},
		{"bad gateway", http.StatusBadGateway, ``},
		{"malformed body", http.StatusOK, `{"recommendations":`},
		{"empty body", http.StatusOK, ``},
		{"empty object", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := NewHTTPDelegate(srv.URL, srv.Client())
			_, err := d.Insights(context.Background(), InsightsRequest{})
			assert.Error(t, err)
			_, err = d.Chat(context.Background(), ChatRequest{UserMessage: "x"})
			assert.Error(t, err)
		})
	}
}

func TestHTTPDelegate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPDelegate(url, nil).Chat(context.Background(), ChatRequest{UserMessage: "x"})
	assert.Error(t, err)
}

type fakeGenerator struct {
	text   string
	err    error
	prompt string
	model  string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.prompt = contents[0].Parts[0].Text
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}}},
	}, nil
}

func TestGeminiDelegate_Insights(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"recommendations\":[\"Cut costs\"],\"cashflowTips\":[\"Bill early\"]}\n```"}
	d := newGeminiDelegate(gen, "")

	reply, err := d.Insights(context.Background(), InsightsRequest{Insights: insights.Result{
		CurrentMonthIncome:   decimal.NewFromInt(1000),
		CurrentMonthExpenses: decimal.NewFromInt(400),
	}})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, gen.model)
	assert.Equal(t, []string{"Cut costs"}, reply.Recommendations)
	assert.Contains(t, gen.prompt, "Total Income: 1000.00")
	assert.Contains(t, gen.prompt, "Total Expenses: 400.00")
	assert.Contains(t, gen.prompt, "Net Cash Flow: 600.00")
}

func TestGeminiDelegate_Chat(t *testing.T) {
	gen := &fakeGenerator{text: `{"response":"You are fine","suggestions":["More"]}`}
	d := newGeminiDelegate(gen, "gemini-test")

	reply, err := d.Chat(context.Background(), ChatRequest{
		UserMessage:        "how am I doing?",
		UserData:           ChatUserData{Name: "Ana", Currency: "$"},
		RecentTransactions: []ChatTransaction{{Type: domain.TransactionTypeExpense, Amount: decimal.NewFromInt(5), Description: "Coffee", Date: "2024-03-01"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", gen.model)
	assert.Equal(t, "You are fine", reply.Response)
	assert.Contains(t, gen.prompt, "how am I doing?")
	assert.Contains(t, gen.prompt, "Coffee")

	gen.text = "Plain prose answer"
	reply, err = d.Chat(context.Background(), ChatRequest{UserMessage: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Plain prose answer", reply.Response)
}

func TestGeminiDelegate_Errors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota")}
	d := newGeminiDelegate(gen, "")
	_, err := d.Insights(context.Background(), InsightsRequest{})
	assert.Error(t, err)

	gen.err = nil
	gen.text = "   "
	_, err = d.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrEmptyReply)

	gen.text = `{"recommendations":[]}`
	_, err = d.Insights(context.Background(), InsightsRequest{})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```", `[1,2]`},
		{`Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanModelJSON(tt.in), tt.in)
	}
}

func TestNewChatTransaction(t *testing.T) {
	tx := &domain.Transaction{
		Type:        domain.TransactionTypeIncome,
		Amount:      decimal.RequireFromString("12.50"),
		Category:    "Sales",
		Description: "Invoice",
		Date:        time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC),
	}
	ct := NewChatTransaction(tx)
	assert.Equal(t, "2024-02-29", ct.Date)
	assert.Equal(t, domain.TransactionTypeIncome, ct.Type)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Insights(context.Background(), InsightsRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = Disabled{}.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

// stubDelegate fails or blocks on demand and counts calls.
type stubDelegate struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (s *stubDelegate) Insights(ctx context.Context, _ InsightsRequest) (*InsightsReply, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &InsightsReply{Recommendations: []string{"ok"}}, nil
}

func (s *stubDelegate) Chat(ctx context.Context, _ ChatRequest) (*ChatReply, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &ChatReply{Response: "ok"}, nil
}

type recordingCollector struct {
	metrics.NoOpCollector
	mu       sync.Mutex
	outcomes []metrics.Outcome
	states   []metrics.CircuitState
}

func (c *recordingCollector) RecordAIRequest(_ string, o metrics.Outcome, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func (c *recordingCollector) RecordCircuitState(_ string, s metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}

func TestResilient_Success(t *testing.T) {
	col := &recordingCollector{}
	r := NewResilient(&stubDelegate{}, DefaultResilientConfig(), col, zerolog.Nop())

	reply, err := r.Insights(context.Background(), InsightsRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, reply.Recommendations)

	chat, err := r.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", chat.Response)
	assert.Equal(t, []metrics.Outcome{metrics.OutcomeSuccess, metrics.OutcomeSuccess}, col.outcomes)
}

func TestResilient_OpensCircuitPerOperation(t *testing.T) {
	cfg := DefaultResilientConfig()
	cfg.Breaker.ConsecutiveFailures = 2
	cfg.Breaker.Timeout = time.Hour

	stub := &stubDelegate{err: errors.New("boom")}
	col := &recordingCollector{}
	r := NewResilient(stub, cfg, col, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := r.Insights(context.Background(), InsightsRequest{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State(OpInsights))
	assert.Equal(t, []metrics.CircuitState{metrics.CircuitOpen}, col.states)

	_, err := r.Insights(context.Background(), InsightsRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls, "open circuit must not reach the delegate")

	// Chat has its own breaker.
	assert.Equal(t, gobreaker.StateClosed, r.State(OpChat))
	_, err = r.Chat(context.Background(), ChatRequest{})
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, stub.calls)

	assert.Equal(t, []metrics.Outcome{
		metrics.OutcomeError, metrics.OutcomeError, metrics.OutcomeCircuitOpen, metrics.OutcomeError,
	}, col.outcomes)
}

func TestResilient_Timeout(t *testing.T) {
	cfg := DefaultResilientConfig()
	cfg.InsightsTimeout = 20 * time.Millisecond

	col := &recordingCollector{}
	r := NewResilient(&stubDelegate{block: true}, cfg, col, zerolog.Nop())

	start := time.Now()
	_, err := r.Insights(context.Background(), InsightsRequest{})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []metrics.Outcome{metrics.OutcomeTimeout}, col.outcomes)
}
