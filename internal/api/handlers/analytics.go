package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/advisor"
	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/rs/zerolog"
)

// defaultSeriesPeriod is used by /analytics/data when no period is given.
const defaultSeriesPeriod = 30

// UserTransactions is the storage the analytics and chat handlers read from.
type UserTransactions interface {
	store.TransactionStore
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// AnalyticsHandler serves the derived, read-only views of a user's finances.
type AnalyticsHandler struct {
	repo    UserTransactions
	advisor *advisor.Advisor
	now     Clock
	log     zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(repo UserTransactions, adv *advisor.Advisor, now Clock, log zerolog.Logger) *AnalyticsHandler {
	if now == nil {
		now = SystemClock
	}
	return &AnalyticsHandler{repo: repo, advisor: adv, now: now, log: log}
}

// CashflowStatus handles GET /api/analytics/cashflow-status
func (h *AnalyticsHandler) CashflowStatus(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	u, txs, ok := h.load(w, r, now.AddDate(0, 0, -insights.BurnWindowDays))
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, insights.CashflowStatus(txs, u.CurrentBalance, now))
}

// FinancialSummary handles GET /api/analytics/financial-summary?months=
func (h *AnalyticsHandler) FinancialSummary(w http.ResponseWriter, r *http.Request) {
	months, valid := queryIntRange(r, "months", insights.DefaultSummaryMonths, 1, insights.MaxSummaryMonths)
	if !valid {
		middleware.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid months. Use a value between 1 and %d", insights.MaxSummaryMonths))
		return
	}
	_, txs, ok := h.load(w, r, time.Time{})
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, insights.Summarize(txs, h.now(), months))
}

// Insights handles GET /api/analytics/insights
func (h *AnalyticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	u, txs, ok := h.load(w, r, time.Time{})
	if !ok {
		return
	}

	result := insights.Analyze(insights.Input{
		Transactions:   txs,
		CurrentBalance: u.CurrentBalance,
		Now:            now,
		Currency:       u.CurrencySymbol(),
	})
	middleware.WriteJSON(w, http.StatusOK, h.advisor.Insights(r.Context(), u, result))
}

// ChartData handles GET /api/analytics/data?period=7|30|90|365
func (h *AnalyticsHandler) ChartData(w http.ResponseWriter, r *http.Request) {
	period := defaultSeriesPeriod
	if s := r.URL.Query().Get("period"); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil || !insights.ValidPeriod(p) {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid period. Use one of %v", insights.ValidPeriods))
			return
		}
		period = p
	}

	now := h.now()
	_, txs, ok := h.load(w, r, now.AddDate(0, 0, -period))
	if !ok {
		return
	}
	series, err := insights.BuildSeries(txs, now, period)
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "User not found", "Failed to build chart data")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, series)
}

// load fetches the caller and their transactions dated from since onwards;
// a zero since loads everything.
func (h *AnalyticsHandler) load(w http.ResponseWriter, r *http.Request, since time.Time) (*domain.User, []*domain.Transaction, bool) {
	return loadUserTransactions(w, r, h.repo, h.log, since)
}

func loadUserTransactions(w http.ResponseWriter, r *http.Request, repo UserTransactions, base zerolog.Logger, since time.Time) (*domain.User, []*domain.Transaction, bool) {
	ctx := r.Context()
	log := requestLog(base, r)
	userID := middleware.UserIDFromContext(ctx)

	u, err := repo.GetUser(ctx, userID)
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to load user")
		return nil, nil, false
	}

	filter := domain.TransactionFilter{UserID: userID}
	if !since.IsZero() {
		filter.From = &since
	}
	txs, err := store.ListAll(ctx, repo, filter)
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to load transactions")
		return nil, nil, false
	}
	return u, txs, true
}
