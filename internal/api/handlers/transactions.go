package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = store.PageSize
	maxPage          = 1_000_000
)

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	repo store.TransactionStore
	now  Clock
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo store.TransactionStore, now Clock, log zerolog.Logger) *TransactionsHandler {
	if now == nil {
		now = SystemClock
	}
	return &TransactionsHandler{repo: repo, now: now, log: log}
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLog(h.log, r)

	var in domain.TransactionInput
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	t, err := in.Build(middleware.UserIDFromContext(ctx), uuid.New().String(), h.now())
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to create transaction")
		return
	}

	balance, err := h.repo.CreateTransaction(ctx, t)
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to create transaction")
		return
	}

	log.Info().Str("transaction_id", t.ID).Str("type", string(t.Type)).Msg("Transaction created")
	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":        "Transaction added successfully",
		"transaction":    t,
		"currentBalance": balance,
	})
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := domain.TransactionFilter{
		UserID:   middleware.UserIDFromContext(ctx),
		Category: strings.TrimSpace(query.Get("category")),
		Newest:   true,
	}
	if typ := query.Get("type"); typ != "" {
		filter.Type = domain.TransactionType(typ)
		if !filter.Type.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction type")
			return
		}
	}

	limit := queryInt(r, "limit", defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page, valid := queryIntRange(r, "page", 1, 1, maxPage)
	if !valid {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid page. Use a value between 1 and %d", maxPage))
		return
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	txs, err := h.repo.FindTransactions(ctx, filter)
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transactions not found", "Failed to list transactions")
		return
	}
	total, err := h.repo.CountTransactions(ctx, filter)
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transactions not found", "Failed to count transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"page":         page,
		"limit":        limit,
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	t, err := h.repo.GetTransaction(ctx, middleware.UserIDFromContext(ctx), id)
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transaction not found", "Failed to get transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, t)
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLog(h.log, r)
	id := mux.Vars(r)["id"]

	var patch domain.TransactionPatch
	if err := decodeJSON(r, &patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := h.now()
	t, balance, err := h.repo.UpdateTransaction(ctx, middleware.UserIDFromContext(ctx), id, func(t *domain.Transaction) error {
		return patch.Apply(t, now)
	})
	if err != nil {
		writeStoreError(w, log, err, "Transaction not found", "Failed to update transaction")
		return
	}

	log.Info().Str("transaction_id", id).Msg("Transaction updated")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Transaction updated successfully",
		"transaction":    t,
		"currentBalance": balance,
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLog(h.log, r)
	id := mux.Vars(r)["id"]

	balance, err := h.repo.DeleteTransaction(ctx, middleware.UserIDFromContext(ctx), id)
	if err != nil {
		writeStoreError(w, log, err, "Transaction not found", "Failed to delete transaction")
		return
	}

	log.Info().Str("transaction_id", id).Msg("Transaction deleted")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Transaction deleted successfully",
		"currentBalance": balance,
	})
}

// ListByCategory handles GET /api/transactions/category/{category}
func (h *TransactionsHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := mux.Vars(r)["category"]

	txs, err := h.repo.FindTransactions(ctx, domain.TransactionFilter{
		UserID:   middleware.UserIDFromContext(ctx),
		Category: category,
		Newest:   true,
	})
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transactions not found", "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"category":     category,
		"transactions": txs,
		"count":        len(txs),
	})
}

// ListByDateRange handles GET /api/transactions/date-range?startDate=&endDate=
// A plain YYYY-MM-DD endDate includes the whole day.
func (h *TransactionsHandler) ListByDateRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	startStr, endStr := strings.TrimSpace(query.Get("startDate")), strings.TrimSpace(query.Get("endDate"))
	if startStr == "" || endStr == "" {
		middleware.WriteError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}
	start, err := domain.ParseDate(startStr)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid startDate")
		return
	}
	end, err := domain.ParseDate(endStr)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid endDate")
		return
	}
	if len(endStr) == len(domain.DateLayout) {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		middleware.WriteError(w, http.StatusBadRequest, "endDate must not be before startDate")
		return
	}

	txs, err := h.repo.FindTransactions(ctx, domain.TransactionFilter{
		UserID: middleware.UserIDFromContext(ctx),
		From:   &start,
		To:     &end,
		Newest: true,
	})
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transactions not found", "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"startDate":    start,
		"endDate":      end,
		"transactions": txs,
		"count":        len(txs),
	})
}

// Stats handles GET /api/transactions/stats
func (h *TransactionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txs, err := store.ListAll(ctx, h.repo, domain.TransactionFilter{UserID: middleware.UserIDFromContext(ctx)})
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "Transactions not found", "Failed to compute transaction stats")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, insights.Stats(txs))
}
