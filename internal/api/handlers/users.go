package handlers

import (
	"net/http"
	"strconv"

	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/reconcile"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UsersHandler handles user registration, the caller's profile and the
// background jobs a user can start.
type UsersHandler struct {
	repo          store.UserStore
	publisher     jobs.Publisher
	exportEnabled bool
	now           Clock
	log           zerolog.Logger
}

// NewUsersHandler creates a new users handler. Export requests are refused
// with 503 unless exportEnabled is set.
func NewUsersHandler(repo store.UserStore, publisher jobs.Publisher, exportEnabled bool, now Clock, log zerolog.Logger) *UsersHandler {
	if now == nil {
		now = SystemClock
	}
	return &UsersHandler{repo: repo, publisher: publisher, exportEnabled: exportEnabled, now: now, log: log}
}

// CreateUser handles POST /api/users
func (h *UsersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLog(h.log, r)

	var in domain.UserInput
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, err := in.Build(uuid.New().String(), h.now())
	if err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to create user")
		return
	}
	if err := h.repo.CreateUser(ctx, u); err != nil {
		writeStoreError(w, log, err, "User not found", "Failed to create user")
		return
	}

	log.Info().Str("new_user_id", u.ID).Msg("User created")
	middleware.WriteJSON(w, http.StatusCreated, u)
}

// GetCurrentUser handles GET /api/users/me
func (h *UsersHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}

// Reconcile handles POST /api/users/me/reconcile?repair=true
func (h *UsersHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}

	repair, _ := strconv.ParseBool(r.URL.Query().Get(reconcile.ParamRepair))
	h.enqueue(w, r, &jobs.Job{
		Type:   jobs.JobTypeReconcileBalance,
		UserID: u.ID,
		Params: map[string]string{reconcile.ParamRepair: strconv.FormatBool(repair)},
	})
}

// Export handles POST /api/users/me/export
func (h *UsersHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.exportEnabled {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Export is not configured")
		return
	}
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	h.enqueue(w, r, &jobs.Job{Type: jobs.JobTypeExportTransactions, UserID: u.ID})
}

func (h *UsersHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	log := requestLog(h.log, r)
	if err := h.publisher.Publish(r.Context(), job); err != nil {
		log.Error().Err(err).Str("job_type", string(job.Type)).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("job_type", string(job.Type)).Msg("Job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Job accepted",
		"job":     job,
	})
}

func (h *UsersHandler) loadUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	u, err := h.repo.GetUser(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, requestLog(h.log, r), err, "User not found", "Failed to load user")
		return nil, false
	}
	return u, true
}
