// Package api assembles the HTTP surface: routes, handlers and middleware.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/advisor"
	"github.com/dvloznov/cashflow-tracker/internal/api/handlers"
	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/assistant"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router wires into its handlers.
type Deps struct {
	Repo      store.Repository
	Advisor   *advisor.Advisor
	Assistant *assistant.Assistant
	Jobs      jobs.JobStore
	Publisher jobs.Publisher

	// ExportEnabled turns on POST /api/users/me/export.
	ExportEnabled bool

	// Metrics records per-route request metrics. MetricsHandler, when set,
	// is served on /metrics.
	Metrics        metrics.Collector
	MetricsHandler http.Handler

	Now handlers.Clock
	Log zerolog.Logger
}

// NewRouter returns the complete HTTP handler with middleware applied.
func NewRouter(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.NoOpCollector{}
	}
	if d.Now == nil {
		d.Now = handlers.SystemClock
	}
	if d.Advisor == nil {
		d.Advisor = advisor.New(nil, d.Log)
	}
	if d.Assistant == nil {
		d.Assistant = assistant.New(nil, d.Log)
	}

	users := handlers.NewUsersHandler(d.Repo, d.Publisher, d.ExportEnabled, d.Now, d.Log)
	transactions := handlers.NewTransactionsHandler(d.Repo, d.Now, d.Log)
	analytics := handlers.NewAnalyticsHandler(d.Repo, d.Advisor, d.Now, d.Log)
	chatbot := handlers.NewChatbotHandler(d.Repo, d.Assistant, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, d.Log)

	root := mux.NewRouter()
	root.Use(middleware.Metrics(d.Metrics))
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Health check endpoint
	root.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   d.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)
	if d.MetricsHandler != nil {
		root.Handle("/metrics", d.MetricsHandler).Methods(http.MethodGet)
	}

	// Registration is the one API call made before the caller has an id.
	root.HandleFunc("/api/users", users.CreateUser).Methods(http.MethodPost)

	api := root.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth)

	api.HandleFunc("/users/me", users.GetCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/users/me/reconcile", users.Reconcile).Methods(http.MethodPost)
	api.HandleFunc("/users/me/export", users.Export).Methods(http.MethodPost)

	api.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)

	// Fixed paths are registered before /transactions/{id} so they win.
	api.HandleFunc("/transactions", transactions.CreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions", transactions.ListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/stats", transactions.Stats).Methods(http.MethodGet)
	api.HandleFunc("/transactions/date-range", transactions.ListByDateRange).Methods(http.MethodGet)
	api.HandleFunc("/transactions/category/{category}", transactions.ListByCategory).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactions.GetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactions.UpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", transactions.DeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/analytics/cashflow-status", analytics.CashflowStatus).Methods(http.MethodGet)
	api.HandleFunc("/analytics/financial-summary", analytics.FinancialSummary).Methods(http.MethodGet)
	api.HandleFunc("/analytics/insights", analytics.Insights).Methods(http.MethodGet)
	api.HandleFunc("/analytics/data", analytics.ChartData).Methods(http.MethodGet)

	api.HandleFunc("/chatbot/chat", chatbot.Chat).Methods(http.MethodPost)
	api.HandleFunc("/chatbot/history", chatbot.History).Methods(http.MethodGet)

	// Apply middleware
	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(d.Log)(
				middleware.CORS(root),
			),
		),
	)
}
