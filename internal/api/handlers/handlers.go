// Package handlers implements the HTTP endpoints of the cashflow API.
//
// Every handler except user registration runs behind middleware.Auth and
// reads the caller's id from the request context.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/api/middleware"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/logger"
	"github.com/rs/zerolog"
)

// Clock returns the current time. Handlers take one so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeStoreError maps a store error to a response: validation → 400,
// not found → 404 with notFound as the message, anything else → 500.
func writeStoreError(w http.ResponseWriter, log zerolog.Logger, err error, notFound, failure string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.WriteError(w, http.StatusBadRequest, ve.Message)
	case domain.IsNotFound(err):
		middleware.WriteError(w, http.StatusNotFound, notFound)
	default:
		log.Error().Err(err).Msg(failure)
		middleware.WriteError(w, http.StatusInternalServerError, failure)
	}
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// queryIntRange parses an optional integer query parameter that must lie in
// [lo, hi]. ok is false when the value is present but malformed or out of range.
func queryIntRange(r *http.Request, name string, def, lo, hi int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// requestLog returns the logger set by middleware.RequestID, or base when the
// request did not pass through it, enriched with the caller.
func requestLog(base zerolog.Logger, r *http.Request) zerolog.Logger {
	log := logger.FromContext(r.Context(), base)
	if uid := middleware.UserIDFromContext(r.Context()); uid != "" {
		log = log.With().Str("user_id", uid).Logger()
	}
	return log
}
