// Package reconcile verifies that a stored balance equals the sum of the
// signed amounts of the user's transactions, and repairs it on request.
package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ParamRepair is the job parameter that turns a check into a repair.
const ParamRepair = "repair"

// Store is the storage the reconciler needs.
type Store interface {
	store.TransactionStore
	GetUser(ctx context.Context, id string) (*domain.User, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
}

// Report describes one reconciliation.
type Report struct {
	UserID           string          `json:"userId"`
	StoredBalance    decimal.Decimal `json:"storedBalance"`
	ComputedBalance  decimal.Decimal `json:"computedBalance"`
	Drift            decimal.Decimal `json:"drift"` // stored minus computed
	TransactionCount int             `json:"transactionCount"`
	Consistent       bool            `json:"consistent"`
	Repaired         bool            `json:"repaired"`
}

type Reconciler struct {
	store Store
	log   zerolog.Logger
}

func New(s Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: s, log: log}
}

// Check recomputes the balance from scratch. With repair set and a drift
// found, the stored balance is overwritten with the computed one.
func (r *Reconciler) Check(ctx context.Context, userID string, repair bool) (*Report, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Check: loading user: %w", err)
	}
	txs, err := store.ListAll(ctx, r.store, domain.TransactionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("Check: loading transactions: %w", err)
	}

	computed := domain.SumSigned(txs)
	rep := &Report{
		UserID:           userID,
		StoredBalance:    user.CurrentBalance,
		ComputedBalance:  computed,
		Drift:            user.CurrentBalance.Sub(computed),
		TransactionCount: len(txs),
	}
	rep.Consistent = rep.Drift.IsZero()
	if rep.Consistent {
		return rep, nil
	}

	r.log.Warn().
		Str("user_id", userID).
		Str("stored", rep.StoredBalance.String()).
		Str("computed", computed.String()).
		Msg("Balance drift detected")

	if repair {
		if err := r.store.SetBalance(ctx, userID, computed); err != nil {
			return nil, fmt.Errorf("Check: repairing balance: %w", err)
		}
		rep.Repaired = true
		r.log.Info().Str("user_id", userID).Str("balance", computed.String()).Msg("Balance repaired")
	}
	return rep, nil
}

// JobHandler runs reconciliation jobs.
func (r *Reconciler) JobHandler() jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		repair, _ := strconv.ParseBool(job.Params[ParamRepair])
		rep, err := r.Check(ctx, job.UserID, repair)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"storedBalance":    rep.StoredBalance.String(),
			"computedBalance":  rep.ComputedBalance.String(),
			"drift":            rep.Drift.String(),
			"transactionCount": rep.TransactionCount,
			"consistent":       rep.Consistent,
			"repaired":         rep.Repaired,
		}, nil
	}
}
