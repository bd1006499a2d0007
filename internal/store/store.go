// Package store defines the persistence contracts shared by the SQL and
// BigQuery backends.
//
// Every mutation of a transaction commits together with the matching delta on
// the owning user's balance, so that a user's current balance always equals the
// sum of the signed amounts of their transactions.
package store

import (
	"context"
	"fmt"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Mutator changes a loaded transaction in place before it is written back.
// Returning an error aborts the update without any write.
type Mutator func(t *domain.Transaction) error

// TransactionStore persists transactions. All methods are scoped to a user:
// a transaction owned by someone else is reported as domain.ErrNotFound.
type TransactionStore interface {
	// FindTransactions returns the transactions matching filter.
	FindTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)

	// CountTransactions returns the number of transactions matching filter,
	// ignoring its Limit and Offset.
	CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int, error)

	// GetTransaction returns one transaction by id.
	GetTransaction(ctx context.Context, userID, id string) (*domain.Transaction, error)

	// CreateTransaction stores t and adds its signed amount to the owner's
	// balance. It returns the new balance.
	CreateTransaction(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error)

	// UpdateTransaction loads the transaction, applies mutate, stores the
	// result and adjusts the balance by the difference of signed amounts.
	UpdateTransaction(ctx context.Context, userID, id string, mutate Mutator) (*domain.Transaction, decimal.Decimal, error)

	// DeleteTransaction removes the transaction and reverses its signed amount.
	DeleteTransaction(ctx context.Context, userID, id string) (decimal.Decimal, error)
}

// UserStore persists users and their running balances.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// ApplyBalanceDelta adds delta to the stored balance inside storage and
	// returns the result. The balance must equal the sum of the user's signed
	// transaction amounts, so a delta applied on its own, without the
	// transaction write it accounts for, leaves the balance out of step.
	// TransactionStore mutations apply their deltas themselves.
	ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)

	// SetBalance overwrites the balance. Only reconciliation uses it.
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
}

// Repository is a complete storage backend.
type Repository interface {
	TransactionStore
	UserStore
	Close() error
}

// PageSize is the page length ListAll reads with.
const PageSize = 500

// ListAll reads every transaction matching filter page by page, oldest first.
// Limit, Offset and Newest on filter are ignored.
func ListAll(ctx context.Context, ts TransactionStore, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	filter.Limit = PageSize
	filter.Offset = 0
	filter.Newest = false

	var all []*domain.Transaction
	for {
		page, err := ts.FindTransactions(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("ListAll: reading page at offset %d: %w", filter.Offset, err)
		}
		all = append(all, page...)
		if len(page) < PageSize {
			return all, nil
		}
		filter.Offset += PageSize
	}
}
