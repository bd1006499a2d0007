// Package bigquery implements store.Repository on BigQuery. Each mutation runs
// as one multi-statement transaction so the transaction row and the owner's
// balance never diverge.
package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	transactionsTable = "transactions"
	usersTable        = "users"

	// Messages raised from inside scripts; mapped back to domain.ErrNotFound.
	msgUserNotFound        = "user not found"
	msgTransactionNotFound = "transaction not found"
)

// Repository is the BigQuery implementation of store.Repository.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ store.Repository = (*Repository)(nil)

// NewRepository creates a repository with its own BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, projectID, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *Repository {
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted table name.
func (r *Repository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, name)
}

// runScript executes a multi-statement query and returns the rows produced by
// its final SELECT.
func (r *Repository) runScript(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	q := r.client.Query(sql)
	q.Parameters = params
	it, err := q.Read(ctx)
	if err != nil {
		return nil, mapScriptError(err)
	}
	return it, nil
}

// mapScriptError turns RAISE messages from scripts into domain errors.
func mapScriptError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, msgUserNotFound):
		return fmt.Errorf("%s: %w", msgUserNotFound, domain.ErrNotFound)
	case strings.Contains(msg, msgTransactionNotFound):
		return fmt.Errorf("%s: %w", msgTransactionNotFound, domain.ErrNotFound)
	}
	return err
}

// readBalance reads the single NUMERIC value a mutation script selects last.
func readBalance(it *bigquery.RowIterator) (decimal.Decimal, error) {
	var row []bigquery.Value
	err := it.Next(&row)
	if err == iterator.Done {
		return decimal.Zero, fmt.Errorf("script returned no balance")
	}
	if err != nil {
		return decimal.Zero, err
	}
	if len(row) == 0 {
		return decimal.Zero, fmt.Errorf("script returned an empty row")
	}
	rat, ok := row[0].(*big.Rat)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balance type %T", row[0])
	}
	return decimalFromRat(rat), nil
}
