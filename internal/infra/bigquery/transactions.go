package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const transactionColumns = `transaction_id, user_id, type, amount, description, category,
	transaction_ts, tags, source, created_ts, updated_ts`

// signedExpr computes the balance effect of a stored row.
const signedExpr = `IF(type = 'income', amount, -amount)`

// FindTransactions returns the transactions matching filter ordered by date.
func (r *Repository) FindTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	sql, params := r.findQuery(filter)
	q := r.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindTransactions: query read: %w", err)
	}

	txs := []*domain.Transaction{}
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindTransactions: iter next: %w", err)
		}
		txs = append(txs, row.ToDomain())
	}
	return txs, nil
}

// CountTransactions counts the transactions matching filter.
func (r *Repository) CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int, error) {
	where, params := whereClause(filter)
	q := r.client.Query(`SELECT COUNT(*) AS n FROM ` + r.table(transactionsTable) + where)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountTransactions: query read: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountTransactions: iter next: %w", err)
	}
	return int(row.N), nil
}

// GetTransaction returns one transaction owned by userID.
func (r *Repository) GetTransaction(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	q := r.client.Query(`SELECT ` + transactionColumns + ` FROM ` + r.table(transactionsTable) +
		` WHERE transaction_id = @transaction_id AND user_id = @user_id LIMIT 1`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: query read: %w", err)
	}
	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// CreateTransaction inserts t and adds its signed amount to the owner's balance
// in one BigQuery transaction.
func (r *Repository) CreateTransaction(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error) {
	if err := domain.ValidateTransaction(t); err != nil {
		return decimal.Zero, err
	}

	it, err := r.runScript(ctx, r.createScript(), transactionParams(TransactionToRow(t), t.SignedAmount()))
	if err != nil {
		return decimal.Zero, fmt.Errorf("CreateTransaction: running script: %w", err)
	}
	balance, err := readBalance(it)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CreateTransaction: reading balance: %w", err)
	}
	return balance, nil
}

// UpdateTransaction applies mutate to the stored transaction. The balance
// delta is derived inside the script from the row being replaced.
func (r *Repository) UpdateTransaction(ctx context.Context, userID, id string, mutate store.Mutator) (*domain.Transaction, decimal.Decimal, error) {
	old, err := r.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("UpdateTransaction: %w", err)
	}

	next := *old
	next.Tags = append([]string(nil), old.Tags...)
	if err := mutate(&next); err != nil {
		return nil, decimal.Zero, fmt.Errorf("UpdateTransaction: %w", err)
	}
	next.ID, next.UserID, next.CreatedAt = old.ID, old.UserID, old.CreatedAt
	if err := domain.ValidateTransaction(&next); err != nil {
		return nil, decimal.Zero, err
	}

	it, err := r.runScript(ctx, r.updateScript(), transactionParams(TransactionToRow(&next), next.SignedAmount()))
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("UpdateTransaction: running script: %w", err)
	}
	balance, err := readBalance(it)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("UpdateTransaction: reading balance: %w", err)
	}
	return &next, balance, nil
}

// DeleteTransaction removes the transaction and reverses its signed amount.
func (r *Repository) DeleteTransaction(ctx context.Context, userID, id string) (decimal.Decimal, error) {
	it, err := r.runScript(ctx, r.deleteScript(), []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
		{Name: "user_id", Value: userID},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("DeleteTransaction: running script: %w", err)
	}
	balance, err := readBalance(it)
	if err != nil {
		return decimal.Zero, fmt.Errorf("DeleteTransaction: reading balance: %w", err)
	}
	return balance, nil
}

func (r *Repository) findQuery(filter domain.TransactionFilter) (string, []bigquery.QueryParameter) {
	where, params := whereClause(filter)

	order := "ASC"
	if filter.Newest {
		order = "DESC"
	}
	var b strings.Builder
	b.WriteString(`SELECT ` + transactionColumns + ` FROM ` + r.table(transactionsTable) + where)
	fmt.Fprintf(&b, ` ORDER BY transaction_ts %s, created_ts %s, transaction_id %s`, order, order, order)
	if filter.Limit > 0 {
		fmt.Fprintf(&b, ` LIMIT %d`, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			// BigQuery requires LIMIT before OFFSET.
			b.WriteString(` LIMIT 9223372036854775807`)
		}
		fmt.Fprintf(&b, ` OFFSET %d`, filter.Offset)
	}
	return b.String(), params
}

func whereClause(filter domain.TransactionFilter) (string, []bigquery.QueryParameter) {
	conds := []string{"user_id = @user_id"}
	params := []bigquery.QueryParameter{{Name: "user_id", Value: filter.UserID}}

	if filter.Type != "" {
		conds = append(conds, "type = @type")
		params = append(params, bigquery.QueryParameter{Name: "type", Value: string(filter.Type)})
	}
	if filter.Category != "" {
		conds = append(conds, "category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: filter.Category})
	}
	if filter.From != nil {
		conds = append(conds, "transaction_ts >= @from_ts")
		params = append(params, bigquery.QueryParameter{Name: "from_ts", Value: filter.From.UTC()})
	}
	if filter.To != nil {
		conds = append(conds, "transaction_ts <= @to_ts")
		params = append(params, bigquery.QueryParameter{Name: "to_ts", Value: filter.To.UTC()})
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}

func transactionParams(row *TransactionRow, signed decimal.Decimal) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
		{Name: "type", Value: row.Type},
		{Name: "amount", Value: row.Amount},
		{Name: "description", Value: row.Description},
		{Name: "category", Value: row.Category},
		{Name: "transaction_ts", Value: row.TransactionTS},
		{Name: "tags", Value: row.Tags},
		{Name: "source", Value: row.Source},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
		{Name: "signed_amount", Value: ratFromDecimal(signed)},
	}
}

func (r *Repository) createScript() string {
	users, txs := r.table(usersTable), r.table(transactionsTable)
	return `
BEGIN TRANSACTION;
IF NOT EXISTS (SELECT 1 FROM ` + users + ` WHERE user_id = @user_id) THEN
  RAISE USING MESSAGE = '` + msgUserNotFound + `';
END IF;
INSERT INTO ` + txs + ` (` + transactionColumns + `)
VALUES (@transaction_id, @user_id, @type, @amount, @description, @category,
	@transaction_ts, @tags, @source, @created_ts, @updated_ts);
UPDATE ` + users + `
SET current_balance = current_balance + @signed_amount, updated_ts = CURRENT_TIMESTAMP()
WHERE user_id = @user_id;
COMMIT TRANSACTION;
SELECT current_balance FROM ` + users + ` WHERE user_id = @user_id;
`
}

func (r *Repository) updateScript() string {
	users, txs := r.table(usersTable), r.table(transactionsTable)
	return `
DECLARE old_signed NUMERIC;
BEGIN TRANSACTION;
SET old_signed = (SELECT ` + signedExpr + ` FROM ` + txs + `
  WHERE transaction_id = @transaction_id AND user_id = @user_id);
IF old_signed IS NULL THEN
  RAISE USING MESSAGE = '` + msgTransactionNotFound + `';
END IF;
UPDATE ` + txs + `
SET type = @type, amount = @amount, description = @description, category = @category,
	transaction_ts = @transaction_ts, tags = @tags, updated_ts = @updated_ts
WHERE transaction_id = @transaction_id AND user_id = @user_id;
UPDATE ` + users + `
SET current_balance = current_balance + (@signed_amount - old_signed), updated_ts = CURRENT_TIMESTAMP()
WHERE user_id = @user_id;
COMMIT TRANSACTION;
SELECT current_balance FROM ` + users + ` WHERE user_id = @user_id;
`
}

func (r *Repository) deleteScript() string {
	users, txs := r.table(usersTable), r.table(transactionsTable)
	return `
DECLARE old_signed NUMERIC;
BEGIN TRANSACTION;
SET old_signed = (SELECT ` + signedExpr + ` FROM ` + txs + `
  WHERE transaction_id = @transaction_id AND user_id = @user_id);
IF old_signed IS NULL THEN
  RAISE USING MESSAGE = '` + msgTransactionNotFound + `';
END IF;
DELETE FROM ` + txs + ` WHERE transaction_id = @transaction_id AND user_id = @user_id;
UPDATE ` + users + `
SET current_balance = current_balance - old_signed, updated_ts = CURRENT_TIMESTAMP()
WHERE user_id = @user_id;
COMMIT TRANSACTION;
SELECT current_balance FROM ` + users + ` WHERE user_id = @user_id;
`
}
