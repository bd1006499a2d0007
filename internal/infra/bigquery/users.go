package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const userColumns = `user_id, name, email, currency, current_balance,
	business_name, business_type, industry, created_ts, updated_ts`

// CreateUser inserts a new user row through DML so it is visible to the
// mutation scripts immediately.
func (r *Repository) CreateUser(ctx context.Context, u *domain.User) error {
	row := UserToRow(u)
	q := r.client.Query(`INSERT INTO ` + r.table(usersTable) + ` (` + userColumns + `)
		VALUES (@user_id, @name, @email, @currency, @current_balance,
			@business_name, @business_type, @industry, @created_ts, @updated_ts)`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: row.UserID},
		{Name: "name", Value: row.Name},
		{Name: "email", Value: row.Email},
		{Name: "currency", Value: row.Currency},
		{Name: "current_balance", Value: row.CurrentBalance},
		{Name: "business_name", Value: row.BusinessName},
		{Name: "business_type", Value: row.BusinessType},
		{Name: "industry", Value: row.Industry},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("CreateUser: running insert: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("CreateUser: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("CreateUser: job error: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	q := r.client.Query(`SELECT ` + userColumns + ` FROM ` + r.table(usersTable) + ` WHERE user_id = @user_id LIMIT 1`)
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetUser: query read: %w", err)
	}
	var row UserRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, domain.NewNotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: iter next: %w", err)
	}
	return row.ToDomain(), nil
}

// ApplyBalanceDelta adds delta to the stored balance with a single DML
// statement and returns the result.
func (r *Repository) ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	users := r.table(usersTable)
	it, err := r.runScript(ctx, `
BEGIN TRANSACTION;
IF NOT EXISTS (SELECT 1 FROM `+users+` WHERE user_id = @user_id) THEN
  RAISE USING MESSAGE = '`+msgUserNotFound+`';
END IF;
UPDATE `+users+` SET current_balance = current_balance + @delta, updated_ts = CURRENT_TIMESTAMP()
WHERE user_id = @user_id;
COMMIT TRANSACTION;
SELECT current_balance FROM `+users+` WHERE user_id = @user_id;
`, []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "delta", Value: ratFromDecimal(delta)},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: running script: %w", err)
	}
	balance, err := readBalance(it)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ApplyBalanceDelta: reading balance: %w", err)
	}
	return balance, nil
}

// SetBalance overwrites the stored balance.
func (r *Repository) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	q := r.client.Query(`UPDATE ` + r.table(usersTable) + `
		SET current_balance = @balance, updated_ts = CURRENT_TIMESTAMP()
		WHERE user_id = @user_id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "balance", Value: ratFromDecimal(balance)},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("SetBalance: running update: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("SetBalance: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("SetBalance: job error: %w", err)
	}
	if status.Statistics == nil {
		return nil
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && stats.NumDMLAffectedRows == 0 {
		return domain.NewNotFound("user", userID)
	}
	return nil
}
