package bigquery

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRowRoundTrip(t *testing.T) {
	date := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID:          "t1",
		UserID:      "u1",
		Type:        domain.TransactionTypeExpense,
		Amount:      decimal.RequireFromString("19.99"),
		Description: "Hosting",
		Category:    "Software",
		Date:        date,
		Source:      domain.SourceManual,
		CreatedAt:   date,
		UpdatedAt:   date,
	}

	row := TransactionToRow(tx)
	assert.Equal(t, "expense", row.Type)
	assert.Equal(t, "1999/100", row.Amount.String())
	assert.Equal(t, []string{}, row.Tags)
	assert.True(t, row.Source.Valid)

	back := row.ToDomain()
	assert.True(t, back.Amount.Equal(tx.Amount))
	assert.Equal(t, tx.Description, back.Description)
	assert.Equal(t, date, back.Date)
	assert.Equal(t, []string{}, back.Tags)
}

func TestUserRowRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Name: "Ada", CurrentBalance: decimal.RequireFromString("-12.3"), CreatedAt: now, UpdatedAt: now}

	row := UserToRow(u)
	assert.Equal(t, domain.DefaultCurrency, row.Currency)
	assert.False(t, row.Email.Valid)
	assert.False(t, row.BusinessName.Valid)

	back := row.ToDomain()
	assert.Nil(t, back.BusinessSetup)
	assert.True(t, back.CurrentBalance.Equal(u.CurrentBalance))

	u.BusinessSetup = &domain.BusinessSetup{BusinessName: "Ada Ltd"}
	back = UserToRow(u).ToDomain()
	require.NotNil(t, back.BusinessSetup)
	assert.Equal(t, "Ada Ltd", back.BusinessSetup.BusinessName)
}

func TestDecimalFromRatNil(t *testing.T) {
	assert.True(t, decimalFromRat(nil).IsZero())
}

func TestMapScriptError(t *testing.T) {
	assert.True(t, domain.IsNotFound(mapScriptError(errors.New("googleapi: Error 400: user not found at [4:3]"))))
	assert.True(t, domain.IsNotFound(mapScriptError(errors.New("transaction not found"))))

	other := errors.New("quota exceeded")
	assert.Equal(t, other, mapScriptError(other))
}

func TestScriptsAreTransactional(t *testing.T) {
	r := NewRepositoryWithClient(nil, "proj", "cash")

	for name, script := range map[string]string{
		"create": r.createScript(),
		"update": r.updateScript(),
		"delete": r.deleteScript(),
	} {
		t.Run(name, func(t *testing.T) {
			begin := strings.Index(script, "BEGIN TRANSACTION;")
			commit := strings.Index(script, "COMMIT TRANSACTION;")
			balance := strings.Index(script, "UPDATE `proj.cash.users`")
			require.True(t, begin >= 0 && commit > begin, "script must be wrapped in a transaction")
			assert.True(t, balance > begin && balance < commit, "balance update must run inside the transaction")
			assert.True(t, strings.HasSuffix(strings.TrimSpace(script),
				"SELECT current_balance FROM `proj.cash.users` WHERE user_id = @user_id;"))
			assert.Contains(t, script, "RAISE USING MESSAGE")
		})
	}
}

func TestFindQuery(t *testing.T) {
	r := NewRepositoryWithClient(nil, "proj", "cash")
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, params := r.findQuery(domain.TransactionFilter{
		UserID:   "u1",
		Type:     domain.TransactionTypeIncome,
		Category: "Sales",
		From:     &from,
		Newest:   true,
		Offset:   20,
	})

	assert.Contains(t, sql, "FROM `proj.cash.transactions`")
	assert.Contains(t, sql, "user_id = @user_id AND type = @type AND category = @category AND transaction_ts >= @from_ts")
	assert.Contains(t, sql, "ORDER BY transaction_ts DESC")
	assert.Contains(t, sql, "OFFSET 20")
	assert.Less(t, strings.Index(sql, "LIMIT"), strings.Index(sql, "OFFSET"))
	assert.Len(t, params, 4)
}
