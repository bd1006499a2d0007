package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestTransactionInput_Build(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   TransactionInput
		wantErr string
	}{
		{
			name:    "missing type",
			input:   TransactionInput{Amount: dec("10"), Description: "Coffee"},
			wantErr: "Invalid or missing transaction type",
		},
		{
			name:    "unknown type",
			input:   TransactionInput{Type: "transfer", Amount: dec("10"), Description: "Coffee"},
			wantErr: "Invalid or missing transaction type",
		},
		{
			name:    "missing amount",
			input:   TransactionInput{Type: TransactionTypeExpense, Description: "Coffee"},
			wantErr: "Amount must be a positive number",
		},
		{
			name:    "zero amount",
			input:   TransactionInput{Type: TransactionTypeExpense, Amount: dec("0"), Description: "Coffee"},
			wantErr: "Amount must be a positive number",
		},
		{
			name:    "negative amount",
			input:   TransactionInput{Type: TransactionTypeIncome, Amount: dec("-5"), Description: "Refund"},
			wantErr: "Amount must be a positive number",
		},
		{
			name:    "blank description",
			input:   TransactionInput{Type: TransactionTypeIncome, Amount: dec("5"), Description: "   "},
			wantErr: "Description is required",
		},
		{
			name:    "bad date",
			input:   TransactionInput{Type: TransactionTypeIncome, Amount: dec("5"), Description: "Sale", Date: "15/03/2024"},
			wantErr: "Invalid date format",
		},
		{
			name:  "valid",
			input: TransactionInput{Type: TransactionTypeIncome, Amount: dec("5"), Description: "Sale"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := tt.input.Build("user-1", "tx-1", now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, tx)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", tx.UserID)
		})
	}
}

func TestTransactionInput_BuildDefaults(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tx, err := TransactionInput{
		Type:        TransactionTypeExpense,
		Amount:      dec("12.345"),
		Description: "  Office rent ",
	}.Build("user-1", "tx-1", now)
	require.NoError(t, err)

	assert.Equal(t, DefaultCategory, tx.Category)
	assert.Equal(t, now, tx.Date)
	assert.Equal(t, []string{}, tx.Tags)
	assert.Equal(t, "Office rent", tx.Description)
	assert.Equal(t, SourceManual, tx.Source)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("12.35")), "amount rounded to cents, got %s", tx.Amount)
}

func TestTransactionInput_BuildParsesDates(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tx, err := TransactionInput{
		Type: TransactionTypeIncome, Amount: dec("1"), Description: "x", Date: "2024-02-01",
	}.Build("u", "t", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), tx.Date)

	tx, err = TransactionInput{
		Type: TransactionTypeIncome, Amount: dec("1"), Description: "x", Date: "2024-02-01T08:30:00Z",
	}.Build("u", "t", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 30, 0, 0, time.UTC), tx.Date)
}

func TestSignedAmount(t *testing.T) {
	income := &Transaction{Type: TransactionTypeIncome, Amount: decimal.NewFromInt(100)}
	expense := &Transaction{Type: TransactionTypeExpense, Amount: decimal.NewFromInt(40)}

	assert.True(t, income.SignedAmount().Equal(decimal.NewFromInt(100)))
	assert.True(t, expense.SignedAmount().Equal(decimal.NewFromInt(-40)))
	assert.True(t, SumSigned([]*Transaction{income, expense}).Equal(decimal.NewFromInt(60)))
	assert.True(t, SumSigned(nil).IsZero())
}

func TestTransactionPatch_Apply(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	base := func() *Transaction {
		return &Transaction{
			ID: "tx-1", UserID: "u", Type: TransactionTypeExpense,
			Amount: decimal.NewFromInt(50), Description: "Lunch", Category: "Food",
		}
	}

	t.Run("changes only provided fields", func(t *testing.T) {
		tx := base()
		income := TransactionTypeIncome
		require.NoError(t, TransactionPatch{Type: &income, Amount: dec("75.5")}.Apply(tx, now))
		assert.Equal(t, TransactionTypeIncome, tx.Type)
		assert.True(t, tx.Amount.Equal(decimal.RequireFromString("75.5")))
		assert.Equal(t, "Lunch", tx.Description)
		assert.Equal(t, "Food", tx.Category)
		assert.Equal(t, now, tx.UpdatedAt)
	})

	t.Run("rejects invalid result", func(t *testing.T) {
		tx := base()
		empty := ""
		err := TransactionPatch{Description: &empty}.Apply(tx, now)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("blank category resets to default", func(t *testing.T) {
		tx := base()
		blank := " "
		require.NoError(t, TransactionPatch{Category: &blank}.Apply(tx, now))
		assert.Equal(t, DefaultCategory, tx.Category)
	})
}

func TestErrors(t *testing.T) {
	err := NewNotFound("transaction", "abc")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), `transaction "abc"`)

	verr := NewValidationError("amount", "bad")
	assert.True(t, IsValidation(verr))
	assert.False(t, IsNotFound(verr))
}

func TestUserInput_Build(t *testing.T) {
	now := time.Now()

	_, err := UserInput{Name: " "}.Build("id", now)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	u, err := UserInput{Name: "Ada"}.Build("id", now)
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, u.Currency)
	assert.True(t, u.CurrentBalance.IsZero())
	assert.Equal(t, DefaultCurrency, (*User)(nil).CurrencySymbol())
}
