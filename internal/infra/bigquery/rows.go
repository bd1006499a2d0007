package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	Type   string   `bigquery:"type"`   // REQUIRED, income | expense
	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC, always positive

	Description string `bigquery:"description"` // REQUIRED
	Category    string `bigquery:"category"`    // REQUIRED

	TransactionTS time.Time `bigquery:"transaction_ts"` // REQUIRED

	Tags   []string            `bigquery:"tags"`   // REPEATED STRING
	Source bigquery.NullString `bigquery:"source"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

// UserRow mirrors the users table.
type UserRow struct {
	UserID   string              `bigquery:"user_id"`  // REQUIRED
	Name     string              `bigquery:"name"`     // REQUIRED
	Email    bigquery.NullString `bigquery:"email"`    // NULLABLE
	Currency string              `bigquery:"currency"` // REQUIRED

	CurrentBalance *big.Rat `bigquery:"current_balance"` // REQUIRED NUMERIC

	BusinessName bigquery.NullString `bigquery:"business_name"` // NULLABLE
	BusinessType bigquery.NullString `bigquery:"business_type"` // NULLABLE
	Industry     bigquery.NullString `bigquery:"industry"`      // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}

func ratFromDecimal(d decimal.Decimal) *big.Rat {
	return d.Round(2).Rat()
}

func decimalFromRat(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	// NUMERIC carries at most 9 fractional digits; money only keeps cents.
	return decimal.RequireFromString(r.FloatString(2))
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// TransactionToRow converts a domain transaction for storage.
func TransactionToRow(t *domain.Transaction) *TransactionRow {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return &TransactionRow{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Type:          string(t.Type),
		Amount:        ratFromDecimal(t.Amount),
		Description:   t.Description,
		Category:      t.Category,
		TransactionTS: t.Date.UTC(),
		Tags:          tags,
		Source:        nullString(t.Source),
		CreatedTS:     t.CreatedAt.UTC(),
		UpdatedTS:     t.UpdatedAt.UTC(),
	}
}

// ToDomain converts a stored row back into a transaction.
func (r *TransactionRow) ToDomain() *domain.Transaction {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Type:        domain.TransactionType(r.Type),
		Amount:      decimalFromRat(r.Amount),
		Description: r.Description,
		Category:    r.Category,
		Date:        r.TransactionTS,
		Tags:        tags,
		Source:      r.Source.StringVal,
		CreatedAt:   r.CreatedTS,
		UpdatedAt:   r.UpdatedTS,
	}
}

// UserToRow converts a domain user for storage.
func UserToRow(u *domain.User) *UserRow {
	row := &UserRow{
		UserID:         u.ID,
		Name:           u.Name,
		Email:          nullString(u.Email),
		Currency:       u.CurrencySymbol(),
		CurrentBalance: ratFromDecimal(u.CurrentBalance),
		CreatedTS:      u.CreatedAt.UTC(),
		UpdatedTS:      u.UpdatedAt.UTC(),
	}
	if bs := u.BusinessSetup; bs != nil {
		row.BusinessName = nullString(bs.BusinessName)
		row.BusinessType = nullString(bs.BusinessType)
		row.Industry = nullString(bs.Industry)
	}
	return row
}

// ToDomain converts a stored row back into a user.
func (r *UserRow) ToDomain() *domain.User {
	u := &domain.User{
		ID:             r.UserID,
		Name:           r.Name,
		Email:          r.Email.StringVal,
		Currency:       r.Currency,
		CurrentBalance: decimalFromRat(r.CurrentBalance),
		CreatedAt:      r.CreatedTS,
		UpdatedAt:      r.UpdatedTS,
	}
	if r.BusinessName.Valid || r.BusinessType.Valid || r.Industry.Valid {
		u.BusinessSetup = &domain.BusinessSetup{
			BusinessName: r.BusinessName.StringVal,
			BusinessType: r.BusinessType.StringVal,
			Industry:     r.Industry.StringVal,
		}
	}
	return u
}
