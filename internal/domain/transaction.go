package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// DefaultCategory is assigned when a transaction is created without a category.
const DefaultCategory = "Uncategorized"

// SourceManual marks transactions entered through the API.
const SourceManual = "manual"

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// Transaction is one dated income or expense record owned by a user.
// Amount is always positive; the direction lives in Type.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Tags        []string        `json:"tags"`
	Source      string          `json:"source,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SignedAmount returns the amount as it affects the balance:
// positive for income, negative for expense.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeIncome {
		return t.Amount
	}
	return t.Amount.Neg()
}

// IsIncome reports whether the transaction is income.
func (t *Transaction) IsIncome() bool { return t.Type == TransactionTypeIncome }

// IsExpense reports whether the transaction is an expense.
func (t *Transaction) IsExpense() bool { return t.Type == TransactionTypeExpense }

// ValidateTransaction checks the fields every stored transaction must satisfy.
func ValidateTransaction(t *Transaction) error {
	if !t.Type.Valid() {
		return NewValidationError("type", "Invalid or missing transaction type")
	}
	if !t.Amount.IsPositive() {
		return NewValidationError("amount", "Amount must be a positive number")
	}
	if strings.TrimSpace(t.Description) == "" {
		return NewValidationError("description", "Description is required")
	}
	return nil
}

// TransactionInput is the payload accepted when creating a transaction.
type TransactionInput struct {
	Type        TransactionType  `json:"type"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Date        string           `json:"date"`
	Tags        []string         `json:"tags"`
}

// Build validates the input and turns it into a transaction for userID.
// Missing category, date and tags take their defaults.
func (in TransactionInput) Build(userID, id string, now time.Time) (*Transaction, error) {
	amount := decimal.Zero
	if in.Amount != nil {
		amount = in.Amount.Round(2)
	}

	t := &Transaction{
		ID:          id,
		UserID:      userID,
		Type:        in.Type,
		Amount:      amount,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Date:        now,
		Tags:        in.Tags,
		Source:      SourceManual,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Date != "" {
		date, err := ParseDate(in.Date)
		if err != nil {
			return nil, err
		}
		t.Date = date
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	if err := ValidateTransaction(t); err != nil {
		return nil, err
	}
	return t, nil
}

// TransactionPatch carries the fields of an update request; nil fields are left untouched.
type TransactionPatch struct {
	Type        *TransactionType `json:"type"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Date        *string          `json:"date"`
	Tags        []string         `json:"tags"`
}

// Apply merges the patch into t and validates the result.
func (p TransactionPatch) Apply(t *Transaction, now time.Time) error {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = p.Amount.Round(2)
	}
	if p.Description != nil {
		t.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
		if t.Category == "" {
			t.Category = DefaultCategory
		}
	}
	if p.Date != nil && *p.Date != "" {
		date, err := ParseDate(*p.Date)
		if err != nil {
			return err
		}
		t.Date = date
	}
	if p.Tags != nil {
		t.Tags = p.Tags
	}
	t.UpdatedAt = now
	return ValidateTransaction(t)
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (midnight UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, NewValidationError("date", "Invalid date format, expected YYYY-MM-DD or RFC 3339")
}

// DateLayout is the calendar-date format used in query parameters and exports.
const DateLayout = "2006-01-02"

// TransactionFilter scopes a transaction query. UserID is mandatory;
// zero values of the other fields mean "no constraint".
type TransactionFilter struct {
	UserID   string
	Type     TransactionType
	Category string
	From     *time.Time // inclusive
	To       *time.Time // inclusive
	Limit    int
	Offset   int
	Newest   bool // order by date descending instead of ascending
}

// SumSigned returns Σ signed amounts, i.e. the balance the transactions imply.
func SumSigned(txs []*Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(t.SignedAmount())
	}
	return total
}
