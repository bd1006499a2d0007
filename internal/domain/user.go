package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the symbol used when a user has not configured one.
const DefaultCurrency = "$"

// BusinessSetup is the optional business profile attached to a user.
type BusinessSetup struct {
	BusinessName string `json:"businessName,omitempty"`
	BusinessType string `json:"businessType,omitempty"`
	Industry     string `json:"industry,omitempty"`
}

// User owns transactions and a running balance.
// CurrentBalance is only ever changed by applying signed deltas in the store.
type User struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Currency       string          `json:"currency"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	BusinessSetup  *BusinessSetup  `json:"businessSetup,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CurrencySymbol returns the configured currency or DefaultCurrency.
func (u *User) CurrencySymbol() string {
	if u == nil || u.Currency == "" {
		return DefaultCurrency
	}
	return u.Currency
}

// UserInput is the payload accepted when registering a user.
type UserInput struct {
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Currency      string         `json:"currency"`
	BusinessSetup *BusinessSetup `json:"businessSetup"`
}

// Build validates the input and returns a user with a zero balance.
func (in UserInput) Build(id string, now time.Time) (*User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewValidationError("name", "Name is required")
	}
	currency := strings.TrimSpace(in.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	return &User{
		ID:             id,
		Name:           name,
		Email:          strings.TrimSpace(in.Email),
		Currency:       currency,
		CurrentBalance: decimal.Zero,
		BusinessSetup:  in.BusinessSetup,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
