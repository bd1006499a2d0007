// Package aiservice talks to the optional AI delegate that enriches insights
// and answers chat messages. Callers treat every error from a Delegate as
// "AI unavailable" and fall back to local behaviour.
package aiservice

import (
	"context"
	"errors"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable is returned by the Disabled delegate.
	ErrUnavailable = errors.New("ai delegate unavailable")
	// ErrCircuitOpen is returned while the breaker for an operation is open.
	ErrCircuitOpen = errors.New("ai delegate circuit open")
	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("ai delegate timeout")
	// ErrEmptyReply is returned when the delegate answers with nothing usable.
	ErrEmptyReply = errors.New("ai delegate returned an empty reply")
)

// Delegate is the contract of the remote AI collaborator.
type Delegate interface {
	Insights(ctx context.Context, req InsightsRequest) (*InsightsReply, error)
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
}

type UserInfo struct {
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// InsightsRequest carries the locally computed insights to the delegate.
type InsightsRequest struct {
	Insights     insights.Result       `json:"insights"`
	BusinessInfo *domain.BusinessSetup `json:"businessInfo,omitempty"`
	UserInfo     *UserInfo             `json:"userInfo,omitempty"`
}

type InsightsReply struct {
	Recommendations []string `json:"recommendations"`
	CashflowTips    []string `json:"cashflowTips"`
}

type ChatUserData struct {
	Name           string          `json:"name"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	Currency       string          `json:"currency"`
	BusinessName   string          `json:"businessName,omitempty"`
	BusinessType   string          `json:"businessType,omitempty"`
}

// ChatTransaction is the trimmed transaction shape sent as chat context.
type ChatTransaction struct {
	Type        domain.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Date        string                 `json:"date"` // YYYY-MM-DD
}

// ChatMessage is one prior turn, passed through to the delegate unchanged.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	UserMessage         string            `json:"userMessage"`
	UserData            ChatUserData      `json:"userData"`
	RecentTransactions  []ChatTransaction `json:"recentTransactions"`
	ConversationHistory []ChatMessage     `json:"conversationHistory"`
}

type ChatReply struct {
	Response    string         `json:"response"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Insights    map[string]any `json:"insights,omitempty"`
}

// NewChatTransaction converts a stored transaction into chat context.
func NewChatTransaction(t *domain.Transaction) ChatTransaction {
	return ChatTransaction{
		Type:        t.Type,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date.UTC().Format(domain.DateLayout),
	}
}

// Disabled is the delegate used when no AI provider is configured.
type Disabled struct{}

func (Disabled) Insights(context.Context, InsightsRequest) (*InsightsReply, error) {
	return nil, ErrUnavailable
}

func (Disabled) Chat(context.Context, ChatRequest) (*ChatReply, error) {
	return nil, ErrUnavailable
}

var _ Delegate = Disabled{}
