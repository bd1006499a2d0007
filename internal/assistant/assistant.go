// Package assistant answers chat messages about a user's finances, through
// the AI delegate when it is reachable and a fixed rule table otherwise.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/cashflow-tracker/internal/aiservice"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RecentLimit is how many of the newest transactions are used as chat context.
const RecentLimit = 10

// ChatInput is one user message with its context.
type ChatInput struct {
	User    *domain.User
	Message string
	// Recent holds the user's newest transactions, newest first.
	Recent  []*domain.Transaction
	History []aiservice.ChatMessage
}

// Reply is the chat response body.
type Reply struct {
	Response    string         `json:"response"`
	Suggestions []string       `json:"suggestions"`
	Insights    map[string]any `json:"insights"`
	AIAvailable bool           `json:"aiAvailable"`
}

type Assistant struct {
	delegate aiservice.Delegate
	log      zerolog.Logger
}

func New(delegate aiservice.Delegate, log zerolog.Logger) *Assistant {
	if delegate == nil {
		delegate = aiservice.Disabled{}
	}
	return &Assistant{delegate: delegate, log: log}
}

// Reply forwards the message to the delegate and falls back to the rule
// table on any failure.
func (a *Assistant) Reply(ctx context.Context, in ChatInput) Reply {
	recent := in.Recent
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	in.Recent = recent

	out, err := a.delegate.Chat(ctx, buildRequest(in))
	if err != nil {
		a.log.Warn().Err(err).Str("user_id", userID(in.User)).Msg("AI chat unavailable, using rule-based reply")
		return Fallback(in)
	}

	suggestions := out.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return Reply{
		Response:    out.Response,
		Suggestions: suggestions,
		Insights:    out.Insights,
		AIAvailable: true,
	}
}

func buildRequest(in ChatInput) aiservice.ChatRequest {
	req := aiservice.ChatRequest{
		UserMessage:         in.Message,
		RecentTransactions:  make([]aiservice.ChatTransaction, 0, len(in.Recent)),
		ConversationHistory: in.History,
	}
	if req.ConversationHistory == nil {
		req.ConversationHistory = []aiservice.ChatMessage{}
	}
	if u := in.User; u != nil {
		req.UserData = aiservice.ChatUserData{
			Name:           u.Name,
			CurrentBalance: u.CurrentBalance,
			Currency:       u.CurrencySymbol(),
		}
		if u.BusinessSetup != nil {
			req.UserData.BusinessName = u.BusinessSetup.BusinessName
			req.UserData.BusinessType = u.BusinessSetup.BusinessType
		}
	}
	for _, t := range in.Recent {
		req.RecentTransactions = append(req.RecentTransactions, aiservice.NewChatTransaction(t))
	}
	return req
}

func userID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// chatContext is what every rule can draw on.
type chatContext struct {
	name          string
	currency      string
	balance       decimal.Decimal
	totalIncome   decimal.Decimal
	totalExpenses decimal.Decimal
	recent        []*domain.Transaction
}

func newChatContext(in ChatInput) chatContext {
	c := chatContext{currency: domain.DefaultCurrency, recent: in.Recent}
	if in.User != nil {
		c.name = in.User.Name
		c.currency = in.User.CurrencySymbol()
		c.balance = in.User.CurrentBalance
	}
	for _, t := range in.Recent {
		if t.IsIncome() {
			c.totalIncome = c.totalIncome.Add(t.Amount)
		} else {
			c.totalExpenses = c.totalExpenses.Add(t.Amount)
		}
	}
	return c
}

func (c chatContext) money(d decimal.Decimal) string {
	return c.currency + d.StringFixed(2)
}

// rule is one entry of the fallback table.
type rule struct {
	name  string
	match func(msg string) bool
	build func(c chatContext) Reply
}

func containsAny(words ...string) func(string) bool {
	return func(msg string) bool {
		for _, w := range words {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}
}

var (
	lowBalance     = decimal.NewFromInt(500)
	healthyBalance = decimal.NewFromInt(5000)
)

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{name: "balance", match: containsAny("balance"), build: balanceReply},
	{name: "spending", match: containsAny("spend", "expense"), build: spendingReply},
	{name: "income", match: containsAny("income", "revenue"), build: incomeReply},
	{name: "help", match: containsAny("help", "what can you do"), build: helpReply},
}

var defaultRule = rule{name: "default", match: func(string) bool { return true }, build: defaultReply}

// selectRule returns the first rule matching msg, or defaultRule.
func selectRule(msg string) rule {
	msg = strings.ToLower(msg)
	for _, r := range rules {
		if r.match(msg) {
			return r
		}
	}
	return defaultRule
}

// Fallback answers from the rule table without any remote call.
func Fallback(in ChatInput) Reply {
	reply := selectRule(in.Message).build(newChatContext(in))
	reply.AIAvailable = false
	return reply
}

func balanceReply(c chatContext) Reply {
	var advice string
	switch {
	case c.balance.LessThan(lowBalance):
		advice = "Consider reviewing your expenses to improve cash flow."
	case c.balance.GreaterThan(healthyBalance):
		advice = "Your balance looks healthy!"
	default:
		advice = "Keep monitoring your spending."
	}
	return Reply{
		Response: fmt.Sprintf("Your current balance is %s. %s", c.money(c.balance), advice),
		Suggestions: []string{
			"Show my recent transactions",
			"What are my biggest expenses?",
			"Give me financial advice",
		},
		Insights: map[string]any{
			"balance":       c.balance,
			"totalIncome":   c.totalIncome,
			"totalExpenses": c.totalExpenses,
		},
	}
}

func spendingReply(c chatContext) Reply {
	var top *domain.Transaction
	for _, t := range c.recent {
		if t.IsExpense() && (top == nil || t.Amount.GreaterThan(top.Amount)) {
			top = t
		}
	}

	msg := fmt.Sprintf("You've spent %s recently.", c.money(c.totalExpenses))
	var topDescription any
	if top != nil {
		what := top.Description
		if what == "" {
			what = top.Category
		}
		msg += fmt.Sprintf(" Your largest expense was %s for %s.", c.money(top.Amount), what)
		topDescription = top.Description
	}
	return Reply{
		Response: msg,
		Suggestions: []string{
			"How can I reduce expenses?",
			"Show income vs expenses",
			"What's my cash flow status?",
		},
		Insights: map[string]any{
			"totalExpenses": c.totalExpenses,
			"topExpense":    topDescription,
		},
	}
}

func incomeReply(c chatContext) Reply {
	net := c.totalIncome.Sub(c.totalExpenses)
	return Reply{
		Response: fmt.Sprintf("Your recent income is %s. Net cash flow: %s.", c.money(c.totalIncome), c.money(net)),
		Suggestions: []string{
			"How can I increase revenue?",
			"Show my profit margin",
			"Analyze my financial health",
		},
		Insights: map[string]any{
			"totalIncome": c.totalIncome,
			"netCashflow": net,
		},
	}
}

func helpReply(c chatContext) Reply {
	name := c.name
	if name == "" {
		name = "there"
	}
	return Reply{
		Response: fmt.Sprintf("Hi %s! I'm your AI financial assistant. I can help you:\n"+
			"• Check your balance and transactions\n"+
			"• Analyze spending patterns\n"+
			"• Track income vs expenses\n"+
			"• Provide cash flow insights\n"+
			"• Give personalized financial advice\n\n"+
			"What would you like to know?", name),
		Suggestions: []string{
			"What's my current balance?",
			"Analyze my spending",
			"Show recent transactions",
			"Give me financial tips",
		},
	}
}

func defaultReply(c chatContext) Reply {
	return Reply{
		Response: fmt.Sprintf("I'm here to help with your finances! You currently have %s in your account. What would you like to know about your cash flow?", c.money(c.balance)),
		Suggestions: []string{
			"Show my balance",
			"What are my expenses?",
			"Analyze my financial health",
			"Give me advice",
		},
		Insights: map[string]any{
			"balance":          c.balance,
			"transactionCount": len(c.recent),
		},
	}
}
