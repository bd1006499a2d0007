package insights

import (
	"sort"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultSummaryMonths is how many calendar months a summary covers when the
// caller does not ask for a specific number.
const DefaultSummaryMonths = 6

// MaxSummaryMonths caps the number of months a summary covers.
const MaxSummaryMonths = 24

// MonthSummary totals one calendar month.
type MonthSummary struct {
	Month            string          `json:"month"` // YYYY-MM
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	Net              decimal.Decimal `json:"net"`
	ProfitMargin     float64         `json:"profitMargin"`
	TransactionCount int             `json:"transactionCount"`
}

// CategoryTotal is the amount attributed to one category.
type CategoryTotal struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage float64         `json:"percentage"`
}

// Summary is the financial summary of the current month with recent history.
type Summary struct {
	CurrentMonth       MonthSummary    `json:"currentMonth"`
	ExpensesByCategory []CategoryTotal `json:"expensesByCategory"`
	Monthly            []MonthSummary  `json:"monthly"` // oldest first, current month last
}

// Summarize totals the current month, breaks its expenses down by category and
// lists the last months calendar months including the current one.
func Summarize(txs []*domain.Transaction, now time.Time, months int) Summary {
	if months <= 0 {
		months = DefaultSummaryMonths
	}
	if months > MaxSummaryMonths {
		months = MaxSummaryMonths
	}

	current := startOfMonth(now)
	first := current.AddDate(0, -(months - 1), 0)

	buckets := make([]*monthAcc, months)
	for i := range buckets {
		buckets[i] = &monthAcc{start: first.AddDate(0, i, 0)}
	}

	categories := map[string]decimal.Decimal{}
	for _, t := range txs {
		if t.Date.Before(first) {
			continue
		}
		idx := monthsBetween(first, t.Date)
		if idx < 0 || idx >= months {
			continue
		}
		buckets[idx].add(t)
		if idx == months-1 && t.IsExpense() {
			categories[t.Category] = categories[t.Category].Add(t.Amount)
		}
	}

	s := Summary{Monthly: make([]MonthSummary, months)}
	for i, b := range buckets {
		s.Monthly[i] = b.summary()
	}
	s.CurrentMonth = s.Monthly[months-1]
	s.ExpensesByCategory = categoryTotals(categories, buckets[months-1].expenses)
	return s
}

type monthAcc struct {
	start    time.Time
	income   decimal.Decimal
	expenses decimal.Decimal
	count    int
}

func (m *monthAcc) add(t *domain.Transaction) {
	if t.IsIncome() {
		m.income = m.income.Add(t.Amount)
	} else {
		m.expenses = m.expenses.Add(t.Amount)
	}
	m.count++
}

func (m *monthAcc) summary() MonthSummary {
	margin := decimal.Zero
	if m.income.IsPositive() {
		margin = m.income.Sub(m.expenses).Div(m.income).Mul(hundred)
	}
	return MonthSummary{
		Month:            m.start.Format("2006-01"),
		Income:           m.income.Round(2),
		Expenses:         m.expenses.Round(2),
		Net:              m.income.Sub(m.expenses).Round(2),
		ProfitMargin:     roundFloat(margin),
		TransactionCount: m.count,
	}
}

// categoryTotals sorts categories by amount, largest first, with each share of total.
func categoryTotals(byCategory map[string]decimal.Decimal, total decimal.Decimal) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(byCategory))
	for cat, amount := range byCategory {
		pct := decimal.Zero
		if total.IsPositive() {
			pct = amount.Div(total).Mul(hundred)
		}
		out = append(out, CategoryTotal{Category: cat, Amount: amount.Round(2), Percentage: roundFloat(pct)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// monthsBetween counts whole calendar months from the month of a to the month of b.
func monthsBetween(a, b time.Time) int {
	b = b.In(a.Location())
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
