package insights

import (
	"fmt"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Indicator is the traffic-light summary of a user's runway.
type Indicator string

const (
	IndicatorGreen  Indicator = "green"
	IndicatorYellow Indicator = "yellow"
	IndicatorRed    Indicator = "red"
)

// BurnWindowDays is the trailing window for the cashflow-status burn rate.
const BurnWindowDays = 30

// Status answers "how long until I run out of money".
type Status struct {
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	DailyBurnRate  decimal.Decimal `json:"dailyBurnRate"`
	DaysRemaining  int             `json:"daysRemaining"`
	Indicator      Indicator       `json:"indicator"`
	Phrase         string          `json:"phrase"`
}

// CashflowStatus averages expenses dated within the last BurnWindowDays over
// the full window and projects the balance forward.
func CashflowStatus(txs []*domain.Transaction, balance decimal.Decimal, now time.Time) Status {
	since := now.AddDate(0, 0, -BurnWindowDays)

	spent := decimal.Zero
	for _, t := range txs {
		if t.IsExpense() && !t.Date.Before(since) {
			spent = spent.Add(t.Amount)
		}
	}
	burn := spent.Div(decimal.NewFromInt(BurnWindowDays))
	days := runway(balance, burn)

	s := Status{
		CurrentBalance: balance,
		DailyBurnRate:  burn.Round(2),
		DaysRemaining:  days,
	}
	switch {
	case days > 30:
		s.Indicator = IndicatorGreen
		s.Phrase = fmt.Sprintf("You're doing great! You have %d days of runway.", days)
	case days > 14:
		s.Indicator = IndicatorYellow
		s.Phrase = fmt.Sprintf("Be cautious. You'll be fine for %d more days.", days)
	default:
		s.Indicator = IndicatorRed
		s.Phrase = fmt.Sprintf("Critical! Only %d days remaining. Consider cutting expenses.", days)
	}
	return s
}
