// Package insights derives analytics from a user's transactions. Everything
// here is a pure function of its inputs: no I/O, no clock, no shared state.
package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// HistoryMonths is the number of calendar months before the current one
	// used for averages. Averages always divide by this, however much history
	// the user actually has.
	HistoryMonths = 3

	SpendingIncreaseThreshold = 20.0 // percent above average
	InflowDecreaseThreshold   = 15.0 // percent below average
	ProfitMarginThreshold     = 20.0 // percent
	RunwayWarningDays         = 30

	// BillWindowDays bounds how far ahead a recurring bill counts as upcoming.
	BillWindowDays = 14

	// NoBurnDays is reported as runway when nothing is being spent.
	NoBurnDays = 999

	spendingPenalty = 15
	inflowPenalty   = 20
	runwayPenalty   = 25
	marginPenalty   = 10

	defaultRecommendation = "Great job! Your finances look healthy. Keep up the good work."
)

var hundred = decimal.NewFromInt(100)

// Input is everything Analyze needs.
type Input struct {
	Transactions   []*domain.Transaction
	CurrentBalance decimal.Decimal
	Now            time.Time
	// Currency prefixes amounts in recommendation text. Defaults to "$".
	Currency string
}

// UpcomingBill is a recurring expense projected to fall due soon.
type UpcomingBill struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueInDays   int             `json:"dueInDays"`
}

// Result is the full, self-contained output of the insight engine.
type Result struct {
	CurrentMonthIncome   decimal.Decimal `json:"currentMonthIncome"`
	CurrentMonthExpenses decimal.Decimal `json:"currentMonthExpenses"`
	AverageIncome        decimal.Decimal `json:"averageIncome"`
	AverageExpenses      decimal.Decimal `json:"averageExpenses"`

	IsSpendingHigh   bool    `json:"isSpendingHigh"`
	SpendingIncrease float64 `json:"spendingIncrease"`
	IsInflowLow      bool    `json:"isInflowLow"`
	InflowDecrease   float64 `json:"inflowDecrease"`

	UpcomingBills []UpcomingBill `json:"upcomingBills"`

	DailyBurnRate decimal.Decimal `json:"dailyBurnRate"`
	DaysRemaining int             `json:"daysRemaining"`
	ProfitMargin  float64         `json:"profitMargin"`

	HealthScore     int      `json:"healthScore"`
	Recommendations []string `json:"recommendations"`
}

// Analyze runs the insight engine. It never fails: an empty history yields
// zero sums, no flags, a health score of 100 and the default recommendation.
func Analyze(in Input) Result {
	currency := in.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	monthStart := startOfMonth(in.Now)
	nextMonth := monthStart.AddDate(0, 1, 0)
	historyStart := monthStart.AddDate(0, -HistoryMonths, 0)

	var curIncome, curExpenses, histIncome, histExpenses decimal.Decimal
	for _, t := range in.Transactions {
		switch {
		case inRange(t.Date, monthStart, nextMonth):
			if t.IsIncome() {
				curIncome = curIncome.Add(t.Amount)
			} else {
				curExpenses = curExpenses.Add(t.Amount)
			}
		case inRange(t.Date, historyStart, monthStart):
			if t.IsIncome() {
				histIncome = histIncome.Add(t.Amount)
			} else {
				histExpenses = histExpenses.Add(t.Amount)
			}
		}
	}

	divisor := decimal.NewFromInt(HistoryMonths)
	avgIncome := histIncome.Div(divisor)
	avgExpenses := histExpenses.Div(divisor)

	r := Result{
		CurrentMonthIncome:   curIncome.Round(2),
		CurrentMonthExpenses: curExpenses.Round(2),
		AverageIncome:        avgIncome.Round(2),
		AverageExpenses:      avgExpenses.Round(2),
	}

	spendingIncrease := decimal.Zero
	if avgExpenses.IsPositive() {
		spendingIncrease = curExpenses.Sub(avgExpenses).Div(avgExpenses).Mul(hundred)
	}
	r.IsSpendingHigh = spendingIncrease.GreaterThan(decimal.NewFromFloat(SpendingIncreaseThreshold))
	r.SpendingIncrease = roundFloat(spendingIncrease)

	inflowDecrease := decimal.Zero
	if avgIncome.IsPositive() {
		inflowDecrease = avgIncome.Sub(curIncome).Div(avgIncome).Mul(hundred)
	}
	r.IsInflowLow = inflowDecrease.GreaterThan(decimal.NewFromFloat(InflowDecreaseThreshold))
	r.InflowDecrease = roundFloat(inflowDecrease)

	r.UpcomingBills = DetectUpcomingBills(in.Transactions, in.Now)

	burn := curExpenses.Div(decimal.NewFromInt(int64(in.Now.Day())))
	r.DailyBurnRate = burn.Round(2)
	r.DaysRemaining = runway(in.CurrentBalance, burn)

	margin := decimal.Zero
	if curIncome.IsPositive() {
		margin = curIncome.Sub(curExpenses).Div(curIncome).Mul(hundred)
	}
	r.ProfitMargin = roundFloat(margin)

	r.HealthScore = healthScore(r, curIncome.IsPositive() && margin.LessThan(decimal.NewFromFloat(ProfitMarginThreshold)))
	r.Recommendations = recommendations(r, curExpenses.Sub(avgExpenses), currency)
	return r
}

func healthScore(r Result, lowMargin bool) int {
	score := 100
	if r.IsSpendingHigh {
		score -= spendingPenalty
	}
	if r.IsInflowLow {
		score -= inflowPenalty
	}
	if r.DaysRemaining < RunwayWarningDays {
		score -= runwayPenalty
	}
	// A month without income has no margin to judge.
	if lowMargin {
		score -= marginPenalty
	}
	return clamp(score, 0, 100)
}

// recommendations are emitted in a fixed order: spending, inflow, bills, runway.
func recommendations(r Result, overspend decimal.Decimal, currency string) []string {
	var recs []string
	if r.IsSpendingHigh {
		recs = append(recs, fmt.Sprintf(
			"Your spending is %.0f%% above your 3-month average. Try cutting back by %s%s this month.",
			r.SpendingIncrease, currency, overspend.StringFixed(2)))
	}
	if r.IsInflowLow {
		recs = append(recs, fmt.Sprintf(
			"Your income is %.0f%% below your 3-month average. Follow up on outstanding invoices and receivables.",
			r.InflowDecrease))
	}
	if len(r.UpcomingBills) > 0 {
		total := decimal.Zero
		for _, b := range r.UpcomingBills {
			total = total.Add(b.Amount)
		}
		recs = append(recs, fmt.Sprintf(
			"You have %d upcoming bill(s) in the next %d days. Set aside %s%s to cover them.",
			len(r.UpcomingBills), BillWindowDays, currency, total.StringFixed(2)))
	}
	switch {
	case r.DaysRemaining <= 0:
		recs = append(recs, "Urgent: your cash is already exhausted at your current burn rate. Reduce expenses or secure new income.")
	case r.DaysRemaining < RunwayWarningDays:
		recs = append(recs, fmt.Sprintf(
			"Urgent: at your current burn rate you have only %d days of cash left. Reduce expenses or secure new income.",
			r.DaysRemaining))
	}
	if len(recs) == 0 {
		recs = append(recs, defaultRecommendation)
	}
	return recs
}

// billGroup collects the expense occurrences sharing a normalized description.
type billGroup struct {
	amount decimal.Decimal // amount of the latest occurrence
	last   time.Time
	dates  []time.Time
}

// DetectUpcomingBills finds recurring expenses whose projected next
// occurrence falls within BillWindowDays of now, soonest first.
func DetectUpcomingBills(txs []*domain.Transaction, now time.Time) []UpcomingBill {
	groups := make(map[string]*billGroup)
	for _, t := range txs {
		if !t.IsExpense() {
			continue
		}
		key := normalizeDescription(t.Description)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &billGroup{}
			groups[key] = g
		}
		if len(g.dates) == 0 || !t.Date.Before(g.last) {
			g.amount, g.last = t.Amount, t.Date
		}
		g.dates = append(g.dates, t.Date)
	}

	bills := []UpcomingBill{}
	for key, g := range groups {
		if len(g.dates) < 2 {
			continue
		}
		sort.Slice(g.dates, func(i, j int) bool { return g.dates[i].Before(g.dates[j]) })

		var intervalSum int
		for i := 1; i < len(g.dates); i++ {
			intervalSum += floorDays(g.dates[i].Sub(g.dates[i-1]))
		}
		avgInterval := float64(intervalSum) / float64(len(g.dates)-1)

		last := g.dates[len(g.dates)-1]
		next := last.Add(time.Duration(avgInterval * float64(24*time.Hour)))
		due := floorDays(next.Sub(now))
		if due < 0 || due > BillWindowDays {
			continue
		}
		bills = append(bills, UpcomingBill{
			Description: capitalize(key),
			Amount:      g.amount.Round(2),
			DueInDays:   due,
		})
	}

	sort.SliceStable(bills, func(i, j int) bool {
		if bills[i].DueInDays != bills[j].DueInDays {
			return bills[i].DueInDays < bills[j].DueInDays
		}
		return bills[i].Description < bills[j].Description
	})
	return bills
}

func runway(balance, burn decimal.Decimal) int {
	if !burn.IsPositive() {
		return NoBurnDays
	}
	return int(balance.Div(burn).Floor().IntPart())
}

func normalizeDescription(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func floorDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// inRange reports start <= t < end.
func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func roundFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
