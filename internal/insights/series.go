package insights

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidPeriods lists the chart windows, in days, that BuildSeries accepts.
var ValidPeriods = []int{7, 30, 90, 365}

// ValidPeriod reports whether days is one of ValidPeriods.
func ValidPeriod(days int) bool {
	for _, p := range ValidPeriods {
		if p == days {
			return true
		}
	}
	return false
}

// Point is one day of a series.
type Point struct {
	Date     civil.Date      `json:"date"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// Series is the daily chart data for a fixed window ending today.
type Series struct {
	Period        int             `json:"period"`
	StartDate     civil.Date      `json:"startDate"`
	EndDate       civil.Date      `json:"endDate"`
	Points        []Point         `json:"points"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Net           decimal.Decimal `json:"net"`
	Categories    []CategoryTotal `json:"categories"` // expenses by category
}

// BuildSeries buckets transactions into one point per calendar day for the
// periodDays days ending on the day of now, in now's location.
func BuildSeries(txs []*domain.Transaction, now time.Time, periodDays int) (Series, error) {
	if !ValidPeriod(periodDays) {
		return Series{}, domain.NewValidationError("period", fmt.Sprintf("Invalid period. Use one of %v", ValidPeriods))
	}

	loc := now.Location()
	end := civil.DateOf(now)
	start := end.AddDays(-(periodDays - 1))

	points := make([]Point, periodDays)
	for i := range points {
		points[i].Date = start.AddDays(i)
	}

	var income, expenses decimal.Decimal
	categories := map[string]decimal.Decimal{}
	for _, t := range txs {
		day := civil.DateOf(t.Date.In(loc))
		if day.Before(start) || day.After(end) {
			continue
		}
		p := &points[day.DaysSince(start)]
		if t.IsIncome() {
			p.Income = p.Income.Add(t.Amount)
			income = income.Add(t.Amount)
		} else {
			p.Expenses = p.Expenses.Add(t.Amount)
			expenses = expenses.Add(t.Amount)
			categories[t.Category] = categories[t.Category].Add(t.Amount)
		}
	}
	for i := range points {
		points[i].Net = points[i].Income.Sub(points[i].Expenses)
	}

	return Series{
		Period:        periodDays,
		StartDate:     start,
		EndDate:       end,
		Points:        points,
		TotalIncome:   income.Round(2),
		TotalExpenses: expenses.Round(2),
		Net:           income.Sub(expenses).Round(2),
		Categories:    categoryTotals(categories, expenses),
	}, nil
}
