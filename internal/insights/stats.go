package insights

import (
	"sort"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// CategoryStat aggregates one (category, type) pair.
type CategoryStat struct {
	Category string                 `json:"category"`
	Type     domain.TransactionType `json:"type"`
	Total    decimal.Decimal        `json:"total"`
	Count    int                    `json:"count"`
}

// TransactionStats is the all-time aggregate behind /transactions/stats.
type TransactionStats struct {
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Net           decimal.Decimal `json:"net"`
	Count         int             `json:"count"`
	IncomeCount   int             `json:"incomeCount"`
	ExpenseCount  int             `json:"expenseCount"`
	ByCategory    []CategoryStat  `json:"byCategory"`
}

// Stats totals transactions by type and by category.
func Stats(txs []*domain.Transaction) TransactionStats {
	type key struct {
		category string
		typ      domain.TransactionType
	}
	byKey := map[key]*CategoryStat{}

	var s TransactionStats
	for _, t := range txs {
		s.Count++
		if t.IsIncome() {
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
			s.IncomeCount++
		} else {
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
			s.ExpenseCount++
		}
		k := key{t.Category, t.Type}
		cs, ok := byKey[k]
		if !ok {
			cs = &CategoryStat{Category: t.Category, Type: t.Type}
			byKey[k] = cs
		}
		cs.Total = cs.Total.Add(t.Amount)
		cs.Count++
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpenses)

	s.ByCategory = make([]CategoryStat, 0, len(byKey))
	for _, cs := range byKey {
		s.ByCategory = append(s.ByCategory, *cs)
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Type < b.Type
	})
	return s
}
