package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/insights"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/spf13/cobra"
)

func insightsCmd() *cobra.Command {
	var (
		userID string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Compute the local financial insights for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRepo(ctx, func(repo store.Repository) error {
				u, err := repo.GetUser(ctx, userID)
				if err != nil {
					return fmt.Errorf("loading user: %w", err)
				}
				txs, err := store.ListAll(ctx, repo, domain.TransactionFilter{UserID: userID})
				if err != nil {
					return fmt.Errorf("loading transactions: %w", err)
				}

				res := insights.Analyze(insights.Input{
					Transactions:   txs,
					CurrentBalance: u.CurrentBalance,
					Now:            time.Now().UTC(),
					Currency:       u.CurrencySymbol(),
				})
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				printInsights(cmd.OutOrStdout(), u, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printInsights(w io.Writer, u *domain.User, r insights.Result) {
	cur := u.CurrencySymbol()
	fmt.Fprintf(w, "Health score:      %d/100\n", r.HealthScore)
	fmt.Fprintf(w, "Balance:           %s%s\n", cur, u.CurrentBalance.StringFixed(2))
	fmt.Fprintf(w, "This month:        +%s%s / -%s%s\n", cur, r.CurrentMonthIncome.StringFixed(2), cur, r.CurrentMonthExpenses.StringFixed(2))
	fmt.Fprintf(w, "3-month average:   +%s%s / -%s%s\n", cur, r.AverageIncome.StringFixed(2), cur, r.AverageExpenses.StringFixed(2))
	if r.DaysRemaining == insights.NoBurnDays {
		fmt.Fprintln(w, "Runway:            no spending this month")
	} else {
		fmt.Fprintf(w, "Runway:            %d days at %s%s/day\n", r.DaysRemaining, cur, r.DailyBurnRate.StringFixed(2))
	}

	if len(r.UpcomingBills) > 0 {
		fmt.Fprintln(w, "\nUpcoming bills:")
		for _, b := range r.UpcomingBills {
			fmt.Fprintf(w, "  %-30s %s%s in %d days\n", b.Description, cur, b.Amount.StringFixed(2), b.DueInDays)
		}
	}

	fmt.Fprintln(w, "\nRecommendations:")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
}
