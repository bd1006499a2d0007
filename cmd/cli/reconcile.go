package main

import (
	"fmt"

	"github.com/dvloznov/cashflow-tracker/internal/reconcile"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	var (
		userID string
		repair bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a user's stored balance with the sum of their transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRepo(ctx, func(repo store.Repository) error {
				rep, err := reconcile.New(repo, log).Check(ctx, userID, repair)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Transactions:     %d\n", rep.TransactionCount)
				fmt.Fprintf(out, "Stored balance:   %s\n", rep.StoredBalance.StringFixed(2))
				fmt.Fprintf(out, "Computed balance: %s\n", rep.ComputedBalance.StringFixed(2))
				switch {
				case rep.Consistent:
					fmt.Fprintln(out, "Balance is consistent.")
				case rep.Repaired:
					fmt.Fprintf(out, "Drift of %s repaired.\n", rep.Drift.StringFixed(2))
				default:
					fmt.Fprintf(out, "Drift of %s found. Re-run with --repair to fix it.\n", rep.Drift.StringFixed(2))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().BoolVar(&repair, "repair", false, "overwrite the stored balance with the computed one")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
