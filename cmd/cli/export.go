package main

import (
	"fmt"
	"os"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/export"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var (
		userID string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's transactions to a local CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withRepo(ctx, func(repo store.Repository) error {
				txs, err := store.ListAll(ctx, repo, domain.TransactionFilter{UserID: userID})
				if err != nil {
					return fmt.Errorf("loading transactions: %w", err)
				}

				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()

				bar := progressbar.NewOptions(len(txs),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Exporting transactions"),
				)
				rows, err := export.WriteCSV(f, txs, func() { _ = bar.Add(1) })
				_ = bar.Finish()
				if err != nil {
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("closing %s: %w", out, err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %d transactions to %s\n", rows, out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&out, "out", "transactions.csv", "output file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
