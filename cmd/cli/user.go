package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var in domain.UserInput
	var business domain.BusinessSetup

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if business != (domain.BusinessSetup{}) {
				in.BusinessSetup = &business
			}
			u, err := in.Build(uuid.New().String(), time.Now().UTC())
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(repo store.Repository) error {
				if err := repo.CreateUser(cmd.Context(), u); err != nil {
					return fmt.Errorf("creating user: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), u.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Currency, "currency", domain.DefaultCurrency, "currency symbol")
	cmd.Flags().StringVar(&business.BusinessName, "business-name", "", "business name")
	cmd.Flags().StringVar(&business.BusinessType, "business-type", "", "business type")
	cmd.Flags().StringVar(&business.Industry, "industry", "", "industry")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
