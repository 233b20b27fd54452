package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"monthly-spend/internal/cli"
	"monthly-spend/internal/core"
)

func newCardCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Register and inspect payment cards",
	}

	var (
		userID string
		cutoff int
	)
	put := &cobra.Command{
		Use:   "put <card-id>",
		Short: "Create or replace a card and its billing cutoff day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			card := core.Card{ID: args[0], UserID: userID, BillingCutoffDay: cutoff}
			if err := card.Validate(); err != nil {
				return err
			}
			return e.withStores(cmd.Context(), func(s *cli.Stores) error {
				if err := s.Cards.PutCard(cmd.Context(), card); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "card %s saved (user %s, cutoff day %d)\n", card.ID, card.UserID, card.BillingCutoffDay)
				return nil
			})
		},
	}
	put.Flags().StringVar(&userID, "user", "", "owner of the card")
	put.Flags().IntVar(&cutoff, "cutoff", 0, "billing cutoff day (1-31)")
	_ = put.MarkFlagRequired("user")
	_ = put.MarkFlagRequired("cutoff")

	get := &cobra.Command{
		Use:   "get <card-id>",
		Short: "Print a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStores(cmd.Context(), func(s *cli.Stores) error {
				card, err := s.Cards.GetCard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, card)
			})
		},
	}

	cmd.AddCommand(put, get)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
