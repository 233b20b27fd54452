package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"monthly-spend/internal/cli"
	"monthly-spend/internal/core"
)

func newShowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print aggregates",
	}

	month := &cobra.Command{
		Use:   "month <user-id> <year> [month]",
		Short: "Print one monthly aggregate, or every month of the year (months are 0-11)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("year must be a number: %w", err)
			}
			return e.withStores(cmd.Context(), func(s *cli.Stores) error {
				if len(args) == 2 {
					list, err := s.ListMonthly(cmd.Context(), args[0], year)
					if err != nil {
						return err
					}
					return printJSON(cmd, list)
				}
				m, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("month must be a number: %w", err)
				}
				agg, err := s.GetMonthly(cmd.Context(), core.MonthKey{UserID: args[0], Month: m, Year: year})
				if err != nil {
					return err
				}
				return printJSON(cmd, agg)
			})
		},
	}

	fixed := &cobra.Command{
		Use:   "fixed-cost <user-id>",
		Short: "Print the monthly fixed cost of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStores(cmd.Context(), func(s *cli.Stores) error {
				fc, err := s.GetFixedCost(cmd.Context(), args[0])
				if errors.Is(err, core.ErrNotFound) {
					fc = core.FixedCostAggregate{UserID: args[0], Value: decimal.Zero}
				} else if err != nil {
					return err
				}
				return printJSON(cmd, fc)
			})
		},
	}

	cmd.AddCommand(month, fixed)
	return cmd
}
