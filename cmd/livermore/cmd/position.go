package cmd

import (
	"fmt"
	"strconv"

	"github.com/rustyeddy/livermore/journal"
	"github.com/rustyeddy/livermore/position"
	"github.com/rustyeddy/livermore/sim"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <shares> <capital>",
		Short: "Sell shares short at the current price",
		Long: `Open a short position of <shares> backed by <capital>.

The capital must cover the initial margin plus the opening commission.

Example:
  livermore open 1000 50000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: shares %q: %v", position.ErrInvalidOrder, args[0], err)
			}
			capital, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("%w: capital %q: %v", position.ErrInvalidOrder, args[1], err)
			}

			return a.withEngine(cmd.Context(), func(e *sim.Engine) error {
				rep, err := e.Open(cmd.Context(), shares, capital)
				if err != nil {
					return err
				}
				printOpen(cmd.OutOrStdout(), a.cfg.Currency, rep)
				return nil
			})
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Mark the open position to market",
		Long: `Fetch the current price, record a snapshot and report margin health.

A margin level below the liquidation ratio force-closes the position.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *sim.Engine) error {
				rep, err := e.Check(cmd.Context())
				if err != nil {
					return err
				}
				printCheck(cmd.OutOrStdout(), a.cfg.Currency, rep)
				return nil
			})
		},
	}
}

func newCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close",
		Short: "Buy the position back at the current price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *sim.Engine) error {
				rep, err := e.Close(cmd.Context())
				if err != nil {
					return err
				}
				printClose(cmd.OutOrStdout(), a.cfg.Currency, rep)
				return nil
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored position without fetching a quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *sim.Engine) error {
				p, err := e.Status(cmd.Context())
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No active position.")
					return nil
				}
				printPosition(cmd.OutOrStdout(), a.cfg.Currency, p)
				return nil
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var org bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List closed and liquidated positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *sim.Engine) error {
				ps, err := e.History(cmd.Context())
				if err != nil {
					return err
				}
				if !org {
					printHistory(cmd.OutOrStdout(), a.cfg.Currency, ps)
					return nil
				}

				recs, err := sim.TradeRecords(ps)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&org, "org", false, "Print as Org-mode journal entries")
	return cmd
}
