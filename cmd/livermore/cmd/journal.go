package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/livermore/journal"
	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the SQLite trade journal",
		Long: `Query trade and equity records mirrored into the SQLite journal.

Subcommands:
  trade   - Show one trade by position ID
  trades  - List trades, optionally for one day
  equity  - List the equity snapshots of a position

Examples:
  livermore journal trade 01HKZ9Y3M0ABCDEF
  livermore journal trades --day 2024-01-15`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite journal (default from config)")

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			path = a.cfg.Path(a.cfg.Journal.DBPath)
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	tradeCmd := &cobra.Command{
		Use:   "trade <position-id>",
		Short: "Show one trade as an Org-mode entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			rec, err := j.GetTrade(args[0])
			if err != nil {
				return fmt.Errorf("get trade: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
			return nil
		},
	}

	var day string
	tradesCmd := &cobra.Command{
		Use:   "trades",
		Short: "List trades as Org-mode entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			var recs []journal.TradeRecord
			if day == "" {
				recs, err = j.ListTrades()
			} else {
				var start, end time.Time
				start, end, err = dayBounds(time.Local, day)
				if err != nil {
					return fmt.Errorf("date: %w", err)
				}
				recs, err = j.ListTradesClosedBetween(start, end)
			}
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
			return nil
		},
	}
	tradesCmd.Flags().StringVar(&day, "day", "", "Only trades closed on this day (YYYY-MM-DD, local time)")

	equityCmd := &cobra.Command{
		Use:   "equity <position-id>",
		Short: "List the equity snapshots of a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			snaps, err := j.ListEquity(args[0])
			if err != nil {
				return fmt.Errorf("query equity: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPRICE\tEQUITY\tNET P&L\tMARGIN\tHEALTH")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.Time.UTC().Format(time.RFC3339),
					money(a.cfg.Currency, s.Price),
					money(a.cfg.Currency, s.Equity),
					money(a.cfg.Currency, s.NetPnl),
					ratioPct(s.MarginLevel),
					s.Health)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(tradeCmd, tradesCmd, equityCmd)
	return cmd
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
