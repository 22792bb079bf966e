package cmd

import (
	"fmt"

	"github.com/rustyeddy/livermore/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage livermore configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  livermore config init -o livermore.yaml
  livermore config validate -f livermore.yaml`,
		// Config files are handled explicitly here, not loaded up front.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  livermore --config %s check\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "livermore.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			terms, err := cfg.Terms.Parse()
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Symbol:   %s (%s)\n", cfg.Symbol, cfg.Currency)
			fmt.Fprintf(out, "  Data dir: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "  Margin:   initial %s, maintenance %s, liquidation %s\n",
				ratioPct(terms.InitialMarginRatio),
				ratioPct(terms.MaintenanceMarginRatio),
				ratioPct(terms.LiquidationMarginRatio))
			fmt.Fprintf(out, "  Fees:     commission %s, borrow %s/yr\n",
				ratioPct(terms.CommissionRate), ratioPct(terms.BorrowFeeAnnualRate))
			fmt.Fprintf(out, "  Journal:  %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
