package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rustyeddy/livermore/config"
	"github.com/rustyeddy/livermore/internal/logging"
	"github.com/rustyeddy/livermore/journal"
	"github.com/rustyeddy/livermore/market"
	"github.com/rustyeddy/livermore/sim"
	"github.com/rustyeddy/livermore/store"
	"github.com/rustyeddy/livermore/yahoo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
	dataDir    string
	symbol     string
	price      string
	logLevel   string
	journal    string
}

// app carries what the persistent pre-run resolved to every subcommand.
type app struct {
	opts rootOptions
	cfg  *config.Config
	log  *zap.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "livermore",
		Short: "Simulate a leveraged short position against live quotes",
		Long: `Livermore opens, monitors and closes a single margined short position.

Each command is one step: open the position, check it against the current
quote (which may trigger a margin call or forced liquidation), and close it.
State lives in the data directory between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.opts.configPath, "config", "", "Path to config file (YAML or JSON)")
	pf.StringVar(&a.opts.envFile, "env-file", ".env", "Path to an optional .env file")
	pf.StringVar(&a.opts.dataDir, "data-dir", "", "Directory holding position state (overrides config)")
	pf.StringVar(&a.opts.symbol, "symbol", "", "Ticker to short (overrides config)")
	pf.StringVar(&a.opts.price, "price", "", "Use this fixed quote instead of fetching one")
	pf.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.opts.journal, "journal", "", "Journal backend: sqlite|csv|none")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.load()
	}

	cmd.AddCommand(
		newOpenCmd(a),
		newCheckCmd(a),
		newCloseCmd(a),
		newStatusCmd(a),
		newHistoryCmd(a),
		newJournalCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// load resolves configuration: defaults, then the config file, then
// LIVERMORE_* variables (.env included), then flags.
func (a *app) load() error {
	if err := config.LoadDotEnv(a.opts.envFile); err != nil {
		return err
	}

	cfg := config.Default()
	if a.opts.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(a.opts.configPath)
		if err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	if a.opts.dataDir != "" {
		cfg.DataDir = a.opts.dataDir
	}
	if a.opts.symbol != "" {
		cfg.Symbol = a.opts.symbol
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if a.opts.journal != "" {
		cfg.Journal.Type = a.opts.journal
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var (
		log *zap.Logger
		err error
	)
	if cfg.Log.File != "" {
		log, err = logging.NewWithFile(cfg.Log.Level, cfg.Path(cfg.Log.File))
	} else {
		log, err = logging.New(cfg.Log.Level)
	}
	if err != nil {
		return err
	}

	a.cfg, a.log = cfg, log
	return nil
}

// withEngine wires store, price source and journal for one command and
// releases them afterwards.
func (a *app) withEngine(ctx context.Context, fn func(*sim.Engine) error) (err error) {
	st, err := store.New(a.cfg.DataDir, a.log)
	if err != nil {
		return err
	}

	prices, err := a.priceSource()
	if err != nil {
		return err
	}

	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, j.Close())
		_ = a.log.Sync()
	}()

	terms, err := a.cfg.Terms.Parse()
	if err != nil {
		return err
	}

	e, err := sim.NewEngine(a.cfg.Symbol, terms, st, prices,
		sim.WithJournal(j),
		sim.WithLogger(a.log))
	if err != nil {
		return err
	}
	return fn(e)
}

func (a *app) priceSource() (market.PriceSource, error) {
	if a.opts.price != "" {
		p, err := decimal.NewFromString(a.opts.price)
		if err != nil {
			return nil, fmt.Errorf("--price: %w", err)
		}
		if err := market.CheckPrice(p); err != nil {
			return nil, fmt.Errorf("--price: %w", err)
		}
		a.log.Info("using fixed quote", zap.String("price", p.String()))
		return market.FixedSource{Price: p}, nil
	}

	qc, err := a.cfg.Quote.ClientConfig("livermore/" + Version)
	if err != nil {
		return nil, err
	}
	return yahoo.NewClient(qc, a.log), nil
}

func (a *app) openJournal() (journal.Journal, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	switch a.cfg.Journal.Type {
	case config.JournalSQLite:
		j, err := journal.NewSQLite(a.cfg.Path(a.cfg.Journal.DBPath))
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return j, nil
	case config.JournalCSV:
		j, err := journal.NewCSV(a.cfg.Path(a.cfg.Journal.TradesFile), a.cfg.Path(a.cfg.Journal.EquityFile))
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return j, nil
	default:
		return journal.Nop{}, nil
	}
}
