package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/livermore/position"
	"github.com/rustyeddy/livermore/yahoo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Journal backends.
const (
	JournalSQLite = "sqlite"
	JournalCSV    = "csv"
	JournalNone   = "none"
)

// Environment overrides, applied after the config file.
const (
	EnvSymbol   = "LIVERMORE_SYMBOL"
	EnvDataDir  = "LIVERMORE_DATA_DIR"
	EnvCurrency = "LIVERMORE_CURRENCY"
	EnvLogLevel = "LIVERMORE_LOG_LEVEL"
	EnvLogFile  = "LIVERMORE_LOG_FILE"
	EnvJournal  = "LIVERMORE_JOURNAL"
	EnvQuoteURL = "LIVERMORE_QUOTE_URL"
	EnvAttempts = "LIVERMORE_QUOTE_ATTEMPTS"
)

// Config is the complete livermore configuration.
type Config struct {
	Symbol   string        `json:"symbol" yaml:"symbol"`
	Currency string        `json:"currency" yaml:"currency"` // display only, e.g. "$"
	DataDir  string        `json:"data_dir" yaml:"data_dir"`
	Terms    TermsConfig   `json:"terms" yaml:"terms"`
	Quote    QuoteConfig   `json:"quote" yaml:"quote"`
	Journal  JournalConfig `json:"journal" yaml:"journal"`
	Log      LogConfig     `json:"log" yaml:"log"`
}

// TermsConfig holds the rates fixed on every newly opened position.
type TermsConfig struct {
	CommissionRate         string `json:"commission_rate" yaml:"commission_rate"`
	BorrowFeeAnnualRate    string `json:"borrow_fee_annual_rate" yaml:"borrow_fee_annual_rate"`
	InitialMarginRatio     string `json:"initial_margin_ratio" yaml:"initial_margin_ratio"`
	MaintenanceMarginRatio string `json:"maintenance_margin_ratio" yaml:"maintenance_margin_ratio"`
	LiquidationMarginRatio string `json:"liquidation_margin_ratio" yaml:"liquidation_margin_ratio"`
}

// QuoteConfig configures the Yahoo quote client.
type QuoteConfig struct {
	BaseURL           string  `json:"base_url" yaml:"base_url"`
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
	Timeout           string  `json:"timeout" yaml:"timeout"` // e.g. "10s"; doubles after a 429
	MaxTimeout        string  `json:"max_timeout,omitempty" yaml:"max_timeout,omitempty"`
	InitialBackoff    string  `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        string  `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BreakerFailures   uint32  `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown   string  `json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// JournalConfig selects the audit journal. Relative paths resolve against DataDir.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	terms := position.DefaultTerms()
	return &Config{
		Symbol:   "BMNR",
		Currency: "$",
		DataDir:  defaultDataDir(),
		Terms: TermsConfig{
			CommissionRate:         terms.CommissionRate.String(),
			BorrowFeeAnnualRate:    terms.BorrowFeeAnnualRate.String(),
			InitialMarginRatio:     terms.InitialMarginRatio.String(),
			MaintenanceMarginRatio: terms.MaintenanceMarginRatio.String(),
			LiquidationMarginRatio: terms.LiquidationMarginRatio.String(),
		},
		Quote: QuoteConfig{
			BaseURL:           yahoo.DefaultBaseURL,
			MaxAttempts:       3,
			Timeout:           "10s",
			MaxTimeout:        "60s",
			InitialBackoff:    "1s",
			MaxBackoff:        "8s",
			RequestsPerSecond: 2,
			BreakerFailures:   5,
			BreakerCooldown:   "30s",
		},
		Journal: JournalConfig{
			Type:       JournalSQLite,
			DBPath:     "journal.db",
			TradesFile: "trades.csv",
			EquityFile: "equity.csv",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".livermore"
	}
	return filepath.Join(home, ".livermore")
}

// LoadFromFile loads configuration from a file (YAML or JSON), layered over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from LIVERMORE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvSymbol); v != "" {
		c.Symbol = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvCurrency); v != "" {
		c.Currency = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv(EnvJournal); v != "" {
		c.Journal.Type = v
	}
	if v := os.Getenv(EnvQuoteURL); v != "" {
		c.Quote.BaseURL = v
	}
	if v := os.Getenv(EnvAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAttempts, err)
		}
		c.Quote.MaxAttempts = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	terms, err := c.Terms.Parse()
	if err != nil {
		return err
	}
	if err := terms.Validate(); err != nil {
		return fmt.Errorf("terms: %w", err)
	}

	if _, err := c.Quote.ClientConfig(""); err != nil {
		return err
	}

	switch c.Journal.Type {
	case JournalSQLite:
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case JournalCSV:
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case JournalNone:
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Parse converts the configured rates to position terms.
func (t TermsConfig) Parse() (position.Terms, error) {
	var out position.Terms
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"commission_rate", t.CommissionRate, &out.CommissionRate},
		{"borrow_fee_annual_rate", t.BorrowFeeAnnualRate, &out.BorrowFeeAnnualRate},
		{"initial_margin_ratio", t.InitialMarginRatio, &out.InitialMarginRatio},
		{"maintenance_margin_ratio", t.MaintenanceMarginRatio, &out.MaintenanceMarginRatio},
		{"liquidation_margin_ratio", t.LiquidationMarginRatio, &out.LiquidationMarginRatio},
	}
	for _, f := range fields {
		v, err := parseDecimal(f.raw)
		if err != nil {
			return position.Terms{}, fmt.Errorf("terms.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return out, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("value is required")
	}
	return decimal.NewFromString(raw)
}

// ClientConfig converts the quote settings for the Yahoo client.
func (q QuoteConfig) ClientConfig(userAgent string) (yahoo.Config, error) {
	if q.MaxAttempts < 1 {
		return yahoo.Config{}, fmt.Errorf("quote.max_attempts must be at least 1")
	}
	if q.RequestsPerSecond < 0 {
		return yahoo.Config{}, fmt.Errorf("quote.requests_per_second must not be negative")
	}

	out := yahoo.Config{
		BaseURL:           q.BaseURL,
		UserAgent:         userAgent,
		MaxAttempts:       q.MaxAttempts,
		RequestsPerSecond: q.RequestsPerSecond,
		BreakerFailures:   q.BreakerFailures,
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", q.Timeout, &out.Timeout},
		{"max_timeout", q.MaxTimeout, &out.MaxTimeout},
		{"initial_backoff", q.InitialBackoff, &out.InitialBackoff},
		{"max_backoff", q.MaxBackoff, &out.MaxBackoff},
		{"breaker_cooldown", q.BreakerCooldown, &out.BreakerCooldown},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return yahoo.Config{}, fmt.Errorf("quote.%s: %w", d.name, err)
		}
		if v < 0 {
			return yahoo.Config{}, fmt.Errorf("quote.%s must not be negative", d.name)
		}
		*d.dst = v
	}
	return out, nil
}

// Path resolves a journal or log path against the data directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
