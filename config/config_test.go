package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "BMNR", cfg.Symbol)
	assert.Equal(t, "$", cfg.Currency)
	assert.Equal(t, JournalSQLite, cfg.Journal.Type)
	assert.Equal(t, 3, cfg.Quote.MaxAttempts)
	assert.NoError(t, cfg.Validate())

	terms, err := cfg.Terms.Parse()
	require.NoError(t, err)
	assert.Equal(t, "0.005", terms.CommissionRate.String())
	assert.Equal(t, "1.1", terms.LiquidationMarginRatio.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing symbol",
			mutate:  func(c *Config) { c.Symbol = " " },
			wantErr: true,
			errMsg:  "symbol is required",
		},
		{
			name:    "missing data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: true,
			errMsg:  "data_dir is required",
		},
		{
			name:    "bad rate",
			mutate:  func(c *Config) { c.Terms.CommissionRate = "half a percent" },
			wantErr: true,
			errMsg:  "terms.commission_rate",
		},
		{
			name:    "missing rate",
			mutate:  func(c *Config) { c.Terms.BorrowFeeAnnualRate = "" },
			wantErr: true,
			errMsg:  "terms.borrow_fee_annual_rate",
		},
		{
			name: "ratios out of order",
			mutate: func(c *Config) {
				c.Terms.LiquidationMarginRatio = "1.30"
			},
			wantErr: true,
			errMsg:  "terms:",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Quote.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "quote.max_attempts",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Quote.Timeout = "soon" },
			wantErr: true,
			errMsg:  "quote.timeout",
		},
		{
			name:    "unknown journal",
			mutate:  func(c *Config) { c.Journal.Type = "postgres" },
			wantErr: true,
			errMsg:  "journal.type must be",
		},
		{
			name: "csv without files",
			mutate: func(c *Config) {
				c.Journal.Type = JournalCSV
				c.Journal.TradesFile = ""
			},
			wantErr: true,
			errMsg:  "trades_file and equity_file required",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Journal.DBPath = ""
			},
			wantErr: true,
			errMsg:  "db_path required",
		},
		{
			name:   "no journal",
			mutate: func(c *Config) { c.Journal = JournalConfig{Type: JournalNone} },
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
			errMsg:  "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
		{"yml format", ".yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Symbol = "TSLA"
			cfg.Terms.MaintenanceMarginRatio = "1.30"
			cfg.Journal.Type = JournalCSV
			path := filepath.Join(tmpDir, "nested", "livermore"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))

			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Symbol, loaded.Symbol)
			assert.Equal(t, cfg.Currency, loaded.Currency)
			assert.Equal(t, cfg.Terms, loaded.Terms)
			assert.Equal(t, cfg.Quote, loaded.Quote)
			assert.Equal(t, cfg.Journal, loaded.Journal)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livermore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbol: GME\nterms:\n  commission_rate: \"0.001\"\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "GME", cfg.Symbol)
	assert.Equal(t, "0.001", cfg.Terms.CommissionRate)
	assert.Equal(t, Default().Terms.InitialMarginRatio, cfg.Terms.InitialMarginRatio)
	assert.Equal(t, 3, cfg.Quote.MaxAttempts)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbol: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("journal:\n  type: kafka\n"), 0644))
	_, err = LoadFromFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvSymbol, "AMC")
	t.Setenv(EnvDataDir, "/tmp/livermore-test")
	t.Setenv(EnvJournal, JournalNone)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvQuoteURL, "http://127.0.0.1:9999")
	t.Setenv(EnvAttempts, "5")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "AMC", cfg.Symbol)
	assert.Equal(t, "/tmp/livermore-test", cfg.DataDir)
	assert.Equal(t, JournalNone, cfg.Journal.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Quote.BaseURL)
	assert.Equal(t, 5, cfg.Quote.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvBadAttempts(t *testing.T) {
	t.Setenv(EnvAttempts, "many")
	assert.Error(t, Default().ApplyEnv())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIVERMORE_CURRENCY=€\n"), 0644))

	// Restored by t.Setenv when the test ends.
	t.Setenv(EnvCurrency, "")
	require.NoError(t, os.Unsetenv(EnvCurrency))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "€", os.Getenv(EnvCurrency))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "€", cfg.Currency)

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestClientConfig(t *testing.T) {
	qc, err := Default().Quote.ClientConfig("livermore/1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "livermore/1.2.3", qc.UserAgent)
	assert.Equal(t, 10*time.Second, qc.Timeout)
	assert.Equal(t, 60*time.Second, qc.MaxTimeout)
	assert.Equal(t, time.Second, qc.InitialBackoff)
	assert.Equal(t, 30*time.Second, qc.BreakerCooldown)
	assert.Equal(t, 3, qc.MaxAttempts)
}

func TestPath(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/livermore"

	assert.Equal(t, "/var/lib/livermore/journal.db", cfg.Path("journal.db"))
	assert.Equal(t, "/abs/trades.csv", cfg.Path("/abs/trades.csv"))
	assert.Equal(t, "", cfg.Path(""))
}
