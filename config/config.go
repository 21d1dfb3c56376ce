package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/risk"
	"github.com/rustyeddy/backtester/strategy"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BACKTESTER_"

// Config represents the complete backtest configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	Commission     float64 `json:"commission" yaml:"commission"`
}

// BacktestConfig controls the run loop and the ledger.
type BacktestConfig struct {
	WindowSize        int     `json:"window_size" yaml:"window_size"`
	MinHistory        int     `json:"min_history" yaml:"min_history"`
	MaxPositionPct    float64 `json:"max_position_pct" yaml:"max_position_pct"`
	ReplacePolicy     string  `json:"replace_policy" yaml:"replace_policy"` // reject, overwrite or realize
	AllowSideMismatch bool    `json:"allow_side_mismatch" yaml:"allow_side_mismatch"`
	CloseAtEnd        bool    `json:"close_at_end" yaml:"close_at_end"`
	UseExits          bool    `json:"use_exits" yaml:"use_exits"`
	FreshOnly         bool    `json:"fresh_only" yaml:"fresh_only"`
	RiskPerTrade      float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
	MinConfidence     float64 `json:"min_confidence" yaml:"min_confidence"`

	// Risk policy limits on entries; zero disables each.
	MaxRiskPct       float64 `json:"max_risk_pct" yaml:"max_risk_pct"`
	MinRR            float64 `json:"min_rr" yaml:"min_rr"`
	MaxOpenPositions int     `json:"max_open_positions" yaml:"max_open_positions"`

	// Start and End bound the run (RFC3339, date or unix time). When Start
	// is empty the run covers Days days before End. When End is empty it
	// is the last bar in the data.
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
	Days  int    `json:"days" yaml:"days"`

	// Concurrency limits parallel runs in a sweep. Zero means unlimited.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// StrategyConfig names the strategy and its numeric parameters.
type StrategyConfig struct {
	Name   string             `json:"name" yaml:"name"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// DataConfig points at the bar files, one per symbol.
type DataConfig struct {
	Format string            `json:"format,omitempty" yaml:"format,omitempty"` // "csv", "parquet" or empty to infer
	Files  map[string]string `json:"files" yaml:"files"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	OrgDir     string `json:"org_dir,omitempty" yaml:"org_dir,omitempty"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
}

// LoadFromFile loads configuration from a file (YAML, falling back to
// JSON), applies .env and BACKTESTER_* environment overrides, then
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// A missing .env is fine.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes data on top of Default. Keys absent from data keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := base()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = base()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from BACKTESTER_* variables looked up with
// getenv. Empty values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *float64) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
		return nil
	}

	if err := num("INITIAL_BALANCE", &c.Account.InitialBalance); err != nil {
		return err
	}
	if err := num("COMMISSION", &c.Account.Commission); err != nil {
		return err
	}
	if v := getenv(EnvPrefix + "DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sDAYS: %w", EnvPrefix, err)
		}
		c.Backtest.Days = n
	}
	str("STRATEGY", &c.Strategy.Name)
	str("JOURNAL_TYPE", &c.Journal.Type)
	str("JOURNAL_DB", &c.Journal.DBPath)
	str("ORG_DIR", &c.Journal.OrgDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return nil
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

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Account.Commission < 0 || c.Account.Commission >= 1 {
		return fmt.Errorf("account.commission must be in [0, 1)")
	}

	b := c.Backtest
	if b.WindowSize < 0 || b.MinHistory < 0 {
		return fmt.Errorf("backtest.window_size and backtest.min_history must not be negative")
	}
	if b.MaxPositionPct < 0 || b.MaxPositionPct > 1 {
		return fmt.Errorf("backtest.max_position_pct must be in [0, 1]")
	}
	if _, err := ledger.ParseReplacePolicy(b.ReplacePolicy); err != nil {
		return fmt.Errorf("backtest.replace_policy: %w", err)
	}
	if b.RiskPerTrade < 0 || b.RiskPerTrade >= 1 {
		return fmt.Errorf("backtest.risk_per_trade must be in [0, 1)")
	}
	if b.MinConfidence < 0 || b.MinConfidence > 1 {
		return fmt.Errorf("backtest.min_confidence must be in [0, 1]")
	}
	if b.MaxRiskPct < 0 || b.MaxRiskPct >= 1 {
		return fmt.Errorf("backtest.max_risk_pct must be in [0, 1)")
	}
	if b.MinRR < 0 || b.MaxOpenPositions < 0 {
		return fmt.Errorf("backtest.min_rr and backtest.max_open_positions must not be negative")
	}
	if b.Days < 0 {
		return fmt.Errorf("backtest.days must not be negative")
	}
	if b.Concurrency < 0 {
		return fmt.Errorf("backtest.concurrency must not be negative")
	}
	if _, _, err := c.parseBounds(); err != nil {
		return err
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if _, err := strategy.New(c.Strategy.Name, c.Strategy.Params); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	switch c.Data.Format {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("data.format must be 'csv' or 'parquet'")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// EngineOptions converts the account and backtest sections into engine
// options.
func (c *Config) EngineOptions() (backtest.Options, error) {
	policy, err := ledger.ParseReplacePolicy(c.Backtest.ReplacePolicy)
	if err != nil {
		return backtest.Options{}, err
	}
	return backtest.Options{
		Ledger: ledger.Options{
			InitialBalance:    c.Account.InitialBalance,
			Commission:        c.Account.Commission,
			MaxPositionPct:    c.Backtest.MaxPositionPct,
			Replace:           policy,
			AllowSideMismatch: c.Backtest.AllowSideMismatch,
		},
		Dispatch: backtest.DispatchOptions{
			MinConfidence: c.Backtest.MinConfidence,
			RiskPerTrade:  c.Backtest.RiskPerTrade,
			Policy: risk.Policy{
				MaxRiskPct:       c.Backtest.MaxRiskPct,
				MinRR:            c.Backtest.MinRR,
				MaxOpenPositions: c.Backtest.MaxOpenPositions,
			},
		},
		WindowSize: c.Backtest.WindowSize,
		MinHistory: c.Backtest.MinHistory,
		FreshOnly:  c.Backtest.FreshOnly,
		UseExits:   c.Backtest.UseExits,
		CloseAtEnd: c.Backtest.CloseAtEnd,
	}, nil
}

// NewStrategy builds a fresh instance of the configured strategy.
func (c *Config) NewStrategy() (strategy.Strategy, error) {
	return strategy.New(c.Strategy.Name, c.Strategy.Params)
}

// Range resolves the run bounds. last is the latest bar time in the data
// and stands in for an empty End. A zero start means no lower bound.
func (c *Config) Range(last time.Time) (start, end time.Time, err error) {
	start, end, err = c.parseBounds()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.IsZero() {
		end = last
	}
	if start.IsZero() && c.Backtest.Days > 0 && !end.IsZero() {
		start = end.AddDate(0, 0, -c.Backtest.Days)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest range: end %s before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}

func (c *Config) parseBounds() (start, end time.Time, err error) {
	if c.Backtest.Start != "" {
		if start, err = market.ParseTime(c.Backtest.Start); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("backtest.start: %w", err)
		}
	}
	if c.Backtest.End != "" {
		if end, err = market.ParseTime(c.Backtest.End); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("backtest.end: %w", err)
		}
	}
	return start, end, nil
}

// LoadSeries reads every configured data file. Files are read in sorted
// symbol order so errors are reported deterministically.
func (d DataConfig) LoadSeries() (market.Series, error) {
	if len(d.Files) == 0 {
		return nil, fmt.Errorf("data.files is empty")
	}
	series := make(market.Series, len(d.Files))
	syms := make([]string, 0, len(d.Files))
	for sym := range d.Files {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		bars, err := market.Load(d.Files[sym], d.Format, sym)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", sym, err)
		}
		series[sym] = bars
	}
	return series, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalance: 10000,
			Commission:     0.001,
		},
		Backtest: BacktestConfig{
			WindowSize:     backtest.DefaultWindowSize,
			MinHistory:     backtest.DefaultMinHistory,
			MaxPositionPct: ledger.DefaultMaxPositionPct,
			ReplacePolicy:  ledger.ReplaceReject.String(),
			Days:           30,
		},
		Strategy: StrategyConfig{
			Name: "ma_crossover",
			Params: map[string]float64{
				"fast_period": 10,
				"slow_period": 20,
			},
		},
		Data: DataConfig{
			Format: "csv",
			Files:  map[string]string{"BTCUSDT": "./data/BTCUSDT.csv"},
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// base is Default without the example maps; decoders merge into maps
// rather than replacing them.
func base() *Config {
	cfg := Default()
	cfg.Strategy.Params = nil
	cfg.Data.Files = nil
	return cfg
}
