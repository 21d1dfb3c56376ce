package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/id"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical bars",
	Long: `Backtest replays bar files through a strategy and prints the result.

Data comes from data.files in the config, or from --data and --symbol for a
single file. The run ends at --end (or the last bar) and covers --days days
unless --start is given.

Example:
  backtester backtest --strategy ma_crossover --symbol BTCUSDT --data data/btc.csv --days 30`,
	RunE: runBacktest,
}

var (
	btStrategy string
	btSymbol   string
	btData     string
	btDays     int
	btStart    string
	btEnd      string
	btTrades   bool
	btJournal  string
	btDBPath   string
	btOrgDir   string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "strategy name (overrides strategy.name)")
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol for --data")
	backtestCmd.Flags().StringVarP(&btData, "data", "d", "", "bar file (CSV or Parquet) used instead of data.files")
	backtestCmd.Flags().IntVar(&btDays, "days", 0, "number of days to backtest (overrides backtest.days)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "first bar time (RFC3339 or YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "last bar time (RFC3339 or YYYY-MM-DD)")
	backtestCmd.Flags().BoolVar(&btTrades, "trades", false, "print every closed trade")
	backtestCmd.Flags().StringVar(&btJournal, "journal", "", "journal type: none, csv or sqlite (overrides journal.type)")
	backtestCmd.Flags().StringVar(&btDBPath, "db", "", "SQLite journal path (overrides journal.db_path)")
	backtestCmd.Flags().StringVar(&btOrgDir, "org-dir", "", "write an org-mode report per run into this directory")
}

// applyRunFlags folds the run flags shared by backtest and sweep into cfg.
func applyRunFlags(c *config.Config, cmd *cobra.Command) error {
	if btData != "" {
		if btSymbol == "" {
			return fmt.Errorf("--symbol is required with --data")
		}
		c.Data.Files = map[string]string{btSymbol: btData}
		c.Data.Format = ""
	}
	if cmd.Flags().Changed("days") {
		c.Backtest.Days = btDays
	}
	if btStart != "" {
		c.Backtest.Start = btStart
	}
	if btEnd != "" {
		c.Backtest.End = btEnd
	}
	if btJournal != "" {
		c.Journal.Type = btJournal
	}
	if btDBPath != "" {
		c.Journal.DBPath = btDBPath
		if btJournal == "" && (c.Journal.Type == "" || c.Journal.Type == "none") {
			c.Journal.Type = "sqlite"
		}
	}
	if btOrgDir != "" {
		c.Journal.OrgDir = btOrgDir
	}
	return nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	if btStrategy != "" && btStrategy != cfg.Strategy.Name {
		// Params in the config belong to the configured strategy.
		cfg.Strategy.Name = btStrategy
		cfg.Strategy.Params = nil
	}
	if err := applyRunFlags(cfg, cmd); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	series, start, end, err := loadData(cfg)
	if err != nil {
		return err
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	strat, err := cfg.NewStrategy()
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running backtest with strategy: %s\n", strat.Name())
	fmt.Fprintf(out, "  Symbols: %s\n", strings.Join(series.Symbols(), ", "))
	fmt.Fprintf(out, "  Period:  %s to %s\n\n", fmtDate(start), fmtDate(end))

	eng := backtest.NewEngine(opts, strat, log)
	res, err := eng.Run(cmd.Context(), series, start, end)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	backtest.PrintResult(out, res)
	if btTrades && len(res.Trades) > 0 {
		fmt.Fprintln(out)
		backtest.PrintTrades(out, res)
	}

	runID, err := recordRun(cmd, cfg, res, series)
	if err != nil {
		return err
	}
	if runID != "" {
		fmt.Fprintf(out, "\nRun recorded: %s\n", runID)
	}
	return nil
}

// loadData reads the configured bar files and resolves the run range.
func loadData(c *config.Config) (market.Series, time.Time, time.Time, error) {
	series, err := c.Data.LoadSeries()
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	start, end, err := c.Range(lastBarTime(series))
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	return series, start, end, nil
}

func lastBarTime(series market.Series) time.Time {
	var last time.Time
	for _, bars := range series {
		if n := len(bars); n > 0 && bars[n-1].Time.After(last) {
			last = bars[n-1].Time
		}
	}
	return last
}

// openJournal returns nil when journaling is off.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "", "none":
		return nil, nil
	case "csv":
		return journal.NewCSV(jc.TradesFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", jc.Type)
	}
}

// recordRun writes res to the configured journal and org directory. It
// returns the run id, or "" when nothing was recorded.
func recordRun(cmd *cobra.Command, c *config.Config, res *backtest.Result, series market.Series) (string, error) {
	j, err := openJournal(c.Journal)
	if err != nil {
		return "", fmt.Errorf("open journal: %w", err)
	}
	if j == nil && c.Journal.OrgDir == "" {
		return "", nil
	}

	now := time.Now().UTC()
	runID, err := id.NewRunID(now)
	if err != nil {
		return "", err
	}
	run := journal.NewRun(runID, now, res, series.Symbols())
	run.Dataset = datasetName(c.Data.Files)
	if run.Config, err = yaml.Marshal(c); err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	if c.Journal.OrgDir != "" {
		run.OrgPath = filepath.Join(c.Journal.OrgDir, runID+".org")
		if err := run.WriteOrg(); err != nil {
			return "", fmt.Errorf("write org report: %w", err)
		}
		log.WithField("path", run.OrgPath).Info("org report written")
	}

	if j != nil {
		defer j.Close()
		if err := j.RecordRun(cmd.Context(), run); err != nil {
			return "", fmt.Errorf("record run: %w", err)
		}
	}
	return runID, nil
}

func datasetName(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for _, p := range files {
		paths = append(paths, filepath.Base(p))
	}
	sort.Strings(paths)
	return strings.Join(paths, ",")
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "(open)"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
