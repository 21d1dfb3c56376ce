package cmd

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/strategy"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run several strategies over the same data in parallel",
	Long: `Sweep runs one independent backtest per strategy over the same bars and
prints the results side by side. Each run has its own account and strategy
instance. Params from the config apply only to the configured strategy.

Example:
  backtester sweep --strategies ma_crossover,rsi --symbol BTCUSDT --data data/btc.csv`,
	RunE: runSweep,
}

var (
	swStrategies []string
	swLimit      int
	swRecord     bool
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringSliceVar(&swStrategies, "strategies", nil, "strategies to run (default: every registered strategy)")
	sweepCmd.Flags().IntVar(&swLimit, "limit", 0, "max concurrent runs (overrides backtest.concurrency)")
	sweepCmd.Flags().BoolVar(&swRecord, "record", false, "record each successful run in the journal")

	sweepCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol for --data")
	sweepCmd.Flags().StringVarP(&btData, "data", "d", "", "bar file (CSV or Parquet) used instead of data.files")
	sweepCmd.Flags().IntVar(&btDays, "days", 0, "number of days to backtest (overrides backtest.days)")
	sweepCmd.Flags().StringVar(&btStart, "start", "", "first bar time (RFC3339 or YYYY-MM-DD)")
	sweepCmd.Flags().StringVar(&btEnd, "end", "", "last bar time (RFC3339 or YYYY-MM-DD)")
	sweepCmd.Flags().StringVar(&btJournal, "journal", "", "journal type: none, csv or sqlite (overrides journal.type)")
	sweepCmd.Flags().StringVar(&btDBPath, "db", "", "SQLite journal path (overrides journal.db_path)")
	sweepCmd.Flags().StringVar(&btOrgDir, "org-dir", "", "write an org-mode report per run into this directory")
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := applyRunFlags(cfg, cmd); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	names := swStrategies
	if len(names) == 0 {
		names = strategy.Names()
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	jobs := make([]backtest.SweepJob, 0, len(names))
	for _, name := range names {
		var params strategy.Params
		if strings.EqualFold(name, cfg.Strategy.Name) {
			params = cfg.Strategy.Params
		}
		strat, err := strategy.New(name, params)
		if err != nil {
			return fmt.Errorf("strategy: %w", err)
		}
		jobs = append(jobs, backtest.SweepJob{Name: strat.Name(), Strategy: strat, Options: opts})
	}

	series, start, end, err := loadData(cfg)
	if err != nil {
		return err
	}

	limit := cfg.Backtest.Concurrency
	if cmd.Flags().Changed("limit") {
		limit = swLimit
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sweeping %d strategies over %s (%s to %s)\n\n",
		len(jobs), strings.Join(series.Symbols(), ", "), fmtDate(start), fmtDate(end))

	results, err := backtest.Sweep(cmd.Context(), jobs, series, start, end, limit, log)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	backtest.PrintSweep(out, results)

	if !swRecord {
		return nil
	}
	for _, sr := range results {
		if sr.Err != nil || sr.Result == nil {
			continue
		}
		runID, err := recordRun(cmd, cfg, sr.Result, series)
		if err != nil {
			return err
		}
		if runID != "" {
			fmt.Fprintf(out, "Recorded %s: %s\n", sr.Name, runID)
		}
	}
	return nil
}
