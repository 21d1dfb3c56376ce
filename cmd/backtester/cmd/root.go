package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Bar-by-bar strategy backtester",
	Long: `Backtester replays historical OHLCV bars through a trading strategy and
reports how a simulated account would have fared.

It provides tools for:
  - Backtesting a strategy over one or more symbols
  - Sweeping several strategies over the same data in parallel
  - Keeping a journal of finished runs in SQLite, CSV or org-mode
  - Converting bar files between CSV and Parquet`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *logrus.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides log.format)")
}

// setup loads the config and builds the logger before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
		_ = godotenv.Load()
		if err := cfg.ApplyEnv(os.Getenv); err != nil {
			return err
		}
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	log, err = logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}
