package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/backtester/market"
	"github.com/spf13/cobra"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Inspect and convert bar files",
	Long: `Work with OHLCV bar files.

Subcommands:
  convert - Convert between CSV and Parquet (format from the extension)
  info    - Summarize the bars in a file

Examples:
  backtester data convert btc.csv btc.parquet
  backtester data info btc.parquet`,
}

var dataConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert a bar file between CSV and Parquet",
	Args:  cobra.ExactArgs(2),
	RunE:  runDataConvert,
}

var dataInfoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Summarize the bars in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataInfo,
}

var dataSymbol string

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataConvertCmd)
	dataCmd.AddCommand(dataInfoCmd)

	dataCmd.PersistentFlags().StringVar(&dataSymbol, "symbol", "", "keep only this symbol (and use it for rows without one)")
}

func runDataConvert(cmd *cobra.Command, args []string) error {
	in, out := args[0], args[1]
	bars, err := market.Load(in, "", dataSymbol)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	if err := writeBars(out, bars); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	log.WithFields(map[string]any{"in": in, "out": out, "bars": len(bars)}).Info("converted")
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bars to %s\n", len(bars), out)
	return nil
}

func writeBars(path string, bars []market.Bar) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return market.WriteParquet(path, bars)
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := market.WriteCSV(f, bars); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
}

func runDataInfo(cmd *cobra.Command, args []string) error {
	bars, err := market.Load(args[0], "", dataSymbol)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	// Files may hold several symbols; summarize each.
	series := market.Series{}
	for _, b := range bars {
		series[b.Symbol] = append(series[b.Symbol], b)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Symbol", "Bars", "First", "Last", "Low", "High")
	for _, sym := range series.Symbols() {
		sb := series[sym]
		lo, hi := sb[0].Low, sb[0].High
		for _, b := range sb[1:] {
			if b.Low < lo {
				lo = b.Low
			}
			if b.High > hi {
				hi = b.High
			}
		}
		table.Append(
			sym,
			fmt.Sprintf("%d", len(sb)),
			sb[0].Time.Format(time.RFC3339),
			sb[len(sb)-1].Time.Format(time.RFC3339),
			fmt.Sprintf("%.4f", lo),
			fmt.Sprintf("%.4f", hi),
		)
	}
	table.Render()
	return nil
}
