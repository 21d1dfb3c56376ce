package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query recorded backtest runs",
	Long: `Query and display backtest runs recorded in the SQLite journal.

Subcommands:
  list    - List recent runs
  show    - Show the summary of one run
  org     - Print one run as an org-mode entry
  delete  - Delete a run with its trades and equity
  trades  - List trades closed in a time range
  day     - List trades closed on a specific day

Examples:
  backtester journal list
  backtester journal show 01HZX3J5K6M7N8P9Q0R1S2T3V4 --trades
  backtester journal day 2024-01-15`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the summary of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalOrgCmd = &cobra.Command{
	Use:   "org <run-id>",
	Short: "Print one run as an org-mode entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrg,
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDelete,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trades closed between --from and --to",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day (UTC)",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalLimit  int
	journalTrades bool
	journalFrom   string
	journalTo     string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalOrgCmd)
	journalCmd.AddCommand(journalDeleteCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "", "path to SQLite journal DB (default: journal.db_path or ./backtester.sqlite)")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "max runs to list (0 = all)")
	journalShowCmd.Flags().BoolVar(&journalTrades, "trades", false, "also list the run's trades")
	journalTradesCmd.Flags().StringVar(&journalFrom, "from", "", "range start, inclusive (required)")
	journalTradesCmd.Flags().StringVar(&journalTo, "to", "", "range end, exclusive (required)")
	journalTradesCmd.MarkFlagRequired("from")
	journalTradesCmd.MarkFlagRequired("to")
}

func openSQLite() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		path = "./backtester.sqlite"
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), journalLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Run", "Created", "Strategy", "Symbols", "Final", "Return", "Trades", "Win Rate")
	for _, r := range runs {
		table.Append(
			r.RunID,
			r.Created.UTC().Format("2006-01-02 15:04"),
			r.Strategy,
			fmt.Sprint(r.Symbols),
			fmt.Sprintf("%.2f", r.FinalBalance),
			fmt.Sprintf("%.2f%%", r.ReturnPct),
			fmt.Sprintf("%d", r.Trades),
			fmt.Sprintf("%.2f%%", r.WinRate),
		)
	}
	table.Render()
	return nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.LoadRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n\n", run.RunID, run.Created.UTC().Format(time.RFC3339))
	res := resultFromRun(run)
	backtest.PrintResult(out, res)
	if journalTrades && len(res.Trades) > 0 {
		fmt.Fprintln(out)
		backtest.PrintTrades(out, res)
	}
	return nil
}

func runJournalOrg(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	org, err := j.ExportRunOrg(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("export run: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), org)
	return nil
}

func runJournalDelete(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.DeleteRun(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	start, err := market.ParseTime(journalFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	end, err := market.ParseTime(journalTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	return printTradesBetween(cmd, start, end)
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, end, err := dayBounds(args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return printTradesBetween(cmd, start, end)
}

func printTradesBetween(cmd *cobra.Command, start, end time.Time) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	backtest.PrintTrades(cmd.OutOrStdout(), &backtest.Result{Trades: recs})
	return nil
}

// resultFromRun rebuilds the printable summary of a recorded run.
func resultFromRun(r journal.Run) *backtest.Result {
	return &backtest.Result{
		Strategy:       r.Strategy,
		InitialBalance: r.InitialBalance,
		FinalBalance:   r.FinalBalance,
		TotalReturn:    r.NetPL,
		TotalReturnPct: r.ReturnPct,
		MaxDrawdown:    r.MaxDrawdown,
		MaxDrawdownPct: r.MaxDDPct,
		SharpeRatio:    r.Sharpe,
		TotalTrades:    r.Trades,
		WinningTrades:  r.Wins,
		LosingTrades:   r.Losses,
		WinRate:        r.WinRate,
		AvgWin:         r.AvgWin,
		AvgLoss:        r.AvgLoss,
		ProfitFactor:   r.ProfitFactor,
		Start:          r.Start,
		End:            r.End,
		DurationDays:   int(r.End.Sub(r.Start) / (24 * time.Hour)),
		Rejected:       r.Rejected,
		Trades:         r.TradeLog,
		EquityCurve:    r.Equity,
	}
}

func dayBounds(day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
