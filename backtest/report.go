package backtest

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/olekukonko/tablewriter"
)

// PrintResult writes the summary of r as a two-column table.
func PrintResult(w io.Writer, r *Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, " Backtest Result: %s\n", r.Strategy)
	fmt.Fprintln(w, "==================================================")

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")

	rows := [][2]string{
		{"Period", fmt.Sprintf("%s .. %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))},
		{"Duration", fmt.Sprintf("%d days", r.DurationDays)},
		{"Initial Balance", money(r.InitialBalance)},
		{"Final Balance", money(r.FinalBalance)},
		{"Total Return", fmt.Sprintf("%s (%.2f%%)", money(r.TotalReturn), r.TotalReturnPct)},
		{"Max Drawdown", fmt.Sprintf("%s (%.2f%%)", money(r.MaxDrawdown), r.MaxDrawdownPct)},
		{"Sharpe Ratio", fmt.Sprintf("%.3f", r.SharpeRatio)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost)", r.TotalTrades, r.WinningTrades, r.LosingTrades)},
		{"Win Rate", fmt.Sprintf("%.2f%%", r.WinRate)},
		{"Avg Win / Loss", fmt.Sprintf("%s / %s", money(r.AvgWin), money(r.AvgLoss))},
		{"Profit Factor", ratio(r.ProfitFactor)},
	}
	if r.Rejected > 0 || r.Skipped > 0 {
		rows = append(rows, [2]string{"Rejected / Skipped", fmt.Sprintf("%d / %d", r.Rejected, r.Skipped)})
	}
	if r.OpenPositions > 0 {
		rows = append(rows, [2]string{"Open Positions", fmt.Sprintf("%d", r.OpenPositions)})
	}
	for _, row := range rows {
		table.Append(row[0], row[1])
	}
	table.Render()
}

// PrintTrades writes one row per closed trade.
func PrintTrades(w io.Writer, r *Result) {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Symbol", "Side", "Entry", "Exit", "Size", "Opened", "Closed", "PnL", "Return", "Reason")
	for i, t := range r.Trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			t.Side.String(),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.4f", t.Size),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			money(t.PnL),
			fmt.Sprintf("%.2f%%", t.ReturnPct),
			t.Reason,
		)
	}
	table.Render()
}

// PrintSweep compares sweep results side by side, in job order.
func PrintSweep(w io.Writer, results []SweepResult) {
	table := tablewriter.NewWriter(w)
	table.Header("Job", "Final", "Return", "Max DD", "Sharpe", "Trades", "Win Rate", "PF", "Error")
	for _, sr := range results {
		if sr.Err != nil || sr.Result == nil {
			errText := "no result"
			if sr.Err != nil {
				errText = sr.Err.Error()
			}
			table.Append(sr.Name, "-", "-", "-", "-", "-", "-", "-", errText)
			continue
		}
		r := sr.Result
		table.Append(
			sr.Name,
			money(r.FinalBalance),
			fmt.Sprintf("%.2f%%", r.TotalReturnPct),
			fmt.Sprintf("%.2f%%", r.MaxDrawdownPct),
			fmt.Sprintf("%.3f", r.SharpeRatio),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.2f%%", r.WinRate),
			ratio(r.ProfitFactor),
			"",
		)
	}
	table.Render()
}

func money(x float64) string { return fmt.Sprintf("%.2f", x) }

func ratio(x float64) string {
	if math.IsInf(x, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", x)
}
