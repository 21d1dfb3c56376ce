package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal appends every recorded run's trades and equity to two CSV
// files, keyed by run id.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var _ Journal = (*CSVJournal)(nil)

var (
	tradeHeader  = []string{"run_id", "symbol", "side", "size", "entry_price", "exit_price", "open_time", "close_time", "pnl", "return_pct", "reason"}
	equityHeader = []string{"run_id", "time", "equity"}
)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write(tradeHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(equityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordRun(_ context.Context, r Run) error {
	for _, t := range r.TradeLog {
		if err := j.trades.Write([]string{
			r.RunID,
			t.Symbol,
			t.Side.String(),
			f(t.Size),
			f(t.EntryPrice),
			f(t.ExitPrice),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			f(t.PnL),
			f(t.ReturnPct),
			t.Reason,
		}); err != nil {
			return err
		}
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}

	for _, e := range r.Equity {
		if err := j.equity.Write([]string{
			r.RunID,
			e.Time.UTC().Format(time.RFC3339),
			f(e.Equity),
		}); err != nil {
			return err
		}
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
