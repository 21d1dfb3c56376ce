package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/backtester/ledger"
)

const tradeColumns = `symbol, side, size, entry_price, exit_price, open_time, close_time, pnl, return_pct, reason`

func (j *SQLite) queryTrades(ctx context.Context, q string, args ...any) ([]ledger.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.TradeRecord
	for rows.Next() {
		var (
			rec  ledger.TradeRecord
			side string
		)
		if err := rows.Scan(
			&rec.Symbol,
			&side,
			&rec.Size,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.EntryTime,
			&rec.ExitTime,
			&rec.PnL,
			&rec.ReturnPct,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		if rec.Side, err = ledger.ParseSide(side); err != nil {
			return nil, err
		}
		rec.EntryTime = rec.EntryTime.UTC()
		rec.ExitTime = rec.ExitTime.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTradesByRunID returns a run's trades in close order.
func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]ledger.TradeRecord, error) {
	return j.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
}

// ListTradesClosedBetween returns trades of every run whose close time is
// within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]ledger.TradeRecord, error) {
	return j.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, run_id ASC, seq ASC`, timeArg(start), timeArg(end))
}

// ListEquityByRunID returns a run's equity curve in time order.
func (j *SQLite) ListEquityByRunID(ctx context.Context, runID string) ([]ledger.EquitySample, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.EquitySample
	for rows.Next() {
		var s ledger.EquitySample
		if err := rows.Scan(&s.Time, &s.Equity); err != nil {
			return nil, err
		}
		s.Time = s.Time.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
