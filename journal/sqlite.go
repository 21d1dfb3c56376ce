package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// NewSQLite opens (or creates) the journal database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordRun stores the run summary, trades and equity in one transaction.
func (j *SQLite) RecordRun(ctx context.Context, r Run) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, strategy, symbols, dataset, config, start_time, end_time,
		 initial_balance, final_balance, net_pl, return_pct, max_drawdown, max_dd_pct, sharpe,
		 trades, wins, losses, win_rate, avg_win, avg_loss, profit_factor, rejected, org_path, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Strategy, joinSymbols(r.Symbols), r.Dataset, r.Config,
		r.Start.UTC(), r.End.UTC(),
		r.InitialBalance, r.FinalBalance, r.NetPL, r.ReturnPct, r.MaxDrawdown, r.MaxDDPct, r.Sharpe,
		r.Trades, r.Wins, r.Losses, r.WinRate, r.AvgWin, r.AvgLoss, profitFactorValue(r.ProfitFactor),
		r.Rejected, r.OrgPath, strings.Join(r.Notes, "\n"),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(run_id, seq, symbol, side, size, entry_price, exit_price, open_time, close_time, pnl, return_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()

	for i, t := range r.TradeLog {
		if _, err = tradeStmt.ExecContext(ctx,
			r.RunID, i, t.Symbol, t.Side.String(), t.Size, t.EntryPrice, t.ExitPrice,
			t.EntryTime.UTC(), t.ExitTime.UTC(), t.PnL, t.ReturnPct, t.Reason,
		); err != nil {
			return fmt.Errorf("insert trade %d of %s: %w", i, r.RunID, err)
		}
	}

	eqStmt, err := tx.PrepareContext(ctx, `INSERT INTO equity (run_id, seq, time, equity) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer eqStmt.Close()

	for i, e := range r.Equity {
		if _, err = eqStmt.ExecContext(ctx, r.RunID, i, e.Time.UTC(), e.Equity); err != nil {
			return fmt.Errorf("insert equity %d of %s: %w", i, r.RunID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `
	run_id, created, strategy, symbols, dataset, config, start_time, end_time,
	initial_balance, final_balance, net_pl, return_pct, max_drawdown, max_dd_pct, sharpe,
	trades, wins, losses, win_rate, avg_win, avg_loss, profit_factor, rejected, org_path, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r       Run
		symbols string
		notes   string
		pf      sql.NullFloat64
	)
	err := s.Scan(
		&r.RunID, &r.Created, &r.Strategy, &symbols, &r.Dataset, &r.Config, &r.Start, &r.End,
		&r.InitialBalance, &r.FinalBalance, &r.NetPL, &r.ReturnPct, &r.MaxDrawdown, &r.MaxDDPct, &r.Sharpe,
		&r.Trades, &r.Wins, &r.Losses, &r.WinRate, &r.AvgWin, &r.AvgLoss, &pf, &r.Rejected, &r.OrgPath, &notes,
	)
	if err != nil {
		return Run{}, err
	}
	r.Created = r.Created.UTC()
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	r.Symbols = splitSymbols(symbols)
	if notes != "" {
		r.Notes = strings.Split(notes, "\n")
	}
	r.ProfitFactor = math.Inf(1)
	if pf.Valid {
		r.ProfitFactor = pf.Float64
	}
	return r, nil
}

// GetRun loads a run summary without its trades or equity.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return r, err
}

// LoadRun is GetRun plus the run's trades and equity curve.
func (j *SQLite) LoadRun(ctx context.Context, runID string) (Run, error) {
	r, err := j.GetRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if r.TradeLog, err = j.ListTradesByRunID(ctx, runID); err != nil {
		return Run{}, err
	}
	if r.Equity, err = j.ListEquityByRunID(ctx, runID); err != nil {
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns run summaries, newest first. limit <= 0 means all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY created DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRun removes a run with its trades and equity.
func (j *SQLite) DeleteRun(ctx context.Context, runID string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM backtest_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return nil
}

// ExportRunOrg loads everything for runID and renders the org report.
func (j *SQLite) ExportRunOrg(ctx context.Context, runID string) (string, error) {
	r, err := j.LoadRun(ctx, runID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := r.RenderOrg(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func profitFactorValue(pf float64) any {
	if math.IsInf(pf, 1) {
		return nil
	}
	return pf
}

// timeArg keeps stored and queried times in the same UTC layout.
func timeArg(t time.Time) time.Time { return t.UTC() }
