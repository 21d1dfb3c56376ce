package journal

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	open1  = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	close1 = time.Date(2024, 1, 3, 4, 5, 6, 0, time.UTC)
)

func sampleResult() *backtest.Result {
	trades := []ledger.TradeRecord{
		{Symbol: "BTC", Side: ledger.Long, EntryPrice: 100, ExitPrice: 110, Size: 1,
			EntryTime: open1, ExitTime: close1, PnL: 10, ReturnPct: 10, Reason: "close_long"},
		{Symbol: "ETH", Side: ledger.Short, EntryPrice: 50, ExitPrice: 55, Size: 2,
			EntryTime: open1, ExitTime: close1.Add(time.Hour), PnL: -10, ReturnPct: -10, Reason: "StopLoss"},
	}
	curve := []ledger.EquitySample{
		{Time: open1, Equity: 10_000},
		{Time: close1, Equity: 10_010},
		{Time: close1.Add(time.Hour), Equity: 10_000},
	}
	return backtest.Summarize(backtest.Inputs{
		Strategy:       "ma_crossover",
		InitialBalance: 10_000,
		FinalBalance:   10_000,
		PeakBalance:    10_010,
		MaxDrawdown:    10,
		Trades:         trades,
		EquityCurve:    curve,
		Start:          open1,
		End:            close1.Add(time.Hour),
	})
}

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	r := NewRun("R1", open1, sampleResult(), nil)
	assert.Equal(t, []string{"BTC", "ETH"}, r.Symbols)
	assert.Equal(t, "ma_crossover", r.Strategy)
	assert.Equal(t, 2, r.Trades)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 1.0, r.ProfitFactor)
	assert.Len(t, r.Equity, 3)

	r = NewRun("R2", open1, sampleResult(), []string{"SOL"})
	assert.Equal(t, []string{"SOL"}, r.Symbols)
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"backtest_runs", "trades", "equity"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteRecordAndLoadRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	run := NewRun("R1", open1, sampleResult(), nil)
	run.Dataset = "data/btc.csv"
	run.Config = []byte("strategy:\n  name: ma_crossover\n")
	run.Notes = []string{"first", "second"}
	require.NoError(t, j.RecordRun(ctx, run))

	got, err := j.GetRun(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "ma_crossover", got.Strategy)
	assert.Equal(t, []string{"BTC", "ETH"}, got.Symbols)
	assert.Equal(t, "data/btc.csv", got.Dataset)
	assert.Equal(t, run.Config, got.Config)
	assert.True(t, open1.Equal(got.Start))
	assert.True(t, open1.Equal(got.Created))
	assert.Equal(t, 10_000.0, got.FinalBalance)
	assert.Equal(t, 2, got.Trades)
	assert.Equal(t, []string{"first", "second"}, got.Notes)
	assert.Empty(t, got.TradeLog)

	full, err := j.LoadRun(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, run.TradeLog, full.TradeLog)
	assert.Equal(t, run.Equity, full.Equity)
}

func TestSQLiteUnboundedProfitFactor(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	res := sampleResult()
	res.ProfitFactor = math.Inf(1)
	require.NoError(t, j.RecordRun(ctx, NewRun("R1", open1, res, nil)))

	got, err := j.GetRun(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.ProfitFactor, 1))
}

func TestSQLiteDuplicateRunRollsBack(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	run := NewRun("R1", open1, sampleResult(), nil)
	require.NoError(t, j.RecordRun(ctx, run))
	assert.Error(t, j.RecordRun(ctx, run))

	trades, err := j.ListTradesByRunID(ctx, "R1")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestSQLiteRunNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, err := j.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = j.DeleteRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLiteListAndDeleteRuns(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	for i, id := range []string{"A", "B", "C"} {
		require.NoError(t, j.RecordRun(ctx, NewRun(id, open1.Add(time.Duration(i)*time.Minute), sampleResult(), nil)))
	}

	runs, err := j.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "C", runs[0].RunID)
	assert.Equal(t, "A", runs[2].RunID)

	runs, err = j.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, j.DeleteRun(ctx, "B"))
	runs, err = j.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	trades, err := j.ListTradesByRunID(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSQLiteListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, j.RecordRun(ctx, NewRun("R1", open1, sampleResult(), nil)))

	got, err := j.ListTradesClosedBetween(ctx, close1, close1.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC", got[0].Symbol)

	got, err = j.ListTradesClosedBetween(ctx, open1, close1.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteExportRunOrg(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, j.RecordRun(ctx, NewRun("R1", open1, sampleResult(), nil)))

	org, err := j.ExportRunOrg(ctx, "R1")
	require.NoError(t, err)
	assert.Contains(t, org, "* BACKTEST: ma_crossover BTC ETH")
	assert.Contains(t, org, ":RUN_ID:      R1")
	assert.Contains(t, org, "| 2 | ETH | short |")
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.RecordRun(context.Background(), NewRun("R1", open1, sampleResult(), nil)))
	require.NoError(t, j.Close())

	read := func(path string) [][]string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		require.NoError(t, err)
		return rows
	}

	trades := read(tradesPath)
	require.Len(t, trades, 3)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, []string{"R1", "BTC", "long", "1.000000", "100.000000", "110.000000",
		"2024-01-02T03:04:05Z", "2024-01-03T04:05:06Z", "10.000000", "10.000000", "close_long"}, trades[1])

	equity := read(equityPath)
	require.Len(t, equity, 4)
	assert.Equal(t, equityHeader, equity[0])
	assert.Equal(t, []string{"R1", "2024-01-03T04:05:06Z", "10010.000000"}, equity[2])
}

func TestRenderOrg(t *testing.T) {
	t.Parallel()

	run := NewRun("R9", open1, sampleResult(), nil)
	run.Notes = []string{"whipsaw in March"}
	run.Config = []byte("log:\n  level: info")
	run.ProfitFactor = math.Inf(1)
	run.OrgPath = filepath.Join(t.TempDir(), "reports", "r9.org")

	require.NoError(t, run.WriteOrg())
	data, err := os.ReadFile(run.OrgPath)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, ":PROFIT_FAC:  INF")
	assert.Contains(t, out, ":START_DATE:  2024-01-02")
	assert.Contains(t, out, "#+begin_src yaml")
	assert.Contains(t, out, "- whipsaw in March")
	assert.Contains(t, out, "| 1 | BTC | long | 100.0000 | 110.0000 |")
}
