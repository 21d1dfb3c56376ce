// Package journal persists finished backtest runs: a summary row per run
// plus its trades and equity curve.
package journal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/ledger"
)

var ErrRunNotFound = errors.New("backtest run not found")

// Run is one recorded backtest. The summary fields mirror backtest.Result.
type Run struct {
	RunID    string
	Created  time.Time
	Strategy string
	Symbols  []string
	Dataset  string
	Config   []byte // the config the run was made with

	Start time.Time
	End   time.Time

	InitialBalance float64
	FinalBalance   float64
	NetPL          float64
	ReturnPct      float64
	MaxDrawdown    float64
	MaxDDPct       float64
	Sharpe         float64

	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	Rejected     int

	OrgPath string
	Notes   []string

	TradeLog []ledger.TradeRecord
	Equity   []ledger.EquitySample
}

// Journal records runs.
type Journal interface {
	RecordRun(ctx context.Context, run Run) error
	Close() error
}

// NewRun builds the record for res. Symbols are taken from its trades when
// not given.
func NewRun(runID string, created time.Time, res *backtest.Result, symbols []string) Run {
	if len(symbols) == 0 {
		seen := map[string]bool{}
		for _, t := range res.Trades {
			if !seen[t.Symbol] {
				seen[t.Symbol] = true
				symbols = append(symbols, t.Symbol)
			}
		}
		sort.Strings(symbols)
	}
	return Run{
		RunID:          runID,
		Created:        created.UTC(),
		Strategy:       res.Strategy,
		Symbols:        symbols,
		Start:          res.Start,
		End:            res.End,
		InitialBalance: res.InitialBalance,
		FinalBalance:   res.FinalBalance,
		NetPL:          res.TotalReturn,
		ReturnPct:      res.TotalReturnPct,
		MaxDrawdown:    res.MaxDrawdown,
		MaxDDPct:       res.MaxDrawdownPct,
		Sharpe:         res.SharpeRatio,
		Trades:         res.TotalTrades,
		Wins:           res.WinningTrades,
		Losses:         res.LosingTrades,
		WinRate:        res.WinRate,
		AvgWin:         res.AvgWin,
		AvgLoss:        res.AvgLoss,
		ProfitFactor:   res.ProfitFactor,
		Rejected:       res.Rejected,
		TradeLog:       res.Trades,
		Equity:         res.EquityCurve,
	}
}

func joinSymbols(symbols []string) string { return strings.Join(symbols, ",") }

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
