// Package backtest replays historical bars through a strategy against a
// simulated ledger and summarizes the outcome.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategy"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWindowSize = 100
	DefaultMinHistory = 20
)

// Options controls a backtest run.
type Options struct {
	Ledger   ledger.Options
	Dispatch DispatchOptions

	// WindowSize is how many trailing bars per symbol the strategy sees.
	WindowSize int
	// MinHistory is how many bars a symbol needs before it is analyzed.
	MinHistory int

	// FreshOnly analyzes a symbol only at timestamps where it has a new
	// bar. By default every symbol is analyzed at every timestamp.
	FreshOnly bool

	// UseExits closes positions whose stop loss or take profit is touched
	// by a bar, before the strategy sees that bar.
	UseExits bool

	// CloseAtEnd closes everything at the last timestamp, at each
	// symbol's latest close.
	CloseAtEnd bool
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.MinHistory <= 0 {
		o.MinHistory = DefaultMinHistory
	}
	if o.MinHistory > o.WindowSize {
		o.WindowSize = o.MinHistory
	}
	return o
}

// Engine runs one strategy. Each Run builds its own ledger, so an Engine
// may be run repeatedly, but the strategy instance carries state between
// runs and must not be shared by engines running concurrently.
type Engine struct {
	opts  Options
	strat strategy.Strategy
	log   logrus.FieldLogger
}

func NewEngine(opts Options, strat strategy.Strategy, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		opts:  opts.withDefaults(),
		strat: strat,
		log:   log.WithField("strategy", strat.Name()),
	}
}

func (e *Engine) Options() Options { return e.opts }

// Run replays series between start and end inclusive (zero bounds are
// open). It returns market.ErrNoDataInRange before doing anything if no
// symbol has a bar in range, and ctx.Err() if ctx is cancelled between
// timestamps. No partial result is returned on error.
func (e *Engine) Run(ctx context.Context, series market.Series, start, end time.Time) (*Result, error) {
	if e.strat == nil {
		return nil, fmt.Errorf("backtest: strategy is required")
	}

	timeline, filtered, err := market.Timeline(series, start, end)
	if err != nil {
		return nil, err
	}

	l := ledger.New(e.opts.Ledger)
	d := NewDispatcher(l, e.opts.Dispatch, e.log)
	aware, _ := e.strat.(strategy.PositionAware)

	symbols := filtered.Symbols()
	windows := make(map[string]*market.Window, len(symbols))
	cursor := make(map[string]int, len(symbols))
	latest := make(map[string]market.Bar, len(symbols))
	for _, sym := range symbols {
		windows[sym] = market.NewWindow(e.opts.WindowSize)
	}

	e.log.WithFields(logrus.Fields{
		"symbols":    len(symbols),
		"timestamps": len(timeline),
		"balance":    e.opts.Ledger.InitialBalance,
	}).Info("backtest started")

	fresh := make(map[string]bool, len(symbols))
	for i, t := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, sym := range symbols {
			bars := filtered[sym]
			fresh[sym] = false
			for cursor[sym] < len(bars) && !bars[cursor[sym]].Time.After(t) {
				b := bars[cursor[sym]]
				windows[sym].Push(b)
				latest[sym] = b
				cursor[sym]++
				fresh[sym] = true
			}
		}

		if e.opts.UseExits {
			e.applyExits(l, symbols, fresh, latest, t)
		}

		for _, sym := range symbols {
			w := windows[sym]
			if w.Len() < e.opts.MinHistory {
				continue
			}
			if e.opts.FreshOnly && !fresh[sym] {
				continue
			}

			if aware != nil {
				if pos, ok := l.Position(sym); ok {
					aware.UpdatePosition(sym, &pos)
				} else {
					aware.UpdatePosition(sym, nil)
				}
			}

			sig := e.strat.Analyze(sym, w.Bars())
			if sig.Symbol == "" {
				sig.Symbol = sym
			}
			if sig.Time.IsZero() {
				sig.Time = t
			}
			if err := d.Dispatch(sig); err != nil {
				return nil, err
			}
		}

		if e.opts.CloseAtEnd && i == len(timeline)-1 {
			prices := make(map[string]float64, len(latest))
			for sym, b := range latest {
				prices[sym] = b.Close
			}
			for _, rec := range l.CloseAll(prices, t, ReasonEnd) {
				e.log.WithFields(logrus.Fields{"symbol": rec.Symbol, "pnl": rec.PnL}).
					Debug("position closed at end")
			}
		}

		l.Mark(t, latest)
	}

	if start.IsZero() {
		start = timeline[0]
	}
	if end.IsZero() {
		end = timeline[len(timeline)-1]
	}

	res := Summarize(Inputs{
		Strategy:          e.strat.Name(),
		InitialBalance:    l.InitialBalance(),
		FinalBalance:      finalBalance(l),
		PeakBalance:       l.PeakBalance(),
		MaxDrawdown:       l.MaxDrawdown(),
		MaxRelDrawdownPct: l.MaxRelDrawdownPct(),
		Trades:            l.Trades(),
		EquityCurve:       l.EquityCurve(),
		Start:             start,
		End:               end,
	})
	res.Rejected = d.Rejected()
	res.Skipped = d.Skipped()
	res.OpenPositions = len(l.Positions())

	e.log.WithFields(logrus.Fields{
		"final_balance": res.FinalBalance,
		"return_pct":    res.TotalReturnPct,
		"trades":        res.TotalTrades,
		"rejected":      res.Rejected,
	}).Info("backtest finished")

	return res, nil
}

// applyExits closes positions whose bracket is touched by the bar that
// arrived at t.
func (e *Engine) applyExits(l *ledger.Ledger, symbols []string, fresh map[string]bool, latest map[string]market.Bar, t time.Time) {
	for _, sym := range symbols {
		if !fresh[sym] {
			continue
		}
		pos, ok := l.Position(sym)
		if !ok {
			continue
		}
		px, reason, hit := checkExit(pos, latest[sym])
		if !hit {
			continue
		}
		rec, _, err := l.Close(ledger.Exit{Symbol: sym, Side: pos.Side, Price: px, Time: t, Reason: reason})
		if err != nil {
			e.log.WithField("symbol", sym).WithError(err).Warn("exit failed")
			continue
		}
		e.log.WithFields(logrus.Fields{"symbol": sym, "reason": reason, "pnl": rec.PnL}).
			Debug("bracket exit")
	}
}

// finalBalance is the last marked equity, or the cash balance if nothing
// was marked.
func finalBalance(l *ledger.Ledger) float64 {
	curve := l.EquityCurve()
	if len(curve) == 0 {
		return l.Balance()
	}
	return curve[len(curve)-1].Equity
}
