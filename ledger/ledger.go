package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/backtester/market"
)

var (
	// ErrInsufficientBalance is returned when a long entry costs more than
	// the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrPositionExists is returned when opening a symbol that already holds
	// a position under ReplaceReject.
	ErrPositionExists = errors.New("position already open")
	// ErrSideMismatch is returned when an exit names the wrong side.
	ErrSideMismatch = errors.New("close side does not match position")
	// ErrInvalidEntry is returned for entries with a non-positive price or
	// amount, or an unknown side.
	ErrInvalidEntry = errors.New("invalid entry")
)

const DefaultMaxPositionPct = 0.95

// Options configures a Ledger.
type Options struct {
	InitialBalance float64
	Commission     float64 // proportional, e.g. 0.001

	// MaxPositionPct caps a long entry at this share of the balance.
	// Zero means DefaultMaxPositionPct.
	MaxPositionPct float64

	Replace ReplacePolicy

	// AllowSideMismatch lets a CloseLong close a short and vice versa.
	AllowSideMismatch bool
}

// Ledger owns the cash balance, at most one position per symbol, the
// running peak and drawdown, and the closed trades and equity curve of a
// single run. It is not safe for concurrent use; each run builds its own.
type Ledger struct {
	opts Options

	balance   float64
	positions map[string]*Position

	peak          float64
	maxDrawdown   float64
	maxDrawdownPc float64 // relative to the peak in effect at the time

	trades []TradeRecord
	equity []EquitySample
}

// New returns a ledger holding opts.InitialBalance in cash.
func New(opts Options) *Ledger {
	if opts.MaxPositionPct <= 0 {
		opts.MaxPositionPct = DefaultMaxPositionPct
	}
	return &Ledger{
		opts:      opts,
		balance:   opts.InitialBalance,
		positions: make(map[string]*Position),
		peak:      opts.InitialBalance,
	}
}

func (l *Ledger) Options() Options { return l.opts }

func (l *Ledger) Balance() float64 { return l.balance }

func (l *Ledger) InitialBalance() float64 { return l.opts.InitialBalance }

// PeakBalance is the highest equity seen so far, starting at the initial
// balance.
func (l *Ledger) PeakBalance() float64 { return l.peak }

// MaxDrawdown is the largest peak-to-equity shortfall seen so far.
func (l *Ledger) MaxDrawdown() float64 { return l.maxDrawdown }

// MaxRelDrawdownPct is the largest shortfall as a percentage of the peak in
// effect when it happened.
func (l *Ledger) MaxRelDrawdownPct() float64 { return l.maxDrawdownPc }

// Position returns the open position for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns the open positions sorted by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, sym := range l.symbols() {
		out = append(out, *l.positions[sym])
	}
	return out
}

// Trades returns a copy of the closed trade history in close order.
func (l *Ledger) Trades() []TradeRecord {
	return append([]TradeRecord(nil), l.trades...)
}

// EquityCurve returns a copy of the equity samples in time order.
func (l *Ledger) EquityCurve() []EquitySample {
	return append([]EquitySample(nil), l.equity...)
}

// Open records a new position. Longs are checked against and debited from
// the balance, capped at MaxPositionPct of it. Shorts use the requested
// amount as-is and leave the balance untouched until they close.
func (l *Ledger) Open(e Entry) (Position, error) {
	if e.Price <= 0 || e.Amount <= 0 || math.IsNaN(e.Price) || math.IsNaN(e.Amount) {
		return Position{}, fmt.Errorf("%w: %s price=%v amount=%v", ErrInvalidEntry, e.Symbol, e.Price, e.Amount)
	}
	if e.Side != Long && e.Side != Short {
		return Position{}, fmt.Errorf("%w: %s side %d", ErrInvalidEntry, e.Symbol, e.Side)
	}

	if _, held := l.positions[e.Symbol]; held {
		switch l.opts.Replace {
		case ReplaceReject:
			return Position{}, fmt.Errorf("%w: %s", ErrPositionExists, e.Symbol)
		case ReplaceRealize:
			// Realize against the new price, then check the new entry
			// against the updated balance.
			if _, _, err := l.Close(Exit{Symbol: e.Symbol, Price: e.Price, Time: e.Time, Reason: "Replaced"}); err != nil {
				return Position{}, err
			}
		case ReplaceOverwrite:
		}
	}

	size := e.Amount
	if e.Side == Long {
		cost := e.Amount * e.Price * (1 + l.opts.Commission)
		if cost > l.balance {
			return Position{}, fmt.Errorf("%w: %s needs %.2f, have %.2f",
				ErrInsufficientBalance, e.Symbol, cost, l.balance)
		}
		size = math.Min(e.Amount, l.opts.MaxPositionPct*l.balance/e.Price)
		l.balance -= size*e.Price + size*e.Price*l.opts.Commission
	}

	leverage := e.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	p := &Position{
		Symbol:     e.Symbol,
		Side:       e.Side,
		Size:       size,
		EntryPrice: e.Price,
		Leverage:   leverage,
		EntryTime:  e.Time,
		StopLoss:   e.StopLoss,
		TakeProfit: e.TakeProfit,
	}
	l.positions[e.Symbol] = p
	return *p, nil
}

// Close realizes the position held in x.Symbol at x.Price. It reports
// ok=false and does nothing when the symbol is flat.
//
// Longs get their principal back plus PnL less commission; shorts only
// book net PnL since their entry never debited principal.
func (l *Ledger) Close(x Exit) (rec TradeRecord, ok bool, err error) {
	p, held := l.positions[x.Symbol]
	if !held {
		return TradeRecord{}, false, nil
	}
	if x.Side != 0 && x.Side != p.Side && !l.opts.AllowSideMismatch {
		return TradeRecord{}, false, fmt.Errorf("%w: %s close %s, holding %s",
			ErrSideMismatch, x.Symbol, x.Side, p.Side)
	}

	pnl := p.UnrealizedPnL(x.Price)
	commission := p.Size * x.Price * l.opts.Commission
	net := pnl - commission

	if p.Side == Long {
		l.balance += p.Size*x.Price - commission
	} else {
		l.balance += net
	}

	rec = TradeRecord{
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  x.Price,
		Size:       p.Size,
		EntryTime:  p.EntryTime,
		ExitTime:   x.Time,
		PnL:        net,
		ReturnPct:  net / (p.Size * p.EntryPrice) * 100,
		Reason:     x.Reason,
	}
	l.trades = append(l.trades, rec)
	delete(l.positions, x.Symbol)

	return rec, true, nil
}

// CloseAll closes every open position at its symbol's price in prices.
// Positions with no price are left open.
func (l *Ledger) CloseAll(prices map[string]float64, at time.Time, reason string) []TradeRecord {
	var out []TradeRecord
	for _, sym := range l.symbols() {
		px, ok := prices[sym]
		if !ok {
			continue
		}
		rec, closed, err := l.Close(Exit{Symbol: sym, Price: px, Time: at, Reason: reason})
		if err != nil || !closed {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Equity is the balance plus the unrealized PnL of every open position
// valued at the close of its latest bar. Positions without a bar add
// nothing.
func (l *Ledger) Equity(latest map[string]market.Bar) float64 {
	equity := l.balance
	// Summed in symbol order so the float result does not depend on map
	// iteration.
	for _, sym := range l.symbols() {
		b, ok := latest[sym]
		if !ok {
			continue
		}
		equity += l.positions[sym].UnrealizedPnL(b.Close)
	}
	return equity
}

// Mark appends the equity sample for at and updates the peak and drawdown
// watermarks. It is called once per timestamp, after signals.
func (l *Ledger) Mark(at time.Time, latest map[string]market.Bar) EquitySample {
	s := EquitySample{Time: at, Equity: l.Equity(latest)}
	l.equity = append(l.equity, s)

	if s.Equity > l.peak {
		l.peak = s.Equity
	}
	dd := l.peak - s.Equity
	if dd > l.maxDrawdown {
		l.maxDrawdown = dd
	}
	if l.peak > 0 {
		if pct := dd / l.peak * 100; pct > l.maxDrawdownPc {
			l.maxDrawdownPc = pct
		}
	}
	return s
}

func (l *Ledger) symbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
