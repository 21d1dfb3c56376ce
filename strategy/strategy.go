// Package strategy defines the capability the backtest engine consumes and
// ships the built-in strategies.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
)

// Strategy turns the trailing window of bars for a symbol into exactly one
// Signal. A window too short to decide on must yield Hold. Analyze must not
// block and must not read the wall clock.
type Strategy interface {
	Name() string
	Analyze(symbol string, window []market.Bar) Signal
}

// PositionAware is implemented by strategies that want to see the ledger's
// position for a symbol before each Analyze. pos is nil when flat.
type PositionAware interface {
	UpdatePosition(symbol string, pos *ledger.Position)
}

// Params are numeric strategy parameters keyed by name, as they appear in
// config files.
type Params map[string]float64

func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// Factory builds a fresh strategy instance. Instances hold per-run state
// and are never shared between runs.
type Factory func(Params) (Strategy, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a factory available to New under name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(name)] = f
}

// New builds the strategy registered under name.
func New(name string, params Params) (Strategy, error) {
	mu.RLock()
	f, ok := registry[normalize(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(params)
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

func init() {
	Register("noop", func(Params) (Strategy, error) { return Noop{}, nil })
	Register("ma_crossover", func(p Params) (Strategy, error) { return NewMACrossover(p) })
	Register("rsi", func(p Params) (Strategy, error) { return NewRSI(p) })
	Register("ema_cross", func(p Params) (Strategy, error) { return NewEMACross(p) })
}

// Noop always holds.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Analyze(symbol string, window []market.Bar) Signal {
	return HoldSignal(symbol, window)
}

// Positions tracks the last position the engine reported per symbol.
// Embed it to satisfy PositionAware.
type Positions struct {
	held map[string]ledger.Position
}

func (p *Positions) UpdatePosition(symbol string, pos *ledger.Position) {
	if pos == nil {
		delete(p.held, symbol)
		return
	}
	if p.held == nil {
		p.held = make(map[string]ledger.Position)
	}
	p.held[symbol] = *pos
}

// Position returns the held position for symbol.
func (p *Positions) Position(symbol string) (ledger.Position, bool) {
	pos, ok := p.held[symbol]
	return pos, ok && pos.Size > 0
}
