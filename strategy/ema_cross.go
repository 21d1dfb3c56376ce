package strategy

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
)

// EMACross generates signals when a fast EMA crosses a slow EMA. It fires
// only on the bar where the relationship flips, not on every bar while the
// EMAs stay crossed.
//
// Bars where the EMAs are closer than MinSpread neither fire nor reset the
// prior relationship. With ADXPeriod > 0 an entry also needs ADX at or
// above ADXThreshold; RequireDI additionally wants +DI above -DI for buys
// and the opposite for sells.
type EMACross struct {
	Positions

	FastPeriod int     // 20
	SlowPeriod int     // 50
	MinSpread  float64 // price units, 0 disables

	ADXPeriod    int     // 0 disables the trend filter
	ADXThreshold float64 // 20
	RequireDI    bool

	StopPct float64 // 0.02
	TakePct float64 // 0.04
	Amount  float64 // 1
}

func NewEMACross(p Params) (*EMACross, error) {
	s := &EMACross{
		FastPeriod:   p.Int("fast_period", 20),
		SlowPeriod:   p.Int("slow_period", 50),
		MinSpread:    p.Float("min_spread", 0),
		ADXPeriod:    p.Int("adx_period", 0),
		ADXThreshold: p.Float("adx_threshold", 20),
		RequireDI:    p.Float("require_di", 0) != 0,
		StopPct:      p.Float("stop_pct", 0.02),
		TakePct:      p.Float("take_pct", 0.04),
		Amount:       p.Float("amount", 1),
	}
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 || s.ADXPeriod < 0 {
		return nil, fmt.Errorf("ema_cross: periods must be positive (fast=%d slow=%d adx=%d)",
			s.FastPeriod, s.SlowPeriod, s.ADXPeriod)
	}
	if s.FastPeriod >= s.SlowPeriod {
		return nil, fmt.Errorf("ema_cross: fast period %d must be below slow period %d",
			s.FastPeriod, s.SlowPeriod)
	}
	if s.MinSpread < 0 {
		return nil, fmt.Errorf("ema_cross: min spread must not be negative, got %v", s.MinSpread)
	}
	if s.Amount <= 0 {
		return nil, fmt.Errorf("ema_cross: amount must be positive, got %v", s.Amount)
	}
	return s, nil
}

func (s *EMACross) Name() string { return "ema_cross" }

func (s *EMACross) Analyze(symbol string, window []market.Bar) Signal {
	if len(window) < s.SlowPeriod+1 {
		return HoldSignal(symbol, window)
	}

	closes := market.Closes(window)
	fast, err := indicators.EMA(closes, s.FastPeriod)
	if err != nil {
		return HoldSignal(symbol, window)
	}
	slow, err := indicators.EMA(closes, s.SlowPeriod)
	if err != nil {
		return HoldSignal(symbol, window)
	}

	n := len(window)
	sig := HoldSignal(symbol, window)
	sig.Meta = map[string]float64{
		"fast_ema": fast[n-1],
		"slow_ema": slow[n-1],
	}

	now := s.relation(fast[n-1], slow[n-1])
	if now == 0 {
		return sig
	}
	prev := 0
	for i := n - 2; i >= 0 && prev == 0; i-- {
		prev = s.relation(fast[i], slow[i])
	}
	up := prev == -1 && now == +1
	down := prev == +1 && now == -1

	if pos, ok := s.Position(symbol); ok {
		switch {
		case pos.Side == ledger.Long && down:
			return exitSignal(sig, CloseLong, pos)
		case pos.Side == ledger.Short && up:
			return exitSignal(sig, CloseShort, pos)
		}
	}
	if !up && !down {
		return sig
	}

	conf := 0.6
	if s.ADXPeriod > 0 {
		adx, ok := s.trend(window, sig.Meta, up)
		if !ok {
			return sig
		}
		conf = math.Min(0.5+adx/200, 1)
	}

	price := window[n-1].Close
	sig.Amount = s.Amount
	sig.Confidence = conf
	if up {
		sig.Kind = Buy
		sig.StopLoss = ptr(price * (1 - s.StopPct))
		sig.TakeProfit = ptr(price * (1 + s.TakePct))
	} else {
		sig.Kind = Sell
		sig.StopLoss = ptr(price * (1 + s.StopPct))
		sig.TakeProfit = ptr(price * (1 - s.TakePct))
	}
	return sig
}

// relation is +1 when fast is above slow, -1 below, and 0 when either is
// not ready or the spread is under MinSpread.
func (s *EMACross) relation(fast, slow float64) int {
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return 0
	}
	diff := fast - slow
	if s.MinSpread > 0 && math.Abs(diff) < s.MinSpread {
		return 0
	}
	switch {
	case diff > 0:
		return +1
	case diff < 0:
		return -1
	}
	return 0
}

// trend applies the ADX filter and records its values in meta.
func (s *EMACross) trend(window []market.Bar, meta map[string]float64, long bool) (float64, bool) {
	high := make([]float64, len(window))
	low := make([]float64, len(window))
	for i, b := range window {
		high[i], low[i] = b.High, b.Low
	}
	di, err := indicators.ADX(high, low, market.Closes(window), s.ADXPeriod)
	if err != nil {
		return 0, false
	}
	adx := indicators.Last(di.ADX)
	plus, minus := indicators.Last(di.PlusDI), indicators.Last(di.MinusDI)
	meta["adx"], meta["plus_di"], meta["minus_di"] = adx, plus, minus

	if math.IsNaN(adx) || adx < s.ADXThreshold {
		return adx, false
	}
	if s.RequireDI {
		if long && !(plus > minus) || !long && !(minus > plus) {
			return adx, false
		}
	}
	return adx, true
}
