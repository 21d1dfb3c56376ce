package strategy

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
)

// MACrossover trades fast/slow SMA crosses.
//   - Golden cross with RSI below 70 buys, death cross with RSI above 30 sells.
//   - Entries carry a StopPct stop and TakePct take profit.
//   - A cross against the held position closes it instead.
type MACrossover struct {
	Positions

	FastPeriod int     // 10
	SlowPeriod int     // 20
	RSIPeriod  int     // 14
	StopPct    float64 // 0.02
	TakePct    float64 // 0.04
	Amount     float64 // 1
}

func NewMACrossover(p Params) (*MACrossover, error) {
	s := &MACrossover{
		FastPeriod: p.Int("fast_period", 10),
		SlowPeriod: p.Int("slow_period", 20),
		RSIPeriod:  p.Int("rsi_period", 14),
		StopPct:    p.Float("stop_pct", 0.02),
		TakePct:    p.Float("take_pct", 0.04),
		Amount:     p.Float("amount", 1),
	}
	if s.FastPeriod <= 0 || s.SlowPeriod <= 0 || s.RSIPeriod <= 0 {
		return nil, fmt.Errorf("ma_crossover: periods must be positive (fast=%d slow=%d rsi=%d)",
			s.FastPeriod, s.SlowPeriod, s.RSIPeriod)
	}
	if s.FastPeriod >= s.SlowPeriod {
		return nil, fmt.Errorf("ma_crossover: fast period %d must be below slow period %d",
			s.FastPeriod, s.SlowPeriod)
	}
	if s.Amount <= 0 {
		return nil, fmt.Errorf("ma_crossover: amount must be positive, got %v", s.Amount)
	}
	return s, nil
}

func (s *MACrossover) Name() string { return "ma_crossover" }

func (s *MACrossover) Analyze(symbol string, window []market.Bar) Signal {
	if len(window) < s.SlowPeriod+1 {
		return HoldSignal(symbol, window)
	}

	closes := market.Closes(window)
	fast, err := indicators.SMA(closes, s.FastPeriod)
	if err != nil {
		return HoldSignal(symbol, window)
	}
	slow, err := indicators.SMA(closes, s.SlowPeriod)
	if err != nil {
		return HoldSignal(symbol, window)
	}
	rsiSeries, err := indicators.RSI(closes, s.RSIPeriod)
	if err != nil {
		return HoldSignal(symbol, window)
	}

	last := window[len(window)-1]
	price := last.Close
	fastNow, fastPrev := indicators.Last(fast), indicators.Prev(fast)
	slowNow, slowPrev := indicators.Last(slow), indicators.Prev(slow)
	rsi := indicators.Last(rsiSeries)

	golden := fastPrev <= slowPrev && fastNow > slowNow
	death := fastPrev >= slowPrev && fastNow < slowNow

	sig := HoldSignal(symbol, window)
	sig.Meta = map[string]float64{
		"fast_ma": fastNow,
		"slow_ma": slowNow,
		"rsi":     rsi,
		"volume":  last.Volume,
	}

	switch {
	case golden && rsi < 70:
		sig.Kind = Buy
		sig.Amount = s.Amount
		sig.Confidence = s.confidence(window, rsi, ledger.Long)
		sig.StopLoss = ptr(price * (1 - s.StopPct))
		sig.TakeProfit = ptr(price * (1 + s.TakePct))
	case death && rsi > 30:
		sig.Kind = Sell
		sig.Amount = s.Amount
		sig.Confidence = s.confidence(window, rsi, ledger.Short)
		sig.StopLoss = ptr(price * (1 + s.StopPct))
		sig.TakeProfit = ptr(price * (1 - s.TakePct))
	}

	if pos, ok := s.Position(symbol); ok {
		switch {
		case pos.Side == ledger.Long && death:
			sig = exitSignal(sig, CloseLong, pos)
		case pos.Side == ledger.Short && golden:
			sig = exitSignal(sig, CloseShort, pos)
		}
	}
	return sig
}

// confidence starts at 0.6 and adds 0.1 each for a volume spike, RSI on
// the right side of 50 and price momentum over the last four bars.
func (s *MACrossover) confidence(window []market.Bar, rsi float64, dir ledger.Side) float64 {
	c := 0.6

	if volumeSpike(window, 20, 1.2) {
		c += 0.1
	}

	if dir == ledger.Long && rsi > 30 && rsi < 50 {
		c += 0.1
	} else if dir == ledger.Short && rsi > 50 && rsi < 70 {
		c += 0.1
	}

	if n := len(window); n >= 5 {
		ref := window[n-5].Close
		change := (window[n-1].Close - ref) / ref
		if dir == ledger.Long && change > 0 || dir == ledger.Short && change < 0 {
			c += 0.1
		}
	}
	return math.Min(c, 1)
}

func exitSignal(sig Signal, kind Kind, pos ledger.Position) Signal {
	sig.Kind = kind
	sig.Confidence = 0.8
	sig.Amount = pos.Size
	sig.StopLoss = nil
	sig.TakeProfit = nil
	return sig
}

// volumeSpike reports whether the last bar's volume exceeds mult times the
// mean volume of the last period bars.
func volumeSpike(window []market.Bar, period int, mult float64) bool {
	vols := make([]float64, len(window))
	for i, b := range window {
		vols[i] = b.Volume
	}
	ma, err := indicators.SMA(vols, period)
	if err != nil {
		return false
	}
	avg := indicators.Last(ma)
	if math.IsNaN(avg) {
		return false
	}
	return indicators.Last(vols) > avg*mult
}
