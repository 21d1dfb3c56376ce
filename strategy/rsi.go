package strategy

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
)

// RSI buys when RSI climbs back out of oversold near the lower Bollinger
// band and sells on the mirror image. Failing that it looks for price/RSI
// divergence over Lookback bars and enters half size with wider brackets.
// A held long is closed once RSI reaches overbought, a short at oversold.
type RSI struct {
	Positions

	Period     int     // 14
	Oversold   float64 // 30
	Overbought float64 // 70

	BandPeriod int     // 5
	BandK      float64 // 2

	MACDFast   int // 12
	MACDSlow   int // 26
	MACDSignal int // 9

	Lookback int // 20
	Amount   float64
}

func NewRSI(p Params) (*RSI, error) {
	s := &RSI{
		Period:     p.Int("rsi_period", 14),
		Oversold:   p.Float("oversold", 30),
		Overbought: p.Float("overbought", 70),
		BandPeriod: p.Int("bb_period", 5),
		BandK:      p.Float("bb_k", 2),
		MACDFast:   p.Int("macd_fast", 12),
		MACDSlow:   p.Int("macd_slow", 26),
		MACDSignal: p.Int("macd_signal", 9),
		Lookback:   p.Int("lookback", 20),
		Amount:     p.Float("amount", 1),
	}
	for name, v := range map[string]int{
		"rsi_period":  s.Period,
		"bb_period":   s.BandPeriod,
		"macd_fast":   s.MACDFast,
		"macd_slow":   s.MACDSlow,
		"macd_signal": s.MACDSignal,
		"lookback":    s.Lookback,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("rsi: %s must be positive, got %d", name, v)
		}
	}
	if s.Oversold >= s.Overbought {
		return nil, fmt.Errorf("rsi: oversold %v must be below overbought %v", s.Oversold, s.Overbought)
	}
	if s.Amount <= 0 {
		return nil, fmt.Errorf("rsi: amount must be positive, got %v", s.Amount)
	}
	return s, nil
}

func (s *RSI) Name() string { return "rsi" }

type rsiFrame struct {
	rsi        []float64
	macd, sig  []float64
	upper      []float64
	lower      []float64
	lows, high []float64
}

func (s *RSI) frame(window []market.Bar) (rsiFrame, error) {
	var f rsiFrame
	var err error

	closes := market.Closes(window)
	if f.rsi, err = indicators.RSI(closes, s.Period); err != nil {
		return f, err
	}
	if f.macd, f.sig, _, err = indicators.MACD(closes, s.MACDFast, s.MACDSlow, s.MACDSignal); err != nil {
		return f, err
	}
	if f.upper, _, f.lower, err = indicators.Bollinger(closes, s.BandPeriod, s.BandK); err != nil {
		return f, err
	}

	f.lows = make([]float64, len(window))
	f.high = make([]float64, len(window))
	for i, b := range window {
		f.lows[i] = b.Low
		f.high[i] = b.High
	}
	return f, nil
}

func (s *RSI) Analyze(symbol string, window []market.Bar) Signal {
	if len(window) < s.Period+10 {
		return HoldSignal(symbol, window)
	}
	f, err := s.frame(window)
	if err != nil {
		return HoldSignal(symbol, window)
	}

	last := window[len(window)-1]
	price := last.Close
	rsiNow, rsiPrev := indicators.Last(f.rsi), indicators.Prev(f.rsi)
	upper, lower := indicators.Last(f.upper), indicators.Last(f.lower)

	sig := HoldSignal(symbol, window)
	sig.Meta = map[string]float64{
		"rsi":         rsiNow,
		"macd":        indicators.Last(f.macd),
		"macd_signal": indicators.Last(f.sig),
		"bb_upper":    upper,
		"bb_lower":    lower,
		"volume":      last.Volume,
	}

	enter := func(kind Kind, amount, conf, stop, take float64) {
		sig.Kind = kind
		sig.Amount = amount
		sig.Confidence = conf
		sig.StopLoss = ptr(stop)
		sig.TakeProfit = ptr(take)
	}

	switch {
	case rsiPrev <= s.Oversold && rsiNow > s.Oversold && price <= lower*1.02:
		enter(Buy, s.Amount, s.confidence(window, f, ledger.Long),
			math.Min(price*0.97, lower*0.99), price*1.06)
	case rsiPrev >= s.Overbought && rsiNow < s.Overbought && price >= upper*0.98:
		enter(Sell, s.Amount, s.confidence(window, f, ledger.Short),
			math.Max(price*1.03, upper*1.01), price*0.94)
	case s.divergence(f, ledger.Long):
		enter(Buy, s.Amount/2, s.confidence(window, f, ledger.Long)*0.8,
			price*0.96, price*1.08)
	case s.divergence(f, ledger.Short):
		enter(Sell, s.Amount/2, s.confidence(window, f, ledger.Short)*0.8,
			price*1.04, price*0.92)
	}

	if pos, ok := s.Position(symbol); ok {
		switch {
		case pos.Side == ledger.Long && rsiNow >= s.Overbought:
			sig = exitSignal(sig, CloseLong, pos)
		case pos.Side == ledger.Short && rsiNow <= s.Oversold:
			sig = exitSignal(sig, CloseShort, pos)
		}
	}
	return sig
}

// confidence starts at 0.5 and adds for RSI depth, MACD agreement, a
// volume spike and a move away from the recent extreme.
func (s *RSI) confidence(window []market.Bar, f rsiFrame, dir ledger.Side) float64 {
	c := 0.5
	rsi := indicators.Last(f.rsi)
	macd, macdSig := indicators.Last(f.macd), indicators.Last(f.sig)
	price := window[len(window)-1].Close

	if dir == ledger.Long {
		switch {
		case rsi < 35:
			c += 0.2
		case rsi < 40:
			c += 0.1
		}
		if macd > macdSig {
			c += 0.15
		}
		if price > minSkipNaN(tail(f.lows, 5))*1.02 {
			c += 0.1
		}
	} else {
		switch {
		case rsi > 65:
			c += 0.2
		case rsi > 60:
			c += 0.1
		}
		if macd < macdSig {
			c += 0.15
		}
		if price < maxSkipNaN(tail(f.high, 5))*0.98 {
			c += 0.1
		}
	}

	if volumeSpike(window, 10, 1.5) {
		c += 0.1
	}
	return math.Min(c, 1)
}

// divergence compares the last Lookback bars with the ten before them. A
// bullish divergence is a lower price low with a higher RSI low, where the
// two recent lows happened within five bars of each other.
func (s *RSI) divergence(f rsiFrame, dir ledger.Side) bool {
	n := len(f.rsi)
	lb := s.Lookback
	if n <= lb+10 {
		return false
	}

	price := f.lows
	extreme, argExtreme := minSkipNaN, argMinSkipNaN
	if dir == ledger.Short {
		price = f.high
		extreme, argExtreme = maxSkipNaN, argMaxSkipNaN
	}

	recentPrice, recentRSI := price[n-lb:], f.rsi[n-lb:]
	pi, ri := argExtreme(recentPrice), argExtreme(recentRSI)
	if pi < 0 || ri < 0 || abs(pi-ri) > 5 {
		return false
	}

	olderPrice, olderRSI := price[n-lb-10:n-lb], f.rsi[n-lb-10:n-lb]
	oldP, oldR := extreme(olderPrice), extreme(olderRSI)
	curP, curR := extreme(recentPrice), extreme(recentRSI)
	if math.IsNaN(oldP) || math.IsNaN(oldR) || math.IsNaN(curP) || math.IsNaN(curR) {
		return false
	}

	if dir == ledger.Long {
		return curP < oldP && curR > oldR
	}
	return curP > oldP && curR < oldR
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func argMinSkipNaN(xs []float64) int {
	best := -1
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if best < 0 || x < xs[best] {
			best = i
		}
	}
	return best
}

func argMaxSkipNaN(xs []float64) int {
	best := -1
	for i, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if best < 0 || x > xs[best] {
			best = i
		}
	}
	return best
}

func minSkipNaN(xs []float64) float64 {
	if i := argMinSkipNaN(xs); i >= 0 {
		return xs[i]
	}
	return math.NaN()
}

func maxSkipNaN(xs []float64) float64 {
	if i := argMaxSkipNaN(xs); i >= 0 {
		return xs[i]
	}
	return math.NaN()
}
