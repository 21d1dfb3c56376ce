package backtest

import (
	"math"
	"time"

	"github.com/rustyeddy/backtester/ledger"
)

// Result is the performance report of one run.
type Result struct {
	Strategy string

	InitialBalance float64
	FinalBalance   float64
	TotalReturn    float64
	TotalReturnPct float64

	PeakBalance float64
	MaxDrawdown float64
	// MaxDrawdownPct is MaxDrawdown over the peak at the end of the run.
	MaxDrawdownPct float64
	// MaxRelDrawdownPct is the worst drawdown over the peak in effect when
	// it happened.
	MaxRelDrawdownPct float64
	SharpeRatio       float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AvgWin        float64
	AvgLoss       float64 // magnitude
	ProfitFactor  float64

	Start        time.Time
	End          time.Time
	DurationDays int

	Rejected      int // entries or closes refused by the ledger or risk policy
	Skipped       int // entries below min confidence
	OpenPositions int // left open at the end

	Trades      []ledger.TradeRecord
	EquityCurve []ledger.EquitySample
}

// Inputs is what Summarize needs from a finished run.
type Inputs struct {
	Strategy          string
	InitialBalance    float64
	FinalBalance      float64
	PeakBalance       float64
	MaxDrawdown       float64
	MaxRelDrawdownPct float64
	Trades            []ledger.TradeRecord
	EquityCurve       []ledger.EquitySample
	Start, End        time.Time
}

// Summarize computes the report for a finished run.
func Summarize(in Inputs) *Result {
	r := &Result{
		Strategy:          in.Strategy,
		InitialBalance:    in.InitialBalance,
		FinalBalance:      in.FinalBalance,
		TotalReturn:       in.FinalBalance - in.InitialBalance,
		PeakBalance:       in.PeakBalance,
		MaxDrawdown:       in.MaxDrawdown,
		MaxRelDrawdownPct: in.MaxRelDrawdownPct,
		SharpeRatio:       Sharpe(in.EquityCurve),
		TotalTrades:       len(in.Trades),
		Start:             in.Start,
		End:               in.End,
		DurationDays:      durationDays(in.Start, in.End),
		Trades:            in.Trades,
		EquityCurve:       in.EquityCurve,
	}
	if in.InitialBalance != 0 {
		r.TotalReturnPct = r.TotalReturn / in.InitialBalance * 100
	}
	if in.PeakBalance > 0 {
		r.MaxDrawdownPct = in.MaxDrawdown / in.PeakBalance * 100
	}

	var gross, loss float64
	for _, t := range in.Trades {
		switch {
		case t.PnL > 0:
			r.WinningTrades++
			gross += t.PnL
		case t.PnL < 0:
			r.LosingTrades++
			loss += -t.PnL
		}
	}
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	}
	if r.WinningTrades > 0 {
		r.AvgWin = gross / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = loss / float64(r.LosingTrades)
	}
	r.ProfitFactor = ProfitFactor(gross, loss)

	return r
}

// ProfitFactor is gross wins over gross losses: +Inf with wins and no
// losses, 0 with neither.
func ProfitFactor(gross, loss float64) float64 {
	switch {
	case loss > 0:
		return gross / loss
	case gross > 0:
		return math.Inf(1)
	default:
		return 0
	}
}

// Sharpe is the mean step return of the equity curve over its population
// standard deviation, annualized by sqrt(252). Fewer than two samples or
// zero deviation give 0. Steps from zero equity are skipped.
func Sharpe(curve []ledger.EquitySample) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// durationDays counts whole calendar days between start and end.
func durationDays(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / (24 * time.Hour))
}
