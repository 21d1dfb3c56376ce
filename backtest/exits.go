package backtest

import (
	"github.com/rustyeddy/backtester/ledger"
	"github.com/rustyeddy/backtester/market"
)

const (
	ReasonStopLoss   = "StopLoss"
	ReasonTakeProfit = "TakeProfit"
	ReasonEnd        = "EndOfBacktest"
)

// checkExit reports whether bar b touches the position's stop or take
// profit. If both are inside the bar's range we cannot know which came
// first and assume the stop.
func checkExit(p ledger.Position, b market.Bar) (exitPx float64, reason string, hit bool) {
	hasStop := p.StopLoss > 0
	hasTake := p.TakeProfit > 0

	var stopHit, takeHit bool
	switch p.Side {
	case ledger.Long:
		stopHit = hasStop && b.Low <= p.StopLoss
		takeHit = hasTake && b.High >= p.TakeProfit
	case ledger.Short:
		stopHit = hasStop && b.High >= p.StopLoss
		takeHit = hasTake && b.Low <= p.TakeProfit
	}

	switch {
	case stopHit:
		return p.StopLoss, ReasonStopLoss, true
	case takeHit:
		return p.TakeProfit, ReasonTakeProfit, true
	}
	return 0, "", false
}
