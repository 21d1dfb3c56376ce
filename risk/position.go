package risk

import "math"

// Inputs describes a sizing request. Amount is the size the strategy asked
// for and acts as the upper bound.
type Inputs struct {
	Balance float64
	RiskPct float64 // 0.02
	Entry   float64
	Stop    float64
	Amount  float64
}

type Result struct {
	Size         float64
	StopDistance float64
	RiskAmount   float64
	Capped       bool // Size was limited by Amount
}

// Calculate sizes a position so that hitting the stop loses RiskPct of the
// balance, never exceeding the requested amount. Without a usable stop the
// requested amount is returned unchanged.
func Calculate(in Inputs) Result {
	dist := math.Abs(in.Entry - in.Stop)
	res := Result{Size: in.Amount, StopDistance: dist}

	if in.Stop <= 0 || dist == 0 || in.Entry <= 0 || in.RiskPct <= 0 {
		return res
	}

	res.RiskAmount = in.Balance * in.RiskPct
	// risk per unit is the stop distance as a fraction of price, applied
	// back to the price
	perUnit := dist / in.Entry
	size := res.RiskAmount / (in.Entry * perUnit)

	if size < in.Amount {
		res.Size = size
	} else {
		res.Capped = true
	}
	return res
}

// Size is Calculate reduced to the resulting size.
func Size(balance, riskPct, entry, stop, amount float64) float64 {
	return Calculate(Inputs{
		Balance: balance,
		RiskPct: riskPct,
		Entry:   entry,
		Stop:    stop,
		Amount:  amount,
	}).Size
}
