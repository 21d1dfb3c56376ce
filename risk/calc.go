package risk

import "math"

// PlannedRisk is the absolute loss if a position of size units entered at
// entry is stopped out at stop.
func PlannedRisk(size, entry, stop float64) float64 {
	return size * math.Abs(entry-stop)
}

// RR is the reward-to-risk multiple of a bracket.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// RiskPct is plannedRisk as a fraction of balance.
func RiskPct(plannedRisk, balance float64) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / balance
}
