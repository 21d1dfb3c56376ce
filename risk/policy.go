package risk

import (
	"fmt"
	"strings"
)

// Policy holds optional limits on new entries. Zero fields are not
// enforced, so the zero Policy allows everything.
type Policy struct {
	MaxRiskPct       float64 // loss at the stop over balance, e.g. 0.02
	MinRR            float64 // e.g. 1.5
	MaxOpenPositions int
}

// Enabled reports whether any limit is set.
func (p Policy) Enabled() bool {
	return p.MaxRiskPct > 0 || p.MinRR > 0 || p.MaxOpenPositions > 0
}

// Intent is a proposed entry. Stop and TakeProfit are zero when unset.
type Intent struct {
	Size       float64
	Entry      float64
	Stop       float64
	TakeProfit float64
}

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Codes joins the violation codes, for logging.
func (d Decision) Codes() string {
	codes := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		codes[i] = v.Code
	}
	return strings.Join(codes, ",")
}

// Evaluate checks intent against p given the current balance and number of
// open positions.
func (p Policy) Evaluate(intent Intent, balance float64, open int) Decision {
	d := Decision{Allowed: true}

	if p.MaxOpenPositions > 0 && open >= p.MaxOpenPositions {
		d.add("TOO_MANY_OPEN_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", open, p.MaxOpenPositions))
	}

	if p.MaxRiskPct <= 0 && p.MinRR <= 0 {
		return d
	}
	if intent.Stop <= 0 || intent.Entry <= 0 {
		d.add("NO_STOP_OR_ENTRY", "entry/stop must be set")
		return d
	}

	d.PlannedRisk = PlannedRisk(intent.Size, intent.Entry, intent.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, balance)
	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.add("RISK_TOO_HIGH",
			fmt.Sprintf("planned risk %.2f%% exceeds max %.2f%%",
				100*d.PlannedRiskPct, 100*p.MaxRiskPct))
	}

	if p.MinRR > 0 {
		if intent.TakeProfit <= 0 {
			d.add("NO_TAKE_PROFIT", "take profit must be set")
			return d
		}
		d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)
		if d.PlannedRR < p.MinRR {
			d.add("RR_TOO_LOW",
				fmt.Sprintf("RR %.2f below minimum %.2f", d.PlannedRR, p.MinRR))
		}
	}
	return d
}
