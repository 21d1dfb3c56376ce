// Package ledger holds the single authoritative record of cash, open
// positions and history for one backtest run.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "none"
	}
}

// ParseSide parses "long" or "short".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// Position is an open directional exposure in one symbol. Size is always
// positive; the direction lives in Side.
type Position struct {
	Symbol     string
	Side       Side
	Size       float64
	EntryPrice float64
	Leverage   int
	EntryTime  time.Time

	StopLoss   float64 // 0 means none
	TakeProfit float64 // 0 means none
}

// UnrealizedPnL is the profit of the position if it were closed at price,
// before commission.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// TradeRecord is a closed position. PnL is net of the exit commission.
type TradeRecord struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
	ReturnPct  float64
	Reason     string
}

// EquitySample is the account equity observed at one timestamp.
type EquitySample struct {
	Time   time.Time
	Equity float64
}

// Entry asks the ledger to open a position.
type Entry struct {
	Symbol     string
	Side       Side
	Price      float64
	Amount     float64
	Leverage   int
	Time       time.Time
	StopLoss   float64
	TakeProfit float64
}

// Exit asks the ledger to close the position held in Symbol. Side is the
// side the caller expects to close; zero means any.
type Exit struct {
	Symbol string
	Side   Side
	Price  float64
	Time   time.Time
	Reason string
}

// ReplacePolicy decides what Open does when the symbol already holds a
// position.
type ReplacePolicy int

const (
	// ReplaceReject refuses the new entry with ErrPositionExists.
	ReplaceReject ReplacePolicy = iota
	// ReplaceOverwrite drops the held position without realizing it. Cash
	// debited for a replaced long is lost.
	ReplaceOverwrite
	// ReplaceRealize closes the held position at the new entry price, then
	// opens the new one.
	ReplaceRealize
)

func (p ReplacePolicy) String() string {
	switch p {
	case ReplaceReject:
		return "reject"
	case ReplaceOverwrite:
		return "overwrite"
	case ReplaceRealize:
		return "realize"
	default:
		return fmt.Sprintf("ReplacePolicy(%d)", int(p))
	}
}

// ParseReplacePolicy parses "reject", "overwrite" or "realize". An empty
// string yields ReplaceReject.
func ParseReplacePolicy(s string) (ReplacePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return ReplaceReject, nil
	case "overwrite":
		return ReplaceOverwrite, nil
	case "realize":
		return ReplaceRealize, nil
	default:
		return 0, fmt.Errorf("unknown replace policy %q (supported: reject, overwrite, realize)", s)
	}
}
