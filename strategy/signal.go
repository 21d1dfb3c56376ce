package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/backtester/market"
)

// Kind tags what a Signal asks for. The zero value is not a valid kind so
// an unset Signal is caught by the dispatcher instead of being ignored.
type Kind int

const (
	Hold Kind = iota + 1
	Buy
	Sell
	CloseLong
	CloseShort
)

var kindNames = map[Kind]string{
	Hold:       "hold",
	Buy:        "buy",
	Sell:       "sell",
	CloseLong:  "close_long",
	CloseShort: "close_short",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown signal kind %q", s)
}

// Signal is a strategy's decision for one symbol at one bar. Price is both
// the decision and the fill price. Time is the timestamp of the bar the
// decision was made on.
type Signal struct {
	Symbol     string
	Kind       Kind
	Price      float64
	Amount     float64
	Confidence float64
	Time       time.Time

	StopLoss   *float64
	TakeProfit *float64
	Leverage   int

	Meta map[string]float64
}

// IsEntry reports whether the signal opens a position.
func (s Signal) IsEntry() bool { return s.Kind == Buy || s.Kind == Sell }

// IsExit reports whether the signal closes a position.
func (s Signal) IsExit() bool { return s.Kind == CloseLong || s.Kind == CloseShort }

// HoldSignal is the no-op answer for window. Price and time come from the
// last bar when there is one.
func HoldSignal(symbol string, window []market.Bar) Signal {
	sig := Signal{Symbol: symbol, Kind: Hold}
	if n := len(window); n > 0 {
		sig.Price = window[n-1].Close
		sig.Time = window[n-1].Time
	}
	return sig
}

func ptr(x float64) *float64 { return &x }
