package market

import (
	"sort"
	"time"
)

// Bar is one OHLCV sample for a symbol at a timestamp.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mid returns the midpoint of the bar's range.
func (b Bar) Mid() float64 {
	return (b.High + b.Low) / 2
}

// Series maps a symbol to its bars, ordered by time.
type Series map[string][]Bar

// Symbols returns the series keys in sorted order. Every loop over a
// Series that affects results goes through Symbols so runs are repeatable.
func (s Series) Symbols() []string {
	out := make([]string, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of bars across all symbols.
func (s Series) Len() int {
	n := 0
	for _, bars := range s {
		n += len(bars)
	}
	return n
}

// SortBars orders bars by time in place, keeping the first of any
// duplicate timestamps. It returns the possibly shortened slice.
func SortBars(bars []Bar) []Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Closes extracts the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
