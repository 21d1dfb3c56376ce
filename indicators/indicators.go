// Package indicators provides technical analysis indicators over price
// series. Every function returns a slice aligned with its input; positions
// before the indicator has warmed up hold NaN.
package indicators

import (
	"fmt"
	"math"
)

// Last returns the final value of a series, or NaN when it is empty.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// Prev returns the value before the final one, or NaN.
func Prev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	return xs[len(xs)-2]
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func checkPeriod(period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	return nil
}
