package indicators

import "math"

// SMA is the simple moving average of the last period values.
func SMA(xs []float64, period int) ([]float64, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	out := nans(len(xs))

	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA is the exponential moving average, seeded with the SMA of the first
// period values. NaN inputs (e.g. a warming-up source series) are skipped
// until the first real value.
func EMA(xs []float64, period int) ([]float64, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	out := nans(len(xs))
	multiplier := 2.0 / float64(period+1)

	start := 0
	for start < len(xs) && math.IsNaN(xs[start]) {
		start++
	}
	if len(xs)-start < period {
		return out, nil
	}

	sma := 0.0
	for i := start; i < start+period; i++ {
		sma += xs[i]
	}
	ema := sma / float64(period)
	out[start+period-1] = ema

	for i := start + period; i < len(xs); i++ {
		ema = (xs[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out, nil
}

// StdDev is the rolling population standard deviation over period values.
func StdDev(xs []float64, period int) ([]float64, error) {
	mean, err := SMA(xs, period)
	if err != nil {
		return nil, err
	}
	out := nans(len(xs))
	for i := period - 1; i < len(xs); i++ {
		ss := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := xs[j] - mean[i]
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(period))
	}
	return out, nil
}
