package indicators

import "math"

// MACD returns the MACD line (fast EMA - slow EMA), its signal EMA, and the
// histogram. The usual parameters are 12, 26, 9.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64, err error) {
	fastEMA, err := EMA(closes, fast)
	if err != nil {
		return nil, nil, nil, err
	}
	slowEMA, err := EMA(closes, slow)
	if err != nil {
		return nil, nil, nil, err
	}

	line = nans(len(closes))
	for i := range closes {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	sig, err = EMA(line, signal)
	if err != nil {
		return nil, nil, nil, err
	}

	hist = nans(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return line, sig, hist, nil
}

// Bollinger returns the upper, middle and lower bands: an SMA of period
// values plus and minus k population standard deviations.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower []float64, err error) {
	middle, err = SMA(closes, period)
	if err != nil {
		return nil, nil, nil, err
	}
	sd, err := StdDev(closes, period)
	if err != nil {
		return nil, nil, nil, err
	}

	upper = nans(len(closes))
	lower = nans(len(closes))
	for i := range closes {
		if math.IsNaN(middle[i]) {
			continue
		}
		upper[i] = middle[i] + k*sd[i]
		lower[i] = middle[i] - k*sd[i]
	}
	return upper, middle, lower, nil
}
