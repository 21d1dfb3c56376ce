package indicators

import (
	"fmt"
	"math"
)

// DirectionalIndex holds the Wilder directional movement series. ADX
// needs 2*period bars of history; PlusDI and MinusDI need period+1.
type DirectionalIndex struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes the Wilder average directional index from aligned high,
// low and close series.
func ADX(high, low, close []float64, period int) (DirectionalIndex, error) {
	if err := checkPeriod(period); err != nil {
		return DirectionalIndex{}, err
	}
	if len(high) != len(low) || len(low) != len(close) {
		return DirectionalIndex{}, fmt.Errorf("adx: series lengths differ (high=%d low=%d close=%d)",
			len(high), len(low), len(close))
	}

	n := len(close)
	out := DirectionalIndex{ADX: nans(n), PlusDI: nans(n), MinusDI: nans(n)}

	var (
		smTR, smPlus, smMinus float64
		adx, dxSum            float64
		dxCount               int
		nf                    = float64(period)
	)
	for i := 1; i < n; i++ {
		tr := max3(high[i]-low[i], math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1]))

		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		// First period deltas are summed, then Wilder smoothed.
		if i <= period {
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/nf + tr
			smPlus = smPlus - smPlus/nf + plusDM
			smMinus = smMinus - smMinus/nf + minusDM
		}

		pdi, mdi := di(smPlus, smMinus, smTR)
		out.PlusDI[i], out.MinusDI[i] = pdi, mdi
		d := dx(pdi, mdi)

		// ADX is seeded with the mean of the first period DX values.
		if dxCount < period {
			dxSum += d
			dxCount++
			if dxCount == period {
				adx = dxSum / nf
				out.ADX[i] = adx
			}
			continue
		}
		adx = (adx*(nf-1) + d) / nf
		out.ADX[i] = adx
	}
	return out, nil
}

func di(smPlusDM, smMinusDM, smTR float64) (plusDI, minusDI float64) {
	if smTR <= 0 {
		return 0, 0
	}
	return 100 * smPlusDM / smTR, 100 * smMinusDM / smTR
}

func dx(plusDI, minusDI float64) float64 {
	den := plusDI + minusDI
	if den <= 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / den
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}
