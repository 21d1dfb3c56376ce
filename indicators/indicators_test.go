package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes() []float64 {
	return []float64{102, 105, 106, 108, 110, 111, 113, 114, 116, 118}
}

func TestSMA(t *testing.T) {
	t.Parallel()

	ma, err := SMA(closes(), 5)
	require.NoError(t, err)
	require.Len(t, ma, 10)

	assert.True(t, math.IsNaN(ma[3]))
	// First 5 closes: 102,105,106,108,110 => 531/5
	assert.InDelta(t, 106.2, ma[4], 1e-9)
	// Last 5 closes: 111,113,114,116,118 => 572/5
	assert.InDelta(t, 114.4, Last(ma), 1e-9)
}

func TestEMA(t *testing.T) {
	t.Parallel()

	ema, err := EMA(closes(), 5)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(ema[3]))
	assert.InDelta(t, 106.2, ema[4], 1e-9)
	// 106.2 + (111-106.2)/3
	assert.InDelta(t, 107.8, ema[5], 1e-9)
	assert.Greater(t, Last(ema), Prev(ema))
}

func TestEMASkipsLeadingNaN(t *testing.T) {
	t.Parallel()

	in := []float64{math.NaN(), math.NaN(), 1, 2, 3}
	ema, err := EMA(in, 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(ema[2]))
	assert.InDelta(t, 1.5, ema[3], 1e-9)
}

func TestBadPeriod(t *testing.T) {
	t.Parallel()

	_, err := SMA(closes(), 0)
	assert.Error(t, err)
	_, err = EMA(closes(), -1)
	assert.Error(t, err)
	_, err = RSI(closes(), 0)
	assert.Error(t, err)
}

func TestRSI(t *testing.T) {
	t.Parallel()

	t.Run("only gains", func(t *testing.T) {
		t.Parallel()
		rsi, err := RSI(closes(), 5)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(rsi[4]))
		assert.Equal(t, 100.0, rsi[5])
	})

	t.Run("flat", func(t *testing.T) {
		t.Parallel()
		rsi, err := RSI([]float64{5, 5, 5, 5}, 2)
		require.NoError(t, err)
		assert.Equal(t, 50.0, Last(rsi))
	})

	t.Run("mixed", func(t *testing.T) {
		t.Parallel()
		// changes: +1 -1 +1 -1 => avg gain == avg loss
		rsi, err := RSI([]float64{10, 11, 10, 11, 10}, 4)
		require.NoError(t, err)
		assert.InDelta(t, 50.0, Last(rsi), 1e-9)
	})

	t.Run("short input", func(t *testing.T) {
		t.Parallel()
		rsi, err := RSI([]float64{1, 2}, 5)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(Last(rsi)))
	})
}

func TestBollinger(t *testing.T) {
	t.Parallel()

	upper, middle, lower, err := Bollinger([]float64{1, 2, 3, 4, 5}, 5, 2)
	require.NoError(t, err)

	// mean 3, population variance 2
	assert.InDelta(t, 3.0, Last(middle), 1e-9)
	assert.InDelta(t, 3+2*math.Sqrt(2), Last(upper), 1e-9)
	assert.InDelta(t, 3-2*math.Sqrt(2), Last(lower), 1e-9)
	assert.True(t, math.IsNaN(upper[3]))
}

func TestMACD(t *testing.T) {
	t.Parallel()

	xs := make([]float64, 60)
	for i := range xs {
		xs[i] = 100 + float64(i)
	}
	line, sig, hist, err := MACD(xs, 12, 26, 9)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(line[24]))
	assert.False(t, math.IsNaN(line[25]))
	assert.True(t, math.IsNaN(sig[32]))
	assert.False(t, math.IsNaN(sig[33]))
	// a steady uptrend keeps the fast EMA above the slow one
	assert.Greater(t, Last(line), 0.0)
	assert.InDelta(t, Last(line)-Last(sig), Last(hist), 1e-12)
}

func TestLastPrevEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsNaN(Last(nil)))
	assert.True(t, math.IsNaN(Prev([]float64{1})))
}

func TestADXTrend(t *testing.T) {
	t.Parallel()

	n := 10
	high, low, cl := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		high[i], low[i], cl[i] = c+1, c-1, c
	}

	di, err := ADX(high, low, cl, 3)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(di.PlusDI[2]))
	assert.InDelta(t, 50, di.PlusDI[3], 1e-9)
	assert.InDelta(t, 0, di.MinusDI[3], 1e-9)

	// 2*period bars before the first ADX value
	assert.True(t, math.IsNaN(di.ADX[4]))
	assert.InDelta(t, 100, di.ADX[5], 1e-9)
	assert.InDelta(t, 100, Last(di.ADX), 1e-9)
}

func TestADXFlat(t *testing.T) {
	t.Parallel()

	flat := []float64{5, 5, 5, 5, 5, 5}
	di, err := ADX(flat, flat, flat, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, Last(di.ADX), 1e-9)
	assert.InDelta(t, 0, Last(di.PlusDI), 1e-9)
}

func TestADXErrors(t *testing.T) {
	t.Parallel()

	_, err := ADX([]float64{1, 2}, []float64{1}, []float64{1, 2}, 2)
	assert.Error(t, err)
	_, err = ADX(nil, nil, nil, 0)
	assert.Error(t, err)
}
