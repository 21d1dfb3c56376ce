package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func px(sym string, close float64) map[string]market.Bar {
	return map[string]market.Bar{sym: {Symbol: sym, Close: close}}
}

func buy(sym string, amount, price float64, tm time.Time) Entry {
	return Entry{Symbol: sym, Side: Long, Amount: amount, Price: price, Time: tm}
}

func sell(sym string, amount, price float64, tm time.Time) Entry {
	return Entry{Symbol: sym, Side: Short, Amount: amount, Price: price, Time: tm}
}

func TestOpenCloseLongScenarioA(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 10_000})

	p, err := l.Open(buy("X", 1, 100, at(0)))
	require.NoError(t, err)
	assert.Equal(t, Long, p.Side)
	assert.Equal(t, 1.0, p.Size)
	assert.Equal(t, 9_900.0, l.Balance())

	rec, ok, err := l.Close(Exit{Symbol: "X", Side: Long, Price: 110, Time: at(1)})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 10_010.0, l.Balance())
	assert.Equal(t, 10.0, rec.PnL)
	assert.Equal(t, 10.0, rec.ReturnPct)
	assert.Equal(t, at(0), rec.EntryTime)
	assert.Equal(t, at(1), rec.ExitTime)
	assert.Len(t, l.Trades(), 1)

	_, held := l.Position("X")
	assert.False(t, held)
}

func TestOpenInsufficientBalanceScenarioB(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 50})

	_, err := l.Open(buy("X", 10, 100, at(0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	assert.Equal(t, 50.0, l.Balance())
	assert.Empty(t, l.Positions())
	assert.Empty(t, l.Trades())
}

func TestRoundTripRestoresBalance(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_234.5})
	_, err := l.Open(buy("X", 1, 100, at(0)))
	require.NoError(t, err)
	_, _, err = l.Close(Exit{Symbol: "X", Price: 100, Time: at(1)})
	require.NoError(t, err)

	assert.Equal(t, 1_234.5, l.Balance())
}

func TestLongIsCappedAtMaxPositionPct(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000})

	// cost 990 fits, but 95% of 1000 at 100 is 9.5 units
	p, err := l.Open(buy("X", 9.9, 100, at(0)))
	require.NoError(t, err)
	assert.InDelta(t, 9.5, p.Size, 1e-12)
	assert.InDelta(t, 50.0, l.Balance(), 1e-9)
}

func TestCommission(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 10_000, Commission: 0.001})

	_, err := l.Open(buy("X", 10, 100, at(0)))
	require.NoError(t, err)
	// 1000 notional + 1 commission
	assert.InDelta(t, 8_999.0, l.Balance(), 1e-9)

	rec, _, err := l.Close(Exit{Symbol: "X", Price: 110, Time: at(1)})
	require.NoError(t, err)

	// pnl 100, exit commission 1.1
	assert.InDelta(t, 98.9, rec.PnL, 1e-9)
	assert.InDelta(t, 9.89, rec.ReturnPct, 1e-9)
	assert.InDelta(t, 8_999+1_100-1.1, l.Balance(), 1e-9)
}

func TestShortIsNotCapitalChecked(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 50})

	p, err := l.Open(sell("X", 10, 100, at(0)))
	require.NoError(t, err)
	assert.Equal(t, Short, p.Side)
	assert.Equal(t, 10.0, p.Size)
	assert.Equal(t, 50.0, l.Balance())

	rec, ok, err := l.Close(Exit{Symbol: "X", Side: Short, Price: 90, Time: at(1)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, rec.PnL)
	assert.Equal(t, 10.0, rec.ReturnPct)
	assert.Equal(t, 150.0, l.Balance())
}

func TestShortLossWithCommission(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000, Commission: 0.01})
	_, err := l.Open(sell("X", 1, 100, at(0)))
	require.NoError(t, err)

	rec, _, err := l.Close(Exit{Symbol: "X", Price: 120, Time: at(1)})
	require.NoError(t, err)
	// -20 pnl, 1.2 commission
	assert.InDelta(t, -21.2, rec.PnL, 1e-9)
	assert.InDelta(t, 978.8, l.Balance(), 1e-9)
}

func TestCloseWhenFlatIsNoop(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 100})
	rec, ok, err := l.Close(Exit{Symbol: "X", Price: 1})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, TradeRecord{}, rec)
	assert.Equal(t, 100.0, l.Balance())
}

func TestInvalidEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		e    Entry
	}{
		{"zero amount", buy("X", 0, 100, at(0))},
		{"negative price", sell("X", 1, -1, at(0))},
		{"no side", Entry{Symbol: "X", Amount: 1, Price: 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := New(Options{InitialBalance: 100})
			_, err := l.Open(tt.e)
			assert.True(t, errors.Is(err, ErrInvalidEntry))
			assert.Empty(t, l.Positions())
		})
	}
}

func TestReplacePolicies(t *testing.T) {
	t.Parallel()

	t.Run("reject", func(t *testing.T) {
		t.Parallel()
		l := New(Options{InitialBalance: 1_000})
		_, err := l.Open(buy("X", 1, 100, at(0)))
		require.NoError(t, err)

		_, err = l.Open(sell("X", 2, 120, at(1)))
		assert.True(t, errors.Is(err, ErrPositionExists))

		p, _ := l.Position("X")
		assert.Equal(t, Long, p.Side)
		assert.Equal(t, 900.0, l.Balance())
	})

	t.Run("overwrite", func(t *testing.T) {
		t.Parallel()
		l := New(Options{InitialBalance: 1_000, Replace: ReplaceOverwrite})
		_, err := l.Open(buy("X", 1, 100, at(0)))
		require.NoError(t, err)

		_, err = l.Open(sell("X", 2, 120, at(1)))
		require.NoError(t, err)

		p, _ := l.Position("X")
		assert.Equal(t, Short, p.Side)
		assert.Equal(t, 2.0, p.Size)
		// the replaced long's principal is not returned
		assert.Equal(t, 900.0, l.Balance())
		assert.Empty(t, l.Trades())
	})

	t.Run("realize", func(t *testing.T) {
		t.Parallel()
		l := New(Options{InitialBalance: 1_000, Replace: ReplaceRealize})
		_, err := l.Open(buy("X", 1, 100, at(0)))
		require.NoError(t, err)

		_, err = l.Open(sell("X", 2, 120, at(1)))
		require.NoError(t, err)

		trades := l.Trades()
		require.Len(t, trades, 1)
		assert.Equal(t, 20.0, trades[0].PnL)
		assert.Equal(t, "Replaced", trades[0].Reason)
		assert.Equal(t, 1_020.0, l.Balance())

		p, _ := l.Position("X")
		assert.Equal(t, Short, p.Side)
	})
}

func TestCloseSideMismatch(t *testing.T) {
	t.Parallel()

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		l := New(Options{InitialBalance: 1_000})
		_, err := l.Open(buy("X", 1, 100, at(0)))
		require.NoError(t, err)

		_, ok, err := l.Close(Exit{Symbol: "X", Side: Short, Price: 110})
		assert.True(t, errors.Is(err, ErrSideMismatch))
		assert.False(t, ok)
		_, held := l.Position("X")
		assert.True(t, held)
	})

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()
		l := New(Options{InitialBalance: 1_000, AllowSideMismatch: true})
		_, err := l.Open(buy("X", 1, 100, at(0)))
		require.NoError(t, err)

		rec, ok, err := l.Close(Exit{Symbol: "X", Side: Short, Price: 110})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, Long, rec.Side)
		assert.Equal(t, 10.0, rec.PnL)
	})
}

func TestMarkTracksPeakAndDrawdown(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000})

	s := l.Mark(at(0), nil)
	assert.Equal(t, 1_000.0, s.Equity)
	assert.Equal(t, 0.0, l.MaxDrawdown())

	_, err := l.Open(sell("X", 5, 100, at(0)))
	require.NoError(t, err)

	closes := []float64{90, 110, 80, 85}
	wantEquity := []float64{1_050, 950, 1_100, 1_075}
	for i, c := range closes {
		s := l.Mark(at(i+1), px("X", c))
		assert.InDelta(t, wantEquity[i], s.Equity, 1e-9)
	}

	assert.InDelta(t, 1_100.0, l.PeakBalance(), 1e-9)
	// worst: peak 1050 -> 950
	assert.InDelta(t, 100.0, l.MaxDrawdown(), 1e-9)
	assert.InDelta(t, 100.0/1_050*100, l.MaxRelDrawdownPct(), 1e-9)

	curve := l.EquityCurve()
	require.Len(t, curve, 5)
	for i := 1; i < len(curve); i++ {
		assert.True(t, curve[i].Time.After(curve[i-1].Time))
	}
}

func TestMarkCountsLongPrincipalAsSpent(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000})
	_, err := l.Open(buy("X", 5, 100, at(0)))
	require.NoError(t, err)

	// equity is cash plus unrealized PnL; the debited principal is not
	// added back until the position closes
	s := l.Mark(at(1), px("X", 110))
	assert.InDelta(t, 550.0, s.Equity, 1e-9)
	assert.InDelta(t, 450.0, l.MaxDrawdown(), 1e-9)
}

func TestMarkWithoutLossesHasZeroDrawdown(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 100})
	_, err := l.Open(sell("X", 1, 50, at(0)))
	require.NoError(t, err)

	for i, c := range []float64{50, 49, 48, 48} {
		l.Mark(at(i), px("X", c))
	}
	assert.Equal(t, 0.0, l.MaxDrawdown())
	assert.Equal(t, 102.0, l.PeakBalance())
}

func TestEquityIgnoresSymbolsWithoutBars(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000})
	_, err := l.Open(buy("X", 1, 100, at(0)))
	require.NoError(t, err)
	_, err = l.Open(sell("Y", 1, 10, at(0)))
	require.NoError(t, err)

	assert.Equal(t, 900.0, l.Equity(nil))
	assert.Equal(t, 905.0, l.Equity(map[string]market.Bar{"Y": {Close: 5}}))
	assert.Equal(t, 915.0, l.Equity(map[string]market.Bar{"X": {Close: 110}, "Y": {Close: 5}}))
}

func TestCloseAll(t *testing.T) {
	t.Parallel()

	l := New(Options{InitialBalance: 1_000})
	_, err := l.Open(buy("B", 1, 100, at(0)))
	require.NoError(t, err)
	_, err = l.Open(sell("A", 1, 10, at(0)))
	require.NoError(t, err)
	_, err = l.Open(sell("C", 1, 10, at(0)))
	require.NoError(t, err)

	recs := l.CloseAll(map[string]float64{"A": 8, "B": 105}, at(3), "EndOfRun")
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].Symbol)
	assert.Equal(t, "B", recs[1].Symbol)
	assert.Equal(t, "EndOfRun", recs[1].Reason)

	left := l.Positions()
	require.Len(t, left, 1)
	assert.Equal(t, "C", left[0].Symbol)
}

func TestParse(t *testing.T) {
	t.Parallel()

	p, err := ParseReplacePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReplaceReject, p)

	p, err = ParseReplacePolicy("Realize")
	require.NoError(t, err)
	assert.Equal(t, "realize", p.String())

	_, err = ParseReplacePolicy("net")
	assert.Error(t, err)

	s, err := ParseSide("SHORT")
	require.NoError(t, err)
	assert.Equal(t, Short, s)
	_, err = ParseSide("flat")
	assert.Error(t, err)
}
