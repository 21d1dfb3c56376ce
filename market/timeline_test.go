package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestTimelineMergesAndDedupes(t *testing.T) {
	t.Parallel()

	series := Series{
		"BTC": {bar("BTC", day(1), 1), bar("BTC", day(2), 2), bar("BTC", day(4), 4)},
		"ETH": {bar("ETH", day(2), 2), bar("ETH", day(3), 3), bar("ETH", day(9), 9)},
	}

	stamps, filtered, err := Timeline(series, day(1), day(4))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4)}, stamps)
	assert.Len(t, filtered["BTC"], 3)
	assert.Len(t, filtered["ETH"], 2)
}

func TestTimelineRangeIsInclusive(t *testing.T) {
	t.Parallel()

	series := Series{"X": {bar("X", day(1), 1), bar("X", day(2), 2), bar("X", day(3), 3)}}

	stamps, _, err := Timeline(series, day(2), day(2))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2)}, stamps)
}

func TestTimelineNoDataInRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		series Series
	}{
		{"empty", Series{}},
		{"all before", Series{"X": {bar("X", day(1), 1)}}},
		{"all after", Series{"X": {bar("X", day(20), 1)}, "Y": {bar("Y", day(21), 1)}}},
		{"symbol without bars", Series{"X": nil}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stamps, filtered, err := Timeline(tt.series, day(5), day(10))
			assert.True(t, errors.Is(err, ErrNoDataInRange))
			assert.Nil(t, stamps)
			assert.Nil(t, filtered)
		})
	}
}

func TestInRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		t          time.Time
		start, end time.Time
		want       bool
	}{
		{"open range", day(5), time.Time{}, time.Time{}, true},
		{"inside", day(5), day(1), day(9), true},
		{"at start", day(1), day(1), day(9), true},
		{"at end", day(9), day(1), day(9), true},
		{"before", day(1), day(2), day(9), false},
		{"after", day(10), day(2), day(9), false},
		{"only start", day(30), day(2), time.Time{}, true},
		{"only end", day(1), time.Time{}, day(2), true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InRange(tt.t, tt.start, tt.end))
		})
	}
}

func TestSeriesSymbolsSorted(t *testing.T) {
	t.Parallel()

	s := Series{"c": nil, "a": nil, "b": nil}
	assert.Equal(t, []string{"a", "b", "c"}, s.Symbols())
}

func TestSortBarsDropsDuplicates(t *testing.T) {
	t.Parallel()

	bars := []Bar{bar("X", day(3), 3), bar("X", day(1), 1), bar("X", day(3), 30), bar("X", day(2), 2)}
	got := SortBars(bars)
	assert.Equal(t, []float64{1, 2, 3}, Closes(got))
}
