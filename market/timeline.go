package market

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoDataInRange is returned when no symbol has a bar inside the
// requested date range.
var ErrNoDataInRange = errors.New("no market data in range")

// InRange reports whether t is within [start, end], inclusive on both ends.
// A zero start or end leaves that side open.
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// Filter returns the bars of each symbol that fall inside [start, end].
// Symbols keep their key even when nothing survives the filter.
func Filter(series Series, start, end time.Time) Series {
	out := make(Series, len(series))
	for sym, bars := range series {
		kept := make([]Bar, 0, len(bars))
		for _, b := range bars {
			if InRange(b.Time, start, end) {
				kept = append(kept, b)
			}
		}
		out[sym] = kept
	}
	return out
}

// Timeline filters series to [start, end] and returns the sorted, distinct
// union of their timestamps along with the filtered series. It fails with
// ErrNoDataInRange when every symbol is empty after filtering.
func Timeline(series Series, start, end time.Time) ([]time.Time, Series, error) {
	filtered := Filter(series, start, end)
	if filtered.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: %s to %s",
			ErrNoDataInRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	seen := make(map[int64]struct{}, filtered.Len())
	stamps := make([]time.Time, 0, filtered.Len())
	for _, sym := range filtered.Symbols() {
		for _, b := range filtered[sym] {
			key := b.Time.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			stamps = append(stamps, b.Time)
		}
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	return stamps, filtered, nil
}
