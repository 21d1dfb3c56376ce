package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV bar files hold one bar per row:
//
//	time,symbol,open,high,low,close,volume
//
// time is RFC3339, RFC3339Nano, or integer unix seconds/milliseconds.
// A header row ("time,...") is allowed. Empty and short rows are skipped.
// Rows with an empty symbol column take the symbol passed to the reader.

var csvHeader = []string{"time", "symbol", "open", "high", "low", "close", "volume"}

// LoadCSV reads the bars of path. See ReadCSV.
func LoadCSV(path, symbol string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses bar rows from r and returns them sorted by time with
// duplicate timestamps removed. When symbol is non-empty only rows for that
// symbol are kept.
func ReadCSV(r io.Reader, symbol string) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		bars     []Bar
		sawFirst bool
		line     int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !sawFirst {
			sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		b, ok, err := parseBarRow(row, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if symbol != "" && b.Symbol != symbol {
			continue
		}
		bars = append(bars, b)
	}
	return SortBars(bars), nil
}

func parseBarRow(row []string, symbol string) (Bar, bool, error) {
	if len(row) < 6 {
		return Bar{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return Bar{}, false, nil
	}
	t, err := ParseTime(ts)
	if err != nil {
		return Bar{}, false, err
	}

	sym := strings.TrimSpace(row[1])
	if sym == "" {
		sym = symbol
	}
	if sym == "" {
		return Bar{}, false, nil
	}

	var px [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range px {
		col := 2 + i
		if col >= len(row) {
			// volume is optional
			break
		}
		s := strings.TrimSpace(row[col])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, false, fmt.Errorf("bad %s %q: %w", names[i], row[col], err)
		}
		px[i] = v
	}

	return Bar{
		Symbol: sym,
		Time:   t,
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: px[4],
	}, true, nil
}

// ParseTime accepts RFC3339, RFC3339Nano, a plain date (2006-01-02), or an
// integer unix timestamp in seconds or milliseconds. Results are UTC.
func ParseTime(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 || n < -1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// WriteCSV writes bars with a header row.
func WriteCSV(w io.Writer, bars []Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			b.Symbol,
			ff(b.Open),
			ff(b.High),
			ff(b.Low),
			ff(b.Close),
			ff(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
