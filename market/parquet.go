package market

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// BarRecord is the Parquet schema for bar files.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LoadParquet reads bars from a Parquet file. When symbol is non-empty only
// that symbol's rows are kept; rows with an empty symbol column take it.
func LoadParquet(path, symbol string) ([]Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}

	bars := make([]Bar, 0, len(records))
	for _, r := range records {
		sym := r.Symbol
		if sym == "" {
			sym = symbol
		}
		if symbol != "" && sym != symbol {
			continue
		}
		bars = append(bars, Bar{
			Symbol: sym,
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return SortBars(bars), nil
}

// WriteParquet writes bars to path, creating parent directories.
func WriteParquet(path string, bars []Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, records)
}

// Load reads bars from path using format ("csv" or "parquet"). An empty
// format is inferred from the file extension.
func Load(path, format, symbol string) ([]Bar, error) {
	if format == "" {
		switch filepath.Ext(path) {
		case ".parquet", ".pq":
			format = "parquet"
		default:
			format = "csv"
		}
	}
	switch format {
	case "csv":
		return LoadCSV(path, symbol)
	case "parquet":
		return LoadParquet(path, symbol)
	default:
		return nil, fmt.Errorf("unknown data format %q (supported: csv, parquet)", format)
	}
}
