package cmd

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/rustyeddy/backtester/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWave(t *testing.T, path, sym string, n int) {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		x := float64(i)
		c := 100 + 10*math.Sin(x/6) + 3*math.Sin(x/2.3)
		bars[i] = market.Bar{
			Symbol: sym,
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1_000 + 100*math.Cos(x/4),
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, market.WriteCSV(f, bars))
	require.NoError(t, f.Close())
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, Execute(), "args %v\n%s", args, out.String())
	return out.String()
}

// The commands share package-level flag state, so they run in one test.
func TestCLI(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "btc.csv")
	dbPath := filepath.Join(dir, "runs.sqlite")
	orgDir := filepath.Join(dir, "org")
	writeWave(t, csvPath, "BTCUSDT", 300)

	out := execute(t, "backtest",
		"--strategy", "ma_crossover",
		"--symbol", "BTCUSDT",
		"--data", csvPath,
		"--db", dbPath,
		"--org-dir", orgDir,
		"--log-level", "error",
	)
	assert.Contains(t, out, "Running backtest with strategy: ma_crossover")
	m := regexp.MustCompile(`Run recorded: (\w{26})`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	runID := m[1]
	assert.FileExists(t, filepath.Join(orgDir, runID+".org"))

	out = execute(t, "journal", "list", "--db", dbPath)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "ma_crossover")

	out = execute(t, "journal", "org", runID, "--db", dbPath)
	assert.Contains(t, out, "* BACKTEST: ma_crossover BTCUSDT")

	out = execute(t, "journal", "show", runID, "--db", dbPath)
	assert.Contains(t, out, "Run "+runID)

	pq := filepath.Join(dir, "btc.parquet")
	out = execute(t, "data", "convert", csvPath, pq)
	assert.Contains(t, out, "Wrote 300 bars")

	out = execute(t, "data", "info", pq)
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "300")

	out = execute(t, "journal", "delete", runID, "--db", dbPath)
	assert.Contains(t, out, "Deleted run "+runID)

	cfgPath := filepath.Join(dir, "backtest.yaml")
	out = execute(t, "config", "init", "--output", cfgPath)
	assert.Contains(t, out, "Created default configuration")

	out = execute(t, "config", "validate", "--file", cfgPath)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "ma_crossover")

	out = execute(t, "version")
	assert.Contains(t, out, "backtester version "+version)
}
