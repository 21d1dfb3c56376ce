package journal

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

var orgFuncs = template.FuncMap{
	"pf": func(x float64) string {
		if math.IsInf(x, 1) {
			return "INF"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"date":    func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"stamp":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	"created": func(t time.Time) string { return t.UTC().Format("2006-01-02 Mon 15:04") },
	"join":    strings.Join,
	"inc":     func(i int) int { return i + 1 },
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate))

// RenderOrg writes the run as an org-mode entry.
func (r *Run) RenderOrg(w io.Writer) error {
	return orgTemplate.Execute(w, r)
}

// WriteOrg renders the run to r.OrgPath.
func (r *Run) WriteOrg() error {
	buf := new(bytes.Buffer)
	if err := r.RenderOrg(buf); err != nil {
		return err
	}
	if dir := filepath.Dir(r.OrgPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.OrgPath, buf.Bytes(), 0o644)
}

const RunOrgTemplate = `* BACKTEST: {{.Strategy}} {{join .Symbols " "}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:SYMBOLS:     {{join .Symbols ","}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{date .Start}}
:END_DATE:    {{date .End}}
:START_BAL:   {{printf "%.2f" .InitialBalance}}
:END_BAL:     {{printf "%.2f" .FinalBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:SHARPE:      {{printf "%.3f" .Sharpe}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{pf .ProfitFactor}}
:CREATED:     [{{created .Created}}]
:END:
{{- if .Config}}

** Configuration
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src
{{- end}}

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDrawdown}} ({{printf "%.2f" .MaxDDPct}}%)*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Avg Win / Loss:   *{{printf "%.2f" .AvgWin}} / {{printf "%.2f" .AvgLoss}}*
- Profit Factor:    *{{pf .ProfitFactor}}*
{{- if .Rejected}}
- Rejected Signals: *{{.Rejected}}*
{{- end}}

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .TradeLog}}

** Trades
| # | Symbol | Side | Entry | Exit | Size | Opened | Closed | P/L | Reason |
|---+--------+------+-------+------+------+--------+--------+-----+--------|
{{- range $i, $t := .TradeLog}}
| {{inc $i}} | {{$t.Symbol}} | {{$t.Side}} | {{printf "%.4f" $t.EntryPrice}} | {{printf "%.4f" $t.ExitPrice}} | {{printf "%.4f" $t.Size}} | {{stamp $t.EntryTime}} | {{stamp $t.ExitTime}} | {{printf "%.2f" $t.PnL}} | {{$t.Reason}} |
{{- end}}
{{- end}}

{{- if .Notes}}

** Observations
{{- range .Notes}}
- {{.}}
{{- end}}
{{- end}}
`
