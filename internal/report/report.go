// Package report renders the client's views as markdown, for printing in a
// terminal or returning from the bridge.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"bullwatch/internal/ai"
	"bullwatch/internal/market"
	"bullwatch/internal/models"
	"bullwatch/internal/ticker"
	"bullwatch/internal/wallet"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"
)

// USD formats an amount in dollars, rounded to the cent: $1,234.50.
func USD(d decimal.Decimal) string {
	cur := *money.New(0, money.USD).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// Signed formats a percent change with an explicit sign.
func Signed(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

var funcs = template.FuncMap{
	"usd":    USD,
	"signed": Signed,
	"score":  func(f float64) string { return fmt.Sprintf("%.3f", f) },
	"band":   market.BandOf,
	"inc":    func(i int) int { return i + 1 },
	"pct":    func(f float64) float64 { return f * 100 },
	"ago": func(v wallet.View) string {
		if v.Snapshot == nil {
			return "never"
		}
		return v.Stale.Round(time.Second).String() + " ago"
	},
}

func execute(name, tpl string, data any) string {
	t := template.Must(template.New(name).Funcs(funcs).Parse(tpl))
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return fmt.Sprintf("Error executing template: %v", err)
	}
	return b.String()
}

const walletTemplate = `# Wallet

{{- if .Snapshot }}

Total value: **{{ usd .Snapshot.TotalValue }}**
Cash: **{{ usd .Snapshot.Cash }}**

{{- if .Snapshot.Holdings }}

| Ticker | Quantity | Price | Value |
|:---|---:|---:|---:|
{{- range .Snapshot.Holdings }}
| {{ .Ticker }} | {{ .Quantity }} | {{ usd .CurrentPrice }} | {{ usd .HoldingValue }} |
{{- end }}
{{- else }}

No holdings.
{{- end }}

_Updated {{ ago . }} ({{ .Status }})_
{{- else }}

_No wallet data yet ({{ .Status }})._
{{- end }}
{{- if .Err }}

> Last refresh failed: {{ .Err }}
{{- end }}
`

// WalletMarkdown renders a wallet view. A failed refresh shows the last
// good snapshot together with the error.
func WalletMarkdown(v wallet.View) string {
	return execute("wallet", walletTemplate, v)
}

const bullishTemplate = `# Top bullish tickers
{{ if .Top }}
| # | Ticker | Score | Band |
|---:|:---|---:|:---|
{{- range $i, $s := .Top }}
| {{ inc $i }} | {{ $s.Ticker }} | {{ score $s.Score }} | {{ band $s.Score }} |
{{- end }}
{{- else }}
No scores published today.
{{- end }}
`

// BullishMarkdown renders the n best scores (all of them when n <= 0).
func BullishMarkdown(scores []models.BullishScore, n int) string {
	return execute("bullish", bullishTemplate, struct {
		Top []models.BullishScore
	}{market.TopBullish(scores, n)})
}

const overviewTemplate = `# {{ .Ticker }}
{{ if .HasHistory }}
Last close: **{{ printf "%.2f" .LastClose }}**, 7d change: **{{ signed .Change7d }}**, trend: **{{ .Trend }}**
{{- else }}
No price history.
{{- end }}
{{- if .Band }}

Bullish band: **{{ .Band }}**
{{- end }}
{{- if .Indicators }}

| Indicator | Value |
|:---|---:|
{{- range .Indicators }}
| {{ .Name }} | {{ score .Value }} |
{{- end }}
{{- end }}
{{- if .Recent }}

| Date | Close | Bullish score |
|:---|---:|---:|
{{- range .Recent }}
| {{ .Date }} | {{ printf "%.2f" (index .History "close") }} | {{ with .Indicators }}{{ score (index . "bullish_score") }}{{ else }}-{{ end }} |
{{- end }}
{{- end }}
`

type indicatorRow struct {
	Name  string
	Value float64
}

// OverviewMarkdown renders the ticker page.
func OverviewMarkdown(ov market.Overview) string {
	var rows []indicatorRow
	for _, name := range market.IndicatorFields {
		if v, ok := ov.Latest[name]; ok {
			rows = append(rows, indicatorRow{name, v})
		}
	}
	return execute("overview", overviewTemplate, struct {
		market.Overview
		Indicators []indicatorRow
	}{ov, rows})
}

const moversTemplate = `# Tickers
{{ if . }}
| Ticker | Last close | 7d |
|:---|---:|---:|
{{- range . }}
| {{ .Ticker }} | {{ printf "%.2f" .LastClose }} | {{ signed .Change7d }} |
{{- end }}
{{- else }}
No tickers.
{{- end }}
`

// MoversMarkdown renders the per-ticker 7-day change list.
func MoversMarkdown(m []market.Mover) string {
	return execute("movers", moversTemplate, m)
}

// seriesColumns puts the OHLCV and indicator fields first, then anything
// else the backend sent, alphabetically.
var seriesColumns = []string{"open", "high", "low", "close", "volume"}

// SeriesMarkdown renders the last n rows of a series as a table (all rows when n <= 0).
func SeriesMarkdown(s models.TickerSeries, n int) string {
	rows := s.Tail(n)
	if len(rows) == 0 {
		return fmt.Sprintf("# %s %s\n\nNo data.\n", s.Ticker, s.Kind)
	}

	present := map[string]bool{}
	for _, r := range rows {
		for k := range r.Fields {
			present[k] = true
		}
	}
	var cols []string
	for _, c := range append(append([]string{}, seriesColumns...), market.IndicatorFields...) {
		if present[c] {
			cols = append(cols, c)
			delete(present, c)
		}
	}
	rest := make([]string, 0, len(present))
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n| Date |", s.Ticker, s.Kind)
	for _, c := range cols {
		fmt.Fprintf(&b, " %s |", c)
	}
	b.WriteString("\n|:---|")
	b.WriteString(strings.Repeat("---:|", len(cols)))
	for _, r := range rows {
		date := r.Key
		if !r.Time.IsZero() {
			date = r.Time.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "\n| %s |", date)
		for _, c := range cols {
			if v, ok := r.Value(c); ok {
				fmt.Fprintf(&b, " %s |", strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				b.WriteString(" - |")
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

const analysisTemplate = `# Portfolio review

**{{ .Recommendation }}{{ with .Ticker }} {{ . }}{{ end }}**, confidence {{ printf "%.0f" (pct .ConfidenceScore) }}%, risk {{ .RiskAssessment }}

{{ .Summary }}

_Advice only. Nothing was traded._
`

// AnalysisMarkdown renders a model review.
func AnalysisMarkdown(a ai.Analysis) string {
	return execute("analysis", analysisTemplate, a)
}

// PriceLine is a one-line summary of the live ticker.
func PriceLine(v ticker.View) string {
	switch {
	case v.Ticker == "":
		return "no ticker selected"
	case v.Err != nil && v.Observation == nil:
		return fmt.Sprintf("%s: unavailable (%v)", v.Ticker, v.Err)
	case v.Observation == nil:
		return fmt.Sprintf("%s: loading...", v.Ticker)
	}
	line := fmt.Sprintf("%s: %s at %s", v.Ticker, USD(v.Observation.Price),
		v.Observation.ObservedAt.Format("15:04:05"))
	if v.Err != nil {
		line += fmt.Sprintf(" (last poll failed: %v)", v.Err)
	}
	return line
}

// TradeLine summarises a submitted trade.
func TradeLine(req models.TradeRequest, err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s %s rejected: %v", req.Side, req.Quantity, strings.ToUpper(req.Ticker), err)
	}
	return fmt.Sprintf("%s %s %s accepted", req.Side, req.Quantity, strings.ToUpper(req.Ticker))
}

// Renderer prints markdown to a terminal.
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer builds a renderer. style is a glamour standard style name
// ("dark", "light", "notty", ...); empty picks one from the terminal.
func NewRenderer(style string, width int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Renderer{term: r}, nil
}

// Print renders md to w. If rendering fails the raw markdown is printed.
func (r *Renderer) Print(w io.Writer, md string) error {
	out := md
	if r != nil && r.term != nil {
		if s, err := r.term.Render(md); err == nil {
			out = s
		}
	}
	_, err := io.WriteString(w, out)
	return err
}
