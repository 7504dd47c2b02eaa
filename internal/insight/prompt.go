package insight

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"citadel/internal/portfolio"
)

// maxPromptRows bounds how much history is sent to the model.
const maxPromptRows = 48

const commentaryTemplate = `
You review a delta-neutral style crypto portfolio made of a Uniswap v3 liquidity position on
Arbitrum and a Hyperliquid perpetuals account. Write a short commentary in Markdown (at most
three short paragraphs or a bullet list) for the owner of the portfolio.

Strategy: {{ .Strategy }}
Snapshots stored: {{ .Summary.Count }} over {{ .Span }}
Change since first snapshot: {{ printf "%.2f" .Summary.Change }} USD ({{ printf "%.2f" .Summary.ChangePct }}%)
Change since previous snapshot: {{ printf "%.2f" .Summary.LastChange }} USD
Max drawdown: {{ printf "%.2f" .DrawdownPct }}%
{{- if .Summary.AverageAPR }}
Average estimated APR: {{ printf "%.2f" (deref .Summary.AverageAPR) }}%
{{- end }}

Latest reading:
- LP position: {{ printf "%.6f" .Latest.Liquidity.VolatileAmount }} {{ .Latest.Liquidity.VolatileSymbol }} + {{ printf "%.2f" .Latest.Liquidity.StableAmount }} {{ .Latest.Liquidity.StableSymbol }}, price {{ printf "%.2f" .Latest.Liquidity.VolatilePrice }}
- LP in range: {{ .Latest.Liquidity.InRange }} (ticks {{ .Latest.Liquidity.TickLower }}..{{ .Latest.Liquidity.TickUpper }}, current {{ .Latest.Liquidity.CurrentTick }})
- LP value incl. fees: {{ printf "%.2f" .Latest.Snapshot.LPValue }} USD, unclaimed fees {{ printf "%.2f" .Latest.Snapshot.LPFees }} USD
- Hyperliquid account: {{ printf "%.2f" .Latest.Snapshot.HLValue }} USD, margin used {{ printf "%.2f" .Latest.Account.MarginUsed }} USD, fees paid {{ printf "%.2f" .Latest.Snapshot.HLFees }} USD
- Total: {{ printf "%.2f" .Latest.Snapshot.TotalValue }} USD

Recent totals (oldest first, UTC):
{{- range .Rows }}
{{ .Time.Format "2006-01-02 15:04" }} total={{ printf "%.2f" .TotalValue }} lp={{ printf "%.2f" .LPValue }} hl={{ printf "%.2f" .HLValue }}
{{- end }}

Point out whether the LP range needs attention, how the two legs offset each other, and anything
unusual in the recent totals. Do not give financial advice and do not invent data.
`

var promptTemplate = template.Must(template.New("commentary").Funcs(template.FuncMap{
	"deref": func(v *float64) float64 { return *v },
}).Parse(commentaryTemplate))

// Input is what a commentary is generated from.
type Input struct {
	Strategy string
	Summary  portfolio.Summary
	History  []portfolio.Snapshot
	Latest   portfolio.Report
}

// BuildPrompt renders the commentary request for in.
func BuildPrompt(in Input) (string, error) {
	rows := in.History
	if len(rows) > maxPromptRows {
		rows = rows[len(rows)-maxPromptRows:]
	}

	data := struct {
		Input
		Span        string
		DrawdownPct float64
		Rows        []portfolio.Snapshot
	}{
		Input:       in,
		Span:        in.Summary.Span.Round(time.Minute).String(),
		DrawdownPct: in.Summary.MaxDrawdown * 100,
		Rows:        rows,
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("insight: render prompt: %w", err)
	}
	return buf.String(), nil
}
