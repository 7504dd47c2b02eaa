package dashboard

import (
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"citadel/internal/daily"
	"citadel/internal/insight"
	"citadel/internal/portfolio"
)

// Card is one metric tile.
type Card struct {
	Label string
	Value string
	Note  string
}

type chartData struct {
	Labels []string  `json:"labels"`
	LP     []float64 `json:"lp"`
	HL     []float64 `json:"hl"`
	Total  []float64 `json:"total"`
}

type pageData struct {
	Title          string
	Strategy       string
	Strategies     []string
	RefreshSeconds int
	Cards          []Card
	Chart          chartData
	Stored         string
	Updated        string
	Insight        template.HTML
	InsightAt      string
	Empty          bool
}

// buildCards renders the latest reading. report carries the LP breakdown when the snapshot was
// taken by this process; otherwise only the stored columns are shown.
func buildCards(latest portfolio.Snapshot, report *portfolio.Report, summary portfolio.Summary, today *daily.Status) []Card {
	cards := make([]Card, 0, 10)

	if report != nil {
		val := report.Liquidity
		cards = append(cards,
			Card{Label: displaySymbol(val.VolatileSymbol) + " in LP", Value: Amount(val.VolatileAmount, val.VolatileSymbol, 6), Note: "≈ " + USD(val.VolatileUSD)},
			Card{Label: displaySymbol(val.StableSymbol) + " in LP", Value: Amount(val.StableAmount, val.StableSymbol, 2)},
			Card{Label: displaySymbol(val.VolatileSymbol) + " value", Value: USD(val.VolatileUSD), Note: "@ " + USD(val.VolatilePrice)},
		)
	}

	lpNote := ""
	if report != nil {
		if report.Liquidity.InRange {
			lpNote = "in range"
		} else {
			lpNote = "out of range"
		}
	}
	feeNote := ""
	if report != nil && !report.Liquidity.FeesEstimated {
		feeNote = "simulation unavailable"
	}
	hlNote := ""
	if report != nil && !report.Account.FillsKnown {
		hlNote = "fills unavailable"
	}

	cards = append(cards,
		Card{Label: "LP total (incl. fees)", Value: USD(latest.LPValue), Note: lpNote},
		Card{Label: "Unclaimed fees", Value: USD(latest.LPFees), Note: feeNote},
		Card{Label: "HL account", Value: USD(latest.HLValue)},
		Card{Label: "HL fees", Value: USD(latest.HLFees), Note: hlNote},
		Card{Label: "Portfolio total", Value: USD(latest.TotalValue), Note: Compact(latest.TotalValue)},
		Card{Label: "Estimated APR", Value: Percent(summary.AverageAPR), Note: "average of " + humanize.Comma(int64(summary.Count)) + " snapshots"},
	)

	if today != nil {
		cards = append(cards, Card{
			Label: "Today",
			Value: USD(today.Change()),
			Note:  SignedPercent(today.ChangePercent()) + " since " + USD(today.StartEquity),
		})
	}

	return cards
}

func buildChart(history []portfolio.Snapshot) chartData {
	chart := chartData{
		Labels: make([]string, len(history)),
		LP:     make([]float64, len(history)),
		HL:     make([]float64, len(history)),
		Total:  make([]float64, len(history)),
	}
	for i, snap := range history {
		chart.Labels[i] = snap.Time.UTC().Format("2006-01-02 15:04")
		chart.LP[i] = snap.LPValue
		chart.HL[i] = snap.HLValue
		chart.Total[i] = snap.TotalValue
	}
	return chart
}

func insightBlock(in *insight.Insight) (template.HTML, string) {
	if in == nil {
		return "", ""
	}
	// goldmark escapes raw HTML in the model output.
	return template.HTML(in.HTML), humanize.Time(in.GeneratedAt)
}

func updatedLabel(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	return at.UTC().Format(time.RFC3339) + " (" + humanize.Time(at) + ")"
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{ .RefreshSeconds }}">
<title>{{ .Title }} · {{ .Strategy }}</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js@4"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; background: #0e1117; color: #fafafa; }
nav a { color: #8ab4f8; margin-right: 1rem; }
.cards { display: grid; grid-template-columns: repeat(auto-fill, minmax(200px, 1fr)); gap: 1rem; margin: 1.5rem 0; }
.card { background: #262730; border-radius: 8px; padding: 1rem; }
.label { font-size: .85rem; color: #a3a8b8; }
.value { font-size: 1.5rem; margin-top: .25rem; }
.note { font-size: .8rem; color: #7bd88f; margin-top: .25rem; }
.insight { background: #1b1e27; border-radius: 8px; padding: 1rem; }
footer { font-size: .8rem; color: #a3a8b8; margin-top: 2rem; }
</style>
</head>
<body>
<h1>{{ .Title }}</h1>
<nav>{{ range .Strategies }}<a href="/?strategy={{ . }}">{{ . }}</a>{{ end }}</nav>
{{ if .Empty }}
<p>No snapshots stored for {{ .Strategy }} yet.</p>
{{ else }}
<canvas id="chart" height="100"></canvas>
<div class="cards">
{{ range .Cards }}<div class="card"><div class="label">{{ .Label }}</div><div class="value">{{ .Value }}</div>{{ if .Note }}<div class="note">{{ .Note }}</div>{{ end }}</div>
{{ end }}</div>
{{ if .Insight }}<section class="insight"><h2>Commentary</h2>{{ .Insight }}<footer>generated {{ .InsightAt }}</footer></section>{{ end }}
{{ end }}
<footer>{{ .Stored }} snapshots stored{{ if .Updated }} · last update {{ .Updated }}{{ end }}</footer>
<script>
const data = {{ .Chart }};
const el = document.getElementById("chart");
if (el && window.Chart) {
  new Chart(el, {
    type: "line",
    data: {
      labels: data.labels,
      datasets: [
        { label: "lp", data: data.lp, borderColor: "#4c9be8", pointRadius: 0 },
        { label: "hl", data: data.hl, borderColor: "#e8a74c", pointRadius: 0 },
        { label: "total", data: data.total, borderColor: "#7bd88f", pointRadius: 0 }
      ]
    },
    options: { animation: false, interaction: { mode: "index", intersect: false } }
  });
}
const strategy = {{ .Strategy }};
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (msg) => {
  const update = JSON.parse(msg.data);
  if (update.strategy === strategy) { location.reload(); }
};
</script>
</body>
</html>
`))
