// Package report renders a finished discovery run for people and tools.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/dustin/go-humanize"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a configured output format. Empty selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Write renders r in format f.
func Write(w io.Writer, f Format, r *model.Report) error {
	switch f {
	case FormatText, "":
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// Status messages shown for accounts whose analysis stopped early.
const (
	msgNoItems     = "No recent videos found."
	msgNoItemStats = "Couldn't fetch video stats."
)

// view is the presentation shape of a Report. Everything is taken from the
// report as computed; nothing is re-derived except display formatting.
type view struct {
	RunID    string
	Started  string
	Duration string
	RankBy   string
	Total    int
	Keywords []model.KeywordStat
	Accounts []accountView
}

type accountView struct {
	Rank    int
	Record  model.AccountRecord
	URL     string
	Status  model.AccountStatus
	Message string
	Summary model.AnalyticsSummary
	Items   []model.AnalyzedItem
	Viral   []model.AnalyzedItem
	Bars    []bar
	Matches []model.KeywordMatch
}

type bar struct {
	Title   string
	Views   int64
	Width   int
	Outlier bool
}

func newView(r *model.Report) view {
	v := view{
		RunID:    r.RunID,
		Started:  r.StartedAt.Format(time.RFC3339),
		Duration: r.Duration().Round(time.Millisecond).String(),
		RankBy:   r.RankBy,
		Total:    r.TotalAccountsFound,
		Keywords: r.Keywords,
	}
	for i, rec := range r.TopAccounts {
		ar := r.PerAccount[rec.AccountID]
		av := accountView{
			Rank:    i + 1,
			Record:  rec,
			URL:     rec.URL(),
			Status:  ar.Status,
			Summary: ar.Summary,
			Items:   ar.Items,
			Viral:   ar.Outliers(),
			Bars:    bars(ar.Items),
			Matches: ar.KeywordMatches,
		}
		switch ar.Status {
		case model.StatusNoItems, "":
			av.Message = msgNoItems
		case model.StatusNoItemStats:
			av.Message = msgNoItemStats
		}
		v.Accounts = append(v.Accounts, av)
	}
	return v
}

// bars scales item views to percentages of the largest view count.
func bars(items []model.AnalyzedItem) []bar {
	var max int64
	for _, it := range items {
		if it.Views > max {
			max = it.Views
		}
	}
	out := make([]bar, 0, len(items))
	for _, it := range items {
		width := 0
		if max > 0 {
			width = int(it.Views * 100 / max)
		}
		out = append(out, bar{Title: it.Title, Views: it.Views, Width: width, Outlier: it.IsOutlier})
	}
	return out
}

var funcs = map[string]any{
	"comma": humanize.Comma,
	"float": func(f float64) string { return humanize.CommafWithDigits(f, 2) },
	"pct":   func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02")
	},
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

const textTmpl = `Niche Discovery Report
----------------------
Run:        {{.RunID}}
Started:    {{.Started}} ({{.Duration}})
Accounts:   {{.Total}} found, ranked by {{.RankBy}}

Keywords:
KEYWORD	HITS	ACCOUNTS	NEW	
{{- range .Keywords}}
{{.Keyword}}	{{.Hits}}	{{.Accounts}}	{{.NewAccounts}}	{{if .Failed}}failed{{end}}
{{- end}}

Top Channels:
#	CHANNEL	SUBSCRIBERS	VIEWS	VIDEOS	URL
{{- range .Accounts}}
{{.Rank}}	{{.Record.Title}}	{{comma .Record.Subscribers}}	{{comma .Record.TotalViews}}	{{comma .Record.TotalItems}}	{{.URL}}
{{- end}}
{{range .Accounts}}
== {{.Rank}}. {{.Record.Title}} ==
{{- if .Message}}
{{.Message}}
{{- else}}
Videos analyzed:   {{.Summary.ItemCount}}
Mean views:        {{float .Summary.MeanViews}}
Mean likes:        {{float .Summary.MeanLikes}}
Mean comments:     {{float .Summary.MeanComments}}
Viral threshold:   {{float .Summary.OutlierThreshold}} views ({{.Summary.OutlierCount}} viral)

PUBLISHED	VIEWS	LIKES	COMMENTS	LIKE %	COMMENT %	VIRAL	TITLE
{{- range .Items}}
{{date .PublishedAt}}	{{comma .Views}}	{{comma .Likes}}	{{comma .Comments}}	{{pct .LikeRatio}}	{{pct .CommentRatio}}	{{if .IsOutlier}}yes{{end}}	{{.Title}}
{{- end}}
{{- if .Summary.TopBigrams}}

Top word pairs:
{{- range .Summary.TopBigrams}}
  {{.Phrase}}	{{.Count}}
{{- end}}
{{- end}}
{{- if .Matches}}

Keyword hits:
{{- range .Matches}}
  {{.Keyword}}	{{.Count}}
{{- range .Sentences}}
    > {{.}}
{{- end}}
{{- end}}
{{- end}}
{{- end}}
{{end}}`

var textReport = template.Must(template.New("textReport").Funcs(funcs).Parse(textTmpl))

// WriteText writes a human-readable report with aligned columns.
func WriteText(w io.Writer, r *model.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := textReport.Execute(tw, newView(r)); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Niche Discovery Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  td.num { text-align: right; }
  tr.viral { background: #fff1e0; }
  .chart { margin-top: 10px; max-width: 720px; }
  .bar-row { display: flex; align-items: center; margin: 4px 0; }
  .bar-label { width: 260px; overflow: hidden; white-space: nowrap; text-overflow: ellipsis; font-size: 13px; }
  .bar-track { flex: 1; background: #f4f4f4; }
  .bar { background: #4a7bd0; color: #fff; font-size: 12px; padding: 2px 4px; white-space: nowrap; }
  .bar.viral { background: #e0762b; }
  .muted { color: #888; }
</style>
</head>
<body>
  <h1>Niche Discovery Report</h1>
  <p><strong>Run:</strong> {{.RunID}} &middot; {{.Started}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Channels Found</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Keywords</div>
    <div class="stat-val">{{len .Keywords}}</div>
  </div>
  <div class="stat-card">
    <div>Ranked By</div>
    <div class="stat-val">{{.RankBy}}</div>
  </div>

  <h3>Keywords</h3>
  <table>
    <tr><th>Keyword</th><th>Hits</th><th>Channels</th><th>New</th></tr>
    {{- range .Keywords}}
    <tr><td>{{.Keyword}}{{if .Failed}} <span class="muted">(failed)</span>{{end}}</td><td class="num">{{.Hits}}</td><td class="num">{{.Accounts}}</td><td class="num">{{.NewAccounts}}</td></tr>
    {{- else}}
    <tr><td colspan="4">None</td></tr>
    {{- end}}
  </table>

  <h3>Top Channels</h3>
  <table>
    <tr><th>#</th><th>Channel</th><th>Subscribers</th><th>Views</th><th>Videos</th></tr>
    {{- range .Accounts}}
    <tr><td>{{.Rank}}</td><td><a href="{{.URL}}">{{.Record.Title}}</a></td><td class="num">{{comma .Record.Subscribers}}</td><td class="num">{{comma .Record.TotalViews}}</td><td class="num">{{comma .Record.TotalItems}}</td></tr>
    {{- else}}
    <tr><td colspan="5">None</td></tr>
    {{- end}}
  </table>

  {{- range .Accounts}}
  <h2>{{.Rank}}. {{.Record.Title}}</h2>
  {{- if .Message}}
  <p class="muted">{{.Message}}</p>
  {{- else}}
  <div class="stat-card"><div>Mean Views</div><div class="stat-val">{{float .Summary.MeanViews}}</div></div>
  <div class="stat-card"><div>Mean Likes</div><div class="stat-val">{{float .Summary.MeanLikes}}</div></div>
  <div class="stat-card"><div>Mean Comments</div><div class="stat-val">{{float .Summary.MeanComments}}</div></div>
  <div class="stat-card"><div>Viral Threshold</div><div class="stat-val">{{float .Summary.OutlierThreshold}}</div></div>

  <h3>Views per Video</h3>
  <div class="chart">
    {{- range .Bars}}
    <div class="bar-row">
      <div class="bar-label" title="{{.Title}}">{{.Title}}</div>
      <div class="bar-track"><div class="bar{{if .Outlier}} viral{{end}}" style="width: {{.Width}}%">{{comma .Views}}</div></div>
    </div>
    {{- end}}
  </div>

  <h3>Viral Videos</h3>
  <table>
    <tr><th>Title</th><th>Published</th><th>Views</th><th>Like %</th><th>Comment %</th></tr>
    {{- range .Viral}}
    <tr class="viral"><td>{{.Title}}</td><td>{{date .PublishedAt}}</td><td class="num">{{comma .Views}}</td><td class="num">{{pct .LikeRatio}}</td><td class="num">{{pct .CommentRatio}}</td></tr>
    {{- else}}
    <tr><td colspan="5">No video exceeds the viral threshold.</td></tr>
    {{- end}}
  </table>

  <h3>All Videos</h3>
  <table>
    <tr><th>Title</th><th>Published</th><th>Views</th><th>Likes</th><th>Comments</th><th>Like %</th><th>Comment %</th></tr>
    {{- range .Items}}
    <tr{{if .IsOutlier}} class="viral"{{end}}><td>{{.Title}}</td><td>{{date .PublishedAt}}</td><td class="num">{{comma .Views}}</td><td class="num">{{comma .Likes}}</td><td class="num">{{comma .Comments}}</td><td class="num">{{pct .LikeRatio}}</td><td class="num">{{pct .CommentRatio}}</td></tr>
    {{- end}}
  </table>

  <h3>Top Word Pairs</h3>
  <table>
    <tr><th>Pair</th><th>Count</th></tr>
    {{- range .Summary.TopBigrams}}
    <tr><td>{{.Phrase}}</td><td class="num">{{.Count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
  {{- if .Matches}}

  <h3>Keyword Hits</h3>
  <table>
    <tr><th>Keyword</th><th>Count</th><th>Context</th></tr>
    {{- range .Matches}}
    <tr><td>{{.Keyword}}</td><td class="num">{{.Count}}</td><td>{{range .Sentences}}<div>{{.}}</div>{{end}}</td></tr>
    {{- end}}
  </table>
  {{- end}}
  {{- end}}
  {{- end}}
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Funcs(htmltemplate.FuncMap(funcs)).Parse(htmlTmpl))

// WriteHTML writes a standalone HTML report with a viral video table and a
// views-per-video bar chart for every top channel.
func WriteHTML(w io.Writer, r *model.Report) error {
	if err := htmlReport.Execute(w, newView(r)); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
