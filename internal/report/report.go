// Package report renders a finished search as JSON, plain text or HTML.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	texttemplate "text/template"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// SiteLine is one site's outcome in a summary.
type SiteLine struct {
	Site      string `json:"site"`
	Ok        bool   `json:"ok"`
	Cancelled bool   `json:"cancelled"`
	Items     int    `json:"items"`
	Passes    int    `json:"passes"`
	Err       string `json:"error,omitempty"`
}

// Summary aggregates one search run.
type Summary struct {
	Query          listing.Query     `json:"query"`
	TotalListings  int               `json:"totalListings"`
	SitesOk        int               `json:"sitesOk"`
	SitesFailed    int               `json:"sitesFailed"`
	SitesCancelled int               `json:"sitesCancelled"`
	Sites          []SiteLine        `json:"sites"`
	Flagged        int               `json:"flaggedListings"`
	FlagsByType    map[string]int    `json:"flagsByType"`
	TopScore       int               `json:"topScore"`
	Duration       listing.Millis    `json:"durationMs"`
	Top            []listing.Listing `json:"-"`
}

// topListings bounds how many listings the text and HTML renderings show.
const topListings = 15

// Summarize aggregates a search result.
func Summarize(q listing.Query, res *listing.Result) Summary {
	s := Summary{
		Query:       q,
		FlagsByType: make(map[string]int),
	}
	if res == nil {
		return s
	}
	s.TotalListings = len(res.Listings)
	s.Duration = res.Stats.Duration

	for _, sr := range res.Sites {
		line := SiteLine{
			Site:      sr.Site,
			Ok:        sr.Ok,
			Cancelled: sr.Cancelled,
			Items:     len(sr.Items),
			Passes:    len(sr.Attempts),
			Err:       sr.Err,
		}
		s.Sites = append(s.Sites, line)
		switch {
		case sr.Cancelled:
			s.SitesCancelled++
		case sr.Ok:
			s.SitesOk++
		default:
			s.SitesFailed++
		}
	}
	sort.Slice(s.Sites, func(i, j int) bool { return s.Sites[i].Site < s.Sites[j].Site })

	for _, l := range res.Listings {
		if len(l.RedFlags) > 0 {
			s.Flagged++
		}
		for _, f := range l.RedFlags {
			s.FlagsByType[string(f.Type)]++
		}
		if l.Score > s.TopScore {
			s.TopScore = l.Score
		}
	}

	n := len(res.Listings)
	if n > topListings {
		n = topListings
	}
	s.Top = res.Listings[:n]
	return s
}

// WriteJSON writes the full result, not just the summary: JSON output
// feeds machines, which want everything.
func WriteJSON(w io.Writer, res *listing.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

const textTmpl = `Recherche {{.Query.Brand}}{{with .Query.Model}} {{.}}{{end}}{{with .Query.MaxPrice}} (budget {{.}} EUR){{end}}
Duration:  {{.Duration}}
Listings:  {{.TotalListings}} ({{.Flagged}} flagged), top score {{.TopScore}}

Sites:
{{- range .Sites}}
  {{.Site}}: {{if .Cancelled}}cancelled{{else if .Ok}}ok, {{.Items}} item(s) in {{.Passes}} pass(es){{else}}FAILED ({{.Err}}){{end}}
{{- end}}

Flags:
{{- range $type, $count := .FlagsByType}}
  {{$type}}: {{$count}}
{{- else}}
  None
{{- end}}

Top listings:
{{- range .Top}}
  [{{.Score}}] {{.Title}}{{with .Price}} - {{.}} EUR{{end}}{{with .Mileage}} - {{.}} km{{end}} ({{.Source}})
      {{.URL}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a terminal-friendly summary.
func WriteText(w io.Writer, s Summary) error {
	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, s); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>vigiauto - {{.Query.Brand}} {{.Query.Model}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .flagged { color: red; }
</style>
</head>
<body>
  <h1>{{.Query.Brand}} {{.Query.Model}}</h1>
  <p><strong>Duration:</strong> {{.Duration}}</p>

  <div class="stat-card">
    <div>Listings</div>
    <div class="stat-val">{{.TotalListings}}</div>
  </div>
  <div class="stat-card">
    <div>Flagged</div>
    <div class="stat-val" style="color: {{if gt .Flagged 0}}red{{else}}green{{end}};">{{.Flagged}}</div>
  </div>
  <div class="stat-card">
    <div>Sites OK</div>
    <div class="stat-val">{{.SitesOk}}/{{len .Sites}}</div>
  </div>
  <div class="stat-card">
    <div>Top Score</div>
    <div class="stat-val">{{.TopScore}}</div>
  </div>

  <h3>Sites</h3>
  <table>
    <tr><th>Site</th><th>Outcome</th><th>Items</th><th>Passes</th></tr>
    {{- range .Sites}}
    <tr><td>{{.Site}}</td><td>{{if .Cancelled}}cancelled{{else if .Ok}}ok{{else}}failed: {{.Err}}{{end}}</td><td>{{.Items}}</td><td>{{.Passes}}</td></tr>
    {{- end}}
  </table>

  <h3>Top Listings</h3>
  <table>
    <tr><th>Score</th><th>Title</th><th>Price</th><th>Mileage</th><th>Source</th><th>Flags</th></tr>
    {{- range .Top}}
    <tr{{if .RedFlags}} class="flagged"{{end}}>
      <td>{{.Score}}</td>
      <td><a href="{{.URL}}">{{.Title}}</a></td>
      <td>{{with .Price}}{{.}} EUR{{end}}</td>
      <td>{{with .Mileage}}{{.}} km{{end}}</td>
      <td>{{.Source}}</td>
      <td>{{len .RedFlags}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="6">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a self-contained HTML report.
func WriteHTML(w io.Writer, s Summary) error {
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, s); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
