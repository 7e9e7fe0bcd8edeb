// Package render prints an invoice as a plain-text statement for operators.
package render

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"text/template"
	"time"

	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/format"
)

const statementTemplate = `{{.Invoice.DisplayName}}  [{{.Invoice.Status}}]
Organization:   {{.Invoice.OrganizationID}}
Kind:           {{.Invoice.Kind}}
Period:         {{formatDate .Invoice.SubscriptionStartAt}} - {{formatDate .Invoice.SubscriptionEndAt}}
{{- if .Invoice.Renewal}}
Renews:         Invoice #{{.Invoice.HeadID}}
{{- end}}
{{- if .Invoice.ForceActive}}
Force active:   yes
{{- end}}

Features
{{- range .Lines}}
  {{printf "%-28s" .Name}} {{printf "%-18s" .Kind}} x{{.Quantity}}  {{money .TotalCents $.Invoice.Currency}}
{{- else}}
  (none)
{{- end}}

Feature total:  {{money .Invoice.FeatureCostCents .Invoice.Currency}}
Amount due:     {{or .Invoice.AmountDueFormatted "-"}}
Discount:       {{.Invoice.DiscountFormatted}}
Amount paid:    {{.Invoice.AmountPaidFormatted}}
Active:         {{yesno .Invoice.Active}}
{{- if .Invoice.FeatureSlugs}}
Entitlements:   {{join .Invoice.FeatureSlugs}}
{{- end}}
{{- if .Invoice.ChildFeatureSlugs}}
Child slugs:    {{.Invoice.ChildFeatureSlugsString}}
{{- end}}
`

// Line is one feature on the statement, grouped by feature.
type Line struct {
	FeatureID  string
	Name       string
	Kind       string
	Quantity   int
	UnitCents  int64
	TotalCents int64
}

type StatementInput struct {
	Invoice invoicedomain.View
	Lines   []Line
}

type TextRenderer struct {
	tpl *template.Template
}

func NewTextRenderer() *TextRenderer {
	funcs := template.FuncMap{
		"money":      format.Money,
		"formatDate": formatDate,
		"yesno":      yesno,
		"join":       func(values []string) string { return strings.Join(values, ", ") },
	}
	return &TextRenderer{
		tpl: template.Must(template.New("statement").Funcs(funcs).Parse(statementTemplate)),
	}
}

func (r *TextRenderer) Render(w io.Writer, input StatementInput) error {
	return r.tpl.Execute(w, input)
}

func (r *TextRenderer) RenderString(input StatementInput) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GroupLines collapses repeated feature ids into one line per feature,
// ordered by name. Ids without catalog info are skipped.
func GroupLines(featureIDs []string, catalog map[string]Line) []Line {
	byID := make(map[string]*Line, len(catalog))
	for _, id := range featureIDs {
		info, ok := catalog[id]
		if !ok {
			continue
		}
		line, ok := byID[id]
		if !ok {
			info.FeatureID = id
			info.Quantity = 0
			info.TotalCents = 0
			line = &info
			byID[id] = line
		}
		line.Quantity++
		line.TotalCents += line.UnitCents
	}

	lines := make([]Line, 0, len(byID))
	for _, line := range byID {
		lines = append(lines, *line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Name == lines[j].Name {
			return lines[i].FeatureID < lines[j].FeatureID
		}
		return lines[i].Name < lines[j].Name
	})
	return lines
}

func formatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

func yesno(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
