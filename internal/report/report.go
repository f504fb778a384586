// Package report renders an analysis run as a markdown document and,
// via gomarkdown, as a standalone HTML page.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gamelearn/app"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
)

// BuildMarkdown renders the full analysis report: per-outcome
// coefficient tables, variance components and counterfactual
// predictions, followed by the descriptive tables. Warnings carried by
// any artifact appear next to it.
func BuildMarkdown(rep *app.AnalysisReport, aggregates []model.AggregateTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Gamified Learning Analysis\n\n")
	fmt.Fprintf(&b, "Run `%s`, %s\n\n", rep.RunID, rep.CreatedAt)

	for _, res := range rep.Results {
		fmt.Fprintf(&b, "## Outcome: %s\n\n", res.Key)
		if res.Failed() {
			fmt.Fprintf(&b, "Not fit: %s\n\n", res.ErrMessage)
			continue
		}
		writeModel(&b, res.Model)
		for _, t := range res.Predictions {
			writePredictions(&b, &t)
		}
	}

	if len(aggregates) > 0 {
		fmt.Fprintf(&b, "## Descriptives\n\n")
		for _, t := range aggregates {
			writeAggregates(&b, &t)
		}
	}
	return b.String()
}

func writeModel(b *strings.Builder, m *model.FittedModel) {
	fmt.Fprintf(b, "Family %s, %d observations, %d subjects.\n\n", m.Family, m.SampleSize, m.Subjects)
	for _, w := range m.Warnings {
		fmt.Fprintf(b, "> Warning: %s\n\n", warningText(w))
	}

	fmt.Fprintf(b, "| Coefficient | Estimate | Std. Err | z | p |\n")
	fmt.Fprintf(b, "|---|---|---|---|---|\n")
	for _, c := range m.Coefficients {
		fmt.Fprintf(b, "| %s | %.4f | %s | %s | %s |\n",
			c.Name, c.Estimate, num(c.StdErr, 4), num(c.ZValue, 2), pvalue(c.PValue))
	}
	fmt.Fprintf(b, "\n")

	fmt.Fprintf(b, "| Variance component | Variance |\n")
	fmt.Fprintf(b, "|---|---|\n")
	for _, v := range m.VarComps {
		fmt.Fprintf(b, "| %s | %.5f |\n", v.Name, v.Variance)
	}
	fmt.Fprintf(b, "\n")
}

func writePredictions(b *strings.Builder, t *model.PredictionTable) {
	fmt.Fprintf(b, "### Predicted means: %s\n\n", t.Query)
	if len(t.Rows) == 0 {
		return
	}
	factors := sortedFactors(t.Rows[0].Point)
	fmt.Fprintf(b, "|")
	for _, f := range factors {
		fmt.Fprintf(b, " %s |", f)
	}
	fmt.Fprintf(b, " predicted |\n|")
	for range factors {
		fmt.Fprintf(b, "---|")
	}
	fmt.Fprintf(b, "---|\n")
	for _, row := range t.Rows {
		fmt.Fprintf(b, "|")
		for _, f := range factors {
			fmt.Fprintf(b, " %.3f |", row.Point[f])
		}
		fmt.Fprintf(b, " %.4f |\n", row.Response)
	}
	fmt.Fprintf(b, "\n")
}

func writeAggregates(b *strings.Builder, t *model.AggregateTable) {
	fmt.Fprintf(b, "### %s\n\n", t.Outcome)
	for _, w := range t.Warnings {
		fmt.Fprintf(b, "> Warning: %s\n\n", warningText(w))
	}
	fmt.Fprintf(b, "|")
	for _, k := range t.KeyNames {
		fmt.Fprintf(b, " %s |", k)
	}
	fmt.Fprintf(b, " mean | SE | n |\n|")
	for range t.KeyNames {
		fmt.Fprintf(b, "---|")
	}
	fmt.Fprintf(b, "---|---|---|\n")
	for _, row := range t.Rows {
		fmt.Fprintf(b, "|")
		for _, k := range row.Keys {
			fmt.Fprintf(b, " %s |", k)
		}
		fmt.Fprintf(b, " %.4f | %s | %d |\n", row.Mean, num(row.StdErr, 4), row.Count)
	}
	fmt.Fprintf(b, "\n")
}

// RenderHTML converts the markdown report to a standalone HTML page
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	opts := html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Gamified Learning Analysis",
	}
	renderer := html.NewRenderer(opts)
	return markdown.Render(doc, renderer)
}

func warningText(w model.WarningCode) string {
	switch w {
	case model.WarningNonConvergence:
		return "the optimizer did not converge; estimates may be unreliable"
	case model.WarningSingularFit:
		return "a random-effect variance was estimated at its boundary"
	case model.WarningUndefinedStatistic:
		return "a standard error is undefined (fewer than two values)"
	}
	return string(w)
}

func num(v float64, prec int) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func pvalue(p float64) string {
	if math.IsNaN(p) {
		return "NA"
	}
	if p < 0.001 {
		return "<.001"
	}
	return fmt.Sprintf("%.3f", p)
}

func sortedFactors(point map[experiment.Factor]float64) []experiment.Factor {
	out := make([]experiment.Factor, 0, len(point))
	for f := range point {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
