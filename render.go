package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/toon"
)

func (o *options) render(v any) error {
	switch o.format {
	case formatJSON:
		enc := json.NewEncoder(o.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatTOON:
		out, err := encodeTOON(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(o.stdout, out)
		return err
	}
	out, err := newTextRenderer(o.stdout).render(v)
	if err != nil {
		return err
	}
	_, err = io.WriteString(o.stdout, out)
	return err
}

func encodeTOON(v any) (string, error) {
	switch v := v.(type) {
	case *model.Report:
		return toon.EncodeReport(v), nil
	case resolveOutput:
		return toon.EncodeResolution(v.Resolution) + "\n" + toon.EncodeApply(v.Result), nil
	case *model.ApplyResult:
		return toon.EncodeApply(v), nil
	case []model.MethodCoverage:
		return toon.EncodeCoverage(v), nil
	}
	return "", fmt.Errorf("no TOON encoding for %T", v)
}

type textRenderer struct {
	heading lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	dim     lipgloss.Style
}

// newTextRenderer styles output for w; colours are dropped when w is not a
// terminal.
func newTextRenderer(w io.Writer) *textRenderer {
	r := lipgloss.NewRenderer(w)
	return &textRenderer{
		heading: r.NewStyle().Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		bad:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		dim:     r.NewStyle().Faint(true),
	}
}

func (t *textRenderer) render(v any) (string, error) {
	var b strings.Builder
	switch v := v.(type) {
	case *model.Report:
		t.report(&b, v)
	case resolveOutput:
		t.resolution(&b, v.Resolution)
		t.apply(&b, v.Result)
	case *model.ApplyResult:
		t.apply(&b, v)
	case []model.MethodCoverage:
		t.coverage(&b, v)
	default:
		return "", fmt.Errorf("no text rendering for %T", v)
	}
	return b.String(), nil
}

func (t *textRenderer) report(b *strings.Builder, r *model.Report) {
	if r.Valid {
		b.WriteString(t.ok.Render("✓ all links are declared on both sides"))
	} else {
		b.WriteString(t.bad.Render(fmt.Sprintf("✗ %d error(s)", r.ErrorCount())))
	}
	if n := r.WarningCount(); n > 0 {
		b.WriteString("  " + t.warn.Render(fmt.Sprintf("%d warning(s)", n)))
	}
	b.WriteString("\n")

	t.problems(b, "Missing #[TestedBy] on production methods", r.MissingInProduction)
	t.problems(b, "#[TestedBy] without a test linking back", r.MissingInTests)

	if len(r.OrphanTags) > 0 {
		t.section(b, "@see tags pointing nowhere", len(r.OrphanTags))
		for _, tag := range r.OrphanTags {
			fmt.Fprintf(b, "  %s  @see %s\n", t.dim.Render(fmt.Sprintf("%s:%d", tag.File, tag.Line)), tag.Reference)
		}
	}
	if len(r.Duplicates) > 0 {
		t.section(b, "Links declared more than once", len(r.Duplicates))
		for _, d := range r.Duplicates {
			fmt.Fprintf(b, "  %s → %s\n", d.Test, d.Method)
			for _, decl := range d.Declarations {
				fmt.Fprintf(b, "    %s %s\n", decl.Mechanism, t.dim.Render(fmt.Sprintf("%s:%d", decl.File, decl.Line)))
			}
		}
	}
	if len(r.UnresolvedPlaceholders) > 0 {
		t.section(b, "Unresolved placeholders", len(r.UnresolvedPlaceholders))
		for _, p := range r.UnresolvedPlaceholders {
			fmt.Fprintf(b, "  %s  %d production, %d test\n", p.Marker, p.Production, p.Tests)
		}
	}

	mechanisms := make([]string, 0, len(r.Stats.ByMechanism))
	for m, n := range r.Stats.ByMechanism {
		mechanisms = append(mechanisms, fmt.Sprintf("%s %d", m, n))
	}
	sort.Strings(mechanisms)
	stats := fmt.Sprintf("%d link(s)", r.Stats.TotalLinks)
	if len(mechanisms) > 0 {
		stats += " (" + strings.Join(mechanisms, ", ") + ")"
	}
	stats += fmt.Sprintf(", %d #[TestedBy], %d @see tag(s), %d placeholder(s)",
		r.Stats.ProductionDeclarations, r.Stats.TotalTags, r.Stats.Placeholders)
	b.WriteString(t.dim.Render(stats) + "\n")
}

func (t *textRenderer) problems(b *strings.Builder, title string, problems []model.Problem) {
	if len(problems) == 0 {
		return
	}
	t.section(b, title, len(problems))
	for _, p := range problems {
		fmt.Fprintf(b, "  %s  %s\n", t.dim.Render(fmt.Sprintf("%s:%d", p.File, p.Line)), p.Message)
	}
}

func (t *textRenderer) section(b *strings.Builder, title string, n int) {
	fmt.Fprintf(b, "\n%s\n", t.heading.Render(fmt.Sprintf("%s (%d)", title, n)))
}

func (t *textRenderer) resolution(b *strings.Builder, res *model.Resolution) {
	b.WriteString(t.heading.Render(fmt.Sprintf("%d placeholder pairing(s)", len(res.Actions))) + "\n")
	for _, a := range res.Actions {
		fmt.Fprintf(b, "  %s  %s → %s\n", a.Marker, a.Production.Identifier, a.Test.Identifier)
	}
	for _, e := range res.Errors {
		b.WriteString(t.bad.Render("✗ "+e) + "\n")
	}
	for _, w := range res.Warnings {
		b.WriteString(t.warn.Render("! "+w) + "\n")
	}
}

func (t *textRenderer) apply(b *strings.Builder, res *model.ApplyResult) {
	verb := "Modified"
	if res.DryRun {
		verb = "Would modify"
	}
	b.WriteString(t.heading.Render(fmt.Sprintf("%s %d file(s)", verb, len(res.ModifiedFiles))) + "\n")
	for _, c := range res.Changes {
		what := c.Marker
		if what == "" {
			what = strings.TrimSpace(c.After)
			if what == "" {
				what = "removed " + strings.TrimSpace(c.Before)
			}
		}
		fmt.Fprintf(b, "  %s  %s\n", t.dim.Render(fmt.Sprintf("%s:%d", c.File, c.Line)), what)
	}
}

func (t *textRenderer) coverage(b *strings.Builder, rows []model.MethodCoverage) {
	for _, r := range rows {
		b.WriteString(t.heading.Render(r.Method) + "\n")
		if len(r.Covering) == 0 && len(r.Incidental) == 0 {
			b.WriteString("  " + t.warn.Render("no linked tests") + "\n")
			continue
		}
		for _, test := range r.Covering {
			fmt.Fprintf(b, "  %s %s\n", t.ok.Render("✓"), test)
		}
		for _, test := range r.Incidental {
			fmt.Fprintf(b, "  %s %s\n", t.dim.Render("·"), test)
		}
	}
	if len(rows) == 0 {
		b.WriteString(t.dim.Render("no methods") + "\n")
	}
}
