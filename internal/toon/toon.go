// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// validation reports, resolutions, rewrite results and coverage tables.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/testlink/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeReport converts a validation report into TOON format.
func EncodeReport(r *model.Report) string {
	parts := []string{
		field("valid", strconv.FormatBool(r.Valid)),
		field("errors", strconv.Itoa(r.ErrorCount())),
		field("warnings", strconv.Itoa(r.WarningCount())),
		field("links", strconv.Itoa(r.Stats.TotalLinks)),
		field("production_declarations", strconv.Itoa(r.Stats.ProductionDeclarations)),
		field("tags", strconv.Itoa(r.Stats.TotalTags)),
		field("orphan_tags", strconv.Itoa(r.Stats.OrphanTags)),
		field("placeholders", strconv.Itoa(r.Stats.Placeholders)),
	}

	mechanisms := make([]string, 0, len(r.Stats.ByMechanism))
	for m := range r.Stats.ByMechanism {
		mechanisms = append(mechanisms, string(m))
	}
	sort.Strings(mechanisms)
	var mechRows [][]string
	for _, m := range mechanisms {
		mechRows = append(mechRows, []string{m, strconv.Itoa(r.Stats.ByMechanism[model.Mechanism(m)])})
	}
	parts = append(parts, formatTabular("mechanisms", []string{"mechanism", "links"}, mechRows))

	parts = append(parts,
		formatProblems("missing_in_production", r.MissingInProduction),
		formatProblems("missing_in_tests", r.MissingInTests),
	)

	var dupRows [][]string
	for _, d := range r.Duplicates {
		where := make([]string, 0, len(d.Declarations))
		for _, decl := range d.Declarations {
			where = append(where, fmt.Sprintf("%s@%s:%d", decl.Mechanism, decl.File, decl.Line))
		}
		dupRows = append(dupRows, []string{d.Test, d.Method, strings.Join(where, " ")})
	}
	parts = append(parts, formatTabular("duplicates", []string{"test", "method", "declarations"}, dupRows))

	var tagRows [][]string
	for _, t := range r.OrphanTags {
		tagRows = append(tagRows, []string{t.Reference, t.Resolved, t.File, strconv.Itoa(t.Line), string(t.Context)})
	}
	parts = append(parts, formatTabular("orphan_tags", []string{"reference", "resolved", "file", "line", "context"}, tagRows))

	var phRows [][]string
	for _, p := range r.UnresolvedPlaceholders {
		phRows = append(phRows, []string{p.Marker, strconv.Itoa(p.Production), strconv.Itoa(p.Tests)})
	}
	parts = append(parts, formatTabular("unresolved_placeholders", []string{"marker", "production", "tests"}, phRows))

	return strings.Join(parts, "\n")
}

// EncodeResolution converts a placeholder resolution into TOON format.
func EncodeResolution(res *model.Resolution) string {
	var rows [][]string
	for _, a := range res.Actions {
		rows = append(rows, []string{a.Marker, a.Production.Identifier, a.Test.Identifier, string(a.Test.Framework)})
	}
	return strings.Join([]string{
		formatTabular("actions", []string{"marker", "production", "test", "framework"}, rows),
		formatList("errors", res.Errors),
		formatList("warnings", res.Warnings),
	}, "\n")
}

// EncodeApply converts a rewrite result into TOON format.
func EncodeApply(res *model.ApplyResult) string {
	var rows [][]string
	for _, c := range res.Changes {
		rows = append(rows, []string{c.File, strconv.Itoa(c.Line), c.Marker, c.After})
	}
	return strings.Join([]string{
		field("dry_run", strconv.FormatBool(res.DryRun)),
		formatList("modified_files", res.ModifiedFiles),
		formatTabular("changes", []string{"file", "line", "marker", "after"}, rows),
	}, "\n")
}

// EncodeCoverage converts coverage rows into TOON format: one summary row per
// method, then one row per method → test link.
func EncodeCoverage(rows []model.MethodCoverage) string {
	var summary, links [][]string
	for _, r := range rows {
		summary = append(summary, []string{
			r.Method,
			strconv.Itoa(len(r.Covering)),
			strconv.Itoa(len(r.Incidental)),
			strconv.Itoa(len(r.Declared)),
		})
		for _, t := range r.Covering {
			links = append(links, []string{r.Method, t, "covering"})
		}
		for _, t := range r.Incidental {
			links = append(links, []string{r.Method, t, "incidental"})
		}
	}
	return strings.Join([]string{
		formatTabular("methods", []string{"method", "covering", "incidental", "declared"}, summary),
		formatTabular("links", []string{"method", "test", "relation"}, links),
	}, "\n")
}

func formatProblems(name string, problems []model.Problem) string {
	var rows [][]string
	for _, p := range problems {
		rows = append(rows, []string{p.Test, p.Method, p.File, strconv.Itoa(p.Line)})
	}
	return formatTabular(name, []string{"test", "method", "file", "line"}, rows)
}

// field renders a scalar that is already valid TOON (numbers, booleans).
func field(name, value string) string {
	return fmt.Sprintf("%s: %s", name, value)
}

func formatList(name string, values []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]:", name, len(values))
	for _, v := range values {
		fmt.Fprintf(&b, "\n  - %s", encodeValue(v))
	}
	return b.String()
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	switch {
	case value == "":
		return `""`
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return quote(value)
	case isKeyword(value):
		return quote(value)
	case looksNumeric.MatchString(value):
		return value
	case needsQuoting.MatchString(value), strings.HasPrefix(value, "-"):
		return quote(value)
	}
	return value
}

func isKeyword(value string) bool {
	_, ok := keywords[strings.ToLower(value)]
	return ok
}

func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(value) + `"`
}
