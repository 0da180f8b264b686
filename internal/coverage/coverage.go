// Package coverage builds the method → tests report and implements its
// filters.
package coverage

import (
	"sort"
	"strings"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/registry"
)

// Build returns one row per method, sorted by method name. methods lists
// production methods that should appear even without any link; it may be nil.
func Build(links *registry.Links, methods []string) []model.MethodCoverage {
	seen := make(map[string]struct{})
	var all []string
	for _, list := range [][]string{methods, links.Methods(), links.ProductionMethods()} {
		for _, m := range list {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				all = append(all, m)
			}
		}
	}
	sort.Strings(all)

	rows := make([]model.MethodCoverage, 0, len(all))
	for _, m := range all {
		row := model.MethodCoverage{
			Method:     m,
			Covering:   []string{},
			Incidental: []string{},
			Declared:   links.ProductionTestsFor(m),
		}
		for _, test := range links.TestsFor(m) {
			if links.IsCovering(test, m) {
				row.Covering = append(row.Covering, test)
			} else {
				row.Incidental = append(row.Incidental, test)
			}
		}
		sort.Strings(row.Covering)
		sort.Strings(row.Incidental)
		sort.Strings(row.Declared)
		rows = append(rows, row)
	}
	return rows
}

// SelectTop returns the first n rows.
// If n is <= 0 or >= len(rows), all rows are returned.
func SelectTop(rows []model.MethodCoverage, n int) []model.MethodCoverage {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

// FilterByMethod keeps rows whose method identifier contains substr
// (case-insensitive).
func FilterByMethod(rows []model.MethodCoverage, substr string) []model.MethodCoverage {
	lower := strings.ToLower(substr)
	var out []model.MethodCoverage
	for i := range rows {
		if strings.Contains(strings.ToLower(rows[i].Method), lower) {
			out = append(out, rows[i])
		}
	}
	return out
}

// Uncovered keeps rows without a covering test.
func Uncovered(rows []model.MethodCoverage) []model.MethodCoverage {
	var out []model.MethodCoverage
	for i := range rows {
		if len(rows[i].Covering) == 0 {
			out = append(out, rows[i])
		}
	}
	return out
}
