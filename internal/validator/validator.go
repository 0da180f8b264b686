// Package validator cross-references the registries and reports missing
// reciprocal declarations, duplicates, orphan tags and unresolved markers.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/registry"
)

// Symbols answers existence questions about the project's classes, methods
// and tests.
type Symbols interface {
	Exists(id string) bool
	Locate(method string) (file string, line int, ok bool)
}

// Validate builds the report. Any registry may be empty; a report with no
// findings is valid and still carries stats.
func Validate(links *registry.Links, tags *registry.Tags, placeholders *registry.Placeholders, symbols Symbols) *model.Report {
	r := &model.Report{
		MissingInProduction:    []model.Problem{},
		MissingInTests:         []model.Problem{},
		Duplicates:             []model.Duplicate{},
		OrphanTags:             []model.Tag{},
		UnresolvedPlaceholders: []model.PlaceholderCount{},
	}

	for _, l := range links.Links() {
		if !needsProductionDeclaration(links, l) {
			continue
		}
		decl := firstDeclaration(links.Declarations(l.Test, l.Method))
		r.MissingInProduction = append(r.MissingInProduction, model.Problem{
			Test:    l.Test,
			Method:  l.Method,
			File:    decl.File,
			Line:    decl.Line,
			Message: fmt.Sprintf("%s covers %s but the method has no #[TestedBy] for it", l.Test, l.Method),
		})
	}

	for _, method := range links.ProductionMethods() {
		for _, test := range links.ProductionTestsFor(method) {
			if linkedBack(links, method, test) {
				continue
			}
			decl := firstDeclaration(links.ProductionDeclarations(method, test))
			r.MissingInTests = append(r.MissingInTests, model.Problem{
				Test:    test,
				Method:  method,
				File:    decl.File,
				Line:    decl.Line,
				Message: fmt.Sprintf("%s declares #[TestedBy] %s but the test does not link back", method, test),
			})
		}
	}

	r.Duplicates = duplicates(links)

	if tags != nil {
		for _, tag := range tags.All() {
			if symbols == nil || !symbols.Exists(tag.Resolved) {
				r.OrphanTags = append(r.OrphanTags, tag)
			}
		}
	}

	if placeholders != nil {
		for _, marker := range placeholders.Markers() {
			r.UnresolvedPlaceholders = append(r.UnresolvedPlaceholders, model.PlaceholderCount{
				Marker:     marker,
				Production: len(placeholders.Production(marker)),
				Tests:      len(placeholders.Tests(marker)),
			})
		}
	}

	r.Stats = stats(links, tags, placeholders, len(r.OrphanTags))
	r.Valid = r.ErrorCount() == 0
	return r
}

// PlanSync derives the edits that make production #[TestedBy] declarations
// match the test side: one add per covering link the method does not
// declare, one remove per declaration no test links back to.
func PlanSync(links *registry.Links, symbols Symbols) []model.SyncAction {
	var plan []model.SyncAction
	for _, l := range links.Links() {
		if !needsProductionDeclaration(links, l) {
			continue
		}
		file, line, ok := symbols.Locate(l.Method)
		if !ok {
			continue
		}
		plan = append(plan, model.SyncAction{Op: model.SyncAdd, File: file, Line: line, Method: l.Method, Test: l.Test})
	}
	for _, method := range links.ProductionMethods() {
		for _, test := range links.ProductionTestsFor(method) {
			if linkedBack(links, method, test) {
				continue
			}
			for _, d := range links.ProductionDeclarations(method, test) {
				plan = append(plan, model.SyncAction{Op: model.SyncRemove, File: d.File, Line: d.Line, Method: method, Test: test})
			}
		}
	}
	sort.SliceStable(plan, func(i, j int) bool {
		if plan[i].File != plan[j].File {
			return plan[i].File < plan[j].File
		}
		return plan[i].Line < plan[j].Line
	})
	return plan
}

// needsProductionDeclaration reports whether a covering link to a method is
// missing its #[TestedBy] counterpart. Class-level links need none.
func needsProductionDeclaration(links *registry.Links, l model.Link) bool {
	if !l.Covers {
		return false
	}
	if _, member := model.SplitIdentifier(l.Method); member == "" {
		return false
	}
	for _, declared := range links.ProductionTestsFor(l.Method) {
		if matchesTest(declared, l.Test) {
			return false
		}
	}
	return true
}

// linkedBack reports whether some test matching a #[TestedBy] reference
// links to method.
func linkedBack(links *registry.Links, method, declared string) bool {
	for _, test := range links.TestsFor(method) {
		if matchesTest(declared, test) {
			return true
		}
	}
	return false
}

// matchesTest reports whether a #[TestedBy] reference names test. A bare
// class name matches every test of that class.
func matchesTest(declared, test string) bool {
	if declared == test {
		return true
	}
	if _, member := model.SplitIdentifier(declared); member == "" {
		return strings.HasPrefix(test, declared+"::")
	}
	return false
}

// staticDeclarations drops runtime observations when the same link was also
// found statically, so a fluent chain counts once.
func staticDeclarations(decls []model.Declaration) []model.Declaration {
	var static []model.Declaration
	for _, d := range decls {
		if d.Mechanism != model.MechanismRuntime {
			static = append(static, d)
		}
	}
	if len(static) == 0 {
		return decls
	}
	return static
}

// duplicates reports links declared through more than one mechanism.
// Repeating a link with the same mechanism, such as a class-level and a
// method-level attribute, is not a duplicate.
func duplicates(links *registry.Links) []model.Duplicate {
	out := []model.Duplicate{}
	for _, l := range links.Links() {
		decls := staticDeclarations(links.Declarations(l.Test, l.Method))
		mechanisms := make(map[model.Mechanism]bool, len(decls))
		for _, d := range decls {
			mechanisms[d.Mechanism] = true
		}
		if len(mechanisms) > 1 {
			out = append(out, model.Duplicate{Test: l.Test, Method: l.Method, Declarations: decls})
		}
	}
	return out
}

func firstDeclaration(decls []model.Declaration) model.Declaration {
	for _, d := range decls {
		if d.File != "" {
			return d
		}
	}
	if len(decls) > 0 {
		return decls[0]
	}
	return model.Declaration{}
}

func stats(links *registry.Links, tags *registry.Tags, placeholders *registry.Placeholders, orphans int) model.Stats {
	s := model.Stats{
		TotalLinks:             links.Count(),
		ByMechanism:            make(map[model.Mechanism]int),
		ProductionDeclarations: links.ProductionCount(),
		OrphanTags:             orphans,
	}
	for _, l := range links.Links() {
		seen := make(map[model.Mechanism]bool)
		for _, d := range staticDeclarations(links.Declarations(l.Test, l.Method)) {
			if !seen[d.Mechanism] {
				seen[d.Mechanism] = true
				s.ByMechanism[d.Mechanism]++
			}
		}
	}
	if tags != nil {
		s.TotalTags = tags.Count()
	}
	if placeholders != nil {
		s.Placeholders = placeholders.Count()
	}
	return s
}
