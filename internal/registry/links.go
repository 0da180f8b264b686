// Package registry holds the in-memory indexes the scanners populate:
// links between tests and methods, documentation tags and placeholders.
package registry

import (
	"sort"

	"github.com/phobologic/testlink/internal/model"
)

type pair struct{ test, method string }

// Links is the bidirectional method ↔ test index, plus the separate index of
// links declared from the production side (#[TestedBy]).
//
// A Links value is the shared context of one run: construct it once, pass it
// to every scanner and to the validator, and Clear it between runs.
type Links struct {
	methodTests map[string][]string
	testMethods map[string][]string
	covers      map[pair]bool
	decls       map[pair][]model.Declaration

	prodMethodTests map[string][]string
	prodDecls       map[pair][]model.Declaration
}

// NewLinks returns an empty link registry.
func NewLinks() *Links {
	l := &Links{}
	l.Clear()
	return l
}

// Clear drops every registered link. Reads after Clear return empty results.
func (l *Links) Clear() {
	l.methodTests = make(map[string][]string)
	l.testMethods = make(map[string][]string)
	l.covers = make(map[pair]bool)
	l.decls = make(map[pair][]model.Declaration)
	l.prodMethodTests = make(map[string][]string)
	l.prodDecls = make(map[pair][]model.Declaration)
}

// Register records that test links to method. Registering the same pair
// again does not duplicate it; the coverage flag sticks once set.
func (l *Links) Register(test, method string, covers bool, decl model.Declaration) {
	key := pair{test, method}
	l.methodTests[method] = appendUnique(l.methodTests[method], test)
	l.testMethods[test] = appendUnique(l.testMethods[test], method)
	l.covers[key] = l.covers[key] || covers
	l.decls[key] = appendDecl(l.decls[key], decl)
}

// ObserveChainLink is the entry point for the test runtime: it is called
// once per linking call observed on a fluent test chain.
func (l *Links) ObserveChainLink(test, method string, covers bool) {
	l.Register(test, method, covers, model.Declaration{Mechanism: model.MechanismRuntime})
}

// RegisterProduction records a #[TestedBy] declaration on method naming test.
func (l *Links) RegisterProduction(method, test string, decl model.Declaration) {
	key := pair{test, method}
	l.prodMethodTests[method] = appendUnique(l.prodMethodTests[method], test)
	l.prodDecls[key] = appendDecl(l.prodDecls[key], decl)
}

// TestsFor returns the tests linked to method.
func (l *Links) TestsFor(method string) []string {
	return clone(l.methodTests[method])
}

// MethodsFor returns the methods test links to.
func (l *Links) MethodsFor(test string) []string {
	return clone(l.testMethods[test])
}

// IsCovering reports whether test is a coverage link for method.
func (l *Links) IsCovering(test, method string) bool {
	return l.covers[pair{test, method}]
}

// Has reports whether test links to method.
func (l *Links) Has(test, method string) bool {
	_, ok := l.covers[pair{test, method}]
	return ok
}

// Declarations returns where the test → method link was declared.
func (l *Links) Declarations(test, method string) []model.Declaration {
	return append([]model.Declaration(nil), l.decls[pair{test, method}]...)
}

// ProductionTestsFor returns the tests method names in #[TestedBy].
func (l *Links) ProductionTestsFor(method string) []string {
	return clone(l.prodMethodTests[method])
}

// ProductionDeclarations returns where method declared test in #[TestedBy].
func (l *Links) ProductionDeclarations(method, test string) []model.Declaration {
	return append([]model.Declaration(nil), l.prodDecls[pair{test, method}]...)
}

// Methods returns every method with at least one test link, sorted.
func (l *Links) Methods() []string {
	return sortedKeys(l.methodTests)
}

// Tests returns every test with at least one link, sorted.
func (l *Links) Tests() []string {
	return sortedKeys(l.testMethods)
}

// ProductionMethods returns every method carrying #[TestedBy], sorted.
func (l *Links) ProductionMethods() []string {
	return sortedKeys(l.prodMethodTests)
}

// Links returns every test-side link, sorted by method then test.
func (l *Links) Links() []model.Link {
	out := make([]model.Link, 0, len(l.covers))
	for key, covers := range l.covers {
		out = append(out, model.Link{Test: key.test, Method: key.method, Covers: covers})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Test < out[j].Test
	})
	return out
}

// Count returns the number of distinct test-side links.
func (l *Links) Count() int {
	return len(l.covers)
}

// ProductionCount returns the number of distinct #[TestedBy] declarations.
func (l *Links) ProductionCount() int {
	return len(l.prodDecls)
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}

func appendDecl(list []model.Declaration, d model.Declaration) []model.Declaration {
	for _, existing := range list {
		if existing == d {
			return list
		}
	}
	return append(list, d)
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

func clone(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
