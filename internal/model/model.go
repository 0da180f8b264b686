// Package model defines core data structures for testlink.
package model

import "strings"

// Kind tells whether a file, tag or placeholder belongs to production code or tests.
type Kind string

const (
	Production Kind = "production"
	Test       Kind = "test"
)

// Framework identifies the authoring style of a test.
type Framework string

const (
	FluentChain Framework = "fluent-chain"
	ClassBased  Framework = "class-based"
)

// Mechanism is the syntax a link was declared with.
type Mechanism string

const (
	MechanismAttribute Mechanism = "attribute"
	MechanismChain     Mechanism = "chain"
	MechanismRuntime   Mechanism = "runtime"
	MechanismTestedBy  Mechanism = "tested-by"
)

// Site is where a placeholder marker sits in the source text.
type Site string

const (
	SiteAttribute Site = "attribute"
	SiteDocblock  Site = "docblock"
	SiteChain     Site = "chain"
)

// Declarator names recognised in source.
const (
	AttrTestedBy       = "TestedBy"
	AttrLinksAndCovers = "LinksAndCovers"
	AttrLinks          = "Links"
	ChainLinksCovers   = "linksAndCovers"
	ChainLinks         = "links"
	TagSee             = "see"
)

// Link is a test → method relationship.
// Identity is (Test, Method); Covers is not part of it.
type Link struct {
	Test   string `json:"test"`
	Method string `json:"method"`
	Covers bool   `json:"covers"`
}

// Declaration records one place a link was written down.
type Declaration struct {
	Mechanism  Mechanism `json:"mechanism"`
	Declarator string    `json:"declarator,omitempty"`
	File       string    `json:"file"`
	Line       int       `json:"line"`
}

// Tag is an @see reference found in a docblock.
type Tag struct {
	Reference string `json:"reference"` // as written
	Resolved  string `json:"resolved"`  // fully qualified through the file's imports
	File      string `json:"file"`
	Line      int    `json:"line"`
	Context   Kind   `json:"context"`
	Enclosing string `json:"enclosing,omitempty"`
}

// Placeholder is a marker occurrence waiting to be resolved.
type Placeholder struct {
	Marker     string    `json:"marker"`
	Identifier string    `json:"identifier"`
	File       string    `json:"file"`
	Line       int       `json:"line"`
	Kind       Kind      `json:"kind"`
	Framework  Framework `json:"framework,omitempty"` // tests only
	Site       Site      `json:"site"`
	Declarator string    `json:"declarator,omitempty"`
	Anchor     Anchor    `json:"-"`
}

// Anchor locates the source around a marker occurrence, for rewrites that
// reach past the marker's own line.
type Anchor struct {
	StartLine int // first line of the attribute or call holding the marker
	EndLine   int // last line of it

	DeclLine   int // first line of the declaration, attributes included
	Indent     string
	DocLine    int // first line of the declaration's docblock, 0 without one
	DocEndLine int
}

// DocVariant reports whether the marker resolves to documentation tags.
func (p Placeholder) DocVariant() bool {
	return IsDocMarker(p.Marker)
}

// IsDocMarker reports whether marker uses the @@ documentation-tag prefix.
func IsDocMarker(marker string) bool {
	return strings.HasPrefix(marker, "@@")
}

// IsMarker reports whether s is written as a placeholder marker rather than
// a concrete reference. It does not check the marker grammar.
func IsMarker(s string) bool {
	return strings.HasPrefix(s, "@")
}

// Action pairs one production occurrence with one test occurrence of a marker.
type Action struct {
	Marker     string      `json:"marker"`
	Production Placeholder `json:"production"`
	Test       Placeholder `json:"test"`
}

// Resolution is the outcome of placeholder resolution.
type Resolution struct {
	Actions  []Action `json:"actions"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Change describes one rewritten marker occurrence.
type Change struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Marker string `json:"marker"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ApplyResult lists the files a rewrite touched (or would touch in dry run).
type ApplyResult struct {
	ModifiedFiles []string `json:"modified_files"`
	Changes       []Change `json:"changes"`
	DryRun        bool     `json:"dry_run"`
}

// SyncOp is the kind of edit a sync action performs.
type SyncOp string

const (
	SyncAdd    SyncOp = "add"
	SyncRemove SyncOp = "remove"
)

// SyncAction adds or removes one #[TestedBy] declaration on a production method.
type SyncAction struct {
	Op     SyncOp `json:"op"`
	File   string `json:"file"`
	Line   int    `json:"line"` // method declaration line for add, attribute line for remove
	Method string `json:"method"`
	Test   string `json:"test"`
}

// Problem is a single validation finding.
type Problem struct {
	Test    string `json:"test"`
	Method  string `json:"method"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message,omitempty"`
}

// Duplicate is a link declared more than once.
type Duplicate struct {
	Test         string        `json:"test"`
	Method       string        `json:"method"`
	Declarations []Declaration `json:"declarations"`
}

// PlaceholderCount summarises an unresolved marker.
type PlaceholderCount struct {
	Marker     string `json:"marker"`
	Production int    `json:"production"`
	Tests      int    `json:"tests"`
}

// Stats holds aggregate counts, reported even when nothing is wrong.
type Stats struct {
	TotalLinks             int               `json:"total_links"`
	ByMechanism            map[Mechanism]int `json:"by_mechanism"`
	ProductionDeclarations int               `json:"production_declarations"`
	TotalTags              int               `json:"total_tags"`
	OrphanTags             int               `json:"orphan_tags"`
	Placeholders           int               `json:"placeholders"`
}

// Report is the outcome of validation.
type Report struct {
	Valid                  bool               `json:"valid"`
	MissingInProduction    []Problem          `json:"missing_in_production"`
	MissingInTests         []Problem          `json:"missing_in_tests"`
	Duplicates             []Duplicate        `json:"duplicates"`
	OrphanTags             []Tag              `json:"orphan_tags"`
	UnresolvedPlaceholders []PlaceholderCount `json:"unresolved_placeholders"`
	Stats                  Stats              `json:"stats"`
}

// ErrorCount returns the number of findings that make the report invalid.
func (r *Report) ErrorCount() int {
	return len(r.MissingInProduction) + len(r.MissingInTests) + len(r.OrphanTags)
}

// WarningCount returns the number of findings that are reported but tolerated.
func (r *Report) WarningCount() int {
	return len(r.Duplicates) + len(r.UnresolvedPlaceholders)
}

// MethodCoverage is one row of the coverage report.
type MethodCoverage struct {
	Method     string   `json:"method"`
	Covering   []string `json:"covering"`
	Incidental []string `json:"incidental"`
	Declared   []string `json:"declared"`
}

// SplitIdentifier splits "Class::member" into its parts.
// A class-level identifier returns an empty member.
func SplitIdentifier(id string) (class, member string) {
	if i := strings.Index(id, "::"); i >= 0 {
		return id[:i], id[i+2:]
	}
	return id, ""
}

// ShortClassName returns the last namespace segment of a class name.
func ShortClassName(fqcn string) string {
	fqcn = strings.TrimPrefix(fqcn, `\`)
	if i := strings.LastIndex(fqcn, `\`); i >= 0 {
		return fqcn[i+1:]
	}
	return fqcn
}
