package modifier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/lang"
	"github.com/phobologic/testlink/internal/model"
)

// chainIndent is added to continuation lines when a chain call did not
// start its own line.
const chainIndent = "    "

// replaceOccurrences rewrites every occurrence in src, bottom-up, then adds
// the docblock tags and imports the new declarations need. It returns the
// changes made and the occurrences it could not locate.
func replaceOccurrences(src *source, occs []*occurrence, logger *zap.Logger) ([]model.Change, []string) {
	sorted := append([]*occurrence(nil), occs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].entry.Line > sorted[j].entry.Line
	})

	imp := scanImports(src)
	docs := &docEdits{byDecl: make(map[int]*docEdit)}
	var (
		changes []model.Change
		missed  []string
	)
	for _, occ := range sorted {
		start, end := occ.span()
		before, ok := src.span(start, end)
		var after string
		if ok {
			if occ.entry.Site == model.SiteAttribute && occ.entry.DocVariant() {
				after, ok = removeAttribute(before, occ.entry)
				if ok {
					ok = docs.add(occ)
				}
			} else {
				after, ok = replaceMarker(before, occ, imp)
			}
		}
		if !ok {
			logger.Warn("marker not found",
				zap.String("path", src.file), zap.Int("line", occ.entry.Line), zap.String("marker", occ.entry.Marker))
			missed = append(missed, fmt.Sprintf("%s:%d %s", src.file, occ.entry.Line, occ.entry.Marker))
			continue
		}
		src.setSpan(start, end, after)
		changes = append(changes, model.Change{
			File:   src.file,
			Line:   occ.entry.Line,
			Marker: occ.entry.Marker,
			Before: before,
			After:  after,
		})
	}
	changes = append(changes, docs.apply(src)...)
	imp.insert(src)

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Line < changes[j].Line })
	return changes, missed
}

func replaceMarker(text string, occ *occurrence, imp *imports) (string, bool) {
	marker := regexp.QuoteMeta(occ.entry.Marker)
	declarator := regexp.QuoteMeta(occ.entry.Declarator)
	indent := lang.IndentOf(text)

	switch occ.entry.Site {
	case model.SiteAttribute:
		calls := make([]string, 0, len(occ.counterparts))
		for _, c := range occ.counterparts {
			calls = append(calls, attributeCall(occ.entry, c, imp))
		}
		whole := regexp.MustCompile(`#\[\s*` + declarator + `\(\s*['"]` + marker + `['"]\s*\)\s*\]`)
		if loc := whole.FindStringIndex(text); loc != nil {
			attrs := make([]string, len(calls))
			for i, c := range calls {
				attrs[i] = "#[" + c + "]"
			}
			return text[:loc[0]] + strings.Join(attrs, "\n"+indent) + text[loc[1]:], true
		}
		// Inside a grouped attribute list: #[Test, TestedBy('@m')]
		inner := regexp.MustCompile(`\b` + declarator + `\(\s*['"]` + marker + `['"]\s*\)`)
		if loc := inner.FindStringIndex(text); loc != nil {
			return text[:loc[0]] + strings.Join(calls, ", ") + text[loc[1]:], true
		}

	case model.SiteDocblock:
		re := regexp.MustCompile(`@see\s+` + marker + `([^A-Za-z0-9_-]|$)`)
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			return "", false
		}
		prefix := text[:loc[0]]
		if strings.HasPrefix(strings.TrimSpace(prefix), "/**") {
			prefix = indent + " * "
		}
		tags := make([]string, 0, len(occ.counterparts))
		for _, c := range occ.counterparts {
			tags = append(tags, seeTag(c.Identifier))
		}
		return text[:loc[0]] + strings.Join(tags, "\n"+prefix) + text[loc[2]:], true

	case model.SiteChain:
		re := regexp.MustCompile(`->\s*` + declarator + `\(\s*['"]` + marker + `['"]\s*\)`)
		loc := re.FindStringIndex(text)
		if loc == nil {
			return "", false
		}
		calls := make([]string, 0, len(occ.counterparts))
		for _, c := range occ.counterparts {
			calls = append(calls, "->"+occ.entry.Declarator+"("+phpString(c.Identifier)+")")
		}
		sep := "\n" + indent
		if !strings.HasPrefix(strings.TrimSpace(text), "->") {
			sep += chainIndent
		}
		return text[:loc[0]] + strings.Join(calls, sep) + text[loc[1]:], true
	}
	return "", false
}

// removeAttribute drops the attribute holding an @@ marker. Its links are
// written to the docblock instead.
func removeAttribute(text string, p model.Placeholder) (string, bool) {
	call := regexp.QuoteMeta(p.Declarator) + `\(\s*['"]` + regexp.QuoteMeta(p.Marker) + `['"]\s*\)`
	patterns := []string{
		`#\[\s*` + call + `\s*\][ \t]*`,
		// One entry of a grouped attribute list: #[Test, TestedBy('@@m')]
		`,\s*\b` + call,
		`\b` + call + `\s*,\s*`,
	}
	for _, pattern := range patterns {
		if loc := regexp.MustCompile(pattern).FindStringIndex(text); loc != nil {
			return text[:loc[0]] + text[loc[1]:], true
		}
	}
	return "", false
}

// docEdit holds the @see tags one declaration gains from removed @@
// attributes.
type docEdit struct {
	anchor  model.Anchor
	marker  string
	entries []docEntry
}

type docEntry struct {
	line int
	tags []string
}

type docEdits struct {
	byDecl map[int]*docEdit
}

// add records the tags for occ. It fails when the occurrence carries no
// declaration to document.
func (d *docEdits) add(occ *occurrence) bool {
	anchor := occ.entry.Anchor
	if anchor.DeclLine == 0 {
		return false
	}
	e := d.byDecl[anchor.DeclLine]
	if e == nil {
		e = &docEdit{anchor: anchor, marker: occ.entry.Marker}
		d.byDecl[anchor.DeclLine] = e
	}
	tags := make([]string, 0, len(occ.counterparts))
	for _, c := range occ.counterparts {
		tags = append(tags, seeTag(c.Identifier))
	}
	e.entries = append(e.entries, docEntry{line: occ.entry.Line, tags: tags})
	return true
}

// apply writes the collected tags into each declaration's docblock,
// creating one at the declaration's indent when it has none. Tags the
// docblock already carries are skipped.
func (d *docEdits) apply(src *source) []model.Change {
	var changes []model.Change
	for _, decl := range sortedKeys(d.byDecl) {
		e := d.byDecl[decl]
		a := e.anchor

		var existing string
		if a.DocLine > 0 {
			existing, _ = src.span(a.DocLine, a.DocEndLine)
		}
		sort.SliceStable(e.entries, func(i, j int) bool { return e.entries[i].line < e.entries[j].line })
		var lines []string
		seen := make(map[string]bool)
		for _, entry := range e.entries {
			for _, tag := range entry.tags {
				if seen[tag] || hasTag(existing, tag) {
					continue
				}
				seen[tag] = true
				lines = append(lines, a.Indent+" * "+tag)
			}
		}
		if len(lines) == 0 {
			continue
		}

		line := a.DocEndLine
		switch {
		case a.DocLine == 0:
			line = a.DeclLine
			src.insertBefore(line, append(append([]string{a.Indent + "/**"}, lines...), a.Indent+" */")...)
		case a.DocLine == a.DocEndLine:
			text, _ := src.line(line)
			open, closing := strings.Index(text, "/**"), strings.LastIndex(text, "*/")
			if open < 0 || closing < open+3 {
				continue
			}
			out := []string{text[:open] + "/**"}
			if body := strings.TrimSpace(text[open+3 : closing]); body != "" {
				out = append(out, a.Indent+" * "+body)
			}
			out = append(append(out, lines...), a.Indent+" */"+text[closing+2:])
			src.set(line, strings.Join(out, "\n"))
		default:
			text, _ := src.line(line)
			closing := strings.LastIndex(text, "*/")
			if closing < 0 {
				continue
			}
			if strings.TrimSpace(text[:closing]) == "" {
				src.insertBefore(line, lines...)
			} else {
				src.set(line, strings.TrimRight(text[:closing], " \t")+"\n"+strings.Join(lines, "\n")+"\n"+a.Indent+" */"+text[closing+2:])
			}
		}
		changes = append(changes, model.Change{
			File:   src.file,
			Line:   line,
			Marker: e.marker,
			After:  strings.Join(lines, "\n"),
		})
	}
	return changes
}

var seeTagRe = regexp.MustCompile(`@see\s+(\S+)`)

// hasTag reports whether doc already holds tag.
func hasTag(doc, tag string) bool {
	want := strings.TrimPrefix(tag, "@see ")
	for _, m := range seeTagRe.FindAllStringSubmatch(doc, -1) {
		if strings.TrimSuffix(m[1], "*/") == want {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// attributeCall renders one attribute call naming counterpart.
func attributeCall(own, counterpart model.Placeholder, imp *imports) string {
	class, member := model.SplitIdentifier(counterpart.Identifier)
	if own.Kind == model.Production {
		if member == "" {
			return fmt.Sprintf("%s(%s)", own.Declarator, phpString(class))
		}
		return fmt.Sprintf("%s(%s, %s)", own.Declarator, phpString(class), phpString(member))
	}
	ref := imp.classRef(class) + "::class"
	if member == "" {
		return fmt.Sprintf("%s(%s)", own.Declarator, ref)
	}
	return fmt.Sprintf("%s(%s, %s)", own.Declarator, ref, phpString(member))
}

// seeTag renders an @see tag naming id.
func seeTag(id string) string {
	return `@see \` + strings.TrimPrefix(id, `\`)
}

// phpString renders s as a single-quoted PHP string literal.
func phpString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

var (
	namespaceRe = regexp.MustCompile(`^\s*namespace\s+([A-Za-z0-9_\\]+)\s*;`)
	useRe       = regexp.MustCompile(`^\s*use\s+\\?([A-Za-z0-9_\\]+)(?:\s+as\s+([A-Za-z0-9_]+))?\s*;`)
	declRe      = regexp.MustCompile(`^\s*(?:(?:abstract|final|readonly)\s+)*(?:class|interface|trait|enum)\s+([A-Za-z0-9_]+)`)
)

// imports tracks the top-level use statements of a file and the ones the
// rewrite adds.
type imports struct {
	namespace string
	aliases   map[string]string // alias → fully qualified name
	declared  map[string]bool   // class names declared in the file
	needed    map[string]string // alias → fully qualified name, to add

	namespaceLine int
	lastUseLine   int
	openLine      int
}

func scanImports(src *source) *imports {
	imp := &imports{
		aliases:  make(map[string]string),
		declared: make(map[string]bool),
		needed:   make(map[string]string),
	}
	inBody := false
	for i, line := range src.lines {
		n := i + 1
		if m := declRe.FindStringSubmatch(line); m != nil {
			imp.declared[m[1]] = true
			inBody = true
			continue
		}
		if inBody {
			continue
		}
		switch {
		case imp.openLine == 0 && strings.HasPrefix(strings.TrimSpace(line), "<?php"):
			imp.openLine = n
		case namespaceRe.MatchString(line):
			imp.namespace = namespaceRe.FindStringSubmatch(line)[1]
			imp.namespaceLine = n
		case useRe.MatchString(line):
			m := useRe.FindStringSubmatch(line)
			alias := m[2]
			if alias == "" {
				alias = model.ShortClassName(m[1])
			}
			imp.aliases[alias] = m[1]
			imp.lastUseLine = n
		}
	}
	return imp
}

// classRef returns how the file should spell fqcn: an existing alias, the
// short name (importing it when needed) or the fully qualified name when the
// short name is taken.
func (im *imports) classRef(fqcn string) string {
	fqcn = strings.TrimPrefix(fqcn, `\`)
	short := model.ShortClassName(fqcn)
	for alias, target := range im.aliases {
		if target == fqcn {
			return alias
		}
	}
	if target, ok := im.needed[short]; ok {
		if target == fqcn {
			return short
		}
		return `\` + fqcn
	}
	if _, taken := im.aliases[short]; taken || im.declared[short] {
		return `\` + fqcn
	}
	if im.namespace != "" && im.namespace+`\`+short == fqcn {
		return short
	}
	if im.namespace == "" && short == fqcn {
		return short
	}
	im.needed[short] = fqcn
	return short
}

// insert writes the needed use statements after the last existing one, or
// after the namespace declaration, or after the opening tag.
func (im *imports) insert(src *source) {
	if len(im.needed) == 0 {
		return
	}
	uses := make([]string, 0, len(im.needed))
	for _, fqcn := range im.needed {
		uses = append(uses, "use "+fqcn+";")
	}
	sort.Strings(uses)

	switch {
	case im.lastUseLine > 0:
		src.insertBefore(im.lastUseLine+1, uses...)
	case im.namespaceLine > 0:
		src.insertBefore(im.namespaceLine+1, append([]string{""}, uses...)...)
	case im.openLine > 0:
		src.insertBefore(im.openLine+1, append([]string{""}, uses...)...)
	default:
		src.insertBefore(1, uses...)
	}
}
