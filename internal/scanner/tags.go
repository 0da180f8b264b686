package scanner

import (
	"regexp"
	"strings"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/parse"
)

var seeRe = regexp.MustCompile(`@see\s+(\S+)`)

type seeRef struct {
	text string
	line int
}

// seeRefs returns the @see references of a docblock with their source lines.
func seeRefs(doc model.Docblock) []seeRef {
	if doc.Text == "" {
		return nil
	}
	var out []seeRef
	for i, line := range strings.Split(doc.Text, "\n") {
		for _, m := range seeRe.FindAllStringSubmatch(line, -1) {
			ref := strings.TrimSuffix(m[1], "*/")
			if ref == "" {
				continue
			}
			out = append(out, seeRef{text: ref, line: doc.Line + i})
		}
	}
	return out
}

// TagScanner collects @see references from production and test docblocks.
type TagScanner struct {
	project *Project
}

// NewTagScanner returns a scanner over project.
func NewTagScanner(project *Project) *TagScanner {
	return &TagScanner{project: project}
}

// TagRegistry is the subset of the tag registry the scanner writes to.
type TagRegistry interface {
	Add(tag model.Tag)
}

// Scan populates reg. Placeholder markers and URLs are not tags.
func (s *TagScanner) Scan(reg TagRegistry) {
	for _, f := range s.project.Files {
		for ci := range f.Classes {
			c := &f.Classes[ci]
			s.addTags(reg, f, c.Doc, c.FQCN)
			for _, m := range c.Methods {
				s.addTags(reg, f, m.Doc, c.FQCN+"::"+m.Name)
			}
		}
	}
}

func (s *TagScanner) addTags(reg TagRegistry, f *model.SourceFile, doc model.Docblock, enclosing string) {
	for _, ref := range seeRefs(doc) {
		if model.IsMarker(ref.text) || strings.Contains(ref.text, "://") {
			continue
		}
		reg.Add(model.Tag{
			Reference: ref.text,
			Resolved:  ResolveReference(f, ref.text),
			File:      f.Path,
			Line:      ref.line,
			Context:   f.Kind,
			Enclosing: enclosing,
		})
	}
}

// ResolveReference qualifies the class part of a Class::member reference
// through the file's imports and namespace. Trailing call parentheses on the
// member are dropped.
func ResolveReference(f *model.SourceFile, ref string) string {
	class, member := model.SplitIdentifier(ref)
	class = parse.ResolveName(f, class)
	member = strings.TrimSuffix(member, "()")
	if member == "" {
		return class
	}
	return class + "::" + member
}
