package scanner

import (
	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/resolver"
)

// PlaceholderScanner collects marker occurrences from attributes, docblocks
// and chain calls on both sides.
type PlaceholderScanner struct {
	project *Project
	logger  *zap.Logger
}

// NewPlaceholderScanner returns a scanner over project.
func NewPlaceholderScanner(project *Project, logger *zap.Logger) *PlaceholderScanner {
	return &PlaceholderScanner{project: project, logger: logger}
}

// PlaceholderRegistry is the subset of the placeholder registry the scanner
// writes to.
type PlaceholderRegistry interface {
	Add(entry model.Placeholder)
}

// Scan populates reg.
func (s *PlaceholderScanner) Scan(reg PlaceholderRegistry) {
	for _, f := range s.project.Files {
		for ci := range f.Classes {
			c := &f.Classes[ci]
			if f.Kind == model.Test && c.Abstract {
				continue
			}
			s.scanClass(reg, f, c)
			for mi := range c.Methods {
				m := &c.Methods[mi]
				id := c.FQCN + "::" + m.Name
				if f.Kind == model.Test {
					if !isTestMethod(*m) {
						continue
					}
					id = c.TestID(m.Name)
				}
				ids := []string{id}
				s.scanAttributes(reg, f, m.Attributes, ids, m.Anchor())
				s.scanDocblock(reg, f, m.Doc, ids, m.Anchor())
			}
		}
		if f.Kind == model.Test {
			s.scanFluentTests(reg, f)
		}
	}
}

// scanClass collects markers declared on a test class. Like a class-level
// link they apply to every test method of the class, so one entry is added
// per test method.
func (s *PlaceholderScanner) scanClass(reg PlaceholderRegistry, f *model.SourceFile, c *model.Class) {
	if !hasMarker(c.Attributes, c.Doc) {
		return
	}
	if f.Kind == model.Production {
		s.logger.Debug("skipping class-level placeholder on production class",
			zap.String("class", c.FQCN), zap.String("path", f.Path))
		return
	}
	var ids []string
	for _, m := range c.Methods {
		if isTestMethod(m) {
			ids = append(ids, c.TestID(m.Name))
		}
	}
	if len(ids) == 0 {
		s.logger.Debug("skipping class-level placeholder on class without tests",
			zap.String("class", c.FQCN), zap.String("path", f.Path))
		return
	}
	s.scanAttributes(reg, f, c.Attributes, ids, c.Anchor())
	s.scanDocblock(reg, f, c.Doc, ids, c.Anchor())
}

func hasMarker(attrs []model.Attribute, doc model.Docblock) bool {
	for _, a := range attrs {
		if len(a.Args) > 0 && model.IsMarker(a.Args[0]) {
			return true
		}
	}
	for _, ref := range seeRefs(doc) {
		if model.IsMarker(ref.text) {
			return true
		}
	}
	return false
}

func (s *PlaceholderScanner) scanAttributes(reg PlaceholderRegistry, f *model.SourceFile, attrs []model.Attribute, ids []string, anchor model.Anchor) {
	for _, a := range attrs {
		if !declaresLinks(f.Kind, a.Name) || len(a.Args) == 0 {
			continue
		}
		line := a.Line
		if len(a.ArgLines) > 0 {
			line = a.ArgLines[0]
		}
		anchor.StartLine, anchor.EndLine = a.Line, a.EndLine
		for _, id := range ids {
			s.add(reg, f, a.Args[0], model.Placeholder{
				Identifier: id,
				Line:       line,
				Site:       model.SiteAttribute,
				Declarator: a.Name,
				Anchor:     anchor,
			})
		}
	}
}

func (s *PlaceholderScanner) scanDocblock(reg PlaceholderRegistry, f *model.SourceFile, doc model.Docblock, ids []string, anchor model.Anchor) {
	for _, ref := range seeRefs(doc) {
		anchor.StartLine, anchor.EndLine = ref.line, ref.line
		for _, id := range ids {
			s.add(reg, f, ref.text, model.Placeholder{
				Identifier: id,
				Line:       ref.line,
				Site:       model.SiteDocblock,
				Declarator: model.TagSee,
				Anchor:     anchor,
			})
		}
	}
}

func (s *PlaceholderScanner) scanFluentTests(reg PlaceholderRegistry, f *model.SourceFile) {
	for _, t := range f.Tests {
		for _, call := range t.Calls {
			if len(call.Args) == 0 {
				continue
			}
			line := call.Line
			if len(call.ArgLines) > 0 {
				line = call.ArgLines[0]
			}
			s.add(reg, f, call.Args[0], model.Placeholder{
				Identifier: t.ID,
				Line:       line,
				Site:       model.SiteChain,
				Declarator: call.Method,
				Anchor:     model.Anchor{StartLine: call.Line, EndLine: call.EndLine},
			})
		}
	}
}

func (s *PlaceholderScanner) add(reg PlaceholderRegistry, f *model.SourceFile, text string, entry model.Placeholder) {
	if !model.IsMarker(text) {
		return
	}
	if !resolver.ValidMarker(text) {
		s.logger.Debug("ignoring malformed marker",
			zap.String("marker", text), zap.String("path", f.Path), zap.Int("line", entry.Line))
		return
	}
	entry.Marker = text
	entry.File = f.Path
	entry.Kind = f.Kind
	if f.Kind == model.Test {
		entry.Framework = model.ClassBased
		if entry.Site == model.SiteChain {
			entry.Framework = model.FluentChain
		}
	}
	reg.Add(entry)
}

func declaresLinks(kind model.Kind, attr string) bool {
	if kind == model.Production {
		return attr == model.AttrTestedBy
	}
	return attr == model.AttrLinksAndCovers || attr == model.AttrLinks
}
