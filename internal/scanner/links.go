package scanner

import (
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/model"
)

// LinkScanner registers concrete link declarations: #[TestedBy] on
// production methods, #[LinksAndCovers]/#[Links] on class-based tests and
// linking calls chained onto fluent tests.
type LinkScanner struct {
	project *Project
	logger  *zap.Logger
}

// NewLinkScanner returns a scanner over project.
func NewLinkScanner(project *Project, logger *zap.Logger) *LinkScanner {
	return &LinkScanner{project: project, logger: logger}
}

// LinkRegistry is the subset of the link registry the scanner writes to.
type LinkRegistry interface {
	Register(test, method string, covers bool, decl model.Declaration)
	ObserveChainLink(test, method string, covers bool)
	RegisterProduction(method, test string, decl model.Declaration)
}

// Scan populates reg. Placeholder arguments are left to the placeholder
// scanner.
func (s *LinkScanner) Scan(reg LinkRegistry) {
	for _, f := range s.project.Files {
		for ci := range f.Classes {
			c := &f.Classes[ci]
			if f.Kind == model.Production {
				s.scanProductionClass(reg, f, c)
				continue
			}
			if c.Abstract {
				continue
			}
			s.scanTestClass(reg, f, c)
		}
		if f.Kind == model.Test {
			s.scanFluentTests(reg, f)
		}
	}
}

func (s *LinkScanner) scanProductionClass(reg LinkRegistry, f *model.SourceFile, c *model.Class) {
	for _, m := range c.Methods {
		method := c.FQCN + "::" + m.Name
		for _, a := range m.Attributes {
			if a.Name != model.AttrTestedBy {
				continue
			}
			test, ok := reference(a.Args)
			if !ok {
				continue
			}
			reg.RegisterProduction(method, test, model.Declaration{
				Mechanism:  model.MechanismTestedBy,
				Declarator: a.Name,
				File:       f.Path,
				Line:       a.Line,
			})
		}
	}
}

func (s *LinkScanner) scanTestClass(reg LinkRegistry, f *model.SourceFile, c *model.Class) {
	// Class-level attributes apply to every test method of the class.
	classLinks := linkAttributes(c.Attributes)
	for _, m := range c.Methods {
		if !isTestMethod(m) {
			continue
		}
		test := c.TestID(m.Name)
		links := append(append([]attrLink(nil), classLinks...), linkAttributes(m.Attributes)...)
		for _, l := range links {
			reg.Register(test, l.method, l.covers, model.Declaration{
				Mechanism:  model.MechanismAttribute,
				Declarator: l.declarator,
				File:       f.Path,
				Line:       l.line,
			})
		}
	}
}

func (s *LinkScanner) scanFluentTests(reg LinkRegistry, f *model.SourceFile) {
	for _, t := range f.Tests {
		for _, call := range t.Calls {
			method, ok := reference(call.Args)
			if !ok {
				continue
			}
			covers := call.Method == model.ChainLinksCovers
			reg.ObserveChainLink(t.ID, method, covers)
			reg.Register(t.ID, method, covers, model.Declaration{
				Mechanism:  model.MechanismChain,
				Declarator: call.Method,
				File:       f.Path,
				Line:       call.Line,
			})
			s.logger.Debug("chain link", zap.String("test", t.ID), zap.String("method", method))
		}
	}
}

type attrLink struct {
	method     string
	covers     bool
	declarator string
	line       int
}

func linkAttributes(attrs []model.Attribute) []attrLink {
	var out []attrLink
	for _, a := range attrs {
		if a.Name != model.AttrLinksAndCovers && a.Name != model.AttrLinks {
			continue
		}
		method, ok := reference(a.Args)
		if !ok {
			continue
		}
		out = append(out, attrLink{
			method:     method,
			covers:     a.Name == model.AttrLinksAndCovers,
			declarator: a.Name,
			line:       a.Line,
		})
	}
	return out
}

// isTestMethod follows the PHPUnit convention: a test prefix or a #[Test]
// attribute. Methods carrying link attributes count as tests too.
func isTestMethod(m model.Method) bool {
	if len(m.Name) > 4 && m.Name[:4] == "test" {
		return true
	}
	for _, a := range m.Attributes {
		switch a.Name {
		case "Test", model.AttrLinksAndCovers, model.AttrLinks:
			return true
		}
	}
	return false
}

// reference reads the ('Class::member') and (Class, 'member') argument
// forms into an identifier. String class names are fully qualified, the way
// PHP reads them.
func reference(args []string) (string, bool) {
	if len(args) == 0 || args[0] == "" || model.IsMarker(args[0]) {
		return "", false
	}
	class, member := model.SplitIdentifier(args[0])
	class = strings.TrimPrefix(class, `\`)
	if member == "" && len(args) > 1 && args[1] != "" {
		member = args[1]
	}
	if member == "" {
		return class, true
	}
	return class + "::" + member, true
}
