package model

// SourceFile holds everything extracted from one parsed PHP file.
type SourceFile struct {
	Path      string // relative to the project root
	Kind      Kind
	Namespace string
	Uses      map[string]string // alias → fully qualified name
	Classes   []Class
	Tests     []FluentTest
	Fluent    bool
}

// Class is a class, interface, trait or enum declaration.
type Class struct {
	Name       string
	FQCN       string
	Line       int // line of the class name
	Start      int // first line of the declaration, attributes included
	Indent     string
	Abstract   bool
	Doc        Docblock
	Attributes []Attribute
	Methods    []Method
}

// Method is a method declaration inside a class.
type Method struct {
	Name       string
	Line       int // first line of the declaration, attributes included
	Indent     string
	Doc        Docblock
	Attributes []Attribute
}

// Docblock is a /** ... */ comment preceding a declaration.
type Docblock struct {
	Text    string
	Line    int
	EndLine int
}

// Attribute is one #[Name(args)] entry with its arguments resolved to values.
// ArgLines holds the line each argument starts on.
type Attribute struct {
	Name     string
	Args     []string
	ArgLines []int
	Line     int
	EndLine  int
}

// FluentTest is a test registered with test() or it(), possibly nested in describe().
type FluentTest struct {
	ID     string
	Name   string
	Groups []string
	Line   int
	Calls  []ChainCall
}

// ChainCall is a method chained onto a fluent test registration.
type ChainCall struct {
	Method   string
	Args     []string
	ArgLines []int
	Line     int // line of the method name
	EndLine  int
}

// TestID returns the identifier of a class-based test method.
func (c *Class) TestID(method string) string {
	return c.FQCN + "::" + method
}

// Anchor returns the anchor of a marker found in the declaration of c.
func (c *Class) Anchor() Anchor {
	return Anchor{DeclLine: c.Start, Indent: c.Indent, DocLine: c.Doc.Line, DocEndLine: c.Doc.EndLine}
}

// Anchor returns the anchor of a marker found in the declaration of m.
func (m *Method) Anchor() Anchor {
	return Anchor{DeclLine: m.Line, Indent: m.Indent, DocLine: m.Doc.Line, DocEndLine: m.Doc.EndLine}
}
