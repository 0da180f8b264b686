// Package parse extracts classes, attributes, docblocks and fluent tests
// from PHP source files using tree-sitter.
package parse

import (
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/testlink/internal/lang"
	"github.com/phobologic/testlink/internal/model"
)

// Fluent test registration and grouping functions.
const (
	fnTest     = "test"
	fnIt       = "it"
	fnDescribe = "describe"
)

// GroupSeparator joins describe() names and the test name into one identifier.
const GroupSeparator = " > "

var fluentCallRe = regexp.MustCompile(`(?m)(?:^|[^\w$>:])(?:test|it)\s*\(`)

var classTypes = map[string]bool{
	"class_declaration":     true,
	"interface_declaration": true,
	"trait_declaration":     true,
	"enum_declaration":      true,
}

// chainMethods is the whitelist of chained calls that declare links.
var chainMethods = map[string]bool{
	model.ChainLinksCovers: true,
	model.ChainLinks:       true,
}

// LooksFluent reports whether source registers tests through test() or it().
func LooksFluent(source []byte) bool {
	return fluentCallRe.Match(source)
}

// ExtractFile parses a PHP file and returns what it declares.
// It returns false when the file cannot be parsed; callers skip it.
// filePath is the repo-relative path recorded on the result.
func ExtractFile(parser *sitter.Parser, source []byte, filePath string, kind model.Kind) (*model.SourceFile, bool) {
	tree := lang.Parse(parser, source)
	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	e := &extractor{
		source: source,
		file: &model.SourceFile{
			Path: filePath,
			Kind: kind,
			Uses: make(map[string]string),
		},
	}
	e.walkScope(tree.RootNode())

	if kind == model.Test && LooksFluent(source) {
		e.file.Fluent = true
		e.walkTests(tree.RootNode(), nil)
	}
	return e.file, true
}

type extractor struct {
	source []byte
	file   *model.SourceFile
}

func (e *extractor) text(n *sitter.Node) string {
	return lang.NodeText(n, e.source)
}

// walkScope visits top-level statements, tracking namespace and imports.
func (e *extractor) walkScope(node *sitter.Node) {
	for _, child := range lang.NamedChildren(node) {
		switch child.Type() {
		case "namespace_definition":
			if name := child.ChildByFieldName("name"); name != nil {
				e.file.Namespace = strings.TrimPrefix(e.text(name), `\`)
			} else {
				e.file.Namespace = ""
			}
			if body := child.ChildByFieldName("body"); body != nil {
				e.walkScope(body)
			}
		case "namespace_use_declaration":
			e.addUses(child)
		case "compound_statement":
			e.walkScope(child)
		default:
			if classTypes[child.Type()] {
				e.addClass(child)
			}
		}
	}
}

func (e *extractor) addUses(decl *sitter.Node) {
	for _, c := range lang.NamedChildren(decl) {
		if c.Type() == "namespace_use_clause" {
			e.addUseClause(c, "")
		}
	}

	// use Prefix\{A, B as C};
	prefix := lang.ChildOfType(decl, "namespace_name")
	group := decl.ChildByFieldName("body")
	if group == nil {
		group = lang.ChildOfType(decl, "namespace_use_group")
	}
	if prefix == nil || group == nil {
		return
	}
	for _, c := range lang.NamedChildren(group) {
		if c.Type() == "namespace_use_clause" || c.Type() == "namespace_use_group_clause" {
			e.addUseClause(c, strings.TrimPrefix(e.text(prefix), `\`))
		}
	}
}

func (e *extractor) addUseClause(clause *sitter.Node, prefix string) {
	if t := clause.ChildByFieldName("type"); t != nil {
		return // use function / use const
	}
	var target, alias string
	for _, c := range lang.NamedChildren(clause) {
		switch c.Type() {
		case "qualified_name", "namespace_name":
			target = e.text(c)
		case "name":
			if target == "" {
				target = e.text(c)
			} else {
				alias = e.text(c)
			}
		case "namespace_aliasing_clause":
			if n := lang.ChildOfType(c, "name"); n != nil {
				alias = e.text(n)
			}
		}
	}
	if a := clause.ChildByFieldName("alias"); a != nil {
		alias = e.text(a)
	}
	target = strings.TrimPrefix(target, `\`)
	if target == "" {
		return
	}
	if prefix != "" {
		target = prefix + `\` + target
	}
	if alias == "" {
		alias = model.ShortClassName(target)
	}
	e.file.Uses[alias] = target
}

func (e *extractor) addClass(node *sitter.Node) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := e.text(nameNode)
	class := model.Class{
		Name:       name,
		FQCN:       qualify(e.file.Namespace, name),
		Line:       lang.Line(nameNode),
		Start:      lang.Line(node),
		Indent:     e.indentAt(node),
		Abstract:   node.Type() != "class_declaration" || lang.ChildOfType(node, "abstract_modifier") != nil,
		Doc:        e.docblockBefore(node),
		Attributes: e.attributes(node, ""),
	}

	body := node.ChildByFieldName("body")
	if body != nil {
		for _, member := range lang.NamedChildren(body) {
			if member.Type() != "method_declaration" {
				continue
			}
			mname := member.ChildByFieldName("name")
			if mname == nil {
				continue
			}
			class.Methods = append(class.Methods, model.Method{
				Name:       e.text(mname),
				Line:       lang.Line(member),
				Indent:     e.indentAt(member),
				Doc:        e.docblockBefore(member),
				Attributes: e.attributes(member, class.FQCN),
			})
		}
	}
	e.file.Classes = append(e.file.Classes, class)
}

// docblockBefore returns the /** */ comment directly preceding node.
func (e *extractor) docblockBefore(node *sitter.Node) model.Docblock {
	prev := node.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return model.Docblock{}
	}
	text := e.text(prev)
	if !strings.HasPrefix(text, "/**") {
		return model.Docblock{}
	}
	return model.Docblock{Text: text, Line: lang.Line(prev), EndLine: lang.EndLine(prev)}
}

func (e *extractor) attributes(decl *sitter.Node, self string) []model.Attribute {
	list := decl.ChildByFieldName("attributes")
	if list == nil {
		list = lang.ChildOfType(decl, "attribute_list")
	}
	if list == nil {
		return nil
	}
	var attrs []model.Attribute
	for _, group := range lang.NamedChildren(list) {
		if group.Type() != "attribute_group" {
			continue
		}
		for _, attr := range lang.NamedChildren(group) {
			if attr.Type() != "attribute" {
				continue
			}
			nameNode := lang.ChildOfType(attr, "name", "qualified_name")
			if nameNode == nil {
				continue
			}
			a := model.Attribute{
				Name:    model.ShortClassName(e.text(nameNode)),
				Line:    lang.Line(attr),
				EndLine: lang.EndLine(attr),
			}
			args := attr.ChildByFieldName("parameters")
			if args == nil {
				args = lang.ChildOfType(attr, "arguments")
			}
			if args != nil {
				a.Args, a.ArgLines = e.argValues(args, self)
			}
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// argValues returns the value of each argument and the line it starts on.
func (e *extractor) argValues(args *sitter.Node, self string) ([]string, []int) {
	var values []string
	var lines []int
	for _, expr := range argumentExpressions(args) {
		values = append(values, e.value(expr, self))
		lines = append(lines, lang.Line(expr))
	}
	return values, lines
}

// value evaluates the literal forms link arguments are written in.
func (e *extractor) value(n *sitter.Node, self string) string {
	switch n.Type() {
	case "string", "encapsed_string":
		return lang.Unquote(e.text(n))
	case "class_constant_access_expression":
		children := lang.NamedChildren(n)
		if len(children) == 2 && strings.EqualFold(e.text(children[1]), "class") {
			scope := e.text(children[0])
			if (scope == "self" || scope == "static") && self != "" {
				return self
			}
			return ResolveName(e.file, scope)
		}
	case "binary_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		op := n.ChildByFieldName("operator")
		if left != nil && right != nil && op != nil && e.text(op) == "." {
			return e.value(left, self) + e.value(right, self)
		}
	case "parenthesized_expression":
		if children := lang.NamedChildren(n); len(children) == 1 {
			return e.value(children[0], self)
		}
	}
	return lang.CollapseWhitespace(e.text(n))
}

func (e *extractor) indentAt(n *sitter.Node) string {
	start := int(n.StartByte())
	lineStart := strings.LastIndexByte(string(e.source[:start]), '\n') + 1
	return lang.IndentOf(string(e.source[lineStart:start]))
}

// walkTests finds test()/it() registrations, descending into describe()
// blocks with the group path scoped to each subtree.
func (e *extractor) walkTests(node *sitter.Node, groups []string) {
	if node.Type() == "function_call_expression" {
		fn := node.ChildByFieldName("function")
		args := node.ChildByFieldName("arguments")
		if fn != nil && args != nil {
			switch e.text(fn) {
			case fnDescribe:
				e.walkDescribe(args, groups)
				return
			case fnTest, fnIt:
				e.addTest(node, e.text(fn), args, groups)
				return
			}
		}
	}
	for _, child := range lang.NamedChildren(node) {
		e.walkTests(child, groups)
	}
}

func (e *extractor) walkDescribe(args *sitter.Node, groups []string) {
	argNodes := argumentExpressions(args)
	if len(argNodes) == 0 {
		return
	}
	nested := make([]string, len(groups), len(groups)+1)
	copy(nested, groups)
	nested = append(nested, e.value(argNodes[0], ""))
	for _, a := range argNodes[1:] {
		e.walkTests(a, nested)
	}
}

func (e *extractor) addTest(call *sitter.Node, fn string, args *sitter.Node, groups []string) {
	argNodes := argumentExpressions(args)
	if len(argNodes) == 0 {
		return
	}
	name := e.value(argNodes[0], "")
	if fn == fnIt {
		name = "it " + name
	}
	path := append(append([]string(nil), groups...), name)
	test := model.FluentTest{
		ID:     e.testPrefix() + "::" + strings.Join(path, GroupSeparator),
		Name:   name,
		Groups: append([]string(nil), groups...),
		Line:   lang.Line(call),
		Calls:  e.chainCalls(call),
	}
	e.file.Tests = append(e.file.Tests, test)
}

// chainCalls climbs from a test registration through the method calls
// chained onto it and collects the whitelisted linking calls.
func (e *extractor) chainCalls(call *sitter.Node) []model.ChainCall {
	var calls []model.ChainCall
	cur := call
	for {
		parent := cur.Parent()
		if parent == nil || parent.Type() != "member_call_expression" {
			break
		}
		if obj := parent.ChildByFieldName("object"); !lang.SameNode(obj, cur) {
			break
		}
		if nameNode := parent.ChildByFieldName("name"); nameNode != nil {
			method := e.text(nameNode)
			if chainMethods[method] {
				cc := model.ChainCall{Method: method, Line: lang.Line(nameNode), EndLine: lang.EndLine(parent)}
				if args := parent.ChildByFieldName("arguments"); args != nil {
					cc.Args, cc.ArgLines = e.argValues(args, "")
				}
				calls = append(calls, cc)
			}
		}
		cur = parent
	}
	return calls
}

func (e *extractor) testPrefix() string {
	base := strings.TrimSuffix(filepath.Base(e.file.Path), filepath.Ext(e.file.Path))
	if e.file.Namespace != "" {
		return e.file.Namespace + `\` + base
	}
	return PathClassName(e.file.Path)
}

// PathClassName derives a class-like name from a file path:
// tests/Unit/UserTest.php becomes Tests\Unit\UserTest.
func PathClassName(path string) string {
	path = strings.TrimSuffix(filepath.ToSlash(path), filepath.Ext(path))
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, strings.ToUpper(p[:1])+p[1:])
	}
	return strings.Join(out, `\`)
}

func argumentExpressions(args *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, arg := range lang.NamedChildren(args) {
		if arg.Type() != "argument" {
			continue
		}
		children := lang.NamedChildren(arg)
		if len(children) > 0 {
			out = append(out, children[len(children)-1])
		}
	}
	return out
}

// ResolveName resolves a class reference the way PHP does inside file:
// fully qualified names stand, imported aliases expand, anything else is
// relative to the file's namespace.
func ResolveName(file *model.SourceFile, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, `\`) {
		return strings.TrimPrefix(name, `\`)
	}
	first, rest := name, ""
	if i := strings.Index(name, `\`); i >= 0 {
		first, rest = name[:i], name[i:]
	}
	if target, ok := file.Uses[first]; ok {
		return target + rest
	}
	return qualify(file.Namespace, name)
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + `\` + name
}
