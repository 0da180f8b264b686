// Package lang provides the tree-sitter language registry and the node
// helpers shared by every extractor.
package lang

import (
	"context"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Parse parses source and returns its syntax tree, or nil when the source
// cannot be parsed or contains syntax errors. Callers skip the file on nil.
// The caller owns the returned tree and must Close it.
func Parse(parser *sitter.Parser, source []byte) *sitter.Tree {
	if len(source) == 0 {
		return nil
	}
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return nil
	}
	if root := tree.RootNode(); root == nil || root.HasError() {
		tree.Close()
		return nil
	}
	return tree
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// Line returns the 1-based line a node starts on.
func Line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// EndLine returns the 1-based line a node ends on.
func EndLine(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// SameNode reports whether a and b denote the same node of one tree.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// NamedChildren returns the named children of node.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	n := int(node.NamedChildCount())
	out := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		if c := node.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// ChildOfType returns the first named child with the given type, or nil.
func ChildOfType(node *sitter.Node, types ...string) *sitter.Node {
	for _, c := range NamedChildren(node) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// Unquote strips the quotes of a PHP string literal and undoes the escapes
// that matter for class and method names. Anything else is returned trimmed.
func Unquote(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '\'' || first == '"') && first == last {
			inner := text[1 : len(text)-1]
			if first == '\'' {
				inner = strings.ReplaceAll(inner, `\'`, `'`)
			} else {
				inner = strings.ReplaceAll(inner, `\"`, `"`)
			}
			return strings.ReplaceAll(inner, `\\`, `\`)
		}
	}
	return text
}

// IndentOf returns the leading whitespace of line.
func IndentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
