package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
)

// tsFile is a tree-sitter parse of one file.
type tsFile struct {
	in   SourceInput
	tree *sitter.Tree
	root *sitter.Node
}

func (f *tsFile) Source() SourceInput { return f.in }

func (f *tsFile) Close() {
	if f.tree != nil {
		f.tree.Close()
	}
}

// parseTreeSitter parses content with a grammar. Syntax errors are reported
// as a ParseError carrying the first error line.
func parseTreeSitter(in SourceInput, lang *sitter.Language) (*tsFile, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, in.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", in.Path, err)
	}
	root := tree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, apperrors.NewParseError(in.Path, in.Language, line, errors.New("syntax error"))
	}
	return &tsFile{in: in, tree: tree, root: root}, nil
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return lineOf(n)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			return firstErrorLine(c)
		}
	}
	return lineOf(n)
}

var errUnexpectedTree = errors.New("parsed file has an unexpected tree type")

func asTSFile(p ParsedFile) (*tsFile, error) {
	f, ok := p.(*tsFile)
	if !ok || f == nil {
		return nil, errUnexpectedTree
	}
	return f, nil
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func locationOf(n *sitter.Node) model.Location {
	return model.Location{
		StartLine:   int(n.StartPoint().Row) + 1,
		EndLine:     int(n.EndPoint().Row) + 1,
		StartColumn: int(n.StartPoint().Column) + 1,
	}
}

func content(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// creationType returns the created type when value is a `new T(...)`
// expression, so an inferred (`var`) local still types its receiver.
func creationType(value *sitter.Node, src []byte) string {
	if value == nil || value.Type() != "object_creation_expression" {
		return ""
	}
	return canonicalize(content(field(value, "type"), src))
}

// field returns the first child found under any of the field names.
func field(n *sitter.Node, names ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for _, name := range names {
		if c := n.ChildByFieldName(name); c != nil {
			return c
		}
	}
	return nil
}

// namedChildren returns the named children whose type is in types, or all
// named children when types is empty.
func namedChildren(n *sitter.Node, types ...string) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		if len(types) == 0 || hasType(c, types...) {
			out = append(out, c)
		}
	}
	return out
}

func firstNamed(n *sitter.Node, types ...string) *sitter.Node {
	if found := namedChildren(n, types...); len(found) > 0 {
		return found[0]
	}
	return nil
}

func hasType(n *sitter.Node, types ...string) bool {
	t := n.Type()
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// walkNamed visits n and its named descendants depth-first. Returning false
// from visit skips the node's children.
func walkNamed(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkNamed(n.NamedChild(i), visit)
	}
}

// operatorOf returns the operator token of a binary or assignment node.
func operatorOf(n *sitter.Node, src []byte) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return strings.TrimSpace(op.Content(src))
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		if !c.IsNamed() || c.Type() == "assignment_operator" {
			return strings.TrimSpace(c.Content(src))
		}
	}
	return ""
}

// complexityRules tell the measurer which nodes branch and nest.
type complexityRules struct {
	branches map[string]bool
	nesting  map[string]bool
	logical  map[string]bool // binary node types whose && / || / ?? operators count
	// stop marks nested function-like nodes measured on their own
	stop map[string]bool
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var logicalOperators = set("&&", "||", "??", "and", "or")

// measure computes cyclomatic complexity, cognitive complexity and the
// maximum nesting depth of a body.
func measure(body *sitter.Node, src []byte, rules complexityRules) (cyclomatic, cognitive, maxNesting int) {
	cyclomatic = 1
	if body == nil {
		return
	}
	var visit func(n *sitter.Node, depth int)
	visit = func(n *sitter.Node, depth int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c == nil {
				continue
			}
			t := c.Type()
			if rules.stop[t] {
				continue
			}
			childDepth := depth
			if rules.branches[t] {
				cyclomatic++
				cognitive += 1 + depth
			}
			if rules.logical[t] && logicalOperators[operatorOf(c, src)] {
				cyclomatic++
				cognitive++
			}
			if rules.nesting[t] {
				childDepth = depth + 1
				if childDepth > maxNesting {
					maxNesting = childDepth
				}
			}
			visit(c, childDepth)
		}
	}
	visit(body, 0)
	return
}

// leadingComments returns the comment block directly above a declaration.
func leadingComments(n *sitter.Node, src []byte, commentTypes ...string) string {
	if len(commentTypes) == 0 {
		commentTypes = []string{"comment"}
	}
	var lines []string
	current := n
	for {
		prev := current.PrevSibling()
		if prev == nil || !hasType(prev, commentTypes...) {
			break
		}
		if current.StartPoint().Row-prev.EndPoint().Row > 1 {
			break
		}
		lines = append([]string{prev.Content(src)}, lines...)
		current = prev
	}
	return strings.Join(lines, "\n")
}

// isDocComment reports whether a comment block is documentation in the
// language's convention.
func isDocComment(comment string, prefixes ...string) bool {
	comment = strings.TrimSpace(comment)
	for _, p := range prefixes {
		if strings.HasPrefix(comment, p) {
			return true
		}
	}
	return false
}

// stringLiteral strips quotes from a string literal node's text.
func stringLiteral(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	s = strings.TrimPrefix(s, "@")
	return strings.Trim(s, `"'`)
}
