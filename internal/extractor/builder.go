package extractor

import (
	"regexp"
	"strings"

	"legacylens/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// canonicalize collapses whitespace inside a type or signature fragment.
func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}

// qualify joins a parent full name and a simple name.
func qualify(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// callableName builds a unique full name for a callable. Parameter types
// are included for languages with overloading.
func callableName(parent, name string, params []model.Parameter, overloads bool) string {
	if !overloads {
		return qualify(parent, name) + "()"
	}
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = strings.ReplaceAll(canonicalize(p.Type), " ", "")
	}
	return qualify(parent, name) + "(" + strings.Join(types, ",") + ")"
}

// fileBuilder accumulates the symbols of one file in declaration order.
type fileBuilder struct {
	in      SourceInput
	symbols []model.CodeSymbol
	imports []model.ImportRef
}

func newFileBuilder(in SourceInput) *fileBuilder {
	return &fileBuilder{in: in}
}

// add appends a symbol and returns its index.
func (b *fileBuilder) add(s model.CodeSymbol) int {
	s.Language = b.in.Language
	s.Location.File = b.in.Path
	b.symbols = append(b.symbols, s)
	return len(b.symbols) - 1
}

func (b *fileBuilder) sym(i int) *model.CodeSymbol {
	return &b.symbols[i]
}

func (b *fileBuilder) addImport(path, alias string, line int) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	b.imports = append(b.imports, model.ImportRef{Path: path, Alias: alias, Line: line})
}

// ensureNamespace adds a namespace symbol once per file.
func (b *fileBuilder) ensureNamespace(name string, loc model.Location) {
	if name == "" {
		return
	}
	for _, s := range b.symbols {
		if s.Kind == model.KindNamespace && s.FullName == name {
			return
		}
	}
	short := name
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		short = name[i+1:]
	}
	b.add(model.CodeSymbol{
		Name:      short,
		FullName:  name,
		Kind:      model.KindNamespace,
		Access:    model.AccessPublic,
		Namespace: name,
		Location:  loc,
	})
}

func (b *fileBuilder) result(namespace string) *FileResult {
	return &FileResult{
		Namespace: namespace,
		Imports:   b.imports,
		Symbols:   b.symbols,
	}
}

// scope tracks what a body can see when deciding a receiver's type.
type scope struct {
	owner  string            // enclosing type simple name
	fields map[string]string // member name -> declared type
	locals map[string]string // parameter or local name -> declared type
}

func newScope(owner string, fields map[string]string) *scope {
	return &scope{owner: owner, fields: fields, locals: make(map[string]string)}
}

func (s *scope) declare(name, typ string) {
	if name != "" && typ != "" {
		s.locals[name] = typ
	}
}

var selfReceivers = map[string]bool{"this": true, "self": true, "Me": true}

// receiverType returns the declared type of a receiver expression, or ""
// when it cannot be told from local declarations.
func (s *scope) receiverType(recv string) string {
	r := strings.TrimSpace(recv)
	if r == "" {
		return ""
	}
	if selfReceivers[r] {
		return s.owner
	}
	for self := range selfReceivers {
		if rest, ok := strings.CutPrefix(r, self+"."); ok {
			if t, ok := s.fields[rest]; ok {
				return t
			}
			return ""
		}
	}
	if t, ok := s.locals[r]; ok {
		return t
	}
	if head, rest, ok := strings.Cut(r, "."); ok && s.owner != "" && s.locals[head] == s.owner {
		if t, ok := s.fields[rest]; ok {
			return t
		}
		return ""
	}
	if t, ok := s.fields[r]; ok {
		return t
	}
	if isTypeLikeName(r) {
		return r
	}
	return ""
}

var typeLikeRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*(\.[A-Z][A-Za-z0-9_]*)*$`)

// isTypeLikeName reports a capitalized, possibly qualified identifier used
// as a receiver, i.e. a static access through a type name.
func isTypeLikeName(s string) bool {
	return typeLikeRe.MatchString(s)
}

func (s *scope) reference(kind model.ReferenceKind, target, receiver string, line int) model.SymbolReference {
	return model.SymbolReference{
		Kind:         kind,
		Target:       target,
		Receiver:     receiver,
		ReceiverType: s.receiverType(receiver),
		Line:         line,
	}
}

// lastSegment returns the part after the final dot.
func lastSegment(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// splitReceiver splits "a.b.C" into receiver "a.b" and member "C".
func splitReceiver(expr string) (receiver, member string) {
	expr = strings.TrimSpace(expr)
	if i := strings.LastIndex(expr, "."); i >= 0 {
		return expr[:i], expr[i+1:]
	}
	return "", expr
}

// stripGenericArgs removes a trailing generic argument list from a name.
func stripGenericArgs(s string) string {
	if i := strings.IndexAny(s, "<["); i > 0 {
		return s[:i]
	}
	return s
}
