package extractor

import (
	"strings"

	"legacylens/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

var csharpComplexity = complexityRules{
	branches: set("if_statement", "for_statement", "for_each_statement", "foreach_statement", "while_statement",
		"do_statement", "catch_clause", "conditional_expression", "switch_section", "switch_expression_arm"),
	nesting: set("if_statement", "for_statement", "for_each_statement", "foreach_statement", "while_statement",
		"do_statement", "catch_clause", "switch_statement", "switch_expression", "lambda_expression"),
	logical: set("binary_expression"),
	stop:    set("local_function_statement", "class_declaration"),
}

var csharpTypeDecls = map[string]model.SymbolKind{
	"class_declaration":         model.KindClass,
	"interface_declaration":     model.KindInterface,
	"struct_declaration":        model.KindStruct,
	"enum_declaration":          model.KindEnum,
	"record_declaration":        model.KindRecord,
	"record_struct_declaration": model.KindRecord,
	"delegate_declaration":      model.KindDelegate,
}

var csharpAccess = map[string]model.Access{
	"public":    model.AccessPublic,
	"protected": model.AccessProtected,
	"internal":  model.AccessInternal,
	"private":   model.AccessPrivate,
}

var csharpKeywords = set("static", "abstract", "sealed", "virtual", "override", "readonly", "const",
	"async", "partial", "extern", "new", "unsafe", "volatile", "public", "protected", "internal", "private")

// CSharpExtractor extracts namespaces, types and members from C# sources.
type CSharpExtractor struct {
	lang *sitter.Language
}

func NewCSharpExtractor() *CSharpExtractor {
	return &CSharpExtractor{lang: csharp.GetLanguage()}
}

func (e *CSharpExtractor) Language() string { return model.LangCSharp }

func (e *CSharpExtractor) Parse(in SourceInput) (ParsedFile, error) {
	f, err := parseTreeSitter(in, e.lang)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *CSharpExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, err := asTSFile(p)
	if err != nil {
		return nil, err
	}
	w := &csharpWalker{b: newFileBuilder(f.in), src: f.in.Content}
	w.container(f.root, "")
	return w.b.result(w.firstNS), nil
}

func (e *CSharpExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), cStyle, r)
}

type csharpWalker struct {
	b       *fileBuilder
	src     []byte
	firstNS string
}

// container walks a compilation unit or namespace body.
func (w *csharpWalker) container(n *sitter.Node, ns string) {
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "using_directive":
			w.using(c)
		case "namespace_declaration":
			name := qualify(ns, content(field(c, "name"), w.src))
			w.enterNamespace(name, c)
			w.container(field(c, "body"), name)
		case "file_scoped_namespace_declaration":
			ns = qualify(ns, content(field(c, "name"), w.src))
			w.enterNamespace(ns, c)
			w.container(c, ns)
		case "declaration_list":
			w.container(c, ns)
		default:
			if kind, ok := csharpTypeDecls[c.Type()]; ok {
				w.typeDecl(c, kind, ns, "")
			}
		}
	}
}

func (w *csharpWalker) enterNamespace(name string, n *sitter.Node) {
	if w.firstNS == "" {
		w.firstNS = name
	}
	w.b.ensureNamespace(name, locationOf(n))
}

func (w *csharpWalker) using(n *sitter.Node) {
	text := strings.TrimSpace(content(n, w.src))
	text = strings.TrimSuffix(text, ";")
	text = strings.TrimSpace(strings.TrimPrefix(text, "global"))
	text = strings.TrimSpace(strings.TrimPrefix(text, "using"))
	text = strings.TrimSpace(strings.TrimPrefix(text, "static "))
	alias := ""
	if i := strings.Index(text, "="); i >= 0 {
		alias = strings.TrimSpace(text[:i])
		text = strings.TrimSpace(text[i+1:])
	}
	w.b.addImport(text, alias, lineOf(n))
}

func (w *csharpWalker) modifiers(n *sitter.Node, defaultAccess model.Access) ([]string, []string, model.Access) {
	var mods, attrs, access []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch {
		case c.Type() == "attribute_list":
			for _, a := range namedChildren(c, "attribute") {
				attrs = append(attrs, content(field(a, "name"), w.src))
			}
		case c.Type() == "modifier" || (!c.IsNamed() && csharpKeywords[c.Type()]):
			word := strings.TrimSpace(content(c, w.src))
			if _, ok := csharpAccess[word]; ok {
				access = append(access, word)
			} else {
				mods = append(mods, word)
			}
		}
	}
	switch strings.Join(access, " ") {
	case "":
		return mods, attrs, defaultAccess
	case "protected internal", "internal protected":
		return mods, attrs, model.AccessProtectedInternal
	case "private protected", "protected private":
		return mods, attrs, model.AccessProtected
	}
	return mods, attrs, csharpAccess[access[0]]
}

func (w *csharpWalker) documented(n *sitter.Node) bool {
	return isDocComment(leadingComments(n, w.src, "comment"), "///", "/**")
}

func (w *csharpWalker) typeDecl(n *sitter.Node, kind model.SymbolKind, ns, outer string) {
	name := content(field(n, "name"), w.src)
	if name == "" {
		return
	}
	defaultAccess := model.AccessInternal
	if outer != "" {
		defaultAccess = model.AccessPrivate
	}
	mods, attrs, access := w.modifiers(n, defaultAccess)
	container := outer
	if container == "" {
		container = ns
	}
	full := qualify(container, name)

	var bases []string
	if bl := firstNamed(n, "base_list"); bl != nil {
		for _, t := range namedChildren(bl) {
			if t.Type() == "argument_list" {
				continue
			}
			if t.Type() == "primary_constructor_base_type" {
				t = firstNamed(t)
			}
			bases = append(bases, stripGenericArgs(content(t, w.src)))
		}
	}

	loc := locationOf(n)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       kind,
		Access:     access,
		Namespace:  ns,
		Location:   loc,
		Parent:     outer,
		BaseTypes:  bases,
		Modifiers:  mods,
		Attributes: attrs,
		Documented: w.documented(n),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	if kind == model.KindDelegate {
		sc := newScope(name, nil)
		s.Parameters = w.parameters(field(n, "parameters"), sc)
		s.ReturnType = canonicalize(content(field(n, "returns", "type"), w.src))
	}
	w.b.add(s)

	body := field(n, "body")
	if body == nil {
		body = firstNamed(n, "declaration_list", "enum_member_declaration_list")
	}
	if body == nil {
		return
	}
	members := namedChildren(body)
	fields := w.fieldTypes(members)
	for _, m := range members {
		switch m.Type() {
		case "method_declaration", "constructor_declaration", "operator_declaration":
			w.method(m, ns, full, name, kind, fields)
		case "property_declaration", "indexer_declaration":
			w.property(m, ns, full, name, kind, fields)
		case "field_declaration", "event_field_declaration":
			w.fieldDecl(m, ns, full, name, kind, fields)
		case "event_declaration":
			w.event(m, ns, full, kind)
		case "enum_member_declaration":
			member := content(field(m, "name"), w.src)
			if member == "" {
				member = content(firstNamed(m, "identifier"), w.src)
			}
			w.b.add(model.CodeSymbol{
				Name:      member,
				FullName:  qualify(full, member),
				Kind:      model.KindConstant,
				Access:    model.AccessPublic,
				Namespace: ns,
				Location:  locationOf(m),
				Parent:    full,
				Type:      name,
				Modifiers: []string{"static"},
			})
		default:
			if k, ok := csharpTypeDecls[m.Type()]; ok {
				w.typeDecl(m, k, ns, full)
			}
		}
	}
}

func memberDefaultAccess(ownerKind model.SymbolKind) model.Access {
	if ownerKind == model.KindInterface {
		return model.AccessPublic
	}
	return model.AccessPrivate
}

// variableDeclaration returns the declared type and the (name, initializer)
// pairs of a variable_declaration node.
func (w *csharpWalker) variableDeclaration(n *sitter.Node) (string, []*sitter.Node, []*sitter.Node) {
	decl := firstNamed(n, "variable_declaration")
	if decl == nil {
		decl = n
	}
	typ := canonicalize(content(field(decl, "type"), w.src))
	var names, values []*sitter.Node
	for _, d := range namedChildren(decl, "variable_declarator") {
		name := field(d, "name")
		if name == nil {
			name = firstNamed(d, "identifier")
		}
		var value *sitter.Node
		if eq := firstNamed(d, "equals_value_clause"); eq != nil {
			value = firstNamed(eq)
		} else if len(namedChildren(d)) > 1 {
			value = namedChildren(d)[len(namedChildren(d))-1]
		}
		names = append(names, name)
		values = append(values, value)
	}
	return typ, names, values
}

func (w *csharpWalker) fieldTypes(members []*sitter.Node) map[string]string {
	fields := make(map[string]string)
	for _, m := range members {
		switch m.Type() {
		case "field_declaration", "event_field_declaration":
			typ, names, _ := w.variableDeclaration(m)
			for _, name := range names {
				fields[content(name, w.src)] = typ
			}
		case "property_declaration":
			fields[content(field(m, "name"), w.src)] = canonicalize(content(field(m, "type"), w.src))
		}
	}
	return fields
}

func (w *csharpWalker) fieldDecl(n *sitter.Node, ns, owner, ownerName string, ownerKind model.SymbolKind, fields map[string]string) {
	mods, attrs, access := w.modifiers(n, memberDefaultAccess(ownerKind))
	kind := model.KindField
	switch {
	case n.Type() == "event_field_declaration":
		kind = model.KindEvent
	case contains(mods, "const"):
		kind = model.KindConstant
	}
	typ, names, values := w.variableDeclaration(n)
	for i, nameNode := range names {
		name := content(nameNode, w.src)
		s := model.CodeSymbol{
			Name:       name,
			FullName:   qualify(owner, name),
			Kind:       kind,
			Access:     access,
			Namespace:  ns,
			Location:   locationOf(n),
			Parent:     owner,
			Type:       typ,
			Modifiers:  mods,
			Attributes: attrs,
			Documented: w.documented(n),
		}
		if values[i] != nil {
			s.References = w.references(values[i], newScope(ownerName, fields))
		}
		w.b.add(s)
	}
}

func (w *csharpWalker) property(n *sitter.Node, ns, owner, ownerName string, ownerKind model.SymbolKind, fields map[string]string) {
	mods, attrs, access := w.modifiers(n, memberDefaultAccess(ownerKind))
	name := content(field(n, "name"), w.src)
	if n.Type() == "indexer_declaration" {
		name = "this[]"
	}
	loc := locationOf(n)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   qualify(owner, name),
		Kind:       model.KindProperty,
		Access:     access,
		Namespace:  ns,
		Location:   loc,
		Parent:     owner,
		Type:       canonicalize(content(field(n, "type"), w.src)),
		Modifiers:  mods,
		Attributes: attrs,
		Documented: w.documented(n),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	sc := newScope(ownerName, fields)
	for _, part := range []*sitter.Node{field(n, "accessors"), field(n, "value"), firstNamed(n, "arrow_expression_clause")} {
		if part != nil {
			s.References = append(s.References, w.references(part, sc)...)
		}
	}
	w.b.add(s)
}

func (w *csharpWalker) event(n *sitter.Node, ns, owner string, ownerKind model.SymbolKind) {
	mods, attrs, access := w.modifiers(n, memberDefaultAccess(ownerKind))
	name := content(field(n, "name"), w.src)
	w.b.add(model.CodeSymbol{
		Name:       name,
		FullName:   qualify(owner, name),
		Kind:       model.KindEvent,
		Access:     access,
		Namespace:  ns,
		Location:   locationOf(n),
		Parent:     owner,
		Type:       canonicalize(content(field(n, "type"), w.src)),
		Modifiers:  mods,
		Attributes: attrs,
	})
}

func (w *csharpWalker) method(n *sitter.Node, ns, owner, ownerName string, ownerKind model.SymbolKind, fields map[string]string) {
	mods, attrs, access := w.modifiers(n, memberDefaultAccess(ownerKind))
	kind := model.KindMethod
	name := content(field(n, "name"), w.src)
	switch n.Type() {
	case "constructor_declaration":
		kind = model.KindConstructor
		name = ownerName
	case "operator_declaration":
		name = "op_" + strings.TrimSpace(content(field(n, "operator"), w.src))
	}
	body := field(n, "body")
	if body == nil {
		body = firstNamed(n, "block", "arrow_expression_clause")
	}
	if ownerKind == model.KindInterface && body == nil && !contains(mods, "static") {
		mods = append(mods, "abstract")
	}

	sc := newScope(ownerName, fields)
	params := w.parameters(field(n, "parameters"), sc)
	loc := locationOf(n)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   callableName(owner, name, params, true),
		Kind:       kind,
		Access:     access,
		Namespace:  ns,
		Location:   loc,
		Parent:     owner,
		Parameters: params,
		ReturnType: canonicalize(content(field(n, "returns", "type"), w.src)),
		Modifiers:  mods,
		Attributes: attrs,
		Documented: w.documented(n),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	s.Metrics.ParameterCount = len(params)
	s.Metrics.CyclomaticComplexity = 1
	if init := firstNamed(n, "constructor_initializer"); init != nil {
		s.References = append(s.References, w.references(init, sc)...)
	}
	if body != nil {
		s.References = append(s.References, w.references(body, sc)...)
		s.Metrics.CyclomaticComplexity, s.Metrics.CognitiveComplexity, s.Metrics.MaxNesting = measure(body, w.src, csharpComplexity)
	}
	w.b.add(s)
}

func (w *csharpWalker) parameters(n *sitter.Node, sc *scope) []model.Parameter {
	params := []model.Parameter{}
	for _, p := range namedChildren(n, "parameter") {
		name := content(field(p, "name"), w.src)
		typ := canonicalize(content(field(p, "type"), w.src))
		var mods []string
		for i := 0; i < int(p.ChildCount()); i++ {
			c := p.Child(i)
			if c != nil && (c.Type() == "parameter_modifier" || (!c.IsNamed() && set("ref", "out", "in", "params", "this")[c.Type()])) {
				mods = append(mods, content(c, w.src))
			}
		}
		def := ""
		if eq := firstNamed(p, "equals_value_clause"); eq != nil {
			def = canonicalize(content(firstNamed(eq), w.src))
		}
		params = append(params, model.Parameter{Name: name, Type: typ, DefaultValue: def, Modifiers: mods})
		sc.declare(name, typ)
	}
	return params
}

func (w *csharpWalker) references(body *sitter.Node, sc *scope) []model.SymbolReference {
	var refs []model.SymbolReference
	walkNamed(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "local_function_statement":
			return false
		case "local_declaration_statement", "using_statement":
			typ, names, values := w.variableDeclaration(n)
			for i, name := range names {
				t := typ
				if t == "var" {
					t = creationType(values[i], w.src)
				}
				sc.declare(content(name, w.src), t)
			}
			if typ != "" && typ != "var" {
				refs = append(refs, sc.reference(model.RefTypeUsage, typ, "", lineOf(n)))
			}
		case "invocation_expression":
			fn := field(n, "function")
			if fn == nil {
				fn = firstNamed(n)
			}
			recv, member := w.memberTarget(fn)
			ref := sc.reference(model.RefCall, stripGenericArgs(member), recv, lineOf(n))
			if recv == "" {
				ref.ReceiverType = sc.owner
			}
			refs = append(refs, ref)
		case "object_creation_expression":
			refs = append(refs, sc.reference(model.RefInstantiation, stripGenericArgs(content(field(n, "type"), w.src)), "", lineOf(n)))
		case "member_access_expression":
			if p := n.Parent(); p != nil && p.Type() == "invocation_expression" {
				return true
			}
			recv, member := w.memberTarget(n)
			refs = append(refs, sc.reference(model.RefPropertyAccess, member, recv, lineOf(n)))
		case "assignment_expression":
			op := operatorOf(n, w.src)
			if op == "+=" || op == "-=" {
				if left := field(n, "left"); left != nil && left.Type() == "member_access_expression" {
					recv, member := w.memberTarget(left)
					if sc.receiverType(recv) != "" || recv == "this" {
						refs = append(refs, sc.reference(model.RefEvent, member, recv, lineOf(n)))
					}
				}
			}
		}
		return true
	})
	return refs
}

// memberTarget splits a callee or member access into receiver and name.
func (w *csharpWalker) memberTarget(n *sitter.Node) (string, string) {
	if n == nil {
		return "", ""
	}
	if n.Type() == "member_access_expression" {
		return content(field(n, "expression"), w.src), content(field(n, "name"), w.src)
	}
	return splitReceiver(content(n, w.src))
}
