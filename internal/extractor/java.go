package extractor

import (
	"strings"

	"legacylens/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

var javaComplexity = complexityRules{
	branches: set("if_statement", "for_statement", "enhanced_for_statement", "while_statement",
		"do_statement", "catch_clause", "ternary_expression", "switch_block_statement_group", "switch_rule"),
	nesting: set("if_statement", "for_statement", "enhanced_for_statement", "while_statement",
		"do_statement", "catch_clause", "switch_expression", "lambda_expression"),
	logical: set("binary_expression"),
	stop:    set("class_body"),
}

var javaTypeDecls = map[string]model.SymbolKind{
	"class_declaration":           model.KindClass,
	"interface_declaration":       model.KindInterface,
	"enum_declaration":            model.KindEnum,
	"record_declaration":          model.KindRecord,
	"annotation_type_declaration": model.KindInterface,
}

// JavaExtractor extracts packages, types and members from Java sources.
type JavaExtractor struct {
	lang *sitter.Language
}

func NewJavaExtractor() *JavaExtractor {
	return &JavaExtractor{lang: java.GetLanguage()}
}

func (e *JavaExtractor) Language() string { return model.LangJava }

func (e *JavaExtractor) Parse(in SourceInput) (ParsedFile, error) {
	f, err := parseTreeSitter(in, e.lang)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *JavaExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, err := asTSFile(p)
	if err != nil {
		return nil, err
	}
	w := &javaWalker{b: newFileBuilder(f.in), src: f.in.Content}
	for _, n := range namedChildren(f.root) {
		switch {
		case n.Type() == "package_declaration":
			if name := firstNamed(n, "scoped_identifier", "identifier"); name != nil {
				w.pkg = content(name, w.src)
				w.b.ensureNamespace(w.pkg, locationOf(n))
			}
		case n.Type() == "import_declaration":
			w.importDecl(n)
		default:
			if kind, ok := javaTypeDecls[n.Type()]; ok {
				w.typeDecl(n, kind, "")
			}
		}
	}
	return w.b.result(w.pkg), nil
}

func (e *JavaExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), cStyle, r)
}

type javaWalker struct {
	b   *fileBuilder
	src []byte
	pkg string
}

func (w *javaWalker) importDecl(n *sitter.Node) {
	text := strings.TrimSpace(content(n, w.src))
	text = strings.TrimPrefix(text, "import")
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "static"))
	w.b.addImport(strings.ReplaceAll(text, " ", ""), "", lineOf(n))
}

// modifiers returns keywords, annotations and the declared access.
func (w *javaWalker) modifiers(n *sitter.Node, defaultAccess model.Access) ([]string, []string, model.Access) {
	access := defaultAccess
	var mods, attrs []string
	m := firstNamed(n, "modifiers")
	if m == nil {
		return mods, attrs, access
	}
	for i := 0; i < int(m.ChildCount()); i++ {
		c := m.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "annotation", "marker_annotation":
			attrs = append(attrs, content(field(c, "name"), w.src))
		case "public":
			access = model.AccessPublic
		case "protected":
			access = model.AccessProtected
		case "private":
			access = model.AccessPrivate
		default:
			if !c.IsNamed() {
				mods = append(mods, c.Type())
			}
		}
	}
	return mods, attrs, access
}

func (w *javaWalker) documented(n *sitter.Node) bool {
	return isDocComment(leadingComments(n, w.src, "block_comment", "line_comment"), "/**")
}

func (w *javaWalker) typeDecl(n *sitter.Node, kind model.SymbolKind, outer string) {
	name := content(field(n, "name"), w.src)
	if name == "" {
		return
	}
	container := outer
	if container == "" {
		container = w.pkg
	}
	full := qualify(container, name)
	access := model.AccessPackage
	if outer != "" && w.isInterface(outer) {
		access = model.AccessPublic
	}
	mods, attrs, access := w.modifiers(n, access)

	var bases []string
	if sc := field(n, "superclass"); sc != nil {
		if t := firstNamed(sc); t != nil {
			bases = append(bases, stripGenericArgs(content(t, w.src)))
		}
	}
	if si := field(n, "interfaces"); si != nil {
		bases = append(bases, w.typeList(si)...)
	}
	if ext := firstNamed(n, "extends_interfaces"); ext != nil {
		bases = append(bases, w.typeList(ext)...)
	}

	idx := w.b.add(model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       kind,
		Access:     access,
		Namespace:  w.pkg,
		Location:   locationOf(n),
		Parent:     outer,
		BaseTypes:  bases,
		Modifiers:  mods,
		Attributes: attrs,
		Documented: w.documented(n),
	})
	w.b.sym(idx).Metrics.LinesOfCode = locationOf(n).EndLine - locationOf(n).StartLine + 1

	body := field(n, "body")
	if body == nil {
		return
	}
	members := namedChildren(body)
	if decls := firstNamed(body, "enum_body_declarations"); decls != nil {
		members = append(members, namedChildren(decls)...)
	}
	fields := w.fieldTypes(members)
	for _, m := range members {
		switch m.Type() {
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			w.method(m, full, name, kind, fields)
		case "field_declaration", "constant_declaration":
			w.fieldDecl(m, full, name, kind, fields)
		case "enum_constant":
			w.b.add(model.CodeSymbol{
				Name:      content(field(m, "name"), w.src),
				FullName:  qualify(full, content(field(m, "name"), w.src)),
				Kind:      model.KindConstant,
				Access:    model.AccessPublic,
				Namespace: w.pkg,
				Location:  locationOf(m),
				Parent:    full,
				Type:      name,
				Modifiers: []string{"static", "final"},
			})
		default:
			if k, ok := javaTypeDecls[m.Type()]; ok {
				w.typeDecl(m, k, full)
			}
		}
	}
}

func (w *javaWalker) isInterface(full string) bool {
	for _, s := range w.b.symbols {
		if s.FullName == full {
			return s.Kind == model.KindInterface
		}
	}
	return false
}

func (w *javaWalker) typeList(n *sitter.Node) []string {
	var out []string
	list := firstNamed(n, "type_list")
	if list == nil {
		list = n
	}
	for _, t := range namedChildren(list) {
		out = append(out, stripGenericArgs(content(t, w.src)))
	}
	return out
}

// fieldTypes maps field names declared in a type body to their types.
func (w *javaWalker) fieldTypes(members []*sitter.Node) map[string]string {
	fields := make(map[string]string)
	for _, m := range members {
		if m.Type() != "field_declaration" && m.Type() != "constant_declaration" {
			continue
		}
		typ := canonicalize(content(field(m, "type"), w.src))
		for _, d := range namedChildren(m, "variable_declarator") {
			fields[content(field(d, "name"), w.src)] = typ
		}
	}
	return fields
}

func (w *javaWalker) fieldDecl(n *sitter.Node, owner, ownerName string, ownerKind model.SymbolKind, fields map[string]string) {
	defaultAccess := model.AccessPackage
	if ownerKind == model.KindInterface {
		defaultAccess = model.AccessPublic
	}
	mods, attrs, access := w.modifiers(n, defaultAccess)
	typ := canonicalize(content(field(n, "type"), w.src))
	kind := model.KindField
	if n.Type() == "constant_declaration" || (contains(mods, "static") && contains(mods, "final")) {
		kind = model.KindConstant
	}
	for _, d := range namedChildren(n, "variable_declarator") {
		name := content(field(d, "name"), w.src)
		s := model.CodeSymbol{
			Name:       name,
			FullName:   qualify(owner, name),
			Kind:       kind,
			Access:     access,
			Namespace:  w.pkg,
			Location:   locationOf(n),
			Parent:     owner,
			Type:       typ,
			Modifiers:  mods,
			Attributes: attrs,
			Documented: w.documented(n),
		}
		if value := field(d, "value"); value != nil {
			sc := newScope(ownerName, fields)
			s.References = w.references(value, sc)
		}
		w.b.add(s)
	}
}

func (w *javaWalker) method(n *sitter.Node, owner, ownerName string, ownerKind model.SymbolKind, fields map[string]string) {
	defaultAccess := model.AccessPackage
	if ownerKind == model.KindInterface {
		defaultAccess = model.AccessPublic
	}
	mods, attrs, access := w.modifiers(n, defaultAccess)
	kind := model.KindMethod
	name := content(field(n, "name"), w.src)
	if n.Type() != "method_declaration" {
		kind = model.KindConstructor
		name = ownerName
	}
	if ownerKind == model.KindInterface && field(n, "body") == nil && !contains(mods, "static") {
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
		Namespace:  w.pkg,
		Location:   loc,
		Parent:     owner,
		Parameters: params,
		ReturnType: canonicalize(content(field(n, "type"), w.src)),
		Modifiers:  mods,
		Attributes: attrs,
		Documented: w.documented(n),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	s.Metrics.ParameterCount = len(params)
	s.Metrics.CyclomaticComplexity = 1
	if body := field(n, "body"); body != nil {
		s.References = w.references(body, sc)
		s.Metrics.CyclomaticComplexity, s.Metrics.CognitiveComplexity, s.Metrics.MaxNesting = measure(body, w.src, javaComplexity)
	}
	w.b.add(s)
}

func (w *javaWalker) parameters(n *sitter.Node, sc *scope) []model.Parameter {
	params := []model.Parameter{}
	for _, p := range namedChildren(n, "formal_parameter", "spread_parameter") {
		var name, typ string
		if p.Type() == "spread_parameter" {
			if t := firstNamed(p, "type_identifier", "generic_type", "scoped_type_identifier", "array_type", "integral_type"); t != nil {
				typ = content(t, w.src) + "..."
			}
			if d := firstNamed(p, "variable_declarator"); d != nil {
				name = content(field(d, "name"), w.src)
			}
		} else {
			name = content(field(p, "name"), w.src)
			typ = canonicalize(content(field(p, "type"), w.src))
		}
		mods, _, _ := w.modifiers(p, "")
		params = append(params, model.Parameter{Name: name, Type: typ, Modifiers: mods})
		sc.declare(name, typ)
	}
	return params
}

// references records calls, instantiations, member accesses and local type
// usages in a body.
func (w *javaWalker) references(body *sitter.Node, sc *scope) []model.SymbolReference {
	var refs []model.SymbolReference
	walkNamed(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_body":
			return false
		case "local_variable_declaration":
			typ := canonicalize(content(field(n, "type"), w.src))
			for _, d := range namedChildren(n, "variable_declarator") {
				t := typ
				if t == "var" {
					t = creationType(field(d, "value"), w.src)
				}
				sc.declare(content(field(d, "name"), w.src), t)
			}
			if typ != "var" {
				refs = append(refs, sc.reference(model.RefTypeUsage, typ, "", lineOf(n)))
			}
		case "method_invocation":
			ref := sc.reference(model.RefCall, content(field(n, "name"), w.src), content(field(n, "object"), w.src), lineOf(n))
			if ref.Receiver == "" {
				ref.ReceiverType = sc.owner
			}
			refs = append(refs, ref)
		case "object_creation_expression":
			refs = append(refs, sc.reference(model.RefInstantiation, stripGenericArgs(content(field(n, "type"), w.src)), "", lineOf(n)))
		case "field_access":
			refs = append(refs, sc.reference(model.RefPropertyAccess, content(field(n, "field"), w.src), content(field(n, "object"), w.src), lineOf(n)))
		case "catch_formal_parameter":
			if t := firstNamed(n, "catch_type"); t != nil {
				for _, ct := range namedChildren(t) {
					refs = append(refs, sc.reference(model.RefTypeUsage, content(ct, w.src), "", lineOf(n)))
				}
			}
		}
		return true
	})
	return refs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
