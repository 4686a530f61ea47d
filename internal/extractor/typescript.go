package extractor

import (
	"path"
	"strings"

	"legacylens/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

var scriptComplexity = complexityRules{
	branches: set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"catch_clause", "ternary_expression", "switch_case"),
	nesting: set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement",
		"catch_clause", "switch_statement", "arrow_function", "function_expression", "function"),
	logical: set("binary_expression"),
	stop:    set("class_declaration", "class", "function_declaration"),
}

// ScriptExtractor extracts classes, functions and module members from
// JavaScript and TypeScript sources. One instance serves one grammar.
type ScriptExtractor struct {
	language string
	lang     *sitter.Language
}

func NewJavaScriptExtractor() *ScriptExtractor {
	return &ScriptExtractor{language: model.LangJavaScript, lang: javascript.GetLanguage()}
}

func NewTypeScriptExtractor() *ScriptExtractor {
	return &ScriptExtractor{language: model.LangTypeScript, lang: typescript.GetLanguage()}
}

// NewTSXExtractor handles TypeScript files containing JSX.
func NewTSXExtractor() *ScriptExtractor {
	return &ScriptExtractor{language: model.LangTypeScript, lang: tsx.GetLanguage()}
}

func (e *ScriptExtractor) Language() string { return e.language }

func (e *ScriptExtractor) Parse(in SourceInput) (ParsedFile, error) {
	f, err := parseTreeSitter(in, e.lang)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *ScriptExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, err := asTSFile(p)
	if err != nil {
		return nil, err
	}
	w := &scriptWalker{b: newFileBuilder(f.in), src: f.in.Content, module: scriptModule(f.in.Path)}
	w.b.ensureNamespace(w.module, locationOf(f.root))
	for _, n := range namedChildren(f.root) {
		w.topLevel(n, false)
	}
	w.requires(f.root)
	return w.b.result(w.module), nil
}

func (e *ScriptExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), cStyle, r)
}

// scriptModule is the dotted relative path without extension.
func scriptModule(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, "/", ".")
}

type scriptWalker struct {
	b      *fileBuilder
	src    []byte
	module string
}

func (w *scriptWalker) documented(n *sitter.Node) bool {
	target := n
	if p := n.Parent(); p != nil && p.Type() == "export_statement" {
		target = p
	}
	return isDocComment(leadingComments(target, w.src, "comment"), "/**")
}

func (w *scriptWalker) topLevel(n *sitter.Node, exported bool) {
	switch n.Type() {
	case "import_statement":
		if src := field(n, "source"); src != nil {
			w.b.addImport(stringLiteral(content(src, w.src)), "", lineOf(n))
		}
	case "export_statement":
		if decl := field(n, "declaration"); decl != nil {
			w.topLevel(decl, true)
		} else if v := field(n, "value"); v != nil {
			w.topLevel(v, true)
		}
		if src := field(n, "source"); src != nil {
			w.b.addImport(stringLiteral(content(src, w.src)), "", lineOf(n))
		}
	case "class_declaration", "abstract_class_declaration", "class":
		w.class(n, exported)
	case "interface_declaration":
		w.iface(n)
	case "enum_declaration":
		w.enum(n)
	case "function_declaration", "generator_function_declaration":
		w.function(n, content(field(n, "name"), w.src), n)
	case "lexical_declaration", "variable_declaration":
		w.variables(n)
	}
}

// requires records CommonJS require("x") calls anywhere in the file.
func (w *scriptWalker) requires(root *sitter.Node) {
	walkNamed(root, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" || content(field(n, "function"), w.src) != "require" {
			return true
		}
		if args := field(n, "arguments"); args != nil {
			if s := firstNamed(args, "string"); s != nil {
				w.b.addImport(stringLiteral(content(s, w.src)), "", lineOf(n))
			}
		}
		return true
	})
}

func typeAnnotation(n *sitter.Node, src []byte) string {
	return canonicalize(strings.TrimPrefix(strings.TrimSpace(content(n, src)), ":"))
}

func (w *scriptWalker) heritage(n *sitter.Node) []string {
	var bases []string
	h := firstNamed(n, "class_heritage")
	if h == nil {
		return bases
	}
	for _, c := range namedChildren(h) {
		switch c.Type() {
		case "extends_clause", "implements_clause":
			for _, t := range namedChildren(c) {
				if t.Type() != "type_arguments" {
					bases = append(bases, stripGenericArgs(content(t, w.src)))
				}
			}
		default:
			bases = append(bases, stripGenericArgs(content(c, w.src)))
		}
	}
	return bases
}

func (w *scriptWalker) memberAccess(n *sitter.Node) (model.Access, []string) {
	access := model.AccessPublic
	var mods []string
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "accessibility_modifier":
			switch content(c, w.src) {
			case "private":
				access = model.AccessPrivate
			case "protected":
				access = model.AccessProtected
			}
		case "static", "abstract", "readonly", "async", "override":
			mods = append(mods, c.Type())
		}
	}
	if name := field(n, "name", "property"); name != nil && name.Type() == "private_property_identifier" {
		access = model.AccessPrivate
	}
	return access, mods
}

func (w *scriptWalker) class(n *sitter.Node, exported bool) {
	name := content(field(n, "name"), w.src)
	if name == "" {
		if !exported {
			return
		}
		name = "default"
	}
	full := qualify(w.module, name)
	var mods []string
	if n.Type() == "abstract_class_declaration" {
		mods = append(mods, "abstract")
	}
	loc := locationOf(n)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       model.KindClass,
		Access:     model.AccessPublic,
		Namespace:  w.module,
		Location:   loc,
		BaseTypes:  w.heritage(n),
		Modifiers:  mods,
		Documented: w.documented(n),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	w.b.add(s)

	body := field(n, "body")
	members := namedChildren(body)
	fields := make(map[string]string)
	for _, m := range members {
		switch m.Type() {
		case "public_field_definition", "field_definition":
			fieldName := content(field(m, "name", "property"), w.src)
			typ := typeAnnotation(field(m, "type"), w.src)
			if typ == "" {
				typ = newExpressionType(field(m, "value"), w.src)
			}
			fields[fieldName] = typ
		case "method_definition":
			if content(field(m, "name"), w.src) == "constructor" {
				for _, p := range namedChildren(field(m, "parameters"), "required_parameter", "optional_parameter") {
					if firstNamed(p, "accessibility_modifier") != nil {
						fields[strings.TrimPrefix(content(field(p, "pattern"), w.src), "this.")] = typeAnnotation(field(p, "type"), w.src)
					}
				}
			}
		}
	}

	for _, m := range members {
		switch m.Type() {
		case "method_definition":
			w.method(m, full, name, fields)
		case "public_field_definition", "field_definition":
			w.field(m, full, name, fields)
		case "abstract_method_signature":
			w.signature(m, full, []string{"abstract"})
		}
	}
}

// newExpressionType returns the class a `new` expression constructs.
func newExpressionType(value *sitter.Node, src []byte) string {
	if value == nil || value.Type() != "new_expression" {
		return ""
	}
	return stripGenericArgs(content(field(value, "constructor"), src))
}

func (w *scriptWalker) field(n *sitter.Node, owner, ownerName string, fields map[string]string) {
	access, mods := w.memberAccess(n)
	name := content(field(n, "name", "property"), w.src)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   qualify(owner, name),
		Kind:       model.KindField,
		Access:     access,
		Namespace:  w.module,
		Location:   locationOf(n),
		Parent:     owner,
		Type:       fields[name],
		Modifiers:  mods,
		Documented: w.documented(n),
	}
	if v := field(n, "value"); v != nil {
		s.References = w.references(v, newScope(ownerName, fields))
	}
	w.b.add(s)
}

func (w *scriptWalker) method(n *sitter.Node, owner, ownerName string, fields map[string]string) {
	access, mods := w.memberAccess(n)
	name := content(field(n, "name"), w.src)
	kind := model.KindMethod
	if name == "constructor" {
		kind = model.KindConstructor
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && (c.Type() == "get" || c.Type() == "set") {
			kind = model.KindProperty
		}
	}
	if kind == model.KindProperty && w.hasMember(qualify(owner, name)) {
		return
	}
	sc := newScope(ownerName, fields)
	params := w.parameters(field(n, "parameters"), sc)
	if kind == model.KindConstructor {
		w.parameterProperties(field(n, "parameters"), owner)
	}
	loc := locationOf(n)
	full := callableName(owner, name, params, false)
	if kind == model.KindProperty {
		full = qualify(owner, name)
	}
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       kind,
		Access:     access,
		Namespace:  w.module,
		Location:   loc,
		Parent:     owner,
		Parameters: params,
		ReturnType: typeAnnotation(field(n, "return_type"), w.src),
		Modifiers:  mods,
		Documented: w.documented(n),
	}
	w.body(&s, field(n, "body"), sc)
	w.b.add(s)
}

func (w *scriptWalker) hasMember(full string) bool {
	for _, s := range w.b.symbols {
		if s.FullName == full {
			return true
		}
	}
	return false
}

// parameterProperties turns TypeScript constructor parameters carrying an
// accessibility modifier into fields.
func (w *scriptWalker) parameterProperties(params *sitter.Node, owner string) {
	for _, p := range namedChildren(params, "required_parameter", "optional_parameter") {
		acc := firstNamed(p, "accessibility_modifier")
		if acc == nil {
			continue
		}
		name := content(field(p, "pattern"), w.src)
		access := model.AccessPublic
		switch content(acc, w.src) {
		case "private":
			access = model.AccessPrivate
		case "protected":
			access = model.AccessProtected
		}
		w.b.add(model.CodeSymbol{
			Name:      name,
			FullName:  qualify(owner, name),
			Kind:      model.KindField,
			Access:    access,
			Namespace: w.module,
			Location:  locationOf(p),
			Parent:    owner,
			Type:      typeAnnotation(field(p, "type"), w.src),
		})
	}
}

func (w *scriptWalker) signature(n *sitter.Node, owner string, mods []string) {
	name := content(field(n, "name"), w.src)
	params := w.parameters(field(n, "parameters"), newScope("", nil))
	w.b.add(model.CodeSymbol{
		Name:       name,
		FullName:   callableName(owner, name, params, false),
		Kind:       model.KindMethod,
		Access:     model.AccessPublic,
		Namespace:  w.module,
		Location:   locationOf(n),
		Parent:     owner,
		Parameters: params,
		ReturnType: typeAnnotation(field(n, "return_type"), w.src),
		Modifiers:  mods,
		Metrics:    model.SymbolMetrics{CyclomaticComplexity: 1, ParameterCount: len(params)},
	})
}

func (w *scriptWalker) iface(n *sitter.Node) {
	name := content(field(n, "name"), w.src)
	full := qualify(w.module, name)
	var bases []string
	if ext := firstNamed(n, "extends_type_clause", "extends_clause"); ext != nil {
		for _, t := range namedChildren(ext) {
			bases = append(bases, stripGenericArgs(content(t, w.src)))
		}
	}
	loc := locationOf(n)
	w.b.add(model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       model.KindInterface,
		Access:     model.AccessPublic,
		Namespace:  w.module,
		Location:   loc,
		BaseTypes:  bases,
		Documented: w.documented(n),
		Metrics:    model.SymbolMetrics{LinesOfCode: loc.EndLine - loc.StartLine + 1},
	})
	for _, m := range namedChildren(field(n, "body")) {
		switch m.Type() {
		case "method_signature":
			w.signature(m, full, []string{"abstract"})
		case "property_signature":
			prop := content(field(m, "name"), w.src)
			w.b.add(model.CodeSymbol{
				Name:      prop,
				FullName:  qualify(full, prop),
				Kind:      model.KindProperty,
				Access:    model.AccessPublic,
				Namespace: w.module,
				Location:  locationOf(m),
				Parent:    full,
				Type:      typeAnnotation(field(m, "type"), w.src),
			})
		}
	}
}

func (w *scriptWalker) enum(n *sitter.Node) {
	name := content(field(n, "name"), w.src)
	full := qualify(w.module, name)
	w.b.add(model.CodeSymbol{
		Name:      name,
		FullName:  full,
		Kind:      model.KindEnum,
		Access:    model.AccessPublic,
		Namespace: w.module,
		Location:  locationOf(n),
	})
	for _, m := range namedChildren(field(n, "body")) {
		member := m
		if m.Type() == "enum_assignment" {
			member = field(m, "name")
		}
		if member == nil || (member.Type() != "property_identifier" && member.Type() != "string") {
			continue
		}
		value := stringLiteral(content(member, w.src))
		w.b.add(model.CodeSymbol{
			Name:      value,
			FullName:  qualify(full, value),
			Kind:      model.KindConstant,
			Access:    model.AccessPublic,
			Namespace: w.module,
			Location:  locationOf(m),
			Parent:    full,
			Type:      name,
			Modifiers: []string{"static"},
		})
	}
}

// function records a module-level function; decl is the node holding the
// parameters and body, which differs from n for arrow functions.
func (w *scriptWalker) function(n *sitter.Node, name string, decl *sitter.Node) {
	if name == "" {
		return
	}
	sc := newScope("", nil)
	params := w.parameters(field(decl, "parameters"), sc)
	if p := field(decl, "parameter"); p != nil && len(params) == 0 {
		params = append(params, model.Parameter{Name: content(p, w.src)})
	}
	var mods []string
	if strings.HasPrefix(strings.TrimSpace(content(decl, w.src)), "async") {
		mods = append(mods, "async")
	}
	loc := locationOf(n)
	s := model.CodeSymbol{
		Name:       name,
		FullName:   callableName(w.module, name, params, false),
		Kind:       model.KindFunction,
		Access:     model.AccessPublic,
		Namespace:  w.module,
		Location:   loc,
		Parameters: params,
		ReturnType: typeAnnotation(field(decl, "return_type"), w.src),
		Modifiers:  mods,
		Documented: w.documented(n),
	}
	w.body(&s, field(decl, "body"), sc)
	w.b.add(s)
}

func (w *scriptWalker) body(s *model.CodeSymbol, body *sitter.Node, sc *scope) {
	s.Metrics.LinesOfCode = s.Location.EndLine - s.Location.StartLine + 1
	s.Metrics.ParameterCount = len(s.Parameters)
	s.Metrics.CyclomaticComplexity = 1
	if body == nil {
		return
	}
	s.References = w.references(body, sc)
	s.Metrics.CyclomaticComplexity, s.Metrics.CognitiveComplexity, s.Metrics.MaxNesting = measure(body, w.src, scriptComplexity)
}

func (w *scriptWalker) variables(n *sitter.Node) {
	isConst := strings.HasPrefix(strings.TrimSpace(content(n, w.src)), "const")
	for _, d := range namedChildren(n, "variable_declarator") {
		nameNode := field(d, "name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := content(nameNode, w.src)
		value := field(d, "value")
		if value != nil && hasType(value, "arrow_function", "function_expression", "function", "generator_function") {
			w.function(d, name, value)
			continue
		}
		if value != nil && hasType(value, "class") {
			w.class(value, true)
			continue
		}
		kind := model.KindVariable
		var mods []string
		if isConst {
			kind = model.KindConstant
			mods = []string{"const"}
		}
		typ := typeAnnotation(field(d, "type"), w.src)
		if typ == "" {
			typ = newExpressionType(value, w.src)
		}
		s := model.CodeSymbol{
			Name:      name,
			FullName:  qualify(w.module, name),
			Kind:      kind,
			Access:    model.AccessPublic,
			Namespace: w.module,
			Location:  locationOf(d),
			Type:      typ,
			Modifiers: mods,
		}
		if value != nil {
			s.References = w.references(value, newScope("", nil))
		}
		w.b.add(s)
	}
}

func (w *scriptWalker) parameters(n *sitter.Node, sc *scope) []model.Parameter {
	params := []model.Parameter{}
	for _, p := range namedChildren(n) {
		var name, typ, def string
		var mods []string
		switch p.Type() {
		case "identifier":
			name = content(p, w.src)
		case "required_parameter", "optional_parameter":
			name = content(field(p, "pattern"), w.src)
			typ = typeAnnotation(field(p, "type"), w.src)
			def = content(field(p, "value"), w.src)
			if p.Type() == "optional_parameter" {
				mods = append(mods, "optional")
			}
		case "assignment_pattern":
			name = content(field(p, "left"), w.src)
			def = content(field(p, "right"), w.src)
		case "rest_pattern":
			name = strings.TrimPrefix(content(p, w.src), "...")
			mods = append(mods, "variadic")
		case "object_pattern", "array_pattern":
			name = canonicalize(content(p, w.src))
		default:
			continue
		}
		params = append(params, model.Parameter{Name: name, Type: typ, DefaultValue: canonicalize(def), Modifiers: mods})
		sc.declare(name, typ)
	}
	return params
}

func (w *scriptWalker) references(body *sitter.Node, sc *scope) []model.SymbolReference {
	var refs []model.SymbolReference
	walkNamed(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_declaration", "class", "function_declaration":
			return false
		case "variable_declarator":
			if name := field(n, "name"); name != nil && name.Type() == "identifier" {
				typ := typeAnnotation(field(n, "type"), w.src)
				if typ == "" {
					typ = newExpressionType(field(n, "value"), w.src)
				}
				sc.declare(content(name, w.src), typ)
			}
		case "call_expression":
			fn := field(n, "function")
			if fn == nil || content(fn, w.src) == "require" {
				return true
			}
			var recv, member string
			if fn.Type() == "member_expression" {
				recv, member = content(field(fn, "object"), w.src), content(field(fn, "property"), w.src)
			} else {
				member = content(fn, w.src)
			}
			refs = append(refs, sc.reference(model.RefCall, member, recv, lineOf(n)))
		case "new_expression":
			ctor := stripGenericArgs(content(field(n, "constructor"), w.src))
			recv, member := splitReceiver(ctor)
			refs = append(refs, sc.reference(model.RefInstantiation, member, recv, lineOf(n)))
		case "member_expression":
			if p := n.Parent(); p != nil && p.Type() == "call_expression" {
				if fn := field(p, "function"); fn != nil && fn.StartByte() == n.StartByte() && fn.EndByte() == n.EndByte() {
					return true
				}
			}
			refs = append(refs, sc.reference(model.RefPropertyAccess, content(field(n, "property"), w.src), content(field(n, "object"), w.src), lineOf(n)))
		}
		return true
	})
	return refs
}
