package extractor

import (
	"path"
	"strings"
	"unicode"

	"legacylens/internal/model"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

var pythonComplexity = complexityRules{
	branches: set("if_statement", "elif_clause", "for_statement", "while_statement", "except_clause",
		"conditional_expression", "case_clause", "if_clause"),
	nesting: set("if_statement", "for_statement", "while_statement", "except_clause", "match_statement",
		"lambda", "with_statement"),
	logical: set("boolean_operator"),
	stop:    set("function_definition", "class_definition"),
}

// PythonExtractor extracts modules, classes and functions from Python sources.
type PythonExtractor struct {
	lang *sitter.Language
}

func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{lang: python.GetLanguage()}
}

func (e *PythonExtractor) Language() string { return model.LangPython }

func (e *PythonExtractor) Parse(in SourceInput) (ParsedFile, error) {
	f, err := parseTreeSitter(in, e.lang)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *PythonExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, err := asTSFile(p)
	if err != nil {
		return nil, err
	}
	w := &pythonWalker{b: newFileBuilder(f.in), src: f.in.Content, module: pythonModule(f.in.Path)}
	w.classes = declaredClasses(f.root, w.src)
	w.b.ensureNamespace(w.module, locationOf(f.root))
	w.block(f.root, "", "")
	return w.b.result(w.module), nil
}

func (e *PythonExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), hashStyle, r)
}

// pythonModule derives the dotted module path from a relative file path.
func pythonModule(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.TrimSuffix(rel, "/__init__")
	if rel == "__init__" {
		return "__init__"
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// pythonAccess follows the underscore convention.
func pythonAccess(name string) model.Access {
	switch {
	case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
		return model.AccessPublic
	case strings.HasPrefix(name, "__"):
		return model.AccessPrivate
	case strings.HasPrefix(name, "_"):
		return model.AccessProtected
	}
	return model.AccessPublic
}

func isUpperSnake(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

type pythonWalker struct {
	b       *fileBuilder
	src     []byte
	module  string
	classes map[string]bool // classes defined in the file or imported by name
}

// declaredClasses collects the class names defined anywhere in the file and
// the capitalized names bound by from-imports.
func declaredClasses(root *sitter.Node, src []byte) map[string]bool {
	classes := make(map[string]bool)
	walkNamed(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_definition":
			classes[content(field(n, "name"), src)] = true
		case "import_from_statement":
			moduleNode := field(n, "module_name")
			for _, name := range namedChildren(n, "dotted_name", "aliased_import") {
				if moduleNode != nil && name.StartByte() == moduleNode.StartByte() {
					continue
				}
				bound := lastSegment(content(name, src))
				if name.Type() == "aliased_import" {
					bound = content(field(name, "alias"), src)
				}
				if bound != "" && unicode.IsUpper(rune(bound[0])) {
					classes[bound] = true
				}
			}
			return false
		}
		return true
	})
	return classes
}

// isClass reports whether a callee names a class: a known class first, the
// casing convention otherwise.
func (w *pythonWalker) isClass(name string) bool {
	return w.classes[name] || isClassName(name)
}

// block walks the statements of a module or class body. owner is the
// enclosing class full name, ownerName its simple name.
func (w *pythonWalker) block(n *sitter.Node, owner, ownerName string) {
	for _, c := range namedChildren(n) {
		w.statement(c, owner, ownerName, nil)
	}
}

func (w *pythonWalker) statement(n *sitter.Node, owner, ownerName string, decorators []string) {
	switch n.Type() {
	case "import_statement":
		for _, name := range namedChildren(n, "dotted_name", "aliased_import") {
			if name.Type() == "aliased_import" {
				w.b.addImport(content(field(name, "name"), w.src), content(field(name, "alias"), w.src), lineOf(n))
				continue
			}
			w.b.addImport(content(name, w.src), "", lineOf(n))
		}
	case "import_from_statement":
		moduleNode := field(n, "module_name")
		module := content(moduleNode, w.src)
		var names []*sitter.Node
		for _, name := range namedChildren(n, "dotted_name", "aliased_import") {
			if moduleNode != nil && name.StartByte() == moduleNode.StartByte() {
				continue
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			w.b.addImport(module, "", lineOf(n))
		}
		for _, name := range names {
			if name.Type() == "aliased_import" {
				w.b.addImport(joinModule(module, content(field(name, "name"), w.src)), content(field(name, "alias"), w.src), lineOf(n))
				continue
			}
			w.b.addImport(joinModule(module, content(name, w.src)), "", lineOf(n))
		}
	case "decorated_definition":
		var decs []string
		for _, d := range namedChildren(n, "decorator") {
			text := strings.TrimPrefix(strings.TrimSpace(content(d, w.src)), "@")
			if i := strings.Index(text, "("); i >= 0 {
				text = text[:i]
			}
			decs = append(decs, text)
		}
		if def := field(n, "definition"); def != nil {
			w.statement(def, owner, ownerName, decs)
		}
	case "class_definition":
		w.class(n, owner, decorators)
	case "function_definition":
		w.function(n, owner, ownerName, decorators)
	case "expression_statement":
		if a := firstNamed(n, "assignment"); a != nil {
			w.assignment(a, owner, ownerName)
		}
	}
}

func joinModule(module, name string) string {
	if strings.HasSuffix(module, ".") {
		return module + name
	}
	return module + "." + name
}

func (w *pythonWalker) docstring(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	first := firstNamed(body)
	if first == nil || first.Type() != "expression_statement" {
		return false
	}
	s := firstNamed(first)
	return s != nil && s.Type() == "string"
}

func (w *pythonWalker) class(n *sitter.Node, outer string, decorators []string) {
	name := content(field(n, "name"), w.src)
	container := outer
	if container == "" {
		container = w.module
	}
	full := qualify(container, name)
	var bases []string
	for _, b := range namedChildren(field(n, "superclasses")) {
		if b.Type() == "identifier" || b.Type() == "attribute" {
			base := content(b, w.src)
			if base != "object" {
				bases = append(bases, base)
			}
		}
	}
	kind := model.KindClass
	for _, b := range bases {
		switch lastSegment(b) {
		case "ABC", "Protocol", "Interface":
			kind = model.KindInterface
		case "Enum", "IntEnum", "StrEnum":
			kind = model.KindEnum
		}
	}
	loc := locationOf(n)
	body := field(n, "body")
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       kind,
		Access:     pythonAccess(name),
		Namespace:  w.module,
		Location:   loc,
		Parent:     outer,
		BaseTypes:  bases,
		Attributes: decorators,
		Documented: w.docstring(body),
	}
	if contains(decorators, "dataclass") || contains(decorators, "dataclasses.dataclass") {
		s.Kind = model.KindRecord
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	w.b.add(s)
	w.block(body, full, name)
}

// classFields collects class-level annotations and self.x assignments of a
// class body so method scopes can type their receivers.
func (w *pythonWalker) classFields(owner string) map[string]string {
	fields := make(map[string]string)
	for _, s := range w.b.symbols {
		if s.Parent == owner && s.Kind.IsData() {
			fields[s.Name] = s.Type
		}
	}
	return fields
}

func (w *pythonWalker) assignment(a *sitter.Node, owner, ownerName string) {
	left := field(a, "left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := content(left, w.src)
	typ := canonicalize(content(field(a, "type"), w.src))
	right := field(a, "right")
	if typ == "" {
		typ = w.inferredType(right)
	}
	kind := model.KindVariable
	parent := owner
	container := owner
	var mods []string
	if owner == "" {
		container = w.module
		if isUpperSnake(name) {
			kind = model.KindConstant
		}
	} else {
		kind = model.KindField
		mods = []string{"static"}
	}
	if w.exists(qualify(container, name)) {
		return
	}
	s := model.CodeSymbol{
		Name:      name,
		FullName:  qualify(container, name),
		Kind:      kind,
		Access:    pythonAccess(name),
		Namespace: w.module,
		Location:  locationOf(a),
		Parent:    parent,
		Type:      typ,
		Modifiers: mods,
	}
	if right != nil {
		s.References = w.references(right, newScope(ownerName, nil))
	}
	w.b.add(s)
}

func (w *pythonWalker) exists(full string) bool {
	for _, s := range w.b.symbols {
		if s.FullName == full {
			return true
		}
	}
	return false
}

// inferredType returns the class name when value is a constructor call.
func (w *pythonWalker) inferredType(value *sitter.Node) string {
	if value == nil || value.Type() != "call" {
		return ""
	}
	fn := content(field(value, "function"), w.src)
	if w.isClass(lastSegment(fn)) {
		return lastSegment(fn)
	}
	return ""
}

func isClassName(name string) bool {
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return false
	}
	return !isUpperSnake(name)
}

func (w *pythonWalker) function(n *sitter.Node, owner, ownerName string, decorators []string) {
	name := content(field(n, "name"), w.src)
	kind := model.KindFunction
	container := w.module
	if owner != "" {
		kind = model.KindMethod
		container = owner
		if name == "__init__" {
			kind = model.KindConstructor
		}
	}
	var mods []string
	for _, d := range decorators {
		switch lastSegment(d) {
		case "staticmethod", "classmethod":
			mods = append(mods, "static")
		case "abstractmethod":
			mods = append(mods, "abstract")
		case "property":
			kind = model.KindProperty
		}
	}
	if strings.HasPrefix(strings.TrimSpace(content(n, w.src)), "async") {
		mods = append(mods, "async")
	}

	sc := newScope(ownerName, w.classFields(owner))
	bound := owner != "" && !contains(decorators, "staticmethod")
	params := w.parameters(field(n, "parameters"), sc, bound)
	body := field(n, "body")
	loc := locationOf(n)
	full := callableName(container, name, params, false)
	if kind == model.KindProperty {
		full = qualify(container, name)
	}
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Kind:       kind,
		Access:     pythonAccess(name),
		Namespace:  w.module,
		Location:   loc,
		Parent:     owner,
		Parameters: params,
		ReturnType: canonicalize(content(field(n, "return_type"), w.src)),
		Type:       canonicalize(content(field(n, "return_type"), w.src)),
		Modifiers:  mods,
		Attributes: decorators,
		Documented: w.docstring(body),
	}
	if kind != model.KindProperty {
		s.Type = ""
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	s.Metrics.ParameterCount = len(params)
	s.Metrics.CyclomaticComplexity = 1
	if body != nil {
		s.References = w.references(body, sc)
		s.Metrics.CyclomaticComplexity, s.Metrics.CognitiveComplexity, s.Metrics.MaxNesting = measure(body, w.src, pythonComplexity)
	}
	w.b.add(s)
	if owner != "" && body != nil {
		w.selfFields(body, owner, sc)
	}
}

// selfFields declares instance attributes assigned through self.
func (w *pythonWalker) selfFields(body *sitter.Node, owner string, sc *scope) {
	walkNamed(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition", "class_definition":
			return false
		case "assignment":
			left := field(n, "left")
			if left == nil || left.Type() != "attribute" || content(field(left, "object"), w.src) != "self" {
				return true
			}
			name := content(field(left, "attribute"), w.src)
			full := qualify(owner, name)
			typ := canonicalize(content(field(n, "type"), w.src))
			if typ == "" {
				typ = w.inferredType(field(n, "right"))
			}
			if typ == "" {
				if right := field(n, "right"); right != nil && right.Type() == "identifier" {
					typ = sc.locals[content(right, w.src)]
				}
			}
			for i := range w.b.symbols {
				if w.b.symbols[i].FullName == full {
					if w.b.symbols[i].Type == "" {
						w.b.symbols[i].Type = typ
					}
					return true
				}
			}
			w.b.add(model.CodeSymbol{
				Name:      name,
				FullName:  full,
				Kind:      model.KindField,
				Access:    pythonAccess(name),
				Namespace: w.module,
				Location:  locationOf(n),
				Parent:    owner,
				Type:      typ,
			})
		}
		return true
	})
}

func (w *pythonWalker) parameters(n *sitter.Node, sc *scope, skipFirst bool) []model.Parameter {
	params := []model.Parameter{}
	for i, p := range namedChildren(n) {
		var name, typ, def string
		var mods []string
		switch p.Type() {
		case "identifier":
			name = content(p, w.src)
		case "typed_parameter":
			name = content(firstNamed(p, "identifier", "list_splat_pattern", "dictionary_splat_pattern"), w.src)
			typ = content(field(p, "type"), w.src)
		case "default_parameter":
			name = content(field(p, "name"), w.src)
			def = content(field(p, "value"), w.src)
		case "typed_default_parameter":
			name = content(field(p, "name"), w.src)
			typ = content(field(p, "type"), w.src)
			def = content(field(p, "value"), w.src)
		case "list_splat_pattern", "dictionary_splat_pattern":
			name = content(p, w.src)
			mods = []string{"variadic"}
		default:
			continue
		}
		if i == 0 && skipFirst && (name == "self" || name == "cls") {
			continue
		}
		typ = canonicalize(typ)
		params = append(params, model.Parameter{Name: name, Type: typ, DefaultValue: canonicalize(def), Modifiers: mods})
		sc.declare(name, typ)
	}
	return params
}

func (w *pythonWalker) references(body *sitter.Node, sc *scope) []model.SymbolReference {
	var refs []model.SymbolReference
	walkNamed(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition", "class_definition":
			return false
		case "assignment":
			left := field(n, "left")
			if left != nil && left.Type() == "identifier" {
				typ := canonicalize(content(field(n, "type"), w.src))
				if typ == "" {
					typ = w.inferredType(field(n, "right"))
				}
				sc.declare(content(left, w.src), typ)
			}
		case "call":
			fn := field(n, "function")
			if fn == nil {
				return true
			}
			var recv, member string
			if fn.Type() == "attribute" {
				recv, member = content(field(fn, "object"), w.src), content(field(fn, "attribute"), w.src)
			} else {
				member = content(fn, w.src)
			}
			if w.isClass(member) {
				refs = append(refs, sc.reference(model.RefInstantiation, member, recv, lineOf(n)))
				return true
			}
			refs = append(refs, sc.reference(model.RefCall, member, recv, lineOf(n)))
		case "attribute":
			if p := n.Parent(); p != nil && p.Type() == "call" && field(p, "function") != nil && field(p, "function").StartByte() == n.StartByte() && field(p, "function").EndByte() == n.EndByte() {
				return true
			}
			refs = append(refs, sc.reference(model.RefPropertyAccess, content(field(n, "attribute"), w.src), content(field(n, "object"), w.src), lineOf(n)))
		}
		return true
	})
	return refs
}
