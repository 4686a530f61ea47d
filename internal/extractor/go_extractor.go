package extractor

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"path"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"
)

// GoExtractor extracts packages, types and functions from Go sources using
// the standard go/ast parser.
type GoExtractor struct{}

func NewGoExtractor() *GoExtractor {
	return &GoExtractor{}
}

func (e *GoExtractor) Language() string { return model.LangGo }

type goFile struct {
	in   SourceInput
	fset *token.FileSet
	file *ast.File
}

func (f *goFile) Source() SourceInput { return f.in }
func (f *goFile) Close()              {}

func (e *GoExtractor) Parse(in SourceInput) (ParsedFile, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, in.Path, in.Content, parser.ParseComments)
	if err != nil {
		line := 0
		if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
			line = list[0].Pos.Line
		}
		return nil, apperrors.NewParseError(in.Path, model.LangGo, line, err)
	}
	return &goFile{in: in, fset: fset, file: file}, nil
}

// goPackagePath returns the import path of the file's package.
func goPackagePath(in SourceInput, pkgName string) string {
	dir := path.Dir(in.Path)
	if in.ModulePath == "" {
		if dir == "." {
			return pkgName
		}
		return dir
	}
	moduleDir := in.ModuleDir
	if moduleDir == "" {
		moduleDir = "."
	}
	rel := dir
	if moduleDir != "." {
		rel = strings.TrimPrefix(strings.TrimPrefix(dir, moduleDir), "/")
		if dir == moduleDir {
			rel = "."
		}
	}
	if rel == "." || rel == "" {
		return in.ModulePath
	}
	return in.ModulePath + "/" + rel
}

func (e *GoExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, ok := p.(*goFile)
	if !ok {
		return nil, apperrors.NewParseError(p.Source().Path, model.LangGo, 0, errUnexpectedTree)
	}
	w := &goWalker{
		b:     newFileBuilder(f.in),
		fset:  f.fset,
		pkg:   goPackagePath(f.in, f.file.Name.Name),
		types: make(map[string]int),
	}
	w.b.ensureNamespace(w.pkg, w.location(f.file.Package, f.file.Name.End()))
	for _, imp := range f.file.Imports {
		alias := ""
		if imp.Name != nil {
			alias = imp.Name.Name
		}
		w.b.addImport(strings.Trim(imp.Path.Value, "\"`"), alias, w.fset.Position(imp.Pos()).Line)
	}

	// Types first, so methods declared above their receiver still find it.
	for _, decl := range f.file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.TYPE {
			for _, spec := range gd.Specs {
				w.typeSpec(spec.(*ast.TypeSpec), gd)
			}
		}
	}
	for _, decl := range f.file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok == token.CONST || d.Tok == token.VAR {
				w.valueDecl(d)
			}
		case *ast.FuncDecl:
			w.funcDecl(d)
		}
	}
	w.markEnums()
	return w.b.result(w.pkg), nil
}

func (e *GoExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), cStyle, r)
}

type goWalker struct {
	b     *fileBuilder
	fset  *token.FileSet
	pkg   string
	types map[string]int // type name -> symbol index
}

func (w *goWalker) location(from, to token.Pos) model.Location {
	start := w.fset.Position(from)
	end := w.fset.Position(to)
	return model.Location{StartLine: start.Line, EndLine: end.Line, StartColumn: start.Column}
}

func goAccess(name string) model.Access {
	if ast.IsExported(name) {
		return model.AccessPublic
	}
	return model.AccessPackage
}

func exprString(e ast.Expr) string {
	if e == nil {
		return ""
	}
	return types.ExprString(e)
}

// baseTypeName strips pointers, slices and type arguments from a type.
func baseTypeName(e ast.Expr) string {
	for {
		switch t := e.(type) {
		case *ast.StarExpr:
			e = t.X
		case *ast.IndexExpr:
			e = t.X
		case *ast.IndexListExpr:
			e = t.X
		case *ast.ParenExpr:
			e = t.X
		default:
			return exprString(e)
		}
	}
}

func (w *goWalker) typeSpec(spec *ast.TypeSpec, gd *ast.GenDecl) {
	name := spec.Name.Name
	full := qualify(w.pkg, name)
	loc := w.location(spec.Pos(), spec.End())
	if len(gd.Specs) == 1 {
		loc = w.location(gd.Pos(), gd.End())
	}
	s := model.CodeSymbol{
		Name:       name,
		FullName:   full,
		Access:     goAccess(name),
		Namespace:  w.pkg,
		Location:   loc,
		Documented: spec.Doc != nil || (len(gd.Specs) == 1 && gd.Doc != nil),
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1

	var members []model.CodeSymbol
	switch t := spec.Type.(type) {
	case *ast.StructType:
		s.Kind = model.KindStruct
		for _, f := range t.Fields.List {
			if len(f.Names) == 0 {
				s.BaseTypes = append(s.BaseTypes, baseTypeName(f.Type))
				continue
			}
			for _, n := range f.Names {
				members = append(members, model.CodeSymbol{
					Name:       n.Name,
					FullName:   qualify(full, n.Name),
					Kind:       model.KindField,
					Access:     goAccess(n.Name),
					Namespace:  w.pkg,
					Location:   w.location(f.Pos(), f.End()),
					Parent:     full,
					Type:       exprString(f.Type),
					Documented: f.Doc != nil,
				})
			}
		}
	case *ast.InterfaceType:
		s.Kind = model.KindInterface
		for _, m := range t.Methods.List {
			ft, isFunc := m.Type.(*ast.FuncType)
			if len(m.Names) == 0 || !isFunc {
				s.BaseTypes = append(s.BaseTypes, baseTypeName(m.Type))
				continue
			}
			for _, n := range m.Names {
				params := w.params(ft.Params, nil)
				members = append(members, model.CodeSymbol{
					Name:       n.Name,
					FullName:   callableName(full, n.Name, params, false),
					Kind:       model.KindMethod,
					Access:     goAccess(n.Name),
					Namespace:  w.pkg,
					Location:   w.location(m.Pos(), m.End()),
					Parent:     full,
					Parameters: params,
					ReturnType: resultsString(ft.Results),
					Modifiers:  []string{"abstract"},
					Documented: m.Doc != nil,
					Metrics:    model.SymbolMetrics{CyclomaticComplexity: 1, ParameterCount: len(params)},
				})
			}
		}
	case *ast.FuncType:
		s.Kind = model.KindDelegate
		s.Parameters = w.params(t.Params, nil)
		s.ReturnType = resultsString(t.Results)
	default:
		s.Kind = model.KindStruct
		s.Type = exprString(spec.Type)
	}
	w.types[name] = w.b.add(s)
	for _, m := range members {
		w.b.add(m)
	}
}

// markEnums reclassifies named basic types that have typed constants.
func (w *goWalker) markEnums() {
	for _, s := range w.b.symbols {
		if s.Kind != model.KindConstant || s.Parent != "" {
			continue
		}
		if i, ok := w.types[s.Type]; ok {
			t := w.b.sym(i)
			if t.Kind == model.KindStruct && t.Type != "" && !strings.HasPrefix(t.Type, "struct") {
				t.Kind = model.KindEnum
			}
		}
	}
}

func resultsString(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	var parts []string
	for _, f := range fl.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			parts = append(parts, exprString(f.Type))
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (w *goWalker) params(fl *ast.FieldList, sc *scope) []model.Parameter {
	params := []model.Parameter{}
	if fl == nil {
		return params
	}
	for _, f := range fl.List {
		typ := exprString(f.Type)
		var mods []string
		if _, ok := f.Type.(*ast.Ellipsis); ok {
			mods = []string{"variadic"}
		}
		if len(f.Names) == 0 {
			params = append(params, model.Parameter{Type: typ, Modifiers: mods})
			continue
		}
		for _, n := range f.Names {
			params = append(params, model.Parameter{Name: n.Name, Type: typ, Modifiers: mods})
			if sc != nil {
				sc.declare(n.Name, baseTypeName(f.Type))
			}
		}
	}
	return params
}

func (w *goWalker) valueDecl(gd *ast.GenDecl) {
	kind := model.KindVariable
	if gd.Tok == token.CONST {
		kind = model.KindConstant
	}
	var lastType string
	for _, spec := range gd.Specs {
		vs := spec.(*ast.ValueSpec)
		typ := exprString(vs.Type)
		switch {
		case typ != "":
			lastType = typ
		case kind == model.KindConstant && len(vs.Values) == 0:
			typ = lastType
		default:
			lastType = ""
		}
		for i, n := range vs.Names {
			if n.Name == "_" {
				continue
			}
			s := model.CodeSymbol{
				Name:       n.Name,
				FullName:   qualify(w.pkg, n.Name),
				Kind:       kind,
				Access:     goAccess(n.Name),
				Namespace:  w.pkg,
				Location:   w.location(vs.Pos(), vs.End()),
				Type:       typ,
				Documented: vs.Doc != nil || (len(gd.Specs) == 1 && gd.Doc != nil),
			}
			if i < len(vs.Values) {
				if s.Type == "" {
					s.Type = compositeType(vs.Values[i])
				}
				s.References = w.references(vs.Values[i], newScope("", nil))
			}
			w.b.add(s)
		}
	}
}

// compositeType returns T for T{...}, &T{...} and new(T).
func compositeType(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.UnaryExpr:
		if v.Op == token.AND {
			return compositeType(v.X)
		}
	case *ast.CompositeLit:
		if v.Type != nil {
			return baseTypeName(v.Type)
		}
	case *ast.CallExpr:
		if id, ok := v.Fun.(*ast.Ident); ok && id.Name == "new" && len(v.Args) == 1 {
			return baseTypeName(v.Args[0])
		}
	}
	return ""
}

func (w *goWalker) funcDecl(d *ast.FuncDecl) {
	name := d.Name.Name
	loc := w.location(d.Pos(), d.End())
	owner, ownerName, recvName := "", "", ""
	kind := model.KindFunction
	container := w.pkg
	if d.Recv != nil && len(d.Recv.List) > 0 {
		kind = model.KindMethod
		ownerName = baseTypeName(d.Recv.List[0].Type)
		owner = qualify(w.pkg, ownerName)
		container = owner
		if len(d.Recv.List[0].Names) > 0 {
			recvName = d.Recv.List[0].Names[0].Name
		}
	}

	fields := make(map[string]string)
	if i, ok := w.types[ownerName]; ok {
		full := w.b.sym(i).FullName
		for _, s := range w.b.symbols {
			if s.Parent == full && s.Kind == model.KindField {
				fields[s.Name] = strings.TrimPrefix(s.Type, "*")
			}
		}
	}
	sc := newScope(ownerName, fields)
	if recvName != "" {
		sc.declare(recvName, ownerName)
	}
	params := w.params(d.Type.Params, sc)
	var mods []string
	if kind == model.KindMethod {
		if _, ptr := d.Recv.List[0].Type.(*ast.StarExpr); ptr {
			mods = append(mods, "pointer_receiver")
		}
	}
	s := model.CodeSymbol{
		Name:       name,
		FullName:   callableName(container, name, params, false),
		Kind:       kind,
		Access:     goAccess(name),
		Namespace:  w.pkg,
		Location:   loc,
		Parent:     owner,
		Parameters: params,
		ReturnType: resultsString(d.Type.Results),
		Modifiers:  mods,
		Documented: d.Doc != nil,
	}
	s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1
	s.Metrics.ParameterCount = len(params)
	s.Metrics.CyclomaticComplexity = 1
	if d.Body != nil {
		s.References = w.references(d.Body, sc)
		m := &goComplexity{cyclomatic: 1}
		ast.Walk(&complexityVisitor{m: m}, d.Body)
		s.Metrics.CyclomaticComplexity = m.cyclomatic
		s.Metrics.CognitiveComplexity = m.cognitive
		s.Metrics.MaxNesting = m.maxNesting
	}
	w.b.add(s)
}

func (w *goWalker) references(root ast.Node, sc *scope) []model.SymbolReference {
	var refs []model.SymbolReference
	callees := make(map[ast.Expr]bool)
	ast.Inspect(root, func(n ast.Node) bool {
		switch v := n.(type) {
		case *ast.AssignStmt:
			if v.Tok == token.DEFINE {
				for i, lhs := range v.Lhs {
					id, ok := lhs.(*ast.Ident)
					if ok && i < len(v.Rhs) && len(v.Lhs) == len(v.Rhs) {
						sc.declare(id.Name, compositeType(v.Rhs[i]))
					}
				}
			}
		case *ast.ValueSpec:
			if v.Type != nil {
				for _, id := range v.Names {
					sc.declare(id.Name, baseTypeName(v.Type))
				}
				refs = append(refs, sc.reference(model.RefTypeUsage, baseTypeName(v.Type), "", w.fset.Position(v.Pos()).Line))
			}
		case *ast.CallExpr:
			line := w.fset.Position(v.Pos()).Line
			callees[v.Fun] = true
			switch fn := v.Fun.(type) {
			case *ast.SelectorExpr:
				refs = append(refs, sc.reference(model.RefCall, fn.Sel.Name, exprString(fn.X), line))
			case *ast.Ident:
				if fn.Name == "new" && len(v.Args) == 1 {
					recv, member := splitReceiver(baseTypeName(v.Args[0]))
					refs = append(refs, sc.reference(model.RefInstantiation, member, recv, line))
					return true
				}
				refs = append(refs, sc.reference(model.RefCall, fn.Name, "", line))
			}
		case *ast.CompositeLit:
			if v.Type != nil {
				recv, member := splitReceiver(baseTypeName(v.Type))
				refs = append(refs, sc.reference(model.RefInstantiation, member, recv, w.fset.Position(v.Pos()).Line))
			}
		case *ast.SelectorExpr:
			if callees[v] {
				return true
			}
			refs = append(refs, sc.reference(model.RefPropertyAccess, v.Sel.Name, exprString(v.X), w.fset.Position(v.Pos()).Line))
		}
		return true
	})
	return refs
}

type goComplexity struct {
	cyclomatic, cognitive, maxNesting int
}

type complexityVisitor struct {
	depth int
	m     *goComplexity
}

func (v *complexityVisitor) nested() ast.Visitor {
	d := v.depth + 1
	if d > v.m.maxNesting {
		v.m.maxNesting = d
	}
	return &complexityVisitor{depth: d, m: v.m}
}

func (v *complexityVisitor) Visit(n ast.Node) ast.Visitor {
	switch t := n.(type) {
	case nil:
		return nil
	case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
		v.m.cyclomatic++
		v.m.cognitive += 1 + v.depth
		return v.nested()
	case *ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt:
		v.m.cognitive += 1 + v.depth
		return v.nested()
	case *ast.CaseClause:
		if t.List != nil {
			v.m.cyclomatic++
		}
	case *ast.CommClause:
		if t.Comm != nil {
			v.m.cyclomatic++
		}
	case *ast.FuncLit:
		return v.nested()
	case *ast.BinaryExpr:
		if t.Op == token.LAND || t.Op == token.LOR {
			v.m.cyclomatic++
			v.m.cognitive++
		}
	}
	return v
}
