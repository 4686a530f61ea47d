package resolver

import (
	"context"
	"path"
	"strings"

	"legacylens/internal/model"
)

// staticStage reads dependencies off symbol metadata: base types,
// attributes, member and parameter types, body references and imports.
type staticStage struct{}

func (staticStage) Name() string { return "static" }

var referenceKinds = map[model.ReferenceKind]model.DependencyKind{
	model.RefCall:           model.DepMethodCall,
	model.RefPropertyAccess: model.DepPropertyAccess,
	model.RefInstantiation:  model.DepInstantiation,
	model.RefTypeUsage:      model.DepTypeUsage,
	model.RefEvent:          model.DepEvent,
}

func (staticStage) Run(ctx context.Context, st *state) (ResolveStats, error) {
	var stats ResolveStats
	for i := range st.code.Symbols {
		// cancellation is checked per symbol
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		s := &st.code.Symbols[i]
		if s.Kind == model.KindNamespace {
			continue
		}
		unit := st.ix.Unit(s.FullName)
		u, ok := st.ix.Symbol(unit)
		if !ok || !isUnit(*u) {
			continue
		}

		count := func(resolved bool) {
			stats.Attempted++
			if resolved {
				stats.Resolved++
			} else {
				stats.Skipped++
			}
		}

		if s.Kind.IsType() {
			resolved, unresolved := st.ix.ResolveBases(s)
			for _, base := range resolved {
				kind := model.DepInheritance
				if b, _ := st.ix.Symbol(base); b.Kind == model.KindInterface && s.Kind != model.KindInterface {
					kind = model.DepImplementation
				}
				count(st.addStatic(unit, base, kind, model.ScopeType, s.Location))
			}
			for range unresolved {
				count(false)
			}
		} else {
			switch {
			case s.Kind == model.KindEvent:
				count(st.typeDeps(unit, s, s.Type, model.DepEvent, s.Location))
			case s.Kind.IsData() && s.Parent != "":
				count(st.typeDeps(unit, s, s.Type, model.DepFieldType, s.Location))
			}
			for _, p := range s.Parameters {
				count(st.typeDeps(unit, s, p.Type, model.DepParameterType, s.Location))
			}
			if s.ReturnType != "" {
				count(st.typeDeps(unit, s, s.ReturnType, model.DepReturnType, s.Location))
			}
		}

		for _, attr := range s.Attributes {
			if full, ok := resolveAttribute(st, s, attr); ok {
				count(st.addStatic(unit, full, model.DepAttribute, model.ScopeType, s.Location))
			}
		}

		for _, ref := range s.References {
			targets := st.ix.ResolveReference(s, ref)
			if len(targets) == 0 {
				count(false)
				continue
			}
			loc := refLocation(s, ref)
			for _, t := range targets {
				kind := referenceKinds[ref.Kind]
				if ref.Kind == model.RefEvent {
					if target, ok := st.ix.Symbol(t.Symbol); !ok || target.Kind != model.KindEvent {
						kind = model.DepPropertyAccess
					}
				}
				count(st.addStatic(unit, t.Unit, kind, model.ScopeType, loc))
			}
		}
	}

	for _, f := range st.code.Files {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		units := st.fileUnits()[f.Path]
		for _, imp := range f.Imports {
			target, scope, ok := resolveImport(st, f, imp)
			stats.Attempted++
			if !ok {
				stats.Skipped++
				continue
			}
			stats.Resolved++
			loc := model.Location{File: f.Path, StartLine: imp.Line, EndLine: imp.Line}
			if scope == model.ScopeNamespace {
				st.addStatic(fileNamespace(f), target, model.DepImport, model.ScopeNamespace, loc)
				continue
			}
			for _, unit := range units {
				st.addStatic(unit, target, model.DepImport, model.ScopeType, loc)
			}
		}
	}
	return stats, nil
}

// typeDeps adds one dependency per user type named in a type expression.
func (st *state) typeDeps(unit string, s *model.CodeSymbol, expr string, kind model.DependencyKind, loc model.Location) bool {
	if strings.TrimSpace(expr) == "" {
		return false
	}
	added := false
	for _, t := range st.ix.ResolveTypeExpr(expr, s) {
		if st.addStatic(unit, t, kind, model.ScopeType, loc) {
			added = true
		}
	}
	return added
}

func resolveAttribute(st *state, s *model.CodeSymbol, attr string) (string, bool) {
	name := strings.TrimPrefix(strings.TrimSpace(attr), "@")
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", false
	}
	if full, ok := st.ix.ResolveType(name, s); ok {
		return full, true
	}
	return st.ix.ResolveType(name+"Attribute", s)
}

func refLocation(s *model.CodeSymbol, ref model.SymbolReference) model.Location {
	line := ref.Line
	if line == 0 {
		line = s.Location.StartLine
	}
	return model.Location{File: s.Location.File, StartLine: line, EndLine: line}
}

// fileUnits maps each file to the top-level dependency units it declares.
func (st *state) fileUnits() map[string][]string {
	if st.units != nil {
		return st.units
	}
	st.units = make(map[string][]string)
	for _, s := range st.code.Symbols {
		if isUnit(s) && s.Parent == "" {
			st.units[s.Location.File] = append(st.units[s.Location.File], s.FullName)
		}
	}
	return st.units
}

func fileNamespace(f model.SourceFile) string {
	if f.Namespace != "" {
		return f.Namespace
	}
	return f.Path
}

// resolveImport maps an import to an in-repository type or namespace.
func resolveImport(st *state, f model.SourceFile, imp model.ImportRef) (string, model.DependencyScope, bool) {
	p := strings.TrimSpace(imp.Path)
	if p == "" {
		return "", "", false
	}
	candidates := []string{p, strings.TrimSuffix(p, ".*")}
	if strings.HasPrefix(p, ".") {
		candidates = append(candidates, relativeImports(f, p)...)
	}
	for _, c := range candidates {
		if st.ix.IsType(c) {
			return c, model.ScopeType, true
		}
		if s, ok := st.ix.Symbol(c); ok && s.Kind == model.KindNamespace {
			return c, model.ScopeNamespace, true
		}
	}
	// static member imports: com.shop.Util.helper
	if i := strings.LastIndex(p, "."); i > 0 && st.ix.IsType(p[:i]) {
		return p[:i], model.ScopeType, true
	}
	return "", "", false
}

// relativeImports turns "./repo" or Python's "..models" into the dotted
// module names the script extractors use as namespaces.
func relativeImports(f model.SourceFile, p string) []string {
	dir := path.Dir(f.Path)
	if f.Language == model.LangPython {
		rest := strings.TrimLeft(p, ".")
		for up := len(p) - len(rest); up > 1; up-- {
			dir = path.Dir(dir)
		}
		base := ""
		if dir != "." {
			base = strings.ReplaceAll(dir, "/", ".")
		}
		switch {
		case rest == "":
			return []string{base}
		case base == "":
			return []string{rest}
		}
		return []string{base + "." + rest}
	}
	rel := strings.ReplaceAll(path.Join(dir, p), "/", ".")
	return []string{rel, rel + ".index"}
}
