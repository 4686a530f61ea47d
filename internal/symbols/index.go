// Package symbols indexes the symbols of a code analysis and resolves the
// names written in source to full symbol names.
package symbols

import (
	"path"
	"sort"
	"strings"

	"legacylens/internal/model"
)

// Index is a read-only lookup structure over CodeAnalysis.Symbols. It is
// safe for concurrent readers once built.
type Index struct {
	symbols  []model.CodeSymbol
	byFull   map[string]int
	bySimple map[string][]string            // simple type name -> type full names
	members  map[string]map[string][]string // owner -> member simple name -> full names
	imports  map[string][]model.ImportRef   // file -> imports
	types    []string
}

// New builds an index. Symbols are referenced, not copied.
func New(code *model.CodeAnalysis) *Index {
	ix := &Index{
		byFull:   make(map[string]int),
		bySimple: make(map[string][]string),
		members:  make(map[string]map[string][]string),
		imports:  make(map[string][]model.ImportRef),
	}
	if code == nil {
		return ix
	}
	ix.symbols = code.Symbols
	for i, s := range code.Symbols {
		ix.byFull[s.FullName] = i
		if s.Kind.IsType() {
			ix.bySimple[s.Name] = append(ix.bySimple[s.Name], s.FullName)
			ix.types = append(ix.types, s.FullName)
		}
		if s.Parent != "" {
			byName, ok := ix.members[s.Parent]
			if !ok {
				byName = make(map[string][]string)
				ix.members[s.Parent] = byName
			}
			byName[s.Name] = append(byName[s.Name], s.FullName)
		}
	}
	for _, f := range code.Files {
		ix.imports[f.Path] = f.Imports
	}
	for name := range ix.bySimple {
		sort.Strings(ix.bySimple[name])
	}
	sort.Strings(ix.types)
	return ix
}

// Symbol returns the symbol with the given full name.
func (ix *Index) Symbol(fullName string) (*model.CodeSymbol, bool) {
	i, ok := ix.byFull[fullName]
	if !ok {
		return nil, false
	}
	return &ix.symbols[i], true
}

// Types returns the full names of all type symbols, sorted.
func (ix *Index) Types() []string {
	return ix.types
}

// IsType reports whether fullName is a type symbol.
func (ix *Index) IsType(fullName string) bool {
	s, ok := ix.Symbol(fullName)
	return ok && s.Kind.IsType()
}

// OwnerType returns the nearest enclosing type of a symbol, or the symbol
// itself when it is a type. Namespace-level functions have no owner type.
func (ix *Index) OwnerType(fullName string) (string, bool) {
	for guard := 0; fullName != "" && guard < 64; guard++ {
		s, ok := ix.Symbol(fullName)
		if !ok {
			return "", false
		}
		if s.Kind.IsType() {
			return s.FullName, true
		}
		fullName = s.Parent
	}
	return "", false
}

// Unit returns the dependency unit a symbol belongs to: its owner type, or
// for free functions and variables the symbol itself.
func (ix *Index) Unit(fullName string) string {
	if owner, ok := ix.OwnerType(fullName); ok {
		return owner
	}
	return fullName
}

// cleanTypeName strips pointer, array, nullable and generic decoration,
// keeping the first user type name of a composite expression.
func cleanTypeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "global::")
	if strings.ContainsAny(name, "<>[](){},*&? |") {
		names := model.TypeNames(name)
		if len(names) == 0 {
			return ""
		}
		name = names[0]
	}
	return name
}

// ResolveType maps a type name as written inside from to a type full name.
// The lookup order is: exact full name, enclosing type and namespaces of
// from, the file's imports, then a unique simple name.
func (ix *Index) ResolveType(name string, from *model.CodeSymbol) (string, bool) {
	clean := cleanTypeName(name)
	if clean == "" {
		return "", false
	}
	if ix.IsType(clean) {
		return clean, true
	}
	if from != nil {
		for owner := from.FullName; owner != ""; {
			if ix.IsType(owner + "." + clean) {
				return owner + "." + clean, true
			}
			s, ok := ix.Symbol(owner)
			if !ok {
				break
			}
			owner = s.Parent
		}
		if full, ok := ix.inNamespace(from.Namespace, clean); ok {
			return full, true
		}
		if full, ok := ix.viaImports(from, clean); ok {
			return full, true
		}
	}
	return ix.bySimpleName(lastSegment(clean), from)
}

func (ix *Index) inNamespace(ns, name string) (string, bool) {
	for ns != "" {
		if ix.IsType(ns + "." + name) {
			return ns + "." + name, true
		}
		i := strings.LastIndexAny(ns, "./")
		if i < 0 {
			break
		}
		ns = ns[:i]
	}
	return "", false
}

func (ix *Index) viaImports(from *model.CodeSymbol, name string) (string, bool) {
	head, rest, qualified := strings.Cut(name, ".")
	for _, imp := range ix.imports[from.Location.File] {
		p := imp.Path
		if strings.HasPrefix(p, ".") {
			// relative script import: ./repo from src/orders -> src.orders.repo
			p = strings.ReplaceAll(path.Join(path.Dir(from.Location.File), p), "/", ".")
		}
		candidates := []string{p + "." + name}
		if lastSegment(p) == name {
			candidates = append(candidates, p)
		}
		alias := imp.Alias
		if alias == "" {
			alias = p[strings.LastIndexAny(p, "./")+1:]
		}
		if qualified && head == alias {
			candidates = append(candidates, p+"."+rest)
		}
		for _, c := range candidates {
			if ix.IsType(c) {
				return c, true
			}
		}
	}
	return "", false
}

// bySimpleName resolves a bare name when exactly one type carries it, or
// when exactly one of several shares the referencing symbol's language.
func (ix *Index) bySimpleName(name string, from *model.CodeSymbol) (string, bool) {
	candidates := ix.bySimple[name]
	switch {
	case len(candidates) == 1:
		return candidates[0], true
	case len(candidates) == 0 || from == nil:
		return "", false
	}
	var sameLang []string
	for _, c := range candidates {
		if s, _ := ix.Symbol(c); s.Language == from.Language {
			sameLang = append(sameLang, c)
		}
	}
	if len(sameLang) == 1 {
		return sameLang[0], true
	}
	return "", false
}

// ResolveMember finds members named name on a type or, failing that, on
// its base types. Overloads are returned in declaration order.
func (ix *Index) ResolveMember(typeFull, name string) []string {
	visited := make(map[string]bool)
	var walk func(t string) []string
	walk = func(t string) []string {
		if visited[t] {
			return nil
		}
		visited[t] = true
		if found := ix.members[t][name]; len(found) > 0 {
			return found
		}
		s, ok := ix.Symbol(t)
		if !ok {
			return nil
		}
		for _, base := range s.BaseTypes {
			if full, ok := ix.ResolveType(base, s); ok {
				if found := walk(full); len(found) > 0 {
					return found
				}
			}
		}
		return nil
	}
	return walk(typeFull)
}

// Members returns the direct members of a type by simple name.
func (ix *Index) Members(owner string) map[string][]string {
	return ix.members[owner]
}

// ResolveBases resolves a type's declared base types. Unresolvable names
// are returned separately.
func (ix *Index) ResolveBases(s *model.CodeSymbol) (resolved, unresolved []string) {
	for _, b := range s.BaseTypes {
		if full, ok := ix.ResolveType(b, s); ok && full != s.FullName {
			resolved = append(resolved, full)
		} else if !ok {
			unresolved = append(unresolved, b)
		}
	}
	return resolved, unresolved
}

// Imports returns the imports declared by a file.
func (ix *Index) Imports(file string) []model.ImportRef {
	return ix.imports[file]
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}
