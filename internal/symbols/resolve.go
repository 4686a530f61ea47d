package symbols

import (
	"strings"

	"legacylens/internal/model"
)

// Target is a resolved reference. Symbol is the most specific symbol the
// reference reaches (a member when known, else the type or function);
// Unit is the dependency unit owning it.
type Target struct {
	Symbol string
	Unit   string
}

// ResolveReference resolves one reference made inside from. Type usages of
// composite types may resolve to several targets.
func (ix *Index) ResolveReference(from *model.CodeSymbol, ref model.SymbolReference) []Target {
	switch ref.Kind {
	case model.RefInstantiation:
		name := ref.Target
		if ref.Receiver != "" {
			if t, ok := ix.ResolveType(ref.Receiver+"."+name, from); ok {
				return []Target{{Symbol: t, Unit: t}}
			}
		}
		if t, ok := ix.ResolveType(name, from); ok {
			return []Target{{Symbol: t, Unit: t}}
		}
		return nil
	case model.RefTypeUsage:
		return ix.resolveTypeExpr(ref.Target, from)
	}

	// calls, member accesses and event subscriptions
	if ref.ReceiverType != "" {
		t, ok := ix.ResolveType(ref.ReceiverType, from)
		if !ok {
			return nil
		}
		if found := ix.ResolveMember(t, ref.Target); len(found) > 0 {
			return []Target{{Symbol: found[0], Unit: ix.Unit(found[0])}}
		}
		return []Target{{Symbol: t, Unit: t}}
	}
	if ref.Receiver == "" {
		if owner, ok := ix.OwnerType(from.FullName); ok {
			if found := ix.ResolveMember(owner, ref.Target); len(found) > 0 {
				return []Target{{Symbol: found[0], Unit: ix.Unit(found[0])}}
			}
		}
		if fn, ok := ix.function(from, "", ref.Target); ok {
			return []Target{{Symbol: fn, Unit: ix.Unit(fn)}}
		}
		if t, ok := ix.ResolveType(ref.Target, from); ok && ref.Kind == model.RefCall {
			// SQL EXEC and similar calls name their callee in full.
			return []Target{{Symbol: t, Unit: t}}
		}
		if s, ok := ix.Symbol(ref.Target); ok && s.Kind.IsCallable() {
			return []Target{{Symbol: s.FullName, Unit: ix.Unit(s.FullName)}}
		}
		return nil
	}
	if fn, ok := ix.function(from, ref.Receiver, ref.Target); ok {
		return []Target{{Symbol: fn, Unit: ix.Unit(fn)}}
	}
	return nil
}

func (ix *Index) resolveTypeExpr(expr string, from *model.CodeSymbol) []Target {
	var out []Target
	seen := make(map[string]bool)
	for _, name := range model.TypeNames(expr) {
		if t, ok := ix.ResolveType(name, from); ok && !seen[t] {
			seen[t] = true
			out = append(out, Target{Symbol: t, Unit: t})
		}
	}
	return out
}

// ResolveTypeExpr resolves every user type named in a type expression.
func (ix *Index) ResolveTypeExpr(expr string, from *model.CodeSymbol) []string {
	targets := ix.resolveTypeExpr(expr, from)
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Symbol
	}
	return out
}

// function finds a namespace-level function, either in from's namespace,
// through an import, or through a package qualifier such as fmt.Println.
func (ix *Index) function(from *model.CodeSymbol, qualifier, name string) (string, bool) {
	isFunc := func(full string) bool {
		s, ok := ix.Symbol(full)
		return ok && s.Kind.IsCallable() && s.Parent == ""
	}
	if qualifier == "" {
		if c := qualifyName(from.Namespace, name) + "()"; isFunc(c) {
			return c, true
		}
	}
	for _, imp := range ix.imports[from.Location.File] {
		p := imp.Path
		alias := imp.Alias
		if alias == "" {
			alias = p[strings.LastIndexAny(p, "./")+1:]
		}
		var candidates []string
		switch {
		case qualifier == "" && lastSegment(p) == name:
			candidates = append(candidates, p+"()")
		case qualifier != "" && qualifier == alias:
			candidates = append(candidates, p+"."+name+"()")
		}
		for _, c := range candidates {
			if isFunc(c) {
				return c, true
			}
		}
	}
	return "", false
}

func qualifyName(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}
