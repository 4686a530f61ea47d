package architecture

import (
	"context"
	"path"
	"sort"

	"legacylens/internal/analysis"
	"legacylens/internal/graph"
	"legacylens/internal/model"
)

// isUnit reports whether a symbol is placed into a component: types and
// namespace-level callables.
func isUnit(s model.CodeSymbol) bool {
	if s.Kind.IsType() {
		return true
	}
	return s.Kind.IsCallable() && s.Parent == ""
}

func (a *Analyzer) componentKey(s model.CodeSymbol) string {
	if a.opts.GroupBy == GroupByAssembly && s.Assembly != "" {
		return s.Assembly
	}
	return analysis.NamespaceOf(s)
}

// components groups units by namespace (or assembly) and tags each group
// with a tier from its names.
func (a *Analyzer) components(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	type acc struct {
		comp       model.Component
		votes      *tierVotes
		assemblies map[string]int
	}
	byName := make(map[string]*acc)
	get := func(name string) *acc {
		c, ok := byName[name]
		if !ok {
			c = &acc{
				comp:       model.Component{Name: name, Types: []string{}, DependsOn: []string{}},
				votes:      newTierVotes(),
				assemblies: make(map[string]int),
			}
			c.votes.add(name, 3)
			byName[name] = c
		}
		return c
	}

	for _, s := range in.code.Symbols {
		if ctx.Err() != nil {
			return nil
		}
		if s.Kind == model.KindNamespace {
			continue
		}
		c := get(a.componentKey(s))
		c.comp.SymbolCount++
		if !isUnit(s) {
			continue
		}
		in.compOf[s.FullName] = c.comp.Name
		c.comp.Types = append(c.comp.Types, s.FullName)
		c.assemblies[s.Assembly]++
		c.votes.addType(s.Name, 1)
		if dir := path.Dir(s.Location.File); dir != "." && dir != "" {
			c.votes.add(dir, 1)
		}
	}

	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := byName[n]
		if len(c.comp.Types) == 0 {
			continue
		}
		sort.Strings(c.comp.Types)
		c.comp.Tier, c.comp.Role = c.votes.result()
		c.comp.Level = c.comp.Tier.Level()
		c.comp.Layer = layerName(c.comp.Tier)
		c.comp.Assembly = mostFrequent(c.assemblies)
		arch.Components = append(arch.Components, c.comp)
	}
	return nil
}

func mostFrequent(counts map[string]int) string {
	best, n := "", -1
	for k, v := range counts {
		if v > n || (v == n && k < best) {
			best, n = k, v
		}
	}
	return best
}

// buildLayers groups components by tier. Ranked layers come first in level
// order, then cross-cutting and unclassified ones.
func buildLayers(components []model.Component) []model.Layer {
	byTier := make(map[model.Tier]*model.Layer)
	for _, c := range components {
		l, ok := byTier[c.Tier]
		if !ok {
			l = &model.Layer{Name: layerName(c.Tier), Tier: c.Tier, Level: c.Tier.Level(), Components: []string{}}
			byTier[c.Tier] = l
		}
		l.Components = append(l.Components, c.Name)
		l.SymbolCount += c.SymbolCount
	}
	layers := make([]model.Layer, 0, len(byTier))
	for _, l := range byTier {
		layers = append(layers, *l)
	}
	sort.Slice(layers, func(i, j int) bool {
		return tierOrder[layers[i].Tier] < tierOrder[layers[j].Tier]
	})
	return layers
}

// buildModules groups components by the assembly that owns most of their
// types and attaches the project manifest when one was discovered.
func buildModules(code *model.CodeAnalysis, components []model.Component) []model.Module {
	projects := make(map[string]model.ProjectInfo)
	for _, p := range code.Projects {
		if _, ok := projects[p.Name]; !ok {
			projects[p.Name] = p
		}
	}
	byName := make(map[string]*model.Module)
	var order []string
	for _, c := range components {
		m, ok := byName[c.Assembly]
		if !ok {
			m = &model.Module{Name: c.Assembly, Components: []string{}}
			if p, ok := projects[c.Assembly]; ok {
				m.Path, m.Kind = p.Manifest, p.Kind
			}
			byName[c.Assembly] = m
			order = append(order, c.Assembly)
		}
		m.Components = append(m.Components, c.Name)
		m.SymbolCount += c.SymbolCount
	}
	sort.Strings(order)
	modules := make([]model.Module, 0, len(order))
	for _, n := range order {
		modules = append(modules, *byName[n])
	}
	return modules
}

// componentGraph lifts type-level dependencies to components. Dependencies
// inside one component stay out of the graph and feed cohesion instead.
func (a *Analyzer) componentGraph(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	nodes := make([]graph.Node[model.ComponentNode], 0, len(arch.Components))
	for _, c := range arch.Components {
		nodes = append(nodes, graph.Node[model.ComponentNode]{
			ID:    c.Name,
			Label: c.Name,
			Kind:  string(c.Tier),
			Data:  model.ComponentNode{Tier: c.Tier, Level: c.Level, TypeCount: len(c.Types)},
		})
	}

	type pair struct{ from, to string }
	agg := make(map[pair]*model.ComponentEdge)
	for _, d := range in.deps.Static {
		if ctx.Err() != nil {
			return nil
		}
		if d.Scope != model.ScopeType {
			continue
		}
		from, okFrom := in.compOf[d.From]
		to, okTo := in.compOf[d.To]
		if !okFrom || !okTo || from == to {
			continue
		}
		e, ok := agg[pair{from, to}]
		if !ok {
			e = &model.ComponentEdge{}
			agg[pair{from, to}] = e
		}
		e.Count += d.Count
		for _, k := range d.Constructs {
			if !containsKind(e.Constructs, k) {
				e.Constructs = append(e.Constructs, k)
			}
		}
	}
	keys := make([]pair, 0, len(agg))
	for k := range agg {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	edges := make([]graph.Edge[model.ComponentEdge], 0, len(keys))
	for _, k := range keys {
		e := agg[k]
		edges = append(edges, graph.Edge[model.ComponentEdge]{
			From:   k.from,
			To:     k.to,
			Kind:   "depends_on",
			Weight: float64(e.Count),
			Data:   *e,
		})
	}

	g, healed := graph.Build(nodes, edges)
	arch.ComponentGraph = *g
	for _, h := range healed {
		arch.Warnings = append(arch.Warnings, model.WarningFromError(model.PhaseArchitecture, h))
	}
	succ := g.Adjacency()
	for i := range arch.Components {
		deps := append([]string{}, succ[arch.Components[i].Name]...)
		sort.Strings(deps)
		arch.Components[i].DependsOn = deps
	}
	return nil
}

func containsKind(kinds []model.DependencyKind, k model.DependencyKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
