package relations

import (
	"sort"

	"legacylens/internal/graph"
	"legacylens/internal/model"
)

// BuildViews derives every relationship view from the canonical list. It
// reads nothing else, so rebuilding from a saved list reproduces the views
// exactly.
func BuildViews(rels []model.Relationship) model.RelationshipViews {
	return model.RelationshipViews{
		Components:      componentView(rels),
		Layers:          layerView(rels),
		Matrix:          matrixView(rels),
		CallHierarchy:   callHierarchy(rels),
		InheritanceTree: inheritanceTree(rels),
		Metrics:         metrics(rels),
	}
}

// RebuildViews returns a copy of m with its views recomputed from the
// canonical list. m is not modified.
func RebuildViews(m *model.RelationshipMapping) *model.RelationshipMapping {
	out := *m
	out.Relationships = append([]model.Relationship(nil), m.Relationships...)
	out.Warnings = append([]model.Warning(nil), m.Warnings...)
	out.Views = BuildViews(out.Relationships)
	return &out
}

type componentPair struct{ source, target string }

func sortedPairs[V any](m map[componentPair]V) []componentPair {
	keys := make([]componentPair, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].target < keys[j].target
	})
	return keys
}

func componentView(rels []model.Relationship) []model.ComponentRelationship {
	agg := make(map[componentPair]*model.ComponentRelationship)
	sums := make(map[componentPair]float64)
	for _, r := range rels {
		if r.SourceComponent == "" || r.TargetComponent == "" || r.SourceComponent == r.TargetComponent {
			continue
		}
		k := componentPair{r.SourceComponent, r.TargetComponent}
		c, ok := agg[k]
		if !ok {
			c = &model.ComponentRelationship{Source: k.source, Target: k.target, Types: map[model.RelationshipType]int{}}
			agg[k] = c
		}
		c.Count += r.Count
		c.Types[r.Type]++
		sums[k] += r.Strength
	}
	out := make([]model.ComponentRelationship, 0, len(agg))
	for _, k := range sortedPairs(agg) {
		c := agg[k]
		c.Strength = capStrength(sums[k])
		out = append(out, *c)
	}
	return out
}

func layerView(rels []model.Relationship) []model.LayerRelationship {
	agg := make(map[componentPair]*model.LayerRelationship)
	for _, r := range rels {
		if r.SourceLayer == "" || r.TargetLayer == "" || r.SourceLayer == r.TargetLayer {
			continue
		}
		k := componentPair{r.SourceLayer, r.TargetLayer}
		l, ok := agg[k]
		if !ok {
			l = &model.LayerRelationship{
				SourceLayer: r.SourceLayer,
				TargetLayer: r.TargetLayer,
				SourceLevel: r.SourceLevel,
				TargetLevel: r.TargetLevel,
				IsViolation: model.IsLayerViolation(r.SourceLevel, r.TargetLevel),
			}
			agg[k] = l
		}
		l.Count += r.Count
	}
	out := make([]model.LayerRelationship, 0, len(agg))
	for _, k := range sortedPairs(agg) {
		out = append(out, *agg[k])
	}
	return out
}

// matrixView keeps only non-zero cells. The diagonal holds relationships
// inside one component.
func matrixView(rels []model.Relationship) model.DependencyMatrix {
	labelSet := make(map[string]bool)
	for _, r := range rels {
		if r.SourceComponent != "" && r.TargetComponent != "" {
			labelSet[r.SourceComponent] = true
			labelSet[r.TargetComponent] = true
		}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	type cell struct{ row, col int }
	cells := make(map[cell]*model.MatrixEntry)
	for _, r := range rels {
		if r.SourceComponent == "" || r.TargetComponent == "" {
			continue
		}
		k := cell{index[r.SourceComponent], index[r.TargetComponent]}
		e, ok := cells[k]
		if !ok {
			e = &model.MatrixEntry{Row: k.row, Column: k.col}
			cells[k] = e
		}
		e.Count += r.Count
		e.Strength += r.Strength
	}
	entries := make([]model.MatrixEntry, 0, len(cells))
	for _, e := range cells {
		e.Strength = capStrength(e.Strength)
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Row != entries[j].Row {
			return entries[i].Row < entries[j].Row
		}
		return entries[i].Column < entries[j].Column
	})
	return model.DependencyMatrix{Labels: labels, Entries: entries}
}

// adjacency is a forward and backward neighbor set over a subset of the
// canonical list.
type adjacency struct {
	nodes []string
	fwd   map[string][]string
	back  map[string][]string
}

func newAdjacency(rels []model.Relationship, keep func(model.Relationship) bool) *adjacency {
	a := &adjacency{fwd: make(map[string][]string), back: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, r := range rels {
		if !keep(r) {
			continue
		}
		a.fwd[r.Source] = append(a.fwd[r.Source], r.Target)
		a.back[r.Target] = append(a.back[r.Target], r.Source)
		for _, n := range []string{r.Source, r.Target} {
			if !seen[n] {
				seen[n] = true
				a.nodes = append(a.nodes, n)
			}
		}
	}
	sort.Strings(a.nodes)
	for _, m := range []map[string][]string{a.fwd, a.back} {
		for k := range m {
			m[k] = dedupeSorted(m[k])
		}
	}
	return a
}

// depths runs a multi-source BFS from roots along next. Nodes never
// reached keep -1.
func (a *adjacency) depths(roots []string, next map[string][]string) map[string]int {
	depth := make(map[string]int, len(a.nodes))
	for _, n := range a.nodes {
		depth[n] = -1
	}
	queue := append([]string(nil), roots...)
	for _, r := range roots {
		depth[r] = 0
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if depth[n] < 0 {
				depth[n] = depth[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	return depth
}

// callHierarchy roots are never-called methods, leaves call nothing.
func callHierarchy(rels []model.Relationship) []model.CallHierarchyNode {
	a := newAdjacency(rels, func(r model.Relationship) bool { return r.Type == model.RelMethodCall })
	var roots []string
	for _, n := range a.nodes {
		if len(a.back[n]) == 0 {
			roots = append(roots, n)
		}
	}
	depth := a.depths(roots, a.fwd)
	out := make([]model.CallHierarchyNode, 0, len(a.nodes))
	for _, n := range a.nodes {
		out = append(out, model.CallHierarchyNode{
			Method:  n,
			Callers: nonNil(a.back[n]),
			Callees: nonNil(a.fwd[n]),
			Depth:   depth[n],
			IsRoot:  len(a.back[n]) == 0,
			IsLeaf:  len(a.fwd[n]) == 0,
		})
	}
	return out
}

// inheritanceTree roots have no base type, leaves are never subclassed and
// depth is the distance from the nearest root.
func inheritanceTree(rels []model.Relationship) []model.InheritanceNode {
	a := newAdjacency(rels, func(r model.Relationship) bool {
		return r.Type == model.RelInheritance || r.Type == model.RelImplementation
	})
	var roots []string
	for _, n := range a.nodes {
		if len(a.fwd[n]) == 0 {
			roots = append(roots, n)
		}
	}
	depth := a.depths(roots, a.back)
	out := make([]model.InheritanceNode, 0, len(a.nodes))
	for _, n := range a.nodes {
		out = append(out, model.InheritanceNode{
			Type:    n,
			Bases:   nonNil(a.fwd[n]),
			Derived: nonNil(a.back[n]),
			Depth:   depth[n],
			IsRoot:  len(a.fwd[n]) == 0,
			IsLeaf:  len(a.back[n]) == 0,
		})
	}
	return out
}

func metrics(rels []model.Relationship) model.RelationshipMetrics {
	m := model.RelationshipMetrics{Total: len(rels), ByType: map[model.RelationshipType]int{}}
	var sum float64
	for _, r := range rels {
		m.ByType[r.Type]++
		sum += r.Strength
		if model.IsLayerViolation(r.SourceLevel, r.TargetLevel) {
			m.LayerViolations++
		}
	}
	if len(rels) > 0 {
		m.AverageStrength = sum / float64(len(rels))
	}
	for _, n := range callHierarchy(rels) {
		if n.Depth > m.MaxCallDepth {
			m.MaxCallDepth = n.Depth
		}
	}
	for _, n := range inheritanceTree(rels) {
		if n.Depth > m.MaxInheritanceDepth {
			m.MaxInheritanceDepth = n.Depth
		}
	}
	return m
}

// NodeInfo is the payload of a relationship graph node.
type NodeInfo struct {
	Kind      model.SymbolKind `json:"kind"`
	Component string           `json:"component"`
	Layer     string           `json:"layer"`
}

// RelationshipGraph is the generic graph instantiated for relationships.
type RelationshipGraph = graph.Graph[NodeInfo, model.Relationship]

// Graph builds the relationship graph from the canonical list. Every
// endpoint appears in the list itself, so no node is ever healed.
func Graph(rels []model.Relationship) *RelationshipGraph {
	nodes := make(map[string]graph.Node[NodeInfo])
	edges := make([]graph.Edge[model.Relationship], 0, len(rels))
	for _, r := range rels {
		if _, ok := nodes[r.Source]; !ok {
			nodes[r.Source] = graph.Node[NodeInfo]{ID: r.Source, Label: shortName(r.Source), Kind: string(r.SourceKind),
				Data: NodeInfo{Kind: r.SourceKind, Component: r.SourceComponent, Layer: r.SourceLayer}}
		}
		if _, ok := nodes[r.Target]; !ok {
			nodes[r.Target] = graph.Node[NodeInfo]{ID: r.Target, Label: shortName(r.Target), Kind: string(r.TargetKind),
				Data: NodeInfo{Kind: r.TargetKind, Component: r.TargetComponent, Layer: r.TargetLayer}}
		}
		edges = append(edges, graph.Edge[model.Relationship]{From: r.Source, To: r.Target, Kind: string(r.Type), Weight: r.Strength, Data: r})
	}
	list := make([]graph.Node[NodeInfo], 0, len(nodes))
	for _, n := range nodes {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	g, _ := graph.Build(list, edges)
	return g
}

func shortName(full string) string {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '.' || full[i] == '/' {
			return full[i+1:]
		}
	}
	return full
}

func capStrength(s float64) float64 {
	if s > 1 {
		return 1
	}
	return s
}

func dedupeSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
