package generator

import (
	"sort"

	"legacylens/internal/model"
	"legacylens/internal/relations"
)

// viewNode is one node of a rendered graph.
type viewNode struct {
	ID    string
	Label string
	Kind  string
	Group string
	Layer string
	Size  int
}

// viewEdge is one edge of a rendered graph.
type viewEdge struct {
	Source   string
	Target   string
	Type     string
	Count    int
	Strength float64
}

// graphView is the node/edge list shared by the DOT, d3 and cytoscape
// renderers. Nodes and edges are sorted.
type graphView struct {
	Level string
	Nodes []viewNode
	Edges []viewEdge
}

// symbolView keeps every relationship endpoint as its own node.
func symbolView(rel *model.RelationshipMapping) *graphView {
	g := relations.Graph(rel.Relationships)
	degree := make(map[string]int)
	for _, e := range g.Edges {
		degree[e.From]++
		degree[e.To]++
	}
	v := &graphView{Level: "symbol"}
	for _, id := range g.SortedNodeIDs() {
		n := g.Nodes[id]
		v.Nodes = append(v.Nodes, viewNode{
			ID:    id,
			Label: n.Label,
			Kind:  n.Kind,
			Group: n.Data.Component,
			Layer: n.Data.Layer,
			Size:  degree[id],
		})
	}
	for _, e := range g.Edges {
		v.Edges = append(v.Edges, viewEdge{
			Source:   e.From,
			Target:   e.To,
			Type:     e.Kind,
			Count:    e.Data.Count,
			Strength: e.Weight,
		})
	}
	sortEdges(v.Edges)
	return v
}

// componentView collapses the relationships to one node per component, as
// the architecture analyzer grouped them.
func componentView(arch *model.ArchitectureAnalysis, rel *model.RelationshipMapping) *graphView {
	v := &graphView{Level: "component"}
	seen := make(map[string]bool)
	for _, c := range arch.Components {
		seen[c.Name] = true
		v.Nodes = append(v.Nodes, viewNode{
			ID:    c.Name,
			Label: c.Name,
			Kind:  "component",
			Group: c.Layer,
			Layer: c.Layer,
			Size:  len(c.Types),
		})
	}
	comps := rel.Views.Components
	if len(comps) == 0 && len(rel.Relationships) > 0 {
		comps = relations.BuildViews(rel.Relationships).Components
	}
	for _, c := range comps {
		for _, id := range []string{c.Source, c.Target} {
			if !seen[id] {
				seen[id] = true
				v.Nodes = append(v.Nodes, viewNode{ID: id, Label: id, Kind: "component", Group: "unassigned"})
			}
		}
		v.Edges = append(v.Edges, viewEdge{
			Source:   c.Source,
			Target:   c.Target,
			Type:     dominantType(c.Types),
			Count:    c.Count,
			Strength: c.Strength,
		})
	}
	sort.Slice(v.Nodes, func(i, j int) bool { return v.Nodes[i].ID < v.Nodes[j].ID })
	sortEdges(v.Edges)
	return v
}

// dominantType picks the most frequent type, ties going to precedence.
func dominantType(types map[model.RelationshipType]int) string {
	var best model.RelationshipType
	for _, t := range model.RelationshipTypes {
		if types[t] > types[best] {
			best = t
		}
	}
	return string(best)
}

func sortEdges(edges []viewEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}
