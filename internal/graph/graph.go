// Package graph provides the single node/edge structure shared by the
// dependency, architecture and relationship layers. Payloads are type
// parameters so each layer instantiates its own graph without redefining it.
package graph

import (
	"fmt"
	"sort"

	"legacylens/internal/apperrors"
)

// Node represents a vertex carrying a payload of type N.
type Node[N any] struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Kind        string `json:"kind"`
	Placeholder bool   `json:"placeholder"`
	Data        N      `json:"data"`
}

// Edge represents a directed relationship between two nodes.
type Edge[E any] struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
	Data   E       `json:"data"`
}

// Graph manages nodes and their relationships.
type Graph[N, E any] struct {
	Nodes map[string]Node[N] `json:"nodes"`
	Edges []Edge[E]          `json:"edges"`
}

// New creates an empty graph.
func New[N, E any]() *Graph[N, E] {
	return &Graph[N, E]{
		Nodes: make(map[string]Node[N]),
		Edges: []Edge[E]{},
	}
}

// Build assembles a graph from node and edge lists in O(V+E). Edges whose
// endpoints are missing are kept and healed with placeholder nodes; one
// consistency error is returned per inserted placeholder.
func Build[N, E any](nodes []Node[N], edges []Edge[E]) (*Graph[N, E], []*apperrors.GraphConsistencyError) {
	g := &Graph[N, E]{
		Nodes: make(map[string]Node[N], len(nodes)),
		Edges: make([]Edge[E], 0, len(edges)),
	}
	for _, n := range nodes {
		g.AddNode(n)
	}
	var healed []*apperrors.GraphConsistencyError
	for _, e := range edges {
		healed = append(healed, g.AddEdge(e)...)
	}
	return g, healed
}

// AddNode inserts or replaces a node. A real node always replaces a placeholder.
func (g *Graph[N, E]) AddNode(n Node[N]) {
	if g.Nodes == nil {
		g.Nodes = make(map[string]Node[N])
	}
	if n.Label == "" {
		n.Label = n.ID
	}
	g.Nodes[n.ID] = n
}

// HasNode reports whether id is a node of the graph.
func (g *Graph[N, E]) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// AddEdge appends an edge. Missing endpoints are inserted as placeholder
// nodes rather than dropping the edge.
func (g *Graph[N, E]) AddEdge(e Edge[E]) []*apperrors.GraphConsistencyError {
	var healed []*apperrors.GraphConsistencyError
	for _, id := range []string{e.From, e.To} {
		if g.HasNode(id) {
			continue
		}
		g.AddNode(Node[N]{ID: id, Label: id, Kind: "placeholder", Placeholder: true})
		healed = append(healed, &apperrors.GraphConsistencyError{From: e.From, To: e.To, Missing: id})
		if e.From == e.To {
			break
		}
	}
	g.Edges = append(g.Edges, e)
	return healed
}

// HasEdge reports whether at least one edge connects from to to.
func (g *Graph[N, E]) HasEdge(from, to string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}

// SortedNodeIDs returns node ids in lexicographic order.
func (g *Graph[N, E]) SortedNodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Adjacency returns sorted, de-duplicated successor lists for every node.
func (g *Graph[N, E]) Adjacency() map[string][]string {
	return buildAdjacency(g.Edges, func(e Edge[E]) (string, string) { return e.From, e.To })
}

// ReverseAdjacency returns sorted, de-duplicated predecessor lists.
func (g *Graph[N, E]) ReverseAdjacency() map[string][]string {
	return buildAdjacency(g.Edges, func(e Edge[E]) (string, string) { return e.To, e.From })
}

func buildAdjacency[E any](edges []Edge[E], ends func(Edge[E]) (string, string)) map[string][]string {
	seen := make(map[[2]string]bool, len(edges))
	adj := make(map[string][]string)
	for _, e := range edges {
		from, to := ends(e)
		key := [2]string{from, to}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj[from] = append(adj[from], to)
	}
	for id := range adj {
		sort.Strings(adj[id])
	}
	return adj
}

// Successors returns the nodes id points to.
func (g *Graph[N, E]) Successors(id string) []string {
	return g.Adjacency()[id]
}

// Predecessors returns the nodes pointing to id.
func (g *Graph[N, E]) Predecessors(id string) []string {
	return g.ReverseAdjacency()[id]
}

// Subgraph returns the induced subgraph on ids.
func (g *Graph[N, E]) Subgraph(ids []string) *Graph[N, E] {
	keep := make(map[string]bool, len(ids))
	sub := New[N, E]()
	for _, id := range ids {
		if n, ok := g.Nodes[id]; ok {
			keep[id] = true
			sub.Nodes[id] = n
		}
	}
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub
}

// Placeholders returns the ids of healed placeholder nodes, sorted.
func (g *Graph[N, E]) Placeholders() []string {
	var ids []string
	for id, n := range g.Nodes {
		if n.Placeholder {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that every edge endpoint exists.
func (g *Graph[N, E]) Validate() error {
	for _, e := range g.Edges {
		if !g.HasNode(e.From) {
			return fmt.Errorf("edge %s -> %s: unknown source", e.From, e.To)
		}
		if !g.HasNode(e.To) {
			return fmt.Errorf("edge %s -> %s: unknown target", e.From, e.To)
		}
	}
	return nil
}
