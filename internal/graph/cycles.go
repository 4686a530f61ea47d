package graph

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycle is a closed walk through a strongly connected component. Nodes lists
// the walk in traversal order; an edge runs from each node to the next and
// from the last back to the first. Members holds the full component.
type Cycle struct {
	Nodes    []string `json:"nodes"`
	Members  []string `json:"members"`
	SelfLoop bool     `json:"self_loop"`
}

// StronglyConnected reports every strongly connected component with more
// than one node and every self-loop, ordered by their smallest member.
func StronglyConnected[N, E any](g *Graph[N, E]) []Cycle {
	ids := g.SortedNodeIDs()
	index := make(map[string]int64, len(ids))
	dg := simple.NewDirectedGraph()
	for i, id := range ids {
		index[id] = int64(i)
		dg.AddNode(simple.Node(int64(i)))
	}

	selfLoops := make(map[string]bool)
	for _, e := range g.Edges {
		// gonum simple graphs reject self edges; they are tracked separately.
		if e.From == e.To {
			selfLoops[e.From] = true
			continue
		}
		from, okFrom := index[e.From]
		to, okTo := index[e.To]
		if !okFrom || !okTo {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}

	adj := g.Adjacency()
	var cycles []Cycle
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		members := make([]string, 0, len(scc))
		inSCC := make(map[string]bool, len(scc))
		for _, n := range scc {
			id := ids[n.ID()]
			members = append(members, id)
			inSCC[id] = true
		}
		sort.Strings(members)
		cycles = append(cycles, Cycle{
			Nodes:   shortestCycle(members[0], inSCC, adj),
			Members: members,
		})
	}

	for id := range selfLoops {
		cycles = append(cycles, Cycle{Nodes: []string{id}, Members: []string{id}, SelfLoop: true})
	}

	sort.Slice(cycles, func(i, j int) bool {
		if cycles[i].Members[0] == cycles[j].Members[0] {
			return len(cycles[i].Members) > len(cycles[j].Members)
		}
		return cycles[i].Members[0] < cycles[j].Members[0]
	})
	return cycles
}

// shortestCycle finds the shortest closed walk from start back to itself that
// stays inside the component.
func shortestCycle(start string, inSCC map[string]bool, adj map[string][]string) []string {
	parent := make(map[string]string)
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if next == start && cur != start {
				path := []string{cur}
				for p := parent[cur]; p != start; p = parent[p] {
					path = append(path, p)
				}
				path = append(path, start)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if !inSCC[next] || visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return []string{start}
}
