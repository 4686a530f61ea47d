package architecture

import (
	"context"
	"math"

	"legacylens/internal/model"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// computeComponentMetrics fills cohesion from the edges inside each
// component and coupling from the component graph.
func computeComponentMetrics(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
	afferent := arch.ComponentGraph.ReverseAdjacency()
	efferent := arch.ComponentGraph.Adjacency()
	for i := range arch.Components {
		if ctx.Err() != nil {
			return nil
		}
		c := &arch.Components[i]
		c.Cohesion = cohesion(in, c.Types)

		ca, ce := len(afferent[c.Name]), len(efferent[c.Name])
		c.Coupling = model.Coupling{Afferent: ca, Efferent: ce}
		if ca+ce > 0 {
			c.Coupling.Instability = float64(ce) / float64(ca+ce)
		}
		abstract := 0
		for _, t := range c.Types {
			if s, ok := in.ix.Symbol(t); ok && s.Kind.IsType() && s.IsAbstract() {
				abstract++
			}
		}
		if len(c.Types) > 0 {
			c.Coupling.Abstractness = float64(abstract) / float64(len(c.Types))
		}
		c.Coupling.Distance = math.Abs(c.Coupling.Abstractness + c.Coupling.Instability - 1)
	}
	return nil
}

// cohesion computes LCOM as the number of connected groups of types linked
// by internal dependencies, and TCC as the share of type pairs that are
// directly connected.
func cohesion(in *input, types []string) model.Cohesion {
	n := len(types)
	if n == 0 {
		return model.Cohesion{}
	}
	if n == 1 {
		return model.Cohesion{LCOM: 1, TCC: 1}
	}
	index := make(map[string]int64, n)
	g := simple.NewUndirectedGraph()
	for i, t := range types {
		index[t] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	connected := 0
	for _, t := range types {
		for to := range in.out[t] {
			j, ok := index[to]
			if !ok || j == index[t] {
				continue
			}
			if g.HasEdgeBetween(index[t], j) {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(index[t]), T: simple.Node(j)})
			connected++
		}
	}
	pairs := n * (n - 1) / 2
	return model.Cohesion{
		LCOM: len(topo.ConnectedComponents(g)),
		TCC:  float64(connected) / float64(pairs),
	}
}
