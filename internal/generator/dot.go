package generator

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

type attrs []encoding.Attribute

func (a attrs) Attributes() []encoding.Attribute { return a }

type dotNode struct {
	id    int64
	name  string
	attrs attrs
}

func (n dotNode) ID() int64                         { return n.id }
func (n dotNode) DOTID() string                     { return n.name }
func (n dotNode) Attributes() []encoding.Attribute { return n.attrs }

type dotEdge struct {
	from, to dotNode
	attrs    attrs
}

func (e dotEdge) From() graph.Node                  { return e.from }
func (e dotEdge) To() graph.Node                    { return e.to }
func (e dotEdge) ReversedEdge() graph.Edge          { return dotEdge{from: e.to, to: e.from, attrs: e.attrs} }
func (e dotEdge) Attributes() []encoding.Attribute { return e.attrs }

// dotGraph adds graph-wide attributes to a simple directed graph.
type dotGraph struct {
	*simple.DirectedGraph
}

func (dotGraph) DOTAttributers() (g, n, e encoding.Attributer) {
	return attrs{{Key: "rankdir", Value: "LR"}},
		attrs{{Key: "shape", Value: "box"}, {Key: "fontsize", Value: "10"}},
		attrs{{Key: "fontsize", Value: "8"}}
}

var edgeStyles = map[string]string{
	"inheritance":    "empty",
	"implementation": "empty",
	"composition":    "diamond",
	"aggregation":    "odiamond",
}

// renderDOT encodes the view as a Graphviz digraph.
func renderDOT(v *graphView) ([]byte, error) {
	g := dotGraph{simple.NewDirectedGraph()}
	nodes := make(map[string]dotNode, len(v.Nodes))
	for i, n := range v.Nodes {
		a := attrs{{Key: "label", Value: n.Label}}
		if n.Group != "" {
			a = append(a, encoding.Attribute{Key: "tooltip", Value: n.Group})
		}
		dn := dotNode{id: int64(i), name: n.ID, attrs: a}
		nodes[n.ID] = dn
		g.AddNode(dn)
	}
	for _, e := range v.Edges {
		from, ok1 := nodes[e.Source]
		to, ok2 := nodes[e.Target]
		if !ok1 || !ok2 || e.Source == e.Target {
			continue
		}
		a := attrs{{Key: "label", Value: fmt.Sprintf("%s (%d)", e.Type, e.Count)}}
		if head, ok := edgeStyles[e.Type]; ok {
			a = append(a, encoding.Attribute{Key: "arrowhead", Value: head})
		}
		if e.Type == "implementation" {
			a = append(a, encoding.Attribute{Key: "style", Value: "dashed"})
		}
		g.SetEdge(dotEdge{from: from, to: to, attrs: a})
	}
	name := "dependencies"
	if v.Level == "component" {
		name = "components"
	}
	data, err := dot.Marshal(g, name, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode dot: %w", err)
	}
	return append(data, '\n'), nil
}
