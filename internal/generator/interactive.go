package generator

import (
	"context"
	"encoding/json"
	"fmt"
)

type d3Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Group string `json:"group"`
	Layer string `json:"layer"`
	Size  int    `json:"size"`
}

type d3Link struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Count  int     `json:"count"`
	Value  float64 `json:"value"`
}

type d3Document struct {
	Level string   `json:"level"`
	Nodes []d3Node `json:"nodes"`
	Links []d3Link `json:"links"`
}

func renderD3(ctx context.Context, in *input, out *sink) error {
	doc := d3Document{Level: in.view.Level, Nodes: []d3Node{}, Links: []d3Link{}}
	for _, n := range in.view.Nodes {
		doc.Nodes = append(doc.Nodes, d3Node{ID: n.ID, Label: n.Label, Kind: n.Kind, Group: n.Group, Layer: n.Layer, Size: n.Size})
	}
	for _, e := range in.view.Edges {
		doc.Links = append(doc.Links, d3Link{Source: e.Source, Target: e.Target, Type: e.Type, Count: e.Count, Value: e.Strength})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalJSON(doc)
	if err != nil {
		return err
	}
	if err := out.write("d3 graph data", "d3/graph.json", "json", data); err != nil {
		return err
	}
	return out.write("d3 viewer", "d3/index.html", "html", []byte(d3Viewer))
}

type cyData struct {
	ID       string  `json:"id"`
	Label    string  `json:"label,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	Parent   string  `json:"parent,omitempty"`
	Layer    string  `json:"layer,omitempty"`
	Source   string  `json:"source,omitempty"`
	Target   string  `json:"target,omitempty"`
	Type     string  `json:"type,omitempty"`
	Count    int     `json:"count,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

type cyElement struct {
	Group string `json:"group"`
	Data  cyData `json:"data"`
}

type cyDocument struct {
	Level    string      `json:"level"`
	Elements []cyElement `json:"elements"`
}

// renderCytoscape writes the view as a cytoscape.js element list. Symbol
// nodes are nested in compound nodes of their component.
func renderCytoscape(ctx context.Context, in *input, out *sink) error {
	doc := cyDocument{Level: in.view.Level, Elements: []cyElement{}}
	if in.view.Level == "symbol" {
		groups := make(map[string]bool)
		for _, n := range in.view.Nodes {
			if n.Group != "" && !groups[n.Group] {
				groups[n.Group] = true
				doc.Elements = append(doc.Elements, cyElement{Group: "nodes",
					Data: cyData{ID: "component:" + n.Group, Label: n.Group, Kind: "component"}})
			}
		}
	}
	for _, n := range in.view.Nodes {
		d := cyData{ID: n.ID, Label: n.Label, Kind: n.Kind, Layer: n.Layer}
		if in.view.Level == "symbol" && n.Group != "" {
			d.Parent = "component:" + n.Group
		}
		doc.Elements = append(doc.Elements, cyElement{Group: "nodes", Data: d})
	}
	for i, e := range in.view.Edges {
		doc.Elements = append(doc.Elements, cyElement{Group: "edges", Data: cyData{
			ID:       fmt.Sprintf("e%d", i),
			Source:   e.Source,
			Target:   e.Target,
			Type:     e.Type,
			Count:    e.Count,
			Strength: e.Strength,
		}})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalJSON(doc)
	if err != nil {
		return err
	}
	if err := out.write("cytoscape graph data", "cytoscape/graph.json", "json", data); err != nil {
		return err
	}
	return out.write("cytoscape viewer", "cytoscape/index.html", "html", []byte(cytoscapeViewer))
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

const d3Viewer = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Dependency graph</title>
<style>body{margin:0;font:12px sans-serif}svg{width:100vw;height:100vh}</style>
<script src="https://cdn.jsdelivr.net/npm/d3@7"></script>
</head>
<body>
<svg></svg>
<script>
fetch("graph.json").then(r => r.json()).then(data => {
  const svg = d3.select("svg"), w = innerWidth, h = innerHeight;
  const color = d3.scaleOrdinal(d3.schemeTableau10);
  const sim = d3.forceSimulation(data.nodes)
    .force("link", d3.forceLink(data.links).id(d => d.id).distance(60))
    .force("charge", d3.forceManyBody().strength(-120))
    .force("center", d3.forceCenter(w / 2, h / 2));
  const link = svg.append("g").attr("stroke", "#999").selectAll("line")
    .data(data.links).join("line").attr("stroke-width", d => 1 + 3 * d.value);
  const node = svg.append("g").selectAll("circle")
    .data(data.nodes).join("circle").attr("r", d => 4 + Math.sqrt(d.size))
    .attr("fill", d => color(d.group));
  node.append("title").text(d => d.id);
  sim.on("tick", () => {
    link.attr("x1", d => d.source.x).attr("y1", d => d.source.y)
      .attr("x2", d => d.target.x).attr("y2", d => d.target.y);
    node.attr("cx", d => d.x).attr("cy", d => d.y);
  });
});
</script>
</body>
</html>
`

const cytoscapeViewer = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Relationship graph</title>
<style>body{margin:0;font:12px sans-serif}#cy{width:100vw;height:100vh}</style>
<script src="https://cdn.jsdelivr.net/npm/cytoscape@3"></script>
</head>
<body>
<div id="cy"></div>
<script>
fetch("graph.json").then(r => r.json()).then(doc => {
  cytoscape({
    container: document.getElementById("cy"),
    elements: doc.elements,
    layout: { name: "cose" },
    style: [
      { selector: "node", style: { label: "data(label)", "font-size": 8 } },
      { selector: "node[kind = 'component']", style: { "background-opacity": 0.1 } },
      { selector: "edge", style: { "curve-style": "bezier", "target-arrow-shape": "triangle", width: 1 } }
    ]
  });
});
</script>
</body>
</html>
`
