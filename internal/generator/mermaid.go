package generator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"legacylens/internal/model"
)

// MermaidGenerator creates Mermaid diagrams from the analysis results.
type MermaidGenerator struct {
	code *model.CodeAnalysis
	arch *model.ArchitectureAnalysis
	rel  *model.RelationshipMapping

	owners map[string]string
}

// NewMermaidGenerator indexes member ownership so member-level relationships
// can be drawn between their declaring types.
func NewMermaidGenerator(code *model.CodeAnalysis, arch *model.ArchitectureAnalysis, rel *model.RelationshipMapping) *MermaidGenerator {
	m := &MermaidGenerator{code: code, arch: arch, rel: rel, owners: make(map[string]string)}
	byName := make(map[string]model.CodeSymbol, len(code.Symbols))
	for _, s := range code.Symbols {
		byName[s.FullName] = s
	}
	for _, s := range code.Symbols {
		cur := s
		for i := 0; i < 8 && !cur.Kind.IsType() && cur.Parent != ""; i++ {
			p, ok := byName[cur.Parent]
			if !ok {
				break
			}
			cur = p
		}
		if cur.Kind.IsType() {
			m.owners[s.FullName] = cur.FullName
		}
	}
	return m
}

func (m *MermaidGenerator) ownerType(name string, kind model.SymbolKind) string {
	if kind.IsType() {
		return name
	}
	return m.owners[name]
}

var classArrows = map[model.RelationshipType]string{
	model.RelInheritance:    "<|--",
	model.RelImplementation: "<|..",
	model.RelComposition:    "*--",
	model.RelAggregation:    "o--",
	model.RelAssociation:    "-->",
	model.RelMethodCall:     "..>",
	model.RelPropertyAccess: "..>",
	model.RelEvent:          "..>",
}

// GenerateClassDiagram draws every type that takes part in a relationship.
// Member-level relationships are lifted to their owner types and collapsed
// to the highest-precedence type per pair.
func (m *MermaidGenerator) GenerateClassDiagram() string {
	type edge struct{ from, to string }
	edges := make(map[edge]model.RelationshipType)
	types := make(map[string]bool)
	for _, r := range m.rel.Relationships {
		from := m.ownerType(r.Source, r.SourceKind)
		to := m.ownerType(r.Target, r.TargetKind)
		if from == "" || to == "" || from == to {
			continue
		}
		types[from], types[to] = true, true
		k := edge{from, to}
		if cur, ok := edges[k]; !ok || r.Type.Precedence() > cur.Precedence() {
			edges[k] = r.Type
		}
	}

	kinds := make(map[string]model.SymbolKind)
	for _, s := range m.code.Symbols {
		if types[s.FullName] {
			kinds[s.FullName] = s.Kind
		}
	}

	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("classDiagram\n")
	for _, t := range names {
		sb.WriteString(fmt.Sprintf("    class %s[\"%s\"]\n", sanitizeMermaidID(t), mermaidLabel(t)))
		switch kinds[t] {
		case model.KindInterface:
			sb.WriteString(fmt.Sprintf("    <<interface>> %s\n", sanitizeMermaidID(t)))
		case model.KindEnum:
			sb.WriteString(fmt.Sprintf("    <<enumeration>> %s\n", sanitizeMermaidID(t)))
		}
	}

	keys := make([]edge, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	for _, k := range keys {
		typ := edges[k]
		from, to := sanitizeMermaidID(k.from), sanitizeMermaidID(k.to)
		switch typ {
		case model.RelInheritance, model.RelImplementation, model.RelComposition, model.RelAggregation:
			// Mermaid puts the base or owner on the left of these arrows.
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", to, classArrows[typ], from))
		default:
			sb.WriteString(fmt.Sprintf("    %s %s %s : %s\n", from, classArrows[typ], to, typ))
		}
	}
	return sb.String()
}

// GenerateComponentDiagram emits the component graph, one subgraph per layer.
func (m *MermaidGenerator) GenerateComponentDiagram() string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	byLayer := make(map[string][]model.Component)
	for _, c := range m.arch.Components {
		byLayer[c.Layer] = append(byLayer[c.Layer], c)
	}
	layers := m.orderedLayers(byLayer)
	for _, layer := range layers {
		comps := byLayer[layer]
		sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
		label := layer
		if label == "" {
			label = "unassigned"
		}
		sb.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", sanitizeMermaidID("layer_"+label), mermaidLabel(label)))
		for _, c := range comps {
			sb.WriteString(fmt.Sprintf("        %s[\"%s (%d)\"]\n", sanitizeMermaidID(c.Name), mermaidLabel(c.Name), len(c.Types)))
		}
		sb.WriteString("    end\n")
	}

	for _, e := range m.rel.Views.Components {
		sb.WriteString(fmt.Sprintf("    %s -->|%d| %s\n", sanitizeMermaidID(e.Source), e.Count, sanitizeMermaidID(e.Target)))
	}
	return sb.String()
}

// GenerateLayerDiagram emits the layer graph. Edges that point outward are
// drawn dotted and labeled as violations.
func (m *MermaidGenerator) GenerateLayerDiagram() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	layers := append([]model.Layer(nil), m.arch.Layers...)
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].Level != layers[j].Level {
			return layerRank(layers[i].Level) < layerRank(layers[j].Level)
		}
		return layers[i].Name < layers[j].Name
	})
	for _, l := range layers {
		sb.WriteString(fmt.Sprintf("    %s[\"%s: %d components\"]\n", sanitizeMermaidID("layer_"+l.Name), mermaidLabel(l.Name), len(l.Components)))
	}

	var violations []string
	link := 0
	for _, e := range m.rel.Views.Layers {
		if e.SourceLayer == e.TargetLayer {
			continue
		}
		from, to := sanitizeMermaidID("layer_"+e.SourceLayer), sanitizeMermaidID("layer_"+e.TargetLayer)
		if e.IsViolation {
			sb.WriteString(fmt.Sprintf("    %s -.->|%d violations| %s\n", from, e.Count, to))
			violations = append(violations, fmt.Sprint(link))
		} else {
			sb.WriteString(fmt.Sprintf("    %s -->|%d| %s\n", from, e.Count, to))
		}
		link++
	}
	if len(violations) > 0 {
		sb.WriteString(fmt.Sprintf("    linkStyle %s stroke:#c0392b\n", strings.Join(violations, ",")))
	}
	return sb.String()
}

// orderedLayers returns layer names from the outermost level inward.
func (m *MermaidGenerator) orderedLayers(byLayer map[string][]model.Component) []string {
	level := make(map[string]int, len(m.arch.Layers))
	for _, l := range m.arch.Layers {
		level[l.Name] = l.Level
	}
	names := make([]string, 0, len(byLayer))
	for name := range byLayer {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := layerRank(level[names[i]]), layerRank(level[names[j]])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return names
}

// layerRank sorts unranked layers last.
func layerRank(level int) int {
	if level == model.LevelUnranked {
		return 1 << 20
	}
	return level
}

func mermaidLabel(v string) string {
	return strings.NewReplacer(`"`, "'", "\n", " ", "<", "&lt;", ">", "&gt;").Replace(v)
}

var mermaidIDPattern = regexp.MustCompile(`[^a-z0-9_]`)

func sanitizeMermaidID(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "node"
	}
	v = mermaidIDPattern.ReplaceAllString(strings.ReplaceAll(v, "-", "_"), "_")
	if v == "" {
		return "node"
	}
	if v[0] >= '0' && v[0] <= '9' {
		v = "n_" + v
	}
	return v
}
