package model

import "time"

// RelationshipType tags a canonical relationship.
type RelationshipType string

const (
	RelInheritance    RelationshipType = "inheritance"
	RelImplementation RelationshipType = "implementation"
	RelComposition    RelationshipType = "composition"
	RelAggregation    RelationshipType = "aggregation"
	RelAssociation    RelationshipType = "association"
	RelMethodCall     RelationshipType = "method_call"
	RelPropertyAccess RelationshipType = "property_access"
	RelEvent          RelationshipType = "event"
)

// RelationshipTypes lists every type from highest to lowest precedence.
var RelationshipTypes = []RelationshipType{
	RelInheritance,
	RelImplementation,
	RelComposition,
	RelAggregation,
	RelAssociation,
	RelMethodCall,
	RelPropertyAccess,
	RelEvent,
}

// Precedence is higher for types that win when several apply to one pair.
func (t RelationshipType) Precedence() int {
	for i, rt := range RelationshipTypes {
		if rt == t {
			return len(RelationshipTypes) - i
		}
	}
	return 0
}

// Direction of a relationship.
type Direction string

const (
	DirectionOutgoing      Direction = "unidirectional"
	DirectionBidirectional Direction = "bidirectional"
)

// Relationship is the canonical pairwise record. Every other relationship
// view is computed from a list of these.
type Relationship struct {
	ID              string            `json:"id"`
	Source          string            `json:"source"`
	Target          string            `json:"target"`
	Type            RelationshipType  `json:"type"`
	Strength        float64           `json:"strength"`
	Direction       Direction         `json:"direction"`
	Count           int               `json:"count"`
	SourceKind      SymbolKind        `json:"source_kind"`
	TargetKind      SymbolKind        `json:"target_kind"`
	SourceComponent string            `json:"source_component"`
	TargetComponent string            `json:"target_component"`
	SourceLayer     string            `json:"source_layer"`
	TargetLayer     string            `json:"target_layer"`
	SourceLevel     int               `json:"source_level"`
	TargetLevel     int               `json:"target_level"`
	Metadata        map[string]string `json:"metadata"`
}

// ComponentRelationship aggregates relationships between two components.
type ComponentRelationship struct {
	Source   string                   `json:"source"`
	Target   string                   `json:"target"`
	Count    int                      `json:"count"`
	Strength float64                  `json:"strength"`
	Types    map[RelationshipType]int `json:"types"`
}

// LayerRelationship aggregates relationships between two layers.
type LayerRelationship struct {
	SourceLayer string `json:"source_layer"`
	TargetLayer string `json:"target_layer"`
	SourceLevel int    `json:"source_level"`
	TargetLevel int    `json:"target_level"`
	Count       int    `json:"count"`
	IsViolation bool   `json:"is_violation"`
}

// MatrixEntry is one non-zero cell of the dependency matrix.
type MatrixEntry struct {
	Row      int     `json:"row"`
	Column   int     `json:"column"`
	Count    int     `json:"count"`
	Strength float64 `json:"strength"`
}

// DependencyMatrix is a sparse component-by-component matrix.
type DependencyMatrix struct {
	Labels  []string      `json:"labels"`
	Entries []MatrixEntry `json:"entries"`
}

// CallHierarchyNode is the call adjacency of one callable. Depth is the BFS
// distance from the nearest root, or -1 when only reachable through a cycle.
type CallHierarchyNode struct {
	Method  string   `json:"method"`
	Callers []string `json:"callers"`
	Callees []string `json:"callees"`
	Depth   int      `json:"depth"`
	IsRoot  bool     `json:"is_root"`
	IsLeaf  bool     `json:"is_leaf"`
}

// InheritanceNode is the base/derived adjacency of one type.
type InheritanceNode struct {
	Type    string   `json:"type"`
	Bases   []string `json:"bases"`
	Derived []string `json:"derived"`
	Depth   int      `json:"depth"`
	IsRoot  bool     `json:"is_root"`
	IsLeaf  bool     `json:"is_leaf"`
}

// RelationshipMetrics summarizes the canonical list.
type RelationshipMetrics struct {
	Total               int                      `json:"total"`
	ByType              map[RelationshipType]int `json:"by_type"`
	AverageStrength     float64                  `json:"average_strength"`
	MaxCallDepth        int                      `json:"max_call_depth"`
	MaxInheritanceDepth int                      `json:"max_inheritance_depth"`
	LayerViolations     int                      `json:"layer_violations"`
}

// RelationshipViews holds every projection of the canonical list.
type RelationshipViews struct {
	Components      []ComponentRelationship `json:"components"`
	Layers          []LayerRelationship     `json:"layers"`
	Matrix          DependencyMatrix        `json:"matrix"`
	CallHierarchy   []CallHierarchyNode     `json:"call_hierarchy"`
	InheritanceTree []InheritanceNode       `json:"inheritance_tree"`
	Metrics         RelationshipMetrics     `json:"metrics"`
}

// RelationshipMapping is the relationship mapper's output.
type RelationshipMapping struct {
	Relationships []Relationship    `json:"relationships"`
	Views         RelationshipViews `json:"views"`
	Partial       bool              `json:"partial"`
	Warnings      []Warning         `json:"warnings"`
	Duration      time.Duration     `json:"duration"`
}

// OfType returns the canonical relationships of type t.
func (m *RelationshipMapping) OfType(t RelationshipType) []Relationship {
	var out []Relationship
	for _, r := range m.Relationships {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

func (m *RelationshipMapping) Inheritance() []Relationship     { return m.OfType(RelInheritance) }
func (m *RelationshipMapping) Implementations() []Relationship { return m.OfType(RelImplementation) }
func (m *RelationshipMapping) Compositions() []Relationship    { return m.OfType(RelComposition) }
func (m *RelationshipMapping) Aggregations() []Relationship    { return m.OfType(RelAggregation) }
func (m *RelationshipMapping) Associations() []Relationship    { return m.OfType(RelAssociation) }
func (m *RelationshipMapping) MethodCalls() []Relationship     { return m.OfType(RelMethodCall) }
func (m *RelationshipMapping) PropertyAccesses() []Relationship {
	return m.OfType(RelPropertyAccess)
}
func (m *RelationshipMapping) Events() []Relationship { return m.OfType(RelEvent) }
