package model

import (
	"time"

	"legacylens/internal/graph"
)

// DependencyKind tags the construct a dependency was read from.
type DependencyKind string

const (
	DepImport         DependencyKind = "import"
	DepInheritance    DependencyKind = "inheritance"
	DepImplementation DependencyKind = "implementation"
	DepFieldType      DependencyKind = "field_type"
	DepParameterType  DependencyKind = "parameter_type"
	DepReturnType     DependencyKind = "return_type"
	DepAttribute      DependencyKind = "attribute"
	DepInstantiation  DependencyKind = "instantiation"
	DepMethodCall     DependencyKind = "method_call"
	DepTypeUsage      DependencyKind = "type_usage"
	DepPropertyAccess DependencyKind = "property_access"
	DepEvent          DependencyKind = "event"
	DepReflection     DependencyKind = "reflection"
	DepDynamicLoad    DependencyKind = "dynamic_load"
	DepEval           DependencyKind = "eval"
	DepDatabase       DependencyKind = "database"
	DepExternal       DependencyKind = "external"
)

var dependencyStrength = map[DependencyKind]int{
	DepInheritance:    13,
	DepImplementation: 12,
	DepFieldType:      11,
	DepInstantiation:  10,
	DepParameterType:  9,
	DepReturnType:     8,
	DepAttribute:      7,
	DepMethodCall:     6,
	DepDatabase:       5,
	DepTypeUsage:      4,
	DepPropertyAccess: 3,
	DepEvent:          2,
	DepImport:         1,
}

// Strength orders static kinds so one record per pair keeps the strongest.
func (k DependencyKind) Strength() int {
	return dependencyStrength[k]
}

// DependencyScope is the granularity of a static dependency's endpoints.
type DependencyScope string

const (
	ScopeType      DependencyScope = "type"
	ScopeNamespace DependencyScope = "namespace"
)

// StaticDependency is one distinct (From, To) pair read off symbol metadata.
type StaticDependency struct {
	From       string           `json:"from"`
	To         string           `json:"to"`
	Kind       DependencyKind   `json:"kind"`
	Constructs []DependencyKind `json:"constructs"`
	Count      int              `json:"count"`
	Scope      DependencyScope  `json:"scope"`
	Location   Location         `json:"location"`
}

// DynamicDependency is a reflection-style construct found by text pattern.
type DynamicDependency struct {
	From        string         `json:"from"`
	Target      string         `json:"target"`
	ResolvedTo  string         `json:"resolved_to"`
	Kind        DependencyKind `json:"kind"`
	Pattern     string         `json:"pattern"`
	Language    string         `json:"language"`
	Conditional bool           `json:"conditional"`
	Location    Location       `json:"location"`
}

// ExternalDependency is a reference that does not resolve inside the repository.
type ExternalDependency struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Registry       string   `json:"registry"`
	Kind           string   `json:"kind"`
	ReferencedBy   []string `json:"referenced_by"`
	ReferenceCount int      `json:"reference_count"`
}

// DatabaseDependency links code to a database object.
type DatabaseDependency struct {
	From       string   `json:"from"`
	Object     string   `json:"object"`
	Operation  string   `json:"operation"`
	Technology string   `json:"technology"`
	Location   Location `json:"location"`
}

// DependencyNode is the payload of a dependency graph node.
type DependencyNode struct {
	SymbolKind SymbolKind `json:"symbol_kind"`
	Namespace  string     `json:"namespace"`
	Assembly   string     `json:"assembly"`
	Language   string     `json:"language"`
	External   bool       `json:"external"`
}

// DependencyEdge is the payload of a dependency graph edge.
type DependencyEdge struct {
	Constructs []DependencyKind `json:"constructs"`
	Count      int              `json:"count"`
}

// DependencyGraph is the generic graph instantiated for dependencies.
type DependencyGraph = graph.Graph[DependencyNode, DependencyEdge]

// CircularDependency is a closed cycle whose consecutive nodes are joined by
// real graph edges, last node back to first.
type CircularDependency struct {
	Nodes    []string `json:"nodes"`
	Members  []string `json:"members"`
	Length   int      `json:"length"`
	SelfLoop bool     `json:"self_loop"`
}

// DependencyMetrics summarizes the resolver's output.
type DependencyMetrics struct {
	StaticCount   int                    `json:"static_count"`
	DynamicCount  int                    `json:"dynamic_count"`
	ExternalCount int                    `json:"external_count"`
	DatabaseCount int                    `json:"database_count"`
	NodeCount     int                    `json:"node_count"`
	EdgeCount     int                    `json:"edge_count"`
	CycleCount    int                    `json:"cycle_count"`
	MaxFanIn      int                    `json:"max_fan_in"`
	MaxFanOut     int                    `json:"max_fan_out"`
	AverageFanOut float64                `json:"average_fan_out"`
	ByKind        map[DependencyKind]int `json:"by_kind"`
}

// DependencyAnalysis is the dependency resolver's output.
type DependencyAnalysis struct {
	Static   []StaticDependency   `json:"static"`
	Dynamic  []DynamicDependency  `json:"dynamic"`
	External []ExternalDependency `json:"external"`
	Database []DatabaseDependency `json:"database"`
	Graph    DependencyGraph      `json:"graph"`
	Cycles   []CircularDependency `json:"cycles"`
	Metrics  DependencyMetrics    `json:"metrics"`
	Partial  bool                 `json:"partial"`
	Warnings []Warning            `json:"warnings"`
	Duration time.Duration        `json:"duration"`
}
