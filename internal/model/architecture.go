package model

import (
	"time"

	"legacylens/internal/graph"
)

// Tier is an architectural layer signal.
type Tier string

const (
	TierPresentation Tier = "presentation"
	TierBusiness     Tier = "business"
	TierData         Tier = "data"
	TierDomain       Tier = "domain"
	TierCrossCutting Tier = "cross_cutting"
	TierUnknown      Tier = "unknown"
)

// Layer levels ascend from the outermost tier inward. Unranked tiers are
// exempt from violation checks.
const (
	LevelUnranked     = -1
	LevelPresentation = 0
	LevelBusiness     = 1
	LevelData         = 2
	LevelDomain       = 3
)

// Level returns the fixed level of a tier.
func (t Tier) Level() int {
	switch t {
	case TierPresentation:
		return LevelPresentation
	case TierBusiness:
		return LevelBusiness
	case TierData:
		return LevelData
	case TierDomain:
		return LevelDomain
	}
	return LevelUnranked
}

// IsLayerViolation reports whether a dependency from a layer at level from
// to a layer at level to points outward, from an inner layer to an outer one.
func IsLayerViolation(from, to int) bool {
	return from != LevelUnranked && to != LevelUnranked && from > to
}

// Layer groups components of one tier.
type Layer struct {
	Name        string   `json:"name"`
	Tier        Tier     `json:"tier"`
	Level       int      `json:"level"`
	Components  []string `json:"components"`
	SymbolCount int      `json:"symbol_count"`
}

// Cohesion of a component: LCOM counts disconnected groups of types (lower
// is better); TCC is the ratio of directly connected type pairs.
type Cohesion struct {
	LCOM int     `json:"lcom"`
	TCC  float64 `json:"tcc"`
}

// Coupling of a component against the rest of the codebase.
type Coupling struct {
	Afferent     int     `json:"afferent"`
	Efferent     int     `json:"efferent"`
	Instability  float64 `json:"instability"`
	Abstractness float64 `json:"abstractness"`
	Distance     float64 `json:"distance"`
}

// Component groups the types of one namespace.
type Component struct {
	Name        string   `json:"name"`
	Assembly    string   `json:"assembly"`
	Tier        Tier     `json:"tier"`
	Role        string   `json:"role"`
	Layer       string   `json:"layer"`
	Level       int      `json:"level"`
	Types       []string `json:"types"`
	SymbolCount int      `json:"symbol_count"`
	DependsOn   []string `json:"depends_on"`
	Cohesion    Cohesion `json:"cohesion"`
	Coupling    Coupling `json:"coupling"`
}

// Module groups components of one project or assembly.
type Module struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Kind        string   `json:"kind"`
	Components  []string `json:"components"`
	SymbolCount int      `json:"symbol_count"`
}

// ArchitecturePattern is the inferred overall shape.
type ArchitecturePattern string

const (
	PatternLayered ArchitecturePattern = "layered"
	PatternMVC     ArchitecturePattern = "mvc"
	PatternUnknown ArchitecturePattern = "unknown"
)

// DesignPatternKind names a detected structural design pattern.
type DesignPatternKind string

const (
	DesignSingleton  DesignPatternKind = "singleton"
	DesignFactory    DesignPatternKind = "factory"
	DesignRepository DesignPatternKind = "repository"
	DesignObserver   DesignPatternKind = "observer"
	DesignStrategy   DesignPatternKind = "strategy"
	DesignDecorator  DesignPatternKind = "decorator"
	DesignBuilder    DesignPatternKind = "builder"
	DesignAdapter    DesignPatternKind = "adapter"
)

// DesignPattern is a structural match. Confidence is Satisfied/Total.
type DesignPattern struct {
	Kind         DesignPatternKind `json:"kind"`
	Anchor       string            `json:"anchor"`
	Participants []string          `json:"participants"`
	Confidence   float64           `json:"confidence"`
	Satisfied    []string          `json:"satisfied"`
	Total        int               `json:"total"`
	Location     Location          `json:"location"`
}

// ViolationKind names an architectural rule.
type ViolationKind string

const (
	ViolationGodClass   ViolationKind = "god_class"
	ViolationLayer      ViolationKind = "layer_violation"
	ViolationCyclicDeps ViolationKind = "cyclic_dependency"
)

// ViolationSeverity grades an architectural violation.
type ViolationSeverity string

const (
	ViolationLow    ViolationSeverity = "low"
	ViolationMedium ViolationSeverity = "medium"
	ViolationHigh   ViolationSeverity = "high"
)

// ArchitecturalViolation is one broken architectural rule.
type ArchitecturalViolation struct {
	Kind        ViolationKind     `json:"kind"`
	Severity    ViolationSeverity `json:"severity"`
	Symbol      string            `json:"symbol"`
	From        string            `json:"from"`
	To          string            `json:"to"`
	Location    Location          `json:"location"`
	Description string            `json:"description"`
	Value       float64           `json:"value"`
	Threshold   float64           `json:"threshold"`
}

// ComponentNode is the payload of a component graph node.
type ComponentNode struct {
	Tier      Tier `json:"tier"`
	Level     int  `json:"level"`
	TypeCount int  `json:"type_count"`
}

// ComponentEdge is the payload of a component graph edge.
type ComponentEdge struct {
	Count      int              `json:"count"`
	Constructs []DependencyKind `json:"constructs"`
}

// ComponentGraph is the generic graph instantiated for components.
type ComponentGraph = graph.Graph[ComponentNode, ComponentEdge]

// ArchitectureMetrics summarizes the analyzer's output.
type ArchitectureMetrics struct {
	LayerCount          int     `json:"layer_count"`
	ComponentCount      int     `json:"component_count"`
	ModuleCount         int     `json:"module_count"`
	DesignPatternCount  int     `json:"design_pattern_count"`
	ViolationCount      int     `json:"violation_count"`
	ForwardFlowRatio    float64 `json:"forward_flow_ratio"`
	AverageInstability  float64 `json:"average_instability"`
	AverageTCC          float64 `json:"average_tcc"`
	GodClassMemberLimit float64 `json:"god_class_member_limit"`
	GodClassComplexity  float64 `json:"god_class_complexity_limit"`
}

// ArchitectureAnalysis is the architecture analyzer's output.
type ArchitectureAnalysis struct {
	Pattern           ArchitecturePattern      `json:"pattern"`
	PatternConfidence float64                  `json:"pattern_confidence"`
	Layers            []Layer                  `json:"layers"`
	Components        []Component              `json:"components"`
	Modules           []Module                 `json:"modules"`
	DesignPatterns    []DesignPattern          `json:"design_patterns"`
	Violations        []ArchitecturalViolation `json:"violations"`
	ComponentGraph    ComponentGraph           `json:"component_graph"`
	Metrics           ArchitectureMetrics      `json:"metrics"`
	Partial           bool                     `json:"partial"`
	Warnings          []Warning                `json:"warnings"`
	Duration          time.Duration            `json:"duration"`
}

// ComponentOf returns the component that contains typeName.
func (a *ArchitectureAnalysis) ComponentOf(typeName string) (Component, bool) {
	for _, c := range a.Components {
		for _, t := range c.Types {
			if t == typeName {
				return c, true
			}
		}
	}
	return Component{}, false
}
