// Package model holds the data shared by every analysis phase. Each phase
// produces one of the result types below and never mutates the results of
// the phases before it.
package model

import "time"

// SchemaVersion is written into every saved document. Loaders reject other
// major versions.
const SchemaVersion = "1.0"

// Status is the terminal state of a pipeline run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// GitRevision identifies the analyzed working tree.
type GitRevision struct {
	Commit string `json:"commit"`
	Branch string `json:"branch"`
	Dirty  bool   `json:"dirty"`
}

// PhaseTiming records how one phase ended.
type PhaseTiming struct {
	Phase     string        `json:"phase"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Partial   bool          `json:"partial"`
	Failed    bool          `json:"failed"`
}

// ApplicationMetrics aggregates headline figures across phases.
type ApplicationMetrics struct {
	TotalFiles           int           `json:"total_files"`
	SourceFiles          int           `json:"source_files"`
	TotalLines           int           `json:"total_lines"`
	TotalSymbols         int           `json:"total_symbols"`
	TypeCount            int           `json:"type_count"`
	MethodCount          int           `json:"method_count"`
	StaticDependencies   int           `json:"static_dependencies"`
	ExternalDependencies int           `json:"external_dependencies"`
	CircularDependencies int           `json:"circular_dependencies"`
	ComponentCount       int           `json:"component_count"`
	LayerCount           int           `json:"layer_count"`
	ViolationCount       int           `json:"violation_count"`
	RelationshipCount    int           `json:"relationship_count"`
	WarningCount         int           `json:"warning_count"`
	AverageComplexity    float64       `json:"average_complexity"`
	Quality              QualityScores `json:"quality"`
}

// ApplicationAnalysis is the root aggregate of one pipeline run.
type ApplicationAnalysis struct {
	SchemaVersion string                `json:"schema_version"`
	Name          string                `json:"name"`
	RootPath      string                `json:"root_path"`
	Git           *GitRevision          `json:"git"`
	AnalyzedAt    time.Time             `json:"analyzed_at"`
	Duration      time.Duration         `json:"duration"`
	Status        Status                `json:"status"`
	Partial       bool                  `json:"partial"`
	FileSystem    FileSystemAnalysis    `json:"file_system"`
	Code          CodeAnalysis          `json:"code"`
	Dependencies  DependencyAnalysis    `json:"dependencies"`
	Architecture  ArchitectureAnalysis  `json:"architecture"`
	Relationships RelationshipMapping   `json:"relationships"`
	Visualization *VisualizationPackage `json:"visualization"`
	Metrics       ApplicationMetrics    `json:"metrics"`
	Phases        []PhaseTiming         `json:"phases"`
	Warnings      []Warning             `json:"warnings"`
}

// NewApplicationAnalysis starts an empty analysis for a root path.
func NewApplicationAnalysis(name, root string) *ApplicationAnalysis {
	return &ApplicationAnalysis{
		SchemaVersion: SchemaVersion,
		Name:          name,
		RootPath:      root,
		AnalyzedAt:    time.Now().UTC(),
		Warnings:      []Warning{},
	}
}

// AddWarning appends warnings. The list is never reordered or truncated.
func (a *ApplicationAnalysis) AddWarning(ws ...Warning) {
	a.Warnings = append(a.Warnings, ws...)
}

// WarningsWithSeverity returns the warnings of one severity.
func (a *ApplicationAnalysis) WarningsWithSeverity(s Severity) []Warning {
	var out []Warning
	for _, w := range a.Warnings {
		if w.Severity == s {
			out = append(out, w)
		}
	}
	return out
}

// WarningsOfKind returns the warnings of one error kind.
func (a *ApplicationAnalysis) WarningsOfKind(kind string) []Warning {
	var out []Warning
	for _, w := range a.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}
