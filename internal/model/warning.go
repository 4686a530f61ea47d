package model

import (
	"errors"
	"time"

	"legacylens/internal/apperrors"
)

// Phase names used in warnings, timings and logs.
const (
	PhasePipeline      = "pipeline"
	PhaseCrawl         = "crawl"
	PhaseCodeAnalysis  = "code_analysis"
	PhaseDependencies  = "dependency_resolution"
	PhaseArchitecture  = "architecture_analysis"
	PhaseRelationships = "relationship_mapping"
	PhaseVisualization = "visualization"
)

// Severity grades a warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Warning is a recovered problem surfaced as data on an analysis result.
type Warning struct {
	Phase     string    `json:"phase"`
	Severity  Severity  `json:"severity"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWarning builds a warning stamped with the current time.
func NewWarning(phase string, severity Severity, kind apperrors.Kind, path, message string) Warning {
	return Warning{
		Phase:     phase,
		Severity:  severity,
		Kind:      string(kind),
		Path:      path,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// WarningFromError converts a recovered error into a warning, picking the
// severity and path from the error's taxonomy kind.
func WarningFromError(phase string, err error) Warning {
	kind := apperrors.Classify(err)
	severity := SeverityWarning
	switch kind {
	case apperrors.KindCritical:
		severity = SeverityCritical
	case apperrors.KindConfiguration:
		severity = SeverityError
	}

	var path string
	var (
		ioErr     *apperrors.IOError
		parseErr  *apperrors.ParseError
		renderErr *apperrors.VisualizationRenderError
		graphErr  *apperrors.GraphConsistencyError
	)
	switch {
	case errors.As(err, &parseErr):
		path = parseErr.Path
	case errors.As(err, &ioErr):
		path = ioErr.Path
	case errors.As(err, &renderErr):
		path = renderErr.Artifact
	case errors.As(err, &graphErr):
		path = graphErr.Missing
	}
	return NewWarning(phase, severity, kind, path, err.Error())
}
