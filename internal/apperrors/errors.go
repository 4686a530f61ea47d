// Package apperrors defines the error taxonomy shared by every analysis phase.
//
// Only ConfigurationError and CriticalError ever reach a caller of the
// pipeline; the remaining kinds are recovered where they occur and surfaced
// as warnings on the analysis result.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for warning conversion and reporting.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindIO                  Kind = "io"
	KindParse               Kind = "parse"
	KindGraphConsistency    Kind = "graph_consistency"
	KindVisualizationRender Kind = "visualization_render"
	KindCancelled           Kind = "cancelled"
	KindCritical            Kind = "critical"
	KindUnknown             Kind = "unknown"
)

// ConfigurationError reports an invalid or missing root path or config value.
type ConfigurationError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigurationError creates a configuration error for a field.
func NewConfigurationError(field, value string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration error for %s: %v", e.Field, e.Underlying)
	}
	return fmt.Sprintf("configuration error for %s (value %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Underlying
}

// IOError reports an unreadable file or directory.
type IOError struct {
	Op         string
	Path       string
	Underlying error
	Timestamp  time.Time
}

// NewIOError creates an IO error for an operation on a path.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{
		Op:         op,
		Path:       path,
		Underlying: err,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Underlying)
}

func (e *IOError) Unwrap() error {
	return e.Underlying
}

// ParseError reports a file an extractor could not handle.
type ParseError struct {
	Path       string
	Language   string
	Line       int
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a parse error for a file.
func NewParseError(path, language string, line int, err error) *ParseError {
	return &ParseError{
		Path:       path,
		Language:   language,
		Line:       line,
		Underlying: err,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s (%s) at line %d: %v", e.Path, e.Language, e.Line, e.Underlying)
	}
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Language, e.Underlying)
}

func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// GraphConsistencyError reports an edge that referenced a missing node.
// The graph heals itself with a placeholder node; this error only describes it.
type GraphConsistencyError struct {
	From    string
	To      string
	Missing string
}

func (e *GraphConsistencyError) Error() string {
	return fmt.Sprintf("edge %s -> %s references missing node %s; placeholder inserted", e.From, e.To, e.Missing)
}

// VisualizationRenderError reports a single artifact kind that failed to render.
type VisualizationRenderError struct {
	Artifact   string
	Underlying error
}

func (e *VisualizationRenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Artifact, e.Underlying)
}

func (e *VisualizationRenderError) Unwrap() error {
	return e.Underlying
}

// CriticalError reports a phase whose output is unusable. It stops the pipeline.
type CriticalError struct {
	Phase      string
	State      string
	Underlying error
	Timestamp  time.Time
}

// NewCriticalError creates a critical error for a phase.
func NewCriticalError(phase, state string, err error) *CriticalError {
	return &CriticalError{
		Phase:      phase,
		State:      state,
		Underlying: err,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical failure in phase %s (state %s): %v", e.Phase, e.State, e.Underlying)
}

func (e *CriticalError) Unwrap() error {
	return e.Underlying
}

// Classify returns the taxonomy kind of err.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var (
		cfgErr    *ConfigurationError
		ioErr     *IOError
		parseErr  *ParseError
		graphErr  *GraphConsistencyError
		renderErr *VisualizationRenderError
		critErr   *CriticalError
	)
	switch {
	case errors.As(err, &critErr):
		return KindCritical
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &graphErr):
		return KindGraphConsistency
	case errors.As(err, &renderErr):
		return KindVisualizationRender
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindUnknown
}
