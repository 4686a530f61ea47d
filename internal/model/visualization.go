package model

import "time"

// ArtifactKind is an independently generated visualization output.
type ArtifactKind string

const (
	ArtifactDiagram   ArtifactKind = "diagram"
	ArtifactD3        ArtifactKind = "d3"
	ArtifactCytoscape ArtifactKind = "cytoscape"
	ArtifactCSV       ArtifactKind = "csv"
	ArtifactReport    ArtifactKind = "report"
)

// AllArtifactKinds lists the kinds in generation order.
var AllArtifactKinds = []ArtifactKind{
	ArtifactDiagram,
	ArtifactD3,
	ArtifactCytoscape,
	ArtifactCSV,
	ArtifactReport,
}

// Artifact is one written file. Path is relative to the package directory.
type Artifact struct {
	Kind     ArtifactKind `json:"kind"`
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Format   string       `json:"format"`
	Size     int64        `json:"size"`
	Checksum string       `json:"checksum"`
}

// GenerationReport is the package's generation metadata.
type GenerationReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration"`
	Requested  []ArtifactKind `json:"requested"`
	Succeeded  []ArtifactKind `json:"succeeded"`
	Failed     []ArtifactKind `json:"failed"`
	Summarized bool           `json:"summarized"`
	NodeCount  int            `json:"node_count"`
	EdgeCount  int            `json:"edge_count"`
}

// VisualizationPackage is the generator's output.
type VisualizationPackage struct {
	OutputDir string           `json:"output_dir"`
	Artifacts []Artifact       `json:"artifacts"`
	Report    GenerationReport `json:"report"`
	Warnings  []Warning        `json:"warnings"`
}
