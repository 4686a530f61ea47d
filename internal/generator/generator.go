// Package generator renders the finalized analysis results into a directory
// of independent artifacts: diagrams, interactive graph data with viewers,
// tabular exports and one aggregate report.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/logging"
	"legacylens/internal/model"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options tunes the generator.
type Options struct {
	// Kinds selects the artifact kinds to render. Empty renders all of them.
	Kinds     []model.ArtifactKind
	OutputDir string
	// DiagramCeiling is the relationship count above which graph artifacts
	// collapse to component level. Zero disables summarization.
	DiagramCeiling int
	// Title heads the HTML report.
	Title  string
	Logger logrus.FieldLogger
}

// OptionsFromConfig maps the visualization configuration section.
func OptionsFromConfig(cfg config.VisualizationConfig) Options {
	opts := Options{OutputDir: cfg.OutputDir, DiagramCeiling: cfg.DiagramCeiling}
	for _, k := range cfg.Kinds {
		opts.Kinds = append(opts.Kinds, model.ArtifactKind(k))
	}
	return opts
}

// renderer writes the files of one artifact kind into out.
type renderer func(ctx context.Context, in *input, out *sink) error

// Generator runs the visualization phase.
type Generator struct {
	opts      Options
	log       logrus.FieldLogger
	renderers map[model.ArtifactKind]renderer
	now       func() time.Time
}

// New creates a generator.
func New(opts Options) *Generator {
	if len(opts.Kinds) == 0 {
		opts.Kinds = append([]model.ArtifactKind(nil), model.AllArtifactKinds...)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = config.Default().Visualization.OutputDir
	}
	if opts.Title == "" {
		opts.Title = "Application analysis"
	}
	return &Generator{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseVisualization),
		renderers: map[model.ArtifactKind]renderer{
			model.ArtifactDiagram:   renderDiagrams,
			model.ArtifactD3:        renderD3,
			model.ArtifactCytoscape: renderCytoscape,
			model.ArtifactCSV:       renderCSV,
			model.ArtifactReport:    renderReport,
		},
		now: time.Now,
	}
}

// input is the read-only bundle every renderer works from.
type input struct {
	title      string
	code       *model.CodeAnalysis
	deps       *model.DependencyAnalysis
	arch       *model.ArchitectureAnalysis
	rel        *model.RelationshipMapping
	view       *graphView
	summarized bool
	createdAt  time.Time
}

// kindResult is what one renderer goroutine hands back.
type kindResult struct {
	artifacts []model.Artifact
	err       error
	duration  time.Duration
}

// Generate renders every requested kind concurrently. A failing kind becomes
// a warning on the package and never blocks the others. The only returned
// error is a failure to prepare the output directory.
func (g *Generator) Generate(ctx context.Context, code *model.CodeAnalysis, deps *model.DependencyAnalysis, arch *model.ArchitectureAnalysis, rel *model.RelationshipMapping) (*model.VisualizationPackage, error) {
	start := g.now()
	if code == nil {
		code = &model.CodeAnalysis{}
	}
	if deps == nil {
		deps = &model.DependencyAnalysis{}
	}
	if arch == nil {
		arch = &model.ArchitectureAnalysis{}
	}
	if rel == nil {
		rel = &model.RelationshipMapping{}
	}

	dir, err := prepareOutputDir(g.opts.OutputDir, start)
	if err != nil {
		return nil, err
	}

	pkg := &model.VisualizationPackage{
		OutputDir: dir,
		Artifacts: []model.Artifact{},
		Warnings:  []model.Warning{},
		Report:    model.GenerationReport{StartedAt: start.UTC()},
	}

	in := &input{title: g.opts.Title, code: code, deps: deps, arch: arch, rel: rel, createdAt: start.UTC()}
	if g.opts.DiagramCeiling > 0 && len(rel.Relationships) > g.opts.DiagramCeiling {
		in.summarized = true
		in.view = componentView(arch, rel)
		msg := fmt.Sprintf("%d relationships exceed the diagram ceiling of %d; graphs summarized to %d components",
			len(rel.Relationships), g.opts.DiagramCeiling, len(in.view.Nodes))
		pkg.Warnings = append(pkg.Warnings, model.NewWarning(model.PhaseVisualization, model.SeverityWarning,
			apperrors.KindVisualizationRender, "", msg))
		g.log.Warn(msg)
	} else {
		in.view = symbolView(rel)
	}
	pkg.Report.Summarized = in.summarized
	pkg.Report.NodeCount = len(in.view.Nodes)
	pkg.Report.EdgeCount = len(in.view.Edges)

	kinds := dedupeKinds(g.opts.Kinds)
	report := NewRunReport(dir)
	results := make([]kindResult, len(kinds))
	var eg errgroup.Group
	for i, kind := range kinds {
		eg.Go(func() error {
			results[i] = g.renderKind(ctx, kind, in, dir)
			return nil
		})
	}
	_ = eg.Wait()

	for i, kind := range kinds {
		pkg.Report.Requested = append(pkg.Report.Requested, kind)
		res := results[i]
		report.AddStage(string(kind), res.duration, len(res.artifacts), res.err)
		if res.err != nil {
			pkg.Report.Failed = append(pkg.Report.Failed, kind)
			w := model.WarningFromError(model.PhaseVisualization, res.err)
			pkg.Warnings = append(pkg.Warnings, w)
			report.AddSignal(string(apperrors.Classify(res.err)), string(kind), string(w.Severity), w.Message, 0)
			g.log.WithError(res.err).WithField("kind", kind).Warn("artifact kind failed")
			continue
		}
		pkg.Report.Succeeded = append(pkg.Report.Succeeded, kind)
		pkg.Artifacts = append(pkg.Artifacts, res.artifacts...)
	}
	if in.summarized {
		report.AddSignal("summarized", "diagram", "warning", "graphs collapsed to component level", float64(len(rel.Relationships)))
	}

	finished := g.now()
	pkg.Report.FinishedAt = finished.UTC()
	pkg.Report.Duration = finished.Sub(start)

	if containsKind(pkg.Report.Succeeded, model.ArtifactReport) {
		report.Generation = pkg.Report
		s := newSink(dir, model.ArtifactReport)
		if err := report.Save(s); err != nil {
			pkg.Warnings = append(pkg.Warnings, model.WarningFromError(model.PhaseVisualization,
				&apperrors.VisualizationRenderError{Artifact: "report.json", Underlying: err}))
		} else {
			pkg.Artifacts = append(pkg.Artifacts, s.artifacts...)
		}
	}

	sort.SliceStable(pkg.Artifacts, func(i, j int) bool { return pkg.Artifacts[i].Path < pkg.Artifacts[j].Path })

	g.log.WithFields(logrus.Fields{
		"dir":        dir,
		"artifacts":  len(pkg.Artifacts),
		"failed":     len(pkg.Report.Failed),
		"summarized": in.summarized,
		"duration":   pkg.Report.Duration,
	}).Info("visualization finished")
	return pkg, nil
}

// renderKind runs one renderer, turning panics, errors and cancellation into
// a render error. Files of a failed kind are removed.
func (g *Generator) renderKind(ctx context.Context, kind model.ArtifactKind, in *input, dir string) (res kindResult) {
	start := time.Now()
	out := newSink(dir, kind)
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v", r)
		}
		if res.err != nil {
			out.discard()
			res.err = &apperrors.VisualizationRenderError{Artifact: string(kind), Underlying: res.err}
			res.artifacts = nil
		} else {
			res.artifacts = out.artifacts
		}
		res.duration = time.Since(start)
	}()

	render, ok := g.renderers[kind]
	if !ok {
		res.err = fmt.Errorf("unknown artifact kind %q", kind)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}
	res.err = render(ctx, in, out)
	return res
}

// prepareOutputDir returns a directory that holds nothing from earlier runs.
// An absent or empty base is used as is; otherwise a timestamped
// sub-directory is created under it.
func prepareOutputDir(base string, now time.Time) (string, error) {
	entries, err := os.ReadDir(base)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return "", apperrors.NewIOError("read", base, err)
	case len(entries) > 0:
		stamp := now.UTC().Format("20060102-150405")
		dir := filepath.Join(base, "run-"+stamp)
		for i := 2; exists(dir); i++ {
			dir = filepath.Join(base, fmt.Sprintf("run-%s-%d", stamp, i))
		}
		base = dir
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", apperrors.NewIOError("mkdir", base, err)
	}
	return base, nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func dedupeKinds(kinds []model.ArtifactKind) []model.ArtifactKind {
	seen := make(map[model.ArtifactKind]bool, len(kinds))
	out := make([]model.ArtifactKind, 0, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func containsKind(kinds []model.ArtifactKind, k model.ArtifactKind) bool {
	for _, have := range kinds {
		if have == k {
			return true
		}
	}
	return false
}

// sink writes the files of one kind and records them as artifacts.
type sink struct {
	dir       string
	kind      model.ArtifactKind
	artifacts []model.Artifact
}

func newSink(dir string, kind model.ArtifactKind) *sink {
	return &sink{dir: dir, kind: kind}
}

// write stores data under rel, a slash-separated path inside the package.
func (s *sink) write(name, rel, format string, data []byte) error {
	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return apperrors.NewIOError("mkdir", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return apperrors.NewIOError("write", full, err)
	}
	s.artifacts = append(s.artifacts, model.Artifact{
		Kind:     s.kind,
		Name:     name,
		Path:     path.Clean(rel),
		Format:   format,
		Size:     int64(len(data)),
		Checksum: fmt.Sprintf("%016x", xxhash.Sum64(data)),
	})
	return nil
}

func (s *sink) discard() {
	for _, a := range s.artifacts {
		os.Remove(filepath.Join(s.dir, filepath.FromSlash(a.Path)))
	}
	s.artifacts = nil
}
