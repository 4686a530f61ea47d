// Package architecture infers tiers, layers, components and modules from the
// code and dependency analyses, classifies the overall architecture, detects
// design patterns and reports architectural violations.
package architecture

import (
	"context"
	"fmt"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/logging"
	"legacylens/internal/model"
	"legacylens/internal/symbols"

	"github.com/sirupsen/logrus"
)

// Grouping strategies for components.
const (
	GroupByNamespace = "namespace"
	GroupByAssembly  = "assembly"
)

// Options tunes the analyzer. Zero values fall back to the defaults of
// config.Default.
type Options struct {
	GodClassPercentile float64
	GodClassMinMembers int
	PatternThreshold   float64
	LayeredFlowRatio   float64
	GroupBy            string
	Logger             logrus.FieldLogger
}

// OptionsFromConfig maps the architecture configuration section.
func OptionsFromConfig(cfg config.ArchitectureConfig) Options {
	return Options{
		GodClassPercentile: cfg.GodClassPercentile,
		GodClassMinMembers: cfg.GodClassMinMembers,
		PatternThreshold:   cfg.PatternThreshold,
		LayeredFlowRatio:   cfg.LayeredFlowRatio,
		GroupBy:            cfg.GroupBy,
	}
}

// Analyzer runs the architecture phase.
type Analyzer struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates an analyzer.
func New(opts Options) *Analyzer {
	def := config.Default().Architecture
	if opts.GodClassPercentile <= 0 || opts.GodClassPercentile >= 1 {
		opts.GodClassPercentile = def.GodClassPercentile
	}
	if opts.GodClassMinMembers <= 0 {
		opts.GodClassMinMembers = def.GodClassMinMembers
	}
	if opts.PatternThreshold <= 0 {
		opts.PatternThreshold = def.PatternThreshold
	}
	if opts.LayeredFlowRatio <= 0 {
		opts.LayeredFlowRatio = def.LayeredFlowRatio
	}
	if opts.GroupBy == "" {
		opts.GroupBy = GroupByNamespace
	}
	return &Analyzer{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseArchitecture),
	}
}

// input bundles what every step reads.
type input struct {
	code *model.CodeAnalysis
	deps *model.DependencyAnalysis
	ix   *symbols.Index
	// unit -> component name
	compOf map[string]string
	// from unit -> to unit -> static dependency
	out map[string]map[string]model.StaticDependency
	in  map[string]map[string]model.StaticDependency
}

func newInput(code *model.CodeAnalysis, deps *model.DependencyAnalysis) *input {
	in := &input{
		code:   code,
		deps:   deps,
		ix:     symbols.New(code),
		compOf: make(map[string]string),
		out:    make(map[string]map[string]model.StaticDependency),
		in:     make(map[string]map[string]model.StaticDependency),
	}
	for _, d := range deps.Static {
		if d.Scope != model.ScopeType {
			continue
		}
		if in.out[d.From] == nil {
			in.out[d.From] = make(map[string]model.StaticDependency)
		}
		if in.in[d.To] == nil {
			in.in[d.To] = make(map[string]model.StaticDependency)
		}
		in.out[d.From][d.To] = d
		in.in[d.To][d.From] = d
	}
	return in
}

// Analyze derives the architecture. On cancellation the components built so
// far are returned with Partial set and one warning; steps that did not run
// leave their lists empty.
func (a *Analyzer) Analyze(ctx context.Context, code *model.CodeAnalysis, deps *model.DependencyAnalysis) *model.ArchitectureAnalysis {
	start := time.Now()
	if code == nil {
		code = &model.CodeAnalysis{}
	}
	if deps == nil {
		deps = &model.DependencyAnalysis{}
	}
	arch := &model.ArchitectureAnalysis{
		Pattern:        model.PatternUnknown,
		Layers:         []model.Layer{},
		Components:     []model.Component{},
		Modules:        []model.Module{},
		DesignPatterns: []model.DesignPattern{},
		Violations:     []model.ArchitecturalViolation{},
		Warnings:       []model.Warning{},
	}
	in := newInput(code, deps)

	steps := []struct {
		name string
		run  func(context.Context, *input, *model.ArchitectureAnalysis) error
	}{
		{"components", a.components},
		{"layers", func(_ context.Context, in *input, arch *model.ArchitectureAnalysis) error {
			arch.Layers = buildLayers(arch.Components)
			arch.Modules = buildModules(in.code, arch.Components)
			return nil
		}},
		{"component_graph", func(ctx context.Context, in *input, arch *model.ArchitectureAnalysis) error {
			return a.componentGraph(ctx, in, arch)
		}},
		{"metrics", computeComponentMetrics},
		{"pattern", a.classify},
		{"design_patterns", a.designPatterns},
		{"violations", a.violations},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		if err := step.run(ctx, in, arch); err != nil {
			a.log.WithError(err).WithField("step", step.name).Warn("architecture step failed")
			arch.Warnings = append(arch.Warnings, model.WarningFromError(model.PhaseArchitecture, err))
		}
	}
	if ctx.Err() != nil {
		arch.Partial = true
		arch.Warnings = append(arch.Warnings, model.NewWarning(model.PhaseArchitecture, model.SeverityWarning,
			apperrors.KindCancelled, "", fmt.Sprintf("architecture analysis cancelled after %d components", len(arch.Components))))
	}
	arch.Metrics = summarize(arch, arch.Metrics)
	arch.Duration = time.Since(start)

	a.log.WithFields(logrus.Fields{
		"pattern":         arch.Pattern,
		"confidence":      arch.PatternConfidence,
		"layers":          len(arch.Layers),
		"components":      len(arch.Components),
		"design_patterns": len(arch.DesignPatterns),
		"violations":      len(arch.Violations),
	}).Info("architecture analysis finished")
	return arch
}

func summarize(arch *model.ArchitectureAnalysis, m model.ArchitectureMetrics) model.ArchitectureMetrics {
	m.LayerCount = len(arch.Layers)
	m.ComponentCount = len(arch.Components)
	m.ModuleCount = len(arch.Modules)
	m.DesignPatternCount = len(arch.DesignPatterns)
	m.ViolationCount = len(arch.Violations)
	if n := len(arch.Components); n > 0 {
		var inst, tcc float64
		for _, c := range arch.Components {
			inst += c.Coupling.Instability
			tcc += c.Cohesion.TCC
		}
		m.AverageInstability = inst / float64(n)
		m.AverageTCC = tcc / float64(n)
	}
	return m
}
