// Package resolver derives static, dynamic, database and external
// dependencies from the code analysis, assembles the dependency graph and
// reports circular dependencies.
package resolver

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/graph"
	"legacylens/internal/logging"
	"legacylens/internal/model"
	"legacylens/internal/symbols"

	"github.com/sirupsen/logrus"
)

// Options selects the dependency families to resolve. External
// dependencies are always aggregated.
type Options struct {
	Static   bool
	Dynamic  bool
	Database bool
	Logger   logrus.FieldLogger
}

// OptionsFromConfig maps the dependencies configuration section.
func OptionsFromConfig(cfg config.DependencyConfig) Options {
	return Options{Static: cfg.Static, Dynamic: cfg.Dynamic, Database: cfg.Database}
}

// Resolver runs the dependency stages.
type Resolver struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates a resolver.
func New(opts Options) *Resolver {
	return &Resolver{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseDependencies),
	}
}

type pairKey struct{ from, to string }

type externalKey struct{ name, version, registry string }

// state is owned by the resolver goroutine; stages run one after another.
type state struct {
	code     *model.CodeAnalysis
	ix       *symbols.Index
	static   map[pairKey]*model.StaticDependency
	dynamic  []model.DynamicDependency
	database []model.DatabaseDependency
	external map[externalKey]*model.ExternalDependency
	refs     map[externalKey]map[string]bool
	sources  map[string][]byte
	units    map[string][]string // file -> top-level units
	byFile   map[string][]int    // file -> symbol indexes
	warnings []model.Warning

	cancelled bool
}

func newState(code *model.CodeAnalysis) *state {
	return &state{
		code:     code,
		ix:       symbols.New(code),
		static:   make(map[pairKey]*model.StaticDependency),
		external: make(map[externalKey]*model.ExternalDependency),
		refs:     make(map[externalKey]map[string]bool),
		sources:  make(map[string][]byte),
	}
}

// source returns a file's content, reading it once. Unreadable files are
// reported once and yield nil.
func (st *state) source(f model.SourceFile) []byte {
	if data, ok := st.sources[f.Path]; ok {
		return data
	}
	data, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		st.warnings = append(st.warnings, model.WarningFromError(model.PhaseDependencies, apperrors.NewIOError("read", f.Path, err)))
		data = nil
	}
	st.sources[f.Path] = data
	return data
}

// addStatic records one construct between two units, keeping the strongest
// kind, every construct seen and the first location. A unit referring to
// itself is not a dependency, except when it imports its own unit: that
// self-import is kept and surfaces as a self-loop cycle.
func (st *state) addStatic(from, to string, kind model.DependencyKind, scope model.DependencyScope, loc model.Location) bool {
	if from == "" || to == "" || (from == to && kind != model.DepImport) {
		return false
	}
	key := pairKey{from, to}
	dep, ok := st.static[key]
	if !ok {
		st.static[key] = &model.StaticDependency{
			From:       from,
			To:         to,
			Kind:       kind,
			Constructs: []model.DependencyKind{kind},
			Count:      1,
			Scope:      scope,
			Location:   loc,
		}
		return true
	}
	dep.Count++
	if kind.Strength() > dep.Kind.Strength() {
		dep.Kind = kind
	}
	for _, c := range dep.Constructs {
		if c == kind {
			return true
		}
	}
	dep.Constructs = append(dep.Constructs, kind)
	return true
}

func (st *state) addExternal(dep model.ExternalDependency, referencedBy string) {
	key := externalKey{dep.Name, dep.Version, dep.Registry}
	existing, ok := st.external[key]
	if !ok {
		d := dep
		d.ReferencedBy = []string{}
		existing = &d
		st.external[key] = existing
		st.refs[key] = make(map[string]bool)
	}
	if referencedBy == "" {
		return
	}
	existing.ReferenceCount++
	if !st.refs[key][referencedBy] {
		st.refs[key][referencedBy] = true
		existing.ReferencedBy = append(existing.ReferencedBy, referencedBy)
	}
}

// Resolve runs every enabled stage, then builds the graph and finds cycles.
// On cancellation the dependencies gathered so far are returned with
// Partial set.
func (r *Resolver) Resolve(ctx context.Context, code *model.CodeAnalysis) *model.DependencyAnalysis {
	start := time.Now()
	if code == nil {
		code = &model.CodeAnalysis{}
	}
	st := newState(code)

	var stages []stage
	if r.opts.Static {
		stages = append(stages, staticStage{})
	}
	if r.opts.Dynamic {
		stages = append(stages, dynamicStage{})
	}
	if r.opts.Database {
		stages = append(stages, databaseStage{})
	}
	stages = append(stages, externalStage{})

	for _, res := range newChain(stages...).run(ctx, st) {
		entry := r.log.WithFields(logrus.Fields{
			"stage":     res.Stage,
			"attempted": res.Stats.Attempted,
			"resolved":  res.Stats.Resolved,
			"skipped":   res.Stats.Skipped,
			"static":    res.StaticAfter,
			"external":  res.ExternalAfter,
		})
		if res.Err != nil {
			entry.WithError(res.Err).Warn("resolver stage failed")
			st.warnings = append(st.warnings, model.WarningFromError(model.PhaseDependencies, res.Err))
			continue
		}
		entry.Debug("resolver stage finished")
	}

	deps := assemble(st)
	if st.cancelled {
		deps.Partial = true
		deps.Warnings = append(deps.Warnings, model.NewWarning(model.PhaseDependencies, model.SeverityWarning,
			apperrors.KindCancelled, "", fmt.Sprintf("dependency resolution cancelled after %d static dependencies", len(deps.Static))))
	}
	deps.Duration = time.Since(start)

	r.log.WithFields(logrus.Fields{
		"static":   deps.Metrics.StaticCount,
		"dynamic":  deps.Metrics.DynamicCount,
		"external": deps.Metrics.ExternalCount,
		"database": deps.Metrics.DatabaseCount,
		"cycles":   deps.Metrics.CycleCount,
		"warnings": len(deps.Warnings),
	}).Info("dependency resolution finished")
	return deps
}

// assemble sorts the gathered records and derives graph, cycles and metrics.
func assemble(st *state) *model.DependencyAnalysis {
	deps := &model.DependencyAnalysis{
		Static:   make([]model.StaticDependency, 0, len(st.static)),
		Dynamic:  st.dynamic,
		Database: st.database,
		External: make([]model.ExternalDependency, 0, len(st.external)),
		Cycles:   []model.CircularDependency{},
		Warnings: st.warnings,
	}
	if deps.Dynamic == nil {
		deps.Dynamic = []model.DynamicDependency{}
	}
	if deps.Database == nil {
		deps.Database = []model.DatabaseDependency{}
	}
	for _, d := range st.static {
		deps.Static = append(deps.Static, *d)
	}
	sort.Slice(deps.Static, func(i, j int) bool {
		if deps.Static[i].From == deps.Static[j].From {
			return deps.Static[i].To < deps.Static[j].To
		}
		return deps.Static[i].From < deps.Static[j].From
	})
	for _, d := range st.external {
		sort.Strings(d.ReferencedBy)
		deps.External = append(deps.External, *d)
	}
	sort.Slice(deps.External, func(i, j int) bool {
		a, b := deps.External[i], deps.External[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Registry != b.Registry {
			return a.Registry < b.Registry
		}
		return a.Version < b.Version
	})

	g, healed := buildGraph(st.code, deps.Static)
	for _, h := range healed {
		deps.Warnings = append(deps.Warnings, model.WarningFromError(model.PhaseDependencies, h))
	}
	deps.Graph = *g
	for _, c := range graph.StronglyConnected(g) {
		deps.Cycles = append(deps.Cycles, model.CircularDependency{
			Nodes:    c.Nodes,
			Members:  c.Members,
			Length:   len(c.Nodes),
			SelfLoop: c.SelfLoop,
		})
	}
	deps.Metrics = computeMetrics(deps)
	return deps
}

// buildGraph makes one node per dependency unit (types and namespace-level
// callables) and one edge per type-scope static dependency.
func buildGraph(code *model.CodeAnalysis, static []model.StaticDependency) (*model.DependencyGraph, []*apperrors.GraphConsistencyError) {
	var nodes []graph.Node[model.DependencyNode]
	for _, s := range code.Symbols {
		if !isUnit(s) {
			continue
		}
		nodes = append(nodes, graph.Node[model.DependencyNode]{
			ID:    s.FullName,
			Label: s.Name,
			Kind:  string(s.Kind),
			Data: model.DependencyNode{
				SymbolKind: s.Kind,
				Namespace:  s.Namespace,
				Assembly:   s.Assembly,
				Language:   s.Language,
			},
		})
	}
	var edges []graph.Edge[model.DependencyEdge]
	for _, d := range static {
		if d.Scope != model.ScopeType {
			continue
		}
		edges = append(edges, graph.Edge[model.DependencyEdge]{
			From:   d.From,
			To:     d.To,
			Kind:   string(d.Kind),
			Weight: float64(d.Count),
			Data:   model.DependencyEdge{Constructs: d.Constructs, Count: d.Count},
		})
	}
	return graph.Build(nodes, edges)
}

// isUnit reports whether a symbol is a dependency graph node.
func isUnit(s model.CodeSymbol) bool {
	if s.Kind.IsType() {
		return true
	}
	return s.Kind.IsCallable() && s.Parent == ""
}

func computeMetrics(deps *model.DependencyAnalysis) model.DependencyMetrics {
	m := model.DependencyMetrics{
		StaticCount:   len(deps.Static),
		DynamicCount:  len(deps.Dynamic),
		ExternalCount: len(deps.External),
		DatabaseCount: len(deps.Database),
		NodeCount:     len(deps.Graph.Nodes),
		EdgeCount:     len(deps.Graph.Edges),
		CycleCount:    len(deps.Cycles),
		ByKind:        make(map[model.DependencyKind]int),
	}
	for _, d := range deps.Static {
		m.ByKind[d.Kind]++
	}
	for _, d := range deps.Dynamic {
		m.ByKind[d.Kind]++
	}

	out := deps.Graph.Adjacency()
	in := deps.Graph.ReverseAdjacency()
	total := 0
	for _, succ := range out {
		total += len(succ)
		if len(succ) > m.MaxFanOut {
			m.MaxFanOut = len(succ)
		}
	}
	for _, pred := range in {
		if len(pred) > m.MaxFanIn {
			m.MaxFanIn = len(pred)
		}
	}
	if m.NodeCount > 0 {
		m.AverageFanOut = float64(total) / float64(m.NodeCount)
	}
	return m
}
