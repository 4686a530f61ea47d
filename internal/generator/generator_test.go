package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/model"
	"legacylens/internal/relations"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	code *model.CodeAnalysis
	deps *model.DependencyAnalysis
	arch *model.ArchitectureAnalysis
	rel  *model.RelationshipMapping
}

func shopFixture() fixture {
	code := &model.CodeAnalysis{Symbols: []model.CodeSymbol{
		{Name: "IEntity", FullName: "Shop.Domain.IEntity", Kind: model.KindInterface, Namespace: "Shop.Domain"},
		{Name: "Order", FullName: "Shop.Domain.Order", Kind: model.KindClass, Namespace: "Shop.Domain"},
		{Name: "OrderService", FullName: "Shop.Services.OrderService", Kind: model.KindClass, Namespace: "Shop.Services"},
		{Name: "Place", FullName: "Shop.Services.OrderService.Place", Kind: model.KindMethod, Namespace: "Shop.Services",
			Parent: "Shop.Services.OrderService"},
		{Name: "OrderController", FullName: "Shop.Web.OrderController", Kind: model.KindClass, Namespace: "Shop.Web"},
	}}
	deps := &model.DependencyAnalysis{Static: []model.StaticDependency{
		{From: "Shop.Web.OrderController", To: "Shop.Services.OrderService", Kind: model.DepFieldType,
			Constructs: []model.DependencyKind{model.DepFieldType}, Count: 1, Scope: model.ScopeType},
	}}
	arch := &model.ArchitectureAnalysis{
		Pattern: model.PatternLayered,
		Layers: []model.Layer{
			{Name: "Presentation", Tier: model.TierPresentation, Level: model.LevelPresentation, Components: []string{"Shop.Web"}},
			{Name: "Business", Tier: model.TierBusiness, Level: model.LevelBusiness, Components: []string{"Shop.Services"}},
			{Name: "Domain", Tier: model.TierDomain, Level: model.LevelDomain, Components: []string{"Shop.Domain"}},
		},
		Components: []model.Component{
			{Name: "Shop.Domain", Layer: "Domain", Tier: model.TierDomain, Level: model.LevelDomain,
				Types: []string{"Shop.Domain.IEntity", "Shop.Domain.Order"}},
			{Name: "Shop.Services", Layer: "Business", Tier: model.TierBusiness, Level: model.LevelBusiness,
				Types: []string{"Shop.Services.OrderService"}},
			{Name: "Shop.Web", Layer: "Presentation", Tier: model.TierPresentation, Level: model.LevelPresentation,
				Types: []string{"Shop.Web.OrderController"}},
		},
		Violations: []model.ArchitecturalViolation{
			{Kind: model.ViolationGodClass, Severity: model.ViolationMedium, Symbol: "Shop.Services.OrderService",
				Description: "too many members", Value: 42, Threshold: 20},
		},
	}
	rels := []model.Relationship{
		{ID: "rel-1", Source: "Shop.Domain.Order", Target: "Shop.Domain.IEntity", Type: model.RelImplementation,
			Strength: 0.2, Count: 1, SourceKind: model.KindClass, TargetKind: model.KindInterface,
			SourceComponent: "Shop.Domain", TargetComponent: "Shop.Domain", SourceLayer: "Domain", TargetLayer: "Domain",
			SourceLevel: model.LevelDomain, TargetLevel: model.LevelDomain},
		{ID: "rel-2", Source: "Shop.Web.OrderController", Target: "Shop.Services.OrderService", Type: model.RelAssociation,
			Strength: 0.4, Count: 2, SourceKind: model.KindClass, TargetKind: model.KindClass,
			SourceComponent: "Shop.Web", TargetComponent: "Shop.Services", SourceLayer: "Presentation", TargetLayer: "Business",
			SourceLevel: model.LevelPresentation, TargetLevel: model.LevelBusiness},
		{ID: "rel-3", Source: "Shop.Web.OrderController", Target: "Shop.Services.OrderService.Place", Type: model.RelMethodCall,
			Strength: 0.2, Count: 1, SourceKind: model.KindClass, TargetKind: model.KindMethod,
			SourceComponent: "Shop.Web", TargetComponent: "Shop.Services", SourceLayer: "Presentation", TargetLayer: "Business",
			SourceLevel: model.LevelPresentation, TargetLevel: model.LevelBusiness},
	}
	rel := &model.RelationshipMapping{Relationships: rels, Views: relations.BuildViews(rels)}
	return fixture{code: code, deps: deps, arch: arch, rel: rel}
}

func (f fixture) generate(t *testing.T, g *Generator) *model.VisualizationPackage {
	t.Helper()
	pkg, err := g.Generate(context.Background(), f.code, f.deps, f.arch, f.rel)
	require.NoError(t, err)
	return pkg
}

func artifactPaths(pkg *model.VisualizationPackage) []string {
	var out []string
	for _, a := range pkg.Artifacts {
		out = append(out, a.Path)
	}
	return out
}

func TestGenerate_AllKinds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := shopFixture()
	pkg := f.generate(t, New(Options{OutputDir: dir, DiagramCeiling: 100, Title: "Shop"}))

	assert.Equal(t, dir, pkg.OutputDir)
	assert.Empty(t, pkg.Warnings)
	assert.Equal(t, model.AllArtifactKinds, pkg.Report.Succeeded)
	assert.Empty(t, pkg.Report.Failed)
	assert.False(t, pkg.Report.Summarized)
	assert.Equal(t, 5, pkg.Report.NodeCount)
	assert.Equal(t, 3, pkg.Report.EdgeCount)

	assert.ElementsMatch(t, []string{
		"csv/components.csv", "csv/dependencies.csv", "csv/relationships.csv", "csv/symbols.csv", "csv/violations.csv",
		"cytoscape/graph.json", "cytoscape/index.html",
		"d3/graph.json", "d3/index.html",
		"diagrams/classes.mmd", "diagrams/components.mmd", "diagrams/dependencies.dot", "diagrams/layers.mmd",
		"index.html", "report.json",
	}, artifactPaths(pkg))

	for _, a := range pkg.Artifacts {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(a.Path)))
		require.NoError(t, err, a.Path)
		assert.Equal(t, int64(len(data)), a.Size, a.Path)
		assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(data)), a.Checksum, a.Path)
	}

	classes, err := os.ReadFile(filepath.Join(dir, "diagrams", "classes.mmd"))
	require.NoError(t, err)
	assert.Contains(t, string(classes), "shop_domain_ientity <|.. shop_domain_order")
	assert.Contains(t, string(classes), "shop_web_ordercontroller --> shop_services_orderservice : association")
	assert.Contains(t, string(classes), "<<interface>> shop_domain_ientity")

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<title>Shop</title>")
	assert.Contains(t, string(index), "too many members")
}

func TestGenerate_InteractiveGraphData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := shopFixture()
	f.generate(t, New(Options{OutputDir: dir, Kinds: []model.ArtifactKind{model.ArtifactD3, model.ArtifactCytoscape}}))

	var d3 d3Document
	data, err := os.ReadFile(filepath.Join(dir, "d3", "graph.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &d3))
	assert.Equal(t, "symbol", d3.Level)
	assert.Len(t, d3.Nodes, 5)
	require.Len(t, d3.Links, 3)
	assert.Equal(t, "Shop.Domain.Order", d3.Links[0].Source)

	var cy cyDocument
	data, err = os.ReadFile(filepath.Join(dir, "cytoscape", "graph.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &cy))
	var compounds, nodes, edges int
	for _, el := range cy.Elements {
		switch {
		case el.Group == "edges":
			edges++
		case el.Data.Kind == "component":
			compounds++
		default:
			nodes++
			assert.NotEmpty(t, el.Data.Parent, el.Data.ID)
		}
	}
	assert.Equal(t, 3, compounds)
	assert.Equal(t, 5, nodes)
	assert.Equal(t, 3, edges)
}

func TestGenerate_SummarizesAboveCeiling(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := shopFixture()
	pkg := f.generate(t, New(Options{OutputDir: dir, DiagramCeiling: 2}))

	assert.True(t, pkg.Report.Summarized)
	require.Len(t, pkg.Warnings, 1)
	assert.Equal(t, string(apperrors.KindVisualizationRender), pkg.Warnings[0].Kind)
	assert.Contains(t, pkg.Warnings[0].Message, "diagram ceiling")
	assert.NotContains(t, artifactPaths(pkg), "diagrams/classes.mmd")
	assert.Equal(t, 3, pkg.Report.NodeCount)
	assert.Equal(t, 1, pkg.Report.EdgeCount)

	var d3 d3Document
	data, err := os.ReadFile(filepath.Join(dir, "d3", "graph.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &d3))
	assert.Equal(t, "component", d3.Level)
	require.Len(t, d3.Links, 1)
	assert.Equal(t, "Shop.Web", d3.Links[0].Source)
	assert.Equal(t, "Shop.Services", d3.Links[0].Target)
	assert.Equal(t, 3, d3.Links[0].Count)

	dot, err := os.ReadFile(filepath.Join(dir, "diagrams", "dependencies.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph components")
	assert.Contains(t, string(dot), "Shop.Web")
	assert.NotContains(t, string(dot), "OrderController")

	// CSV exports stay at full detail.
	rels, err := os.ReadFile(filepath.Join(dir, "csv", "relationships.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(rels), "Shop.Services.OrderService.Place")
}

func TestGenerate_KindFailureDoesNotBlockOthers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := shopFixture()
	g := New(Options{OutputDir: dir})
	g.renderers[model.ArtifactCSV] = func(ctx context.Context, in *input, out *sink) error {
		if err := out.write("partial", "csv/partial.csv", "csv", []byte("a,b\n")); err != nil {
			return err
		}
		return errors.New("disk full")
	}
	g.renderers[model.ArtifactD3] = func(ctx context.Context, in *input, out *sink) error {
		panic("boom")
	}
	pkg := f.generate(t, g)

	assert.Equal(t, []model.ArtifactKind{model.ArtifactD3, model.ArtifactCSV}, pkg.Report.Failed)
	assert.Equal(t, []model.ArtifactKind{model.ArtifactDiagram, model.ArtifactCytoscape, model.ArtifactReport}, pkg.Report.Succeeded)
	require.Len(t, pkg.Warnings, 2)
	for _, w := range pkg.Warnings {
		assert.Equal(t, model.PhaseVisualization, w.Phase)
		assert.Equal(t, string(apperrors.KindVisualizationRender), w.Kind)
	}
	assert.Equal(t, "d3", pkg.Warnings[0].Path)
	assert.Contains(t, pkg.Warnings[0].Message, "panic: boom")
	assert.Equal(t, "csv", pkg.Warnings[1].Path)
	assert.Contains(t, pkg.Warnings[1].Message, "disk full")

	for _, a := range pkg.Artifacts {
		assert.NotEqual(t, model.ArtifactCSV, a.Kind)
		assert.NotEqual(t, model.ArtifactD3, a.Kind)
	}
	_, err := os.Stat(filepath.Join(dir, "csv", "partial.csv"))
	assert.True(t, os.IsNotExist(err))

	var report RunReport
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 5, report.Summary.StageCount)
	assert.Equal(t, 2, report.Summary.FailedStages)
	assert.Equal(t, 2, report.Summary.SignalsBySeverity["warning"])
	assert.Equal(t, []model.ArtifactKind{model.ArtifactD3, model.ArtifactCSV}, report.Generation.Failed)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := shopFixture()
	pkg, err := New(Options{OutputDir: filepath.Join(t.TempDir(), "out")}).Generate(ctx, f.code, f.deps, f.arch, f.rel)
	require.NoError(t, err)
	assert.Empty(t, pkg.Artifacts)
	assert.Len(t, pkg.Report.Failed, len(model.AllArtifactKinds))
	assert.Len(t, pkg.Warnings, len(model.AllArtifactKinds))
}

func TestGenerate_NilInputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	pkg, err := New(Options{OutputDir: dir}).Generate(context.Background(), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, pkg.Warnings)
	assert.Len(t, pkg.Report.Succeeded, len(model.AllArtifactKinds))
	assert.Zero(t, pkg.Report.NodeCount)
}

func TestGenerate_OutputDirIsAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(Options{OutputDir: path}).Generate(context.Background(), nil, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindIO, apperrors.Classify(err))
}

func TestPrepareOutputDir(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := filepath.Join(t.TempDir(), "viz")

	dir, err := prepareOutputDir(base, now)
	require.NoError(t, err)
	assert.Equal(t, base, dir)

	dir, err = prepareOutputDir(base, now)
	require.NoError(t, err)
	assert.Equal(t, base, dir, "an empty directory is reused")

	require.NoError(t, os.WriteFile(filepath.Join(base, "old.txt"), []byte("x"), 0o644))
	dir, err = prepareOutputDir(base, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run-20260102-030405"), dir)

	dir, err = prepareOutputDir(base, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run-20260102-030405-2"), dir)

	old, err := os.ReadFile(filepath.Join(base, "old.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(old))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Default().Visualization)
	assert.Equal(t, model.AllArtifactKinds, opts.Kinds)
	assert.Equal(t, 500, opts.DiagramCeiling)
	assert.Equal(t, "legacylens-output", opts.OutputDir)
}

func TestLayerDiagram_MarksViolations(t *testing.T) {
	f := shopFixture()
	f.rel.Views.Layers = append(f.rel.Views.Layers, model.LayerRelationship{
		SourceLayer: "Domain", TargetLayer: "Presentation", SourceLevel: model.LevelDomain,
		TargetLevel: model.LevelPresentation, Count: 1, IsViolation: true,
	})
	out := NewMermaidGenerator(f.code, f.arch, f.rel).GenerateLayerDiagram()
	assert.Contains(t, out, "layer_business[\"Business: 1 components\"]")
	assert.Contains(t, out, "layer_presentation -->|3| layer_business")
	assert.Contains(t, out, "layer_domain -.->|1 violations| layer_presentation")
	assert.Contains(t, out, "linkStyle 1 stroke:#c0392b")
}

func TestSanitizeMermaidID(t *testing.T) {
	assert.Equal(t, "shop_web", sanitizeMermaidID("Shop.Web"))
	assert.Equal(t, "n_1abc", sanitizeMermaidID("1abc"))
	assert.Equal(t, "list_t_", sanitizeMermaidID("List<T>"))
	assert.Equal(t, "node", sanitizeMermaidID("  "))
}

func TestRunReport_FinalizeOrdersSignals(t *testing.T) {
	r := NewRunReport("out")
	r.AddSignal("info_code", "csv", "info", "fine", 0)
	r.AddSignal("bad", "d3", "WARNING", "failed", 0)
	r.AddSignal("", "d3", "warning", "dropped without a code", 0)
	r.AddStage("d3", time.Second, 0, errors.New("failed"))
	r.AddStage("csv", time.Second, 5, nil)
	r.Finalize()

	require.Len(t, r.Signals, 2)
	assert.Equal(t, "bad", r.Signals[0].Code)
	assert.Equal(t, "warning", r.Signals[0].Severity)
	assert.Equal(t, 1, r.Summary.FailedStages)
	assert.Equal(t, 1, r.Summary.SignalsBySeverity["info"])
	assert.Equal(t, 5.0, r.Stages[1].Counters["artifacts"])
}
