package relations

import (
	"context"
	"encoding/json"
	"testing"

	"legacylens/internal/apperrors"
	"legacylens/internal/git"
	"legacylens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeBuilder struct {
	code model.CodeAnalysis
	pos  map[string]int
}

func newCodeBuilder() *codeBuilder {
	return &codeBuilder{pos: make(map[string]int)}
}

func (b *codeBuilder) add(s model.CodeSymbol) string {
	b.pos[s.FullName] = len(b.code.Symbols)
	b.code.Symbols = append(b.code.Symbols, s)
	if s.Parent != "" {
		owner := &b.code.Symbols[b.pos[s.Parent]]
		owner.Members = append(owner.Members, s.FullName)
	}
	return s.FullName
}

func (b *codeBuilder) typ(ns, name string, kind model.SymbolKind, file string, lines [2]int, bases ...string) string {
	return b.add(model.CodeSymbol{
		Name:      name,
		FullName:  ns + "." + name,
		Kind:      kind,
		Namespace: ns,
		Location:  model.Location{File: file, StartLine: lines[0], EndLine: lines[1]},
		BaseTypes: bases,
	})
}

func (b *codeBuilder) member(owner, name string, kind model.SymbolKind, typ string, lines [2]int, refs ...model.SymbolReference) string {
	o := b.code.Symbols[b.pos[owner]]
	s := model.CodeSymbol{
		Name:       name,
		FullName:   owner + "." + name,
		Kind:       kind,
		Namespace:  o.Namespace,
		Location:   model.Location{File: o.Location.File, StartLine: lines[0], EndLine: lines[1]},
		Parent:     owner,
		References: refs,
	}
	if kind.IsCallable() {
		s.ReturnType = typ
	} else {
		s.Type = typ
	}
	return b.add(s)
}

// inheritanceAndCall is a class A deriving from B where A.M calls B.N.
func inheritanceAndCall() *codeBuilder {
	b := newCodeBuilder()
	bt := b.typ("Demo", "B", model.KindClass, "B.cs", [2]int{1, 10})
	b.member(bt, "N", model.KindMethod, "void", [2]int{3, 5})
	at := b.typ("Demo", "A", model.KindClass, "A.cs", [2]int{1, 10}, "B")
	b.member(at, "M", model.KindMethod, "void", [2]int{4, 6},
		model.SymbolReference{Kind: model.RefCall, Target: "N", Receiver: "b", ReceiverType: "B", Line: 5})
	return b
}

func mapCode(t *testing.T, b *codeBuilder, arch *model.ArchitectureAnalysis) *model.RelationshipMapping {
	t.Helper()
	m := NewMapper(Options{}).Map(context.Background(), &b.code, nil, arch)
	require.NotNil(t, m)
	return m
}

func between(m *model.RelationshipMapping, source, target string) (model.Relationship, bool) {
	for _, r := range m.Relationships {
		if r.Source == source && r.Target == target {
			return r, true
		}
	}
	return model.Relationship{}, false
}

func TestMap_InheritanceAndMethodCall(t *testing.T) {
	m := mapCode(t, inheritanceAndCall(), nil)

	require.Len(t, m.Relationships, 2)
	inh := m.Inheritance()
	require.Len(t, inh, 1)
	assert.Equal(t, "Demo.A", inh[0].Source)
	assert.Equal(t, "Demo.B", inh[0].Target)
	calls := m.MethodCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Demo.A.M", calls[0].Source)
	assert.Equal(t, "Demo.B.N", calls[0].Target)
	assert.Equal(t, "5", calls[0].Metadata["line"])

	tree := m.Views.InheritanceTree
	require.Len(t, tree, 2)
	assert.Equal(t, "Demo.A", tree[0].Type)
	assert.False(t, tree[0].IsRoot)
	assert.True(t, tree[0].IsLeaf)
	assert.Equal(t, 1, tree[0].Depth)
	assert.Equal(t, "Demo.B", tree[1].Type)
	assert.True(t, tree[1].IsRoot)
	assert.False(t, tree[1].IsLeaf)
	assert.Equal(t, []string{"Demo.A"}, tree[1].Derived)

	hier := m.Views.CallHierarchy
	require.Len(t, hier, 2)
	assert.True(t, hier[0].IsRoot)
	assert.Equal(t, 0, hier[0].Depth)
	assert.True(t, hier[1].IsLeaf)
	assert.Equal(t, 1, hier[1].Depth)
	assert.Equal(t, 1, m.Views.Metrics.MaxCallDepth)
	assert.Equal(t, 1, m.Views.Metrics.MaxInheritanceDepth)
}

func TestMap_PrecedenceKeepsOneRecordPerPair(t *testing.T) {
	b := newCodeBuilder()
	base := b.typ("Demo", "Base", model.KindClass, "Base.cs", [2]int{1, 5})
	derived := b.typ("Demo", "Derived", model.KindClass, "Derived.cs", [2]int{1, 9}, "Base")
	b.member(derived, "parent", model.KindField, "Base", [2]int{2, 2})
	m := mapCode(t, b, nil)

	require.Len(t, m.Relationships, 1)
	r := m.Relationships[0]
	assert.Equal(t, model.RelInheritance, r.Type)
	assert.Equal(t, 2, r.Count)
	assert.InDelta(t, 0.4, r.Strength, 1e-9)
	assert.Equal(t, "inheritance,composition", r.Metadata["constructs"])
	assert.Equal(t, RelationshipID(derived, base), r.ID)
	assert.Empty(t, m.Compositions())
}

func TestMap_ClassifiesTypes(t *testing.T) {
	b := newCodeBuilder()
	iface := b.typ("Demo", "IShape", model.KindInterface, "Shapes.cs", [2]int{1, 3})
	circle := b.typ("Demo", "Circle", model.KindClass, "Shapes.cs", [2]int{4, 8}, "IShape")
	point := b.typ("Demo", "Point", model.KindStruct, "Shapes.cs", [2]int{9, 10})
	canvas := b.typ("Demo", "Canvas", model.KindClass, "Canvas.cs", [2]int{1, 20})
	b.member(canvas, "origin", model.KindField, "Point", [2]int{2, 2})
	b.member(canvas, "shapes", model.KindField, "List<IShape>", [2]int{3, 3})
	b.member(circle, "Center", model.KindProperty, "Point", [2]int{5, 5})
	b.member(canvas, "Draw", model.KindMethod, "void", [2]int{4, 9},
		model.SymbolReference{Kind: model.RefPropertyAccess, Target: "Center", ReceiverType: "Circle", Line: 6},
		model.SymbolReference{Kind: model.RefInstantiation, Target: "Circle", Line: 7})
	m := mapCode(t, b, nil)

	get := func(s, tg string) model.RelationshipType {
		r, ok := between(m, s, tg)
		require.True(t, ok, "%s -> %s", s, tg)
		return r.Type
	}
	assert.Equal(t, model.RelImplementation, get(circle, iface))
	assert.Equal(t, model.RelComposition, get(canvas, point))
	assert.Equal(t, model.RelAggregation, get(canvas, iface))
	assert.Equal(t, model.RelComposition, get(circle, point))
	assert.Equal(t, model.RelPropertyAccess, get(canvas+".Draw", circle+".Center"))
	assert.Equal(t, model.RelAssociation, get(canvas, circle))
	for _, r := range m.Relationships {
		assert.GreaterOrEqual(t, r.Strength, 0.0)
		assert.LessOrEqual(t, r.Strength, 1.0)
	}
}

func TestMap_Bidirectional(t *testing.T) {
	b := newCodeBuilder()
	x := b.typ("Demo", "X", model.KindClass, "X.cs", [2]int{1, 3})
	y := b.typ("Demo", "Y", model.KindClass, "Y.cs", [2]int{1, 3})
	b.member(x, "y", model.KindField, "Y", [2]int{2, 2})
	b.member(y, "x", model.KindField, "X", [2]int{2, 2})
	m := mapCode(t, b, nil)

	require.Len(t, m.Relationships, 2)
	for _, r := range m.Relationships {
		assert.Equal(t, model.DirectionBidirectional, r.Direction)
	}
}

func TestMap_DynamicResolvedTargets(t *testing.T) {
	b := inheritanceAndCall()
	deps := &model.DependencyAnalysis{Dynamic: []model.DynamicDependency{
		{From: "Demo.A.M", Target: "Demo.B", ResolvedTo: "Demo.B", Kind: model.DepReflection},
		{From: "Demo.A.M", Target: "Plugin", Kind: model.DepReflection},
	}}
	m := NewMapper(Options{}).Map(context.Background(), &b.code, deps, nil)

	r, ok := between(m, "Demo.A.M", "Demo.B")
	require.True(t, ok)
	assert.Equal(t, model.RelAssociation, r.Type)
	assert.Equal(t, "true", r.Metadata["dynamic"])
	assert.Len(t, m.Relationships, 3)
}

func layeredArch() *model.ArchitectureAnalysis {
	return &model.ArchitectureAnalysis{Components: []model.Component{
		{Name: "Shop.Web", Layer: "Presentation", Tier: model.TierPresentation, Level: model.LevelPresentation, Types: []string{"Shop.Web.OrderController"}},
		{Name: "Shop.Domain", Layer: "Domain", Tier: model.TierDomain, Level: model.LevelDomain, Types: []string{"Shop.Domain.Order", "Shop.Domain.Line"}},
	}}
}

func layeredCode() *codeBuilder {
	b := newCodeBuilder()
	ctrl := b.typ("Shop.Web", "OrderController", model.KindClass, "Web.cs", [2]int{1, 9})
	order := b.typ("Shop.Domain", "Order", model.KindClass, "Order.cs", [2]int{1, 9})
	b.typ("Shop.Domain", "Line", model.KindClass, "Line.cs", [2]int{1, 9})
	b.member(ctrl, "order", model.KindField, "Shop.Domain.Order", [2]int{2, 2})
	b.member(order, "lines", model.KindField, "List<Line>", [2]int{2, 2})
	b.member(order, "owner", model.KindField, "Shop.Web.OrderController", [2]int{3, 3})
	return b
}

func TestMap_ComponentAndLayerViews(t *testing.T) {
	m := mapCode(t, layeredCode(), layeredArch())

	r, ok := between(m, "Shop.Web.OrderController", "Shop.Domain.Order")
	require.True(t, ok)
	assert.Equal(t, "Shop.Web", r.SourceComponent)
	assert.Equal(t, "Domain", r.TargetLayer)
	assert.Equal(t, model.LevelDomain, r.TargetLevel)

	require.Len(t, m.Views.Components, 2)
	assert.Equal(t, "Shop.Domain", m.Views.Components[0].Source)
	assert.Equal(t, "Shop.Web", m.Views.Components[0].Target)

	require.Len(t, m.Views.Layers, 2)
	var violations int
	for _, l := range m.Views.Layers {
		if l.IsViolation {
			violations++
			assert.Equal(t, "Domain", l.SourceLayer)
			assert.Equal(t, "Presentation", l.TargetLayer)
		}
	}
	assert.Equal(t, 1, violations)
	assert.Equal(t, 1, m.Views.Metrics.LayerViolations)

	assert.Equal(t, []string{"Shop.Domain", "Shop.Web"}, m.Views.Matrix.Labels)
	// Domain->Domain, Domain->Web, Web->Domain
	require.Len(t, m.Views.Matrix.Entries, 3)
	assert.Equal(t, model.MatrixEntry{Row: 0, Column: 0, Count: 1, Strength: 0.2}, m.Views.Matrix.Entries[0])
}

func TestRebuildViews_Identical(t *testing.T) {
	m := mapCode(t, layeredCode(), layeredArch())
	want, err := json.Marshal(m.Views)
	require.NoError(t, err)

	stripped := *m
	stripped.Views = model.RelationshipViews{}
	rebuilt := RebuildViews(&stripped)
	got, err := json.Marshal(rebuilt.Views)
	require.NoError(t, err)

	assert.JSONEq(t, string(want), string(got))
	assert.Equal(t, string(want), string(got))
	assert.Empty(t, stripped.Views.Components)
}

func TestMap_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := inheritanceAndCall()
	m := NewMapper(Options{}).Map(ctx, &b.code, nil, nil)

	assert.True(t, m.Partial)
	assert.Empty(t, m.Relationships)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, string(apperrors.KindCancelled), m.Warnings[0].Kind)
}

func TestStrength(t *testing.T) {
	assert.Zero(t, Strength(0, 5))
	assert.InDelta(t, 0.2, Strength(1, 5), 1e-9)
	assert.Equal(t, 1.0, Strength(9, 5))
	assert.Equal(t, 1.0, Strength(1, 0))
}

func TestGraph(t *testing.T) {
	m := mapCode(t, inheritanceAndCall(), nil)
	g := Graph(m.Relationships)

	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 2)
	assert.Empty(t, g.Placeholders())
	assert.Equal(t, "A", g.Nodes["Demo.A"].Label)
}

func TestImpact(t *testing.T) {
	b := inheritanceAndCall()
	m := mapCode(t, b, nil)
	changes := []git.ChangedFile{{Path: "B.cs", ChangedLines: []int{4}}}

	report := Impact(&b.code, m, changes, ImpactOptions{})

	assert.Equal(t, []string{"B.cs"}, report.ChangedFiles)
	direct := make([]string, 0)
	for _, a := range report.DirectlyAffected {
		direct = append(direct, a.Symbol)
	}
	assert.Equal(t, []string{"Demo.B", "Demo.B.N"}, direct)

	indirect := make(map[string]AffectedSymbol)
	for _, a := range report.IndirectlyAffected {
		indirect[a.Symbol] = a
	}
	require.Len(t, indirect, 2)
	assert.Equal(t, "Demo.B", indirect["Demo.A"].Via)
	assert.Equal(t, "Demo.B.N", indirect["Demo.A.M"].Via)
	assert.Equal(t, 1, indirect["Demo.A.M"].Hops)
	assert.Equal(t, model.KindMethod, indirect["Demo.A.M"].Kind)
}

func TestImpact_MaxHops(t *testing.T) {
	b := newCodeBuilder()
	c := b.typ("Demo", "C", model.KindClass, "C.cs", [2]int{1, 5})
	bt := b.typ("Demo", "B", model.KindClass, "B.cs", [2]int{1, 5}, "C")
	b.typ("Demo", "A", model.KindClass, "A.cs", [2]int{1, 5}, "B")
	m := mapCode(t, b, nil)
	changes := []git.ChangedFile{{Path: "C.cs", ChangedLines: []int{2}}}

	all := Impact(&b.code, m, changes, ImpactOptions{})
	assert.Len(t, all.IndirectlyAffected, 2)

	near := Impact(&b.code, m, changes, ImpactOptions{MaxHops: 1})
	require.Len(t, near.IndirectlyAffected, 1)
	assert.Equal(t, bt, near.IndirectlyAffected[0].Symbol)
	assert.Equal(t, c, near.DirectlyAffected[0].Symbol)
}
