package resolver

import (
	"context"
	"errors"
	"testing"

	"legacylens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStage struct {
	name string
	fn   func(ctx context.Context, st *state) (ResolveStats, error)
}

func (f fakeStage) Name() string { return f.name }

func (f fakeStage) Run(ctx context.Context, st *state) (ResolveStats, error) {
	return f.fn(ctx, st)
}

func TestChain_Run(t *testing.T) {
	st := newState(&model.CodeAnalysis{})

	s1 := fakeStage{
		name: "s1",
		fn: func(_ context.Context, st *state) (ResolveStats, error) {
			st.addStatic("a", "b", model.DepImport, model.ScopeType, model.Location{})
			return ResolveStats{Attempted: 2, Resolved: 1, Skipped: 1}, nil
		},
	}
	s2 := fakeStage{
		name: "s2",
		fn: func(_ context.Context, st *state) (ResolveStats, error) {
			st.addStatic("b", "c", model.DepImport, model.ScopeType, model.Location{})
			st.addExternal(model.ExternalDependency{Name: "fmt", Registry: RegistryStdlib}, "b")
			return ResolveStats{Attempted: 1, Resolved: 1}, nil
		},
	}

	results := newChain(s1, s2).run(context.Background(), st)

	require.Len(t, results, 2)
	assert.Equal(t, "s1", results[0].Stage)
	assert.Equal(t, "s2", results[1].Stage)
	assert.Equal(t, 0, results[0].StaticBefore)
	assert.Equal(t, 1, results[0].StaticAfter)
	assert.Equal(t, 1, results[1].StaticBefore)
	assert.Equal(t, 2, results[1].StaticAfter)
	assert.Equal(t, 1, results[1].ExternalAfter)
	assert.Equal(t, ResolveStats{Attempted: 2, Resolved: 1, Skipped: 1}, results[0].Stats)
}

func TestChain_StopsOnError(t *testing.T) {
	st := newState(&model.CodeAnalysis{})
	ran := false
	failing := fakeStage{
		name: "failing",
		fn: func(context.Context, *state) (ResolveStats, error) {
			return ResolveStats{}, errors.New("boom")
		},
	}
	after := fakeStage{
		name: "after",
		fn: func(context.Context, *state) (ResolveStats, error) {
			ran = true
			return ResolveStats{}, nil
		},
	}

	results := newChain(failing, after).run(context.Background(), st)

	require.Len(t, results, 1)
	assert.EqualError(t, results[0].Err, "boom")
	assert.False(t, ran)
}

func TestChain_StopsOnCancellation(t *testing.T) {
	st := newState(&model.CodeAnalysis{})
	ctx, cancel := context.WithCancel(context.Background())
	first := fakeStage{
		name: "first",
		fn: func(context.Context, *state) (ResolveStats, error) {
			cancel()
			return ResolveStats{}, nil
		},
	}
	second := fakeStage{
		name: "second",
		fn: func(context.Context, *state) (ResolveStats, error) {
			t.Fatal("second stage must not run")
			return ResolveStats{}, nil
		},
	}

	results := newChain(first, second).run(ctx, st)

	assert.Len(t, results, 1)
	assert.True(t, st.cancelled)
}

func TestState_AddStaticKeepsStrongestKind(t *testing.T) {
	st := newState(&model.CodeAnalysis{})
	loc := model.Location{File: "a.java", StartLine: 3, EndLine: 3}

	assert.True(t, st.addStatic("A", "B", model.DepMethodCall, model.ScopeType, loc))
	assert.True(t, st.addStatic("A", "B", model.DepInheritance, model.ScopeType, model.Location{File: "a.java", StartLine: 1}))
	assert.True(t, st.addStatic("A", "B", model.DepMethodCall, model.ScopeType, loc))
	assert.False(t, st.addStatic("A", "A", model.DepMethodCall, model.ScopeType, loc))
	assert.False(t, st.addStatic("A", "A", model.DepFieldType, model.ScopeType, loc))
	assert.False(t, st.addStatic("", "B", model.DepMethodCall, model.ScopeType, loc))

	require.Len(t, st.static, 1)
	dep := st.static[pairKey{"A", "B"}]
	assert.Equal(t, model.DepInheritance, dep.Kind)
	assert.Equal(t, []model.DependencyKind{model.DepMethodCall, model.DepInheritance}, dep.Constructs)
	assert.Equal(t, 3, dep.Count)
	assert.Equal(t, loc, dep.Location)
}

func TestState_AddExternalDeduplicates(t *testing.T) {
	st := newState(&model.CodeAnalysis{})
	dep := model.ExternalDependency{Name: "lodash", Version: "4.17.21", Registry: "npm", Kind: ExternalPackage}

	st.addExternal(dep, "")
	st.addExternal(dep, "app.main")
	st.addExternal(dep, "app.main")
	st.addExternal(dep, "app.util")

	require.Len(t, st.external, 1)
	got := st.external[externalKey{"lodash", "4.17.21", "npm"}]
	assert.Equal(t, 3, got.ReferenceCount)
	assert.Equal(t, []string{"app.main", "app.util"}, got.ReferencedBy)
}
