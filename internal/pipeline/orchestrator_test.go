package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/model"
	"legacylens/internal/relations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeProject(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "shapes")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Shapes.java"),
		[]byte("class B { void n() {} }\nclass A extends B { void m() { n(); } }\n"), 0o644))
	return root
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func phaseNames(a *model.ApplicationAnalysis) []string {
	var out []string
	for _, p := range a.Phases {
		out = append(out, p.Phase)
	}
	return out
}

func hasRelationship(a *model.ApplicationAnalysis, source, target string, typ model.RelationshipType) bool {
	for _, r := range a.Relationships.Relationships {
		if r.Source == source && r.Target == target && r.Type == typ {
			return true
		}
	}
	return false
}

func TestRun_Completed(t *testing.T) {
	root := writeProject(t)
	rec := &stateRecorder{}
	o, err := New(config.Default(), Options{OnState: rec.record})
	require.NoError(t, err)

	a, err := o.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []State{
		StateCrawling, StateAnalyzingCode, StateResolvingDependencies,
		StateAnalyzingArchitecture, StateMappingRelationships, StateCompleted,
	}, rec.states)
	assert.Equal(t, StateCompleted, o.State())
	assert.Equal(t, model.StatusCompleted, a.Status)
	assert.False(t, a.Partial)
	assert.Equal(t, "shapes", a.Name)
	assert.Equal(t, model.SchemaVersion, a.SchemaVersion)
	assert.Equal(t, []string{
		model.PhaseCrawl, model.PhaseCodeAnalysis, model.PhaseDependencies,
		model.PhaseArchitecture, model.PhaseRelationships,
	}, phaseNames(a))
	assert.Nil(t, a.Visualization)
	assert.Positive(t, a.Duration)

	assert.Equal(t, 1, a.Metrics.TotalFiles)
	assert.Equal(t, 2, a.Metrics.TypeCount)
	assert.Equal(t, len(a.Relationships.Relationships), a.Metrics.RelationshipCount)
	assert.True(t, hasRelationship(a, "A", "B", model.RelInheritance))
	assert.Empty(t, a.WarningsWithSeverity(model.SeverityCritical))
}

func TestRun_ApplicationNameFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Application.Name = "Legacy Shop"
	a, err := AnalyzeApplication(context.Background(), writeProject(t), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Legacy Shop", a.Name)
}

func TestRun_WithVisualization(t *testing.T) {
	cfg := config.Default()
	cfg.Visualization.Enabled = true
	cfg.Visualization.OutputDir = filepath.Join(t.TempDir(), "viz")

	a, err := AnalyzeApplication(context.Background(), writeProject(t), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Visualization)
	assert.Equal(t, cfg.Visualization.OutputDir, a.Visualization.OutputDir)
	assert.Len(t, a.Visualization.Report.Succeeded, len(model.AllArtifactKinds))
	assert.Len(t, a.Phases, 6)
	assert.Equal(t, model.PhaseVisualization, a.Phases[5].Phase)
	_, err = os.Stat(filepath.Join(cfg.Visualization.OutputDir, "index.html"))
	assert.NoError(t, err)
}

func TestRun_InvalidInput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	for name, root := range map[string]string{
		"empty":   "",
		"missing": filepath.Join(t.TempDir(), "missing"),
		"file":    file,
	} {
		t.Run(name, func(t *testing.T) {
			a, err := AnalyzeApplication(context.Background(), root, config.Default())
			assert.Nil(t, a)
			assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))
		})
	}

	_, err := AnalyzeApplication(context.Background(), t.TempDir(), nil)
	assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))

	cfg := config.Default()
	cfg.Visualization.DiagramCeiling = 0
	_, err = AnalyzeApplication(context.Background(), t.TempDir(), cfg)
	assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))
}

func TestRun_PanicBecomesCriticalError(t *testing.T) {
	o, err := New(config.Default(), Options{})
	require.NoError(t, err)
	o.beforePhase = func(ctx context.Context, s State) error {
		if s == StateResolvingDependencies {
			panic("resolver exploded")
		}
		return nil
	}

	a, err := o.Run(context.Background(), writeProject(t))
	require.Error(t, err)
	var crit *apperrors.CriticalError
	require.ErrorAs(t, err, &crit)
	assert.Equal(t, model.PhaseDependencies, crit.Phase)
	assert.Equal(t, "resolving_dependencies", crit.State)
	assert.Contains(t, crit.Error(), "resolver exploded")

	require.NotNil(t, a)
	assert.Equal(t, model.StatusFailed, a.Status)
	assert.Equal(t, StateFailed, o.State())
	assert.NotEmpty(t, a.Code.Symbols, "earlier phases are kept")
	assert.Positive(t, a.Duration)

	critical := a.WarningsWithSeverity(model.SeverityCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, model.PhaseDependencies, critical[0].Phase)
	assert.Equal(t, string(apperrors.KindCritical), critical[0].Kind)

	require.Len(t, a.Phases, 3)
	assert.True(t, a.Phases[2].Failed)
	assert.False(t, a.Phases[1].Failed)
}

func TestRun_ErrorBecomesCriticalError(t *testing.T) {
	boom := errors.New("mapper state corrupted")
	o, err := New(config.Default(), Options{})
	require.NoError(t, err)
	o.beforePhase = func(ctx context.Context, s State) error {
		if s == StateMappingRelationships {
			return boom
		}
		return nil
	}

	a, err := o.Run(context.Background(), writeProject(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperrors.KindCritical, apperrors.Classify(err))
	assert.Equal(t, model.StatusFailed, a.Status)
	assert.NotEmpty(t, a.Architecture.Components)
}

func TestRun_ParentCancellationReturnsPartial(t *testing.T) {
	all := []string{
		model.PhaseCrawl, model.PhaseCodeAnalysis, model.PhaseDependencies,
		model.PhaseArchitecture, model.PhaseRelationships,
	}
	tests := []struct {
		name   string
		at     State
		phases []string
		from   string
	}{
		{"during crawl", StateCrawling, all[:1], model.PhaseCrawl},
		{"during code analysis", StateAnalyzingCode, all[:2], model.PhaseCodeAnalysis},
		{"during mapping", StateMappingRelationships, all, model.PhaseRelationships},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			o, err := New(config.Default(), Options{})
			require.NoError(t, err)
			o.beforePhase = func(_ context.Context, s State) error {
				if s == tt.at {
					cancel()
				}
				return nil
			}

			a, err := o.Run(ctx, writeProject(t))
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompleted, a.Status)
			assert.Equal(t, StateCompleted, o.State())
			assert.True(t, a.Partial)
			assert.Equal(t, tt.phases, phaseNames(a))

			cancelled := a.WarningsOfKind(string(apperrors.KindCancelled))
			require.Len(t, cancelled, 1, "exactly one early-termination warning")
			assert.Equal(t, tt.from, cancelled[0].Phase)
		})
	}
}

func TestRun_CancellationUnnoticedByPhaseIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o, err := New(config.Default(), Options{})
	require.NoError(t, err)
	o.beforePhase = func(_ context.Context, s State) error {
		if s == StateAnalyzingCode {
			cancel()
		}
		return nil
	}

	// No source files: code analysis finishes without noticing the
	// cancellation, so the pipeline reports the skipped phases.
	a, err := o.Run(ctx, t.TempDir())
	require.NoError(t, err)
	assert.True(t, a.Partial)

	cancelled := a.WarningsOfKind(string(apperrors.KindCancelled))
	require.Len(t, cancelled, 1)
	assert.Equal(t, model.PhasePipeline, cancelled[0].Phase)
	assert.Contains(t, cancelled[0].Message, "remaining phases skipped")
}

func TestRun_PhaseTimeoutContinues(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.PhaseTimeout = 200 * time.Millisecond
	o, err := New(cfg, Options{})
	require.NoError(t, err)
	o.beforePhase = func(ctx context.Context, s State) error {
		if s == StateAnalyzingArchitecture {
			<-ctx.Done()
		}
		return nil
	}

	a, err := o.Run(context.Background(), writeProject(t))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, a.Status)
	assert.True(t, a.Partial)
	require.Len(t, a.Phases, 5)
	assert.True(t, a.Phases[3].Partial)
	assert.Equal(t, model.PhaseRelationships, a.Phases[4].Phase)

	var timedOut bool
	for _, w := range a.Warnings {
		if w.Phase == model.PhaseArchitecture && strings.Contains(w.Message, "timed out") {
			timedOut = true
		}
	}
	assert.True(t, timedOut)
}

func TestRun_OrchestratorIsReusable(t *testing.T) {
	o, err := New(config.Default(), Options{})
	require.NoError(t, err)
	root := writeProject(t)

	first, err := o.Run(context.Background(), root)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, first.Relationships.Relationships, second.Relationships.Relationships)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateCrawling, true},
		{StateIdle, StateAnalyzingCode, false},
		{StateCrawling, StateAnalyzingCode, true},
		{StateMappingRelationships, StateGeneratingVisualizations, true},
		{StateMappingRelationships, StateCompleted, true},
		{StateAnalyzingCode, StateFailed, true},
		{StateIdle, StateCompleted, true},
		{StateCompleted, StateCrawling, false},
		{StateFailed, StateCompleted, false},
		{StateGeneratingVisualizations, StateCrawling, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.Equal(t, "state(42)", State(42).String())
}

func TestGenerateVisualizations(t *testing.T) {
	_, err := GenerateVisualizations(context.Background(), nil, t.TempDir())
	assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))

	a, err := AnalyzeApplication(context.Background(), writeProject(t), config.Default())
	require.NoError(t, err)

	_, err = GenerateVisualizations(context.Background(), a, "")
	assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))

	out := filepath.Join(t.TempDir(), "out")
	pkg, err := GenerateVisualizations(context.Background(), a, out)
	require.NoError(t, err)
	assert.Same(t, pkg, a.Visualization)
	assert.Empty(t, pkg.Report.Failed)
	assert.NotEmpty(t, pkg.Artifacts)
}

func TestImpact_RequiresAnalysis(t *testing.T) {
	_, err := Impact(context.Background(), nil, "HEAD", relations.ImpactOptions{MaxHops: 2})
	assert.Equal(t, apperrors.KindConfiguration, apperrors.Classify(err))
}

func TestRun_MethodCallThroughInferredLocal(t *testing.T) {
	sources := map[string]string{
		"Shapes.cs":   "class B { public void N() {} }\nclass A : B { public void M() { var b = new B(); b.N(); } }\n",
		"Shapes.java": "class B { void n() {} }\nclass A extends B { void m() { var b = new B(); b.n(); } }\n",
		"shapes.py":   "class B:\n    def n(self):\n        pass\n\n\nclass A(B):\n    def m(self):\n        b = B()\n        b.n()\n",
	}
	for file, src := range sources {
		t.Run(filepath.Ext(file), func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, file), []byte(src), 0o644))

			a, err := AnalyzeApplication(context.Background(), root, config.Default())
			require.NoError(t, err)

			var inheritance, call bool
			for _, r := range a.Relationships.Relationships {
				switch {
				case r.Type == model.RelInheritance && strings.HasSuffix(r.Source, "A") && strings.HasSuffix(r.Target, "B"):
					inheritance = true
				case r.Type == model.RelMethodCall && strings.HasSuffix(strings.ToLower(r.Source), "a.m()") && strings.HasSuffix(strings.ToLower(r.Target), "b.n()"):
					call = true
				}
			}
			assert.True(t, inheritance, "A inherits B")
			assert.True(t, call, "A.M calls B.N through the local")
		})
	}
}
