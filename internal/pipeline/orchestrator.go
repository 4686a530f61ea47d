// Package pipeline sequences the analysis phases, from crawling to
// visualization, and turns their results into one ApplicationAnalysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"legacylens/internal/analysis"
	"legacylens/internal/apperrors"
	"legacylens/internal/architecture"
	"legacylens/internal/config"
	"legacylens/internal/crawler"
	"legacylens/internal/generator"
	"legacylens/internal/git"
	"legacylens/internal/logging"
	"legacylens/internal/model"
	"legacylens/internal/relations"
	"legacylens/internal/resolver"

	"github.com/sirupsen/logrus"
)

// Options wires the orchestrator to its caller.
type Options struct {
	Logger logrus.FieldLogger
	// CrawlProgress receives crawler progress snapshots.
	CrawlProgress crawler.ProgressFunc
	// OnState is called after every state transition.
	OnState func(State)
}

// Orchestrator drives the phases on one control goroutine. A single
// orchestrator runs one analysis at a time.
type Orchestrator struct {
	cfg  *config.Config
	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex
	state State

	// beforePhase runs at the start of every phase, inside its recovery.
	beforePhase func(ctx context.Context, s State) error
}

// New validates cfg and creates an orchestrator.
func New(cfg *config.Config, opts Options) (*Orchestrator, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigurationError("config", "", errors.New("configuration is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:  cfg,
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhasePipeline),
	}, nil
}

// AnalyzeApplication runs the whole pipeline with cfg. See Orchestrator.Run.
func AnalyzeApplication(ctx context.Context, root string, cfg *config.Config) (*model.ApplicationAnalysis, error) {
	o, err := New(cfg, Options{})
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, root)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) advance(to State) error {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	o.state = to
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("state changed")
	if o.opts.OnState != nil {
		o.opts.OnState(to)
	}
	return nil
}

// phaseResult is what a phase body reports back to the runner.
type phaseResult struct {
	partial  bool
	warnings []model.Warning
}

// phase binds a state to the model phase name and its body.
type phase struct {
	state State
	name  string
	run   func(ctx context.Context) (phaseResult, error)
}

// Run validates the root, then crawls, analyzes, resolves, classifies,
// maps and optionally visualizes it.
//
// Invalid input returns a configuration error and no analysis. A phase that
// panics or fails leaves the analysis Failed: the partial analysis is
// returned together with a *apperrors.CriticalError. Cancelling ctx stops
// the pipeline after the running phase and returns the partial analysis
// without error.
func (o *Orchestrator) Run(ctx context.Context, root string) (*model.ApplicationAnalysis, error) {
	start := time.Now()
	absRoot, err := validateRoot(root)
	if err != nil {
		return nil, err
	}

	crawlOpts := crawler.OptionsFromConfig(o.cfg.Crawler)
	crawlOpts.Progress = o.opts.CrawlProgress
	crawlOpts.Logger = o.opts.Logger
	codeOpts, err := analysis.OptionsFromConfig(o.cfg.Analysis)
	if err != nil {
		return nil, err
	}
	codeOpts.Logger = o.opts.Logger
	depOpts := resolver.OptionsFromConfig(o.cfg.Dependencies)
	depOpts.Logger = o.opts.Logger
	archOpts := architecture.OptionsFromConfig(o.cfg.Architecture)
	archOpts.Logger = o.opts.Logger
	relOpts := relations.OptionsFromConfig(o.cfg.Relationships)
	relOpts.Logger = o.opts.Logger

	o.mu.Lock()
	if !o.state.Terminal() && o.state != StateIdle {
		o.mu.Unlock()
		return nil, fmt.Errorf("pipeline already running (state %s)", o.state)
	}
	o.state = StateIdle
	o.mu.Unlock()

	name := o.cfg.Application.Name
	if name == "" {
		name = filepath.Base(absRoot)
	}
	a := model.NewApplicationAnalysis(name, absRoot)
	a.AnalyzedAt = start.UTC()
	if rev, err := git.Describe(ctx, absRoot); err != nil {
		o.log.WithError(err).Debug("git revision unavailable")
	} else {
		a.Git = rev
	}
	log := o.log.WithField("application", name)
	log.WithField("root", absRoot).Info("analysis started")

	phases := []phase{
		{StateCrawling, model.PhaseCrawl, func(ctx context.Context) (phaseResult, error) {
			fs, err := crawler.New(crawlOpts).Crawl(ctx, absRoot)
			if err != nil {
				return phaseResult{}, err
			}
			a.FileSystem = *fs
			return phaseResult{fs.Partial, fs.Warnings}, nil
		}},
		{StateAnalyzingCode, model.PhaseCodeAnalysis, func(ctx context.Context) (phaseResult, error) {
			code := analysis.NewEngine(codeOpts).Analyze(ctx, &a.FileSystem)
			a.Code = *code
			return phaseResult{code.Partial, code.Warnings}, nil
		}},
		{StateResolvingDependencies, model.PhaseDependencies, func(ctx context.Context) (phaseResult, error) {
			deps := resolver.New(depOpts).Resolve(ctx, &a.Code)
			a.Dependencies = *deps
			return phaseResult{deps.Partial, deps.Warnings}, nil
		}},
		{StateAnalyzingArchitecture, model.PhaseArchitecture, func(ctx context.Context) (phaseResult, error) {
			arch := architecture.New(archOpts).Analyze(ctx, &a.Code, &a.Dependencies)
			a.Architecture = *arch
			return phaseResult{arch.Partial, arch.Warnings}, nil
		}},
		{StateMappingRelationships, model.PhaseRelationships, func(ctx context.Context) (phaseResult, error) {
			rel := relations.NewMapper(relOpts).Map(ctx, &a.Code, &a.Dependencies, &a.Architecture)
			a.Relationships = *rel
			return phaseResult{rel.Partial, rel.Warnings}, nil
		}},
	}
	if o.cfg.Visualization.Enabled {
		phases = append(phases, phase{StateGeneratingVisualizations, model.PhaseVisualization, func(ctx context.Context) (phaseResult, error) {
			pkg, err := o.visualize(ctx, a, o.cfg.Visualization.OutputDir)
			if err != nil {
				// The analysis stays usable without its artifacts.
				return phaseResult{warnings: []model.Warning{model.WarningFromError(model.PhaseVisualization, err)}}, nil
			}
			return phaseResult{warnings: pkg.Warnings}, nil
		}})
	}

	prev := ""
	for _, p := range phases {
		if ctx.Err() != nil {
			a.Partial = true
			// One early-termination warning per run: the interrupted phase
			// may already have reported it.
			if !reportedCancellation(a, prev) {
				a.AddWarning(model.NewWarning(model.PhasePipeline, model.SeverityWarning, apperrors.KindCancelled, "",
					fmt.Sprintf("pipeline cancelled before %s; remaining phases skipped", p.name)))
			}
			log.WithField("next", p.name).Warn("pipeline cancelled")
			break
		}
		prev = p.name
		if err := o.advance(p.state); err != nil {
			return o.fail(a, start, p, err)
		}
		if err := o.runPhase(ctx, a, p); err != nil {
			return o.fail(a, start, p, err)
		}
	}

	if err := o.advance(StateCompleted); err != nil {
		return o.fail(a, start, phase{state: o.State(), name: model.PhasePipeline}, err)
	}
	a.Status = model.StatusCompleted
	a.Duration = time.Since(start)
	a.Metrics = aggregate(a)
	log.WithFields(logrus.Fields{
		"partial":       a.Partial,
		"files":         a.Metrics.TotalFiles,
		"symbols":       a.Metrics.TotalSymbols,
		"relationships": a.Metrics.RelationshipCount,
		"warnings":      a.Metrics.WarningCount,
		"duration":      a.Duration,
	}).Info("analysis finished")
	return a, nil
}

// runPhase runs one phase under its own timeout, recovering panics. An
// expired timeout leaves the phase partial and the pipeline continues.
func (o *Orchestrator) runPhase(ctx context.Context, a *model.ApplicationAnalysis, p phase) (err error) {
	pctx := ctx
	if d := o.cfg.Pipeline.PhaseTimeout; d > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	timing := model.PhaseTiming{Phase: p.name, StartedAt: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("stack", string(debug.Stack())).Error("phase panicked")
			err = fmt.Errorf("panic: %v", r)
		}
		timing.Duration = time.Since(timing.StartedAt)
		timing.Failed = err != nil
		a.Phases = append(a.Phases, timing)
	}()

	if o.beforePhase != nil {
		if err := o.beforePhase(pctx, p.state); err != nil {
			return err
		}
	}
	res, err := p.run(pctx)
	if err != nil {
		return err
	}
	a.AddWarning(res.warnings...)
	if res.partial {
		timing.Partial = true
		a.Partial = true
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		timing.Partial = true
		a.Partial = true
		a.AddWarning(model.NewWarning(p.name, model.SeverityWarning, apperrors.KindCancelled, "",
			fmt.Sprintf("%s timed out after %s; continuing with partial output", p.name, o.cfg.Pipeline.PhaseTimeout)))
	}
	return nil
}

// fail moves the run to Failed and records the critical error.
func (o *Orchestrator) fail(a *model.ApplicationAnalysis, start time.Time, p phase, err error) (*model.ApplicationAnalysis, error) {
	crit := apperrors.NewCriticalError(p.name, p.state.String(), err)
	if advErr := o.advance(StateFailed); advErr != nil {
		o.log.WithError(advErr).Error("cannot enter failed state")
	}
	a.Status = model.StatusFailed
	a.AddWarning(model.NewWarning(p.name, model.SeverityCritical, apperrors.KindCritical, "", crit.Error()))
	a.Duration = time.Since(start)
	a.Metrics = aggregate(a)
	o.log.WithError(err).WithFields(logrus.Fields{
		"failed_phase": p.name,
		"state":        p.state,
		"duration":     a.Duration,
	}).Error("analysis failed")
	return a, crit
}

// reportedCancellation reports whether phase left a cancellation warning.
func reportedCancellation(a *model.ApplicationAnalysis, phase string) bool {
	for _, w := range a.WarningsOfKind(string(apperrors.KindCancelled)) {
		if w.Phase == phase {
			return true
		}
	}
	return false
}

// validateRoot resolves root to an absolute directory.
func validateRoot(root string) (string, error) {
	if root == "" {
		return "", apperrors.NewConfigurationError("root", root, errors.New("root path is required"))
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", apperrors.NewConfigurationError("root", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperrors.NewConfigurationError("root", root, err)
	}
	if !info.IsDir() {
		return "", apperrors.NewConfigurationError("root", root, errors.New("not a directory"))
	}
	return abs, nil
}

// visualize renders a's results with the orchestrator's visualization
// settings into outputDir.
func (o *Orchestrator) visualize(ctx context.Context, a *model.ApplicationAnalysis, outputDir string) (*model.VisualizationPackage, error) {
	opts := generator.OptionsFromConfig(o.cfg.Visualization)
	opts.OutputDir = outputDir
	opts.Title = a.Name
	opts.Logger = o.opts.Logger
	pkg, err := generator.New(opts).Generate(ctx, &a.Code, &a.Dependencies, &a.Architecture, &a.Relationships)
	if err != nil {
		return nil, err
	}
	a.Visualization = pkg
	return pkg, nil
}
