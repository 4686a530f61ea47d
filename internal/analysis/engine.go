// Package analysis turns the crawled file inventory into the flat symbol
// table, its namespace and assembly views, and codebase metrics.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/extractor"
	"legacylens/internal/logging"
	"legacylens/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options controls an analysis run.
type Options struct {
	Registry *extractor.Registry
	Workers  int
	Logger   logrus.FieldLogger
}

// OptionsFromConfig builds the extractor registry from the configured
// extension mapping. An unknown language is a configuration error.
func OptionsFromConfig(cfg config.AnalysisConfig) (Options, error) {
	reg, err := extractor.NewRegistry(cfg.Extractors)
	if err != nil {
		return Options{}, err
	}
	return Options{Registry: reg, Workers: cfg.Workers}, nil
}

// Engine dispatches source files to language extractors.
type Engine struct {
	opts Options
	log  logrus.FieldLogger
}

// NewEngine creates an engine. A nil registry means the default one.
func NewEngine(opts Options) *Engine {
	if opts.Registry == nil {
		opts.Registry = extractor.DefaultRegistry()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Engine{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseCodeAnalysis),
	}
}

type fileJob struct {
	file      model.FileInfo
	extractor extractor.Extractor
	assembly  string
	project   string
	module    model.ProjectInfo
}

type fileOutcome struct {
	done   bool
	result *extractor.FileResult
	lines  int
	err    error
}

// Analyze parses every file with a registered extractor. Files that fail to
// read or parse are kept with ParseFailed set and reported as warnings. On
// cancellation the files finished so far are returned with Partial set.
func (e *Engine) Analyze(ctx context.Context, fs *model.FileSystemAnalysis) *model.CodeAnalysis {
	start := time.Now()
	code := &model.CodeAnalysis{
		Symbols:    []model.CodeSymbol{},
		Files:      []model.SourceFile{},
		Namespaces: []model.NamespaceInfo{},
		Assemblies: []model.AssemblyInfo{},
		Projects:   []model.ProjectInfo{},
	}
	if fs == nil {
		code.Metrics = computeMetrics(code, 0, 0)
		code.Quality = Score(code.Metrics)
		code.Duration = time.Since(start)
		return code
	}

	projects, warnings := discoverProjects(fs)
	if projects != nil {
		code.Projects = projects
	}
	code.Warnings = append(code.Warnings, warnings...)

	jobs := e.plan(fs, projects)
	outcomes := make([]fileOutcome, len(jobs))
	cancelled := false

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, job := range jobs {
		// cancellation is checked per file, never mid-file
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g.Go(func() error {
			outcomes[i] = e.analyzeFile(job)
			return nil
		})
	}
	_ = g.Wait()

	r := newReducer(rootName(fs.RootPath))
	for i, out := range outcomes {
		if !out.done {
			continue
		}
		r.add(jobs[i], out)
	}
	r.finish(code)

	if cancelled {
		code.Partial = true
		code.Warnings = append(code.Warnings, model.NewWarning(model.PhaseCodeAnalysis, model.SeverityWarning,
			apperrors.KindCancelled, "", fmt.Sprintf("code analysis cancelled after %d of %d files", len(code.Files), len(jobs))))
	}
	code.Duration = time.Since(start)

	e.log.WithFields(logrus.Fields{
		"files":    code.Metrics.TotalFiles,
		"failed":   code.Metrics.FailedFiles,
		"symbols":  code.Metrics.TotalSymbols,
		"projects": len(code.Projects),
		"warnings": len(code.Warnings),
	}).Info("code analysis finished")
	return code
}

// plan selects the files an extractor is registered for, in inventory order.
func (e *Engine) plan(fs *model.FileSystemAnalysis, projects []model.ProjectInfo) []fileJob {
	defaultAssembly := rootName(fs.RootPath)
	var jobs []fileJob
	for _, fi := range fs.Files {
		if fi.IsBinary {
			continue
		}
		ex, ok := e.opts.Registry.For(fi.Path)
		if !ok {
			continue
		}
		job := fileJob{file: fi, extractor: ex, assembly: defaultAssembly}
		if p, ok := projectFor(projects, fi.Path, ex.Language()); ok {
			job.assembly = p.Name
			job.project = p.Manifest
		}
		if ex.Language() == model.LangGo {
			job.module, _ = goModuleFor(projects, fi.Path)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// analyzeFile runs on a worker and touches only its job.
func (e *Engine) analyzeFile(job fileJob) fileOutcome {
	data, err := os.ReadFile(job.file.AbsolutePath)
	if err != nil {
		return fileOutcome{done: true, err: apperrors.NewIOError("read", job.file.Path, err)}
	}
	in := extractor.SourceInput{
		Path:         job.file.Path,
		AbsolutePath: job.file.AbsolutePath,
		Language:     job.extractor.Language(),
		Content:      data,
		ModulePath:   job.module.Name,
		ModuleDir:    job.module.Path,
	}
	res, err := extractor.Run(job.extractor, in)
	if err != nil {
		var parseErr *apperrors.ParseError
		if !errors.As(err, &parseErr) {
			err = apperrors.NewParseError(job.file.Path, in.Language, 0, err)
		}
		e.log.WithError(err).WithField("file", job.file.Path).Debug("extraction failed")
		return fileOutcome{done: true, lines: countLines(data), err: err}
	}
	return fileOutcome{done: true, result: res, lines: countLines(data)}
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
