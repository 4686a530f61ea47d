// Package crawler walks a source tree and records per-file metadata.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/logging"
	"legacylens/internal/model"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Progress is a snapshot delivered to the progress callback.
type Progress struct {
	FilesProcessed       int
	DirectoriesProcessed int
	CurrentPath          string
}

// ProgressFunc receives progress snapshots on a dedicated goroutine.
type ProgressFunc func(Progress)

// Options controls a crawl. Zero MaxFileSize and MaxDepth mean unlimited.
type Options struct {
	Include          []string
	Exclude          []string
	MaxFileSize      int64
	MaxDepth         int
	Hash             bool
	DetectEncoding   bool
	CountLines       bool
	RespectGitignore bool
	FollowSymlinks   bool
	Workers          int
	Categories       map[string]model.FileCategory
	Progress         ProgressFunc
	Logger           logrus.FieldLogger
}

// OptionsFromConfig maps the crawler configuration section onto Options.
func OptionsFromConfig(cfg config.CrawlerConfig) Options {
	cats := make(map[string]model.FileCategory, len(cfg.Categories))
	for ext, cat := range cfg.Categories {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cats[ext] = model.FileCategory(cat)
	}
	return Options{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		MaxFileSize:      cfg.MaxFileSize,
		MaxDepth:         cfg.MaxDepth,
		Hash:             cfg.Hash,
		DetectEncoding:   cfg.DetectEncoding,
		CountLines:       cfg.CountLines,
		RespectGitignore: cfg.RespectGitignore,
		FollowSymlinks:   cfg.FollowSymlinks,
		Workers:          cfg.Workers,
		Categories:       cats,
	}
}

// Crawler scans a directory tree.
type Crawler struct {
	opts   Options
	log    logrus.FieldLogger
	ignore *ignore.GitIgnore
}

// New creates a crawler.
func New(opts Options) *Crawler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Crawler{
		opts: opts,
		log:  logging.OrDiscard(opts.Logger).WithField("phase", model.PhaseCrawl),
	}
}

type dirNode struct {
	path     string
	name     string
	depth    int
	files    []string
	children []*dirNode
}

type fileJob struct {
	abs     string
	rel     string
	dir     *dirNode
	info    fs.FileInfo
	symlink bool
}

type fileResult struct {
	info    *model.FileInfo
	warning *model.Warning
}

// walkState is owned by the single walking goroutine.
type walkState struct {
	root      string
	ancestors map[string]bool
	jobs      []fileJob
	skipped   int
	warnings  []model.Warning
	cancelled bool
}

// Crawl walks root and returns the file inventory. Only a missing or
// unreadable root is an error; every other problem becomes a warning. On
// cancellation the files processed so far are returned with Partial set.
func (c *Crawler) Crawl(ctx context.Context, root string) (*model.FileSystemAnalysis, error) {
	start := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.NewIOError("resolve", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, apperrors.NewIOError("stat", absRoot, err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewIOError("stat", absRoot, errors.New("not a directory"))
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, apperrors.NewIOError("readdir", absRoot, err)
	}

	if c.opts.RespectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore")); err == nil {
			c.ignore = gi
		}
	}

	var (
		filesDone atomic.Int64
		dirsDone  atomic.Int64
	)
	emit, stopProgress := c.startProgress()

	state := &walkState{root: absRoot, ancestors: make(map[string]bool)}
	if real, err := filepath.EvalSymlinks(absRoot); err == nil {
		state.ancestors[real] = true
	}
	rootNode := &dirNode{path: "", name: filepath.Base(absRoot)}
	c.walk(ctx, state, absRoot, rootNode, func(p string) {
		emit(Progress{
			FilesProcessed:       int(filesDone.Load()),
			DirectoriesProcessed: int(dirsDone.Add(1)),
			CurrentPath:          p,
		})
	})

	results := make([]fileResult, len(state.jobs))
	var g errgroup.Group
	g.SetLimit(c.opts.Workers)
	for i, job := range state.jobs {
		if state.cancelled {
			break
		}
		// cancellation is checked per file, never mid-file
		if ctx.Err() != nil {
			state.cancelled = true
			break
		}
		g.Go(func() error {
			results[i] = c.inspect(job)
			emit(Progress{
				FilesProcessed:       int(filesDone.Add(1)),
				DirectoriesProcessed: int(dirsDone.Load()),
				CurrentPath:          job.rel,
			})
			return nil
		})
	}
	_ = g.Wait()
	stopProgress()

	fsa := &model.FileSystemAnalysis{
		RootPath:        absRoot,
		Files:           []model.FileInfo{},
		FilesByCategory: make(map[model.FileCategory]int),
		FilesByLanguage: make(map[string]int),
		SkippedFiles:    state.skipped,
		Warnings:        state.warnings,
	}
	for i, res := range results {
		if res.warning != nil {
			fsa.Warnings = append(fsa.Warnings, *res.warning)
			fsa.SkippedFiles++
		}
		if res.info == nil {
			continue
		}
		fi := *res.info
		fsa.Files = append(fsa.Files, fi)
		state.jobs[i].dir.files = append(state.jobs[i].dir.files, fi.Path)
		fsa.FilesByCategory[fi.Category]++
		if fi.Language != "" {
			fsa.FilesByLanguage[fi.Language]++
		}
	}
	sort.Slice(fsa.Files, func(i, j int) bool { return fsa.Files[i].Path < fsa.Files[j].Path })

	sizes := make(map[string]int64, len(fsa.Files))
	for _, fi := range fsa.Files {
		sizes[fi.Path] = fi.Size
	}
	fsa.Root = buildTree(rootNode, sizes)
	fsa.TotalFiles = len(fsa.Files)
	fsa.TotalDirectories = fsa.Root.DirectoryCount
	fsa.TotalSize = fsa.Root.TotalSize

	if state.cancelled {
		fsa.Partial = true
		fsa.Warnings = append(fsa.Warnings, model.NewWarning(model.PhaseCrawl, model.SeverityWarning,
			apperrors.KindCancelled, "", fmt.Sprintf("crawl cancelled after %d files", fsa.TotalFiles)))
	}
	fsa.Duration = time.Since(start)

	c.log.WithFields(logrus.Fields{
		"files":       fsa.TotalFiles,
		"directories": fsa.TotalDirectories,
		"skipped":     fsa.SkippedFiles,
		"warnings":    len(fsa.Warnings),
	}).Info("crawl finished")
	return fsa, nil
}

func (c *Crawler) walk(ctx context.Context, st *walkState, absDir string, node *dirNode, onDir func(string)) {
	if st.cancelled {
		return
	}
	if ctx.Err() != nil {
		st.cancelled = true
		return
	}
	entries, err := os.ReadDir(absDir)
	if err != nil {
		st.warnings = append(st.warnings, model.WarningFromError(model.PhaseCrawl, apperrors.NewIOError("readdir", node.path, err)))
		return
	}
	onDir(node.path)

	for _, entry := range entries {
		if st.cancelled {
			return
		}
		name := entry.Name()
		abs := filepath.Join(absDir, name)
		rel := path.Join(node.path, name)

		isSymlink := entry.Type()&fs.ModeSymlink != 0
		var info fs.FileInfo
		if isSymlink {
			if !c.opts.FollowSymlinks {
				st.skipped++
				continue
			}
			info, err = os.Stat(abs)
			if err != nil {
				st.warnings = append(st.warnings, model.WarningFromError(model.PhaseCrawl, apperrors.NewIOError("stat", rel, err)))
				st.skipped++
				continue
			}
		} else {
			info, err = entry.Info()
			if err != nil {
				st.warnings = append(st.warnings, model.WarningFromError(model.PhaseCrawl, apperrors.NewIOError("stat", rel, err)))
				st.skipped++
				continue
			}
		}

		if info.IsDir() {
			if c.dirExcluded(rel) {
				continue
			}
			depth := node.depth + 1
			if c.opts.MaxDepth > 0 && depth > c.opts.MaxDepth {
				continue
			}
			real, err := filepath.EvalSymlinks(abs)
			if err != nil {
				real = abs
			}
			if st.ancestors[real] {
				st.warnings = append(st.warnings, model.NewWarning(model.PhaseCrawl, model.SeverityWarning,
					apperrors.KindIO, rel, fmt.Sprintf("symlink cycle: %s resolves to an ancestor directory", rel)))
				continue
			}
			child := &dirNode{path: rel, name: name, depth: depth}
			node.children = append(node.children, child)
			st.ancestors[real] = true
			c.walk(ctx, st, abs, child, onDir)
			delete(st.ancestors, real)
			continue
		}

		if !info.Mode().IsRegular() {
			st.skipped++
			continue
		}
		if !c.fileIncluded(rel) {
			st.skipped++
			continue
		}
		st.jobs = append(st.jobs, fileJob{abs: abs, rel: rel, dir: node, info: info, symlink: isSymlink})
	}
}

func (c *Crawler) dirExcluded(rel string) bool {
	for _, p := range c.opts.Exclude {
		if matchGlob(p, rel) || matchGlob(p, rel+"/") {
			return true
		}
	}
	return c.ignore != nil && (c.ignore.MatchesPath(rel) || c.ignore.MatchesPath(rel+"/"))
}

func (c *Crawler) fileIncluded(rel string) bool {
	for _, p := range c.opts.Exclude {
		if matchGlob(p, rel) {
			return false
		}
	}
	if c.ignore != nil && c.ignore.MatchesPath(rel) {
		return false
	}
	if len(c.opts.Include) == 0 {
		return true
	}
	for _, p := range c.opts.Include {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}

// inspect reads one file. It runs on a worker and touches only its job.
func (c *Crawler) inspect(job fileJob) fileResult {
	name := filepath.Base(job.rel)
	fi := &model.FileInfo{
		Path:         job.rel,
		AbsolutePath: job.abs,
		Name:         name,
		Extension:    strings.ToLower(filepath.Ext(name)),
		Category:     Categorize(name, c.opts.Categories),
		Language:     model.LanguageFor(name),
		Size:         job.info.Size(),
		ModifiedAt:   job.info.ModTime().UTC(),
		IsSymlink:    job.symlink,
	}

	if c.opts.MaxFileSize > 0 && fi.Size > c.opts.MaxFileSize {
		w := model.NewWarning(model.PhaseCrawl, model.SeverityInfo, apperrors.KindIO, job.rel,
			fmt.Sprintf("skipped %s: %d bytes exceeds limit of %d", job.rel, fi.Size, c.opts.MaxFileSize))
		return fileResult{warning: &w}
	}

	data, err := os.ReadFile(job.abs)
	if err != nil {
		w := model.WarningFromError(model.PhaseCrawl, apperrors.NewIOError("read", job.rel, err))
		return fileResult{warning: &w}
	}

	encoding, binary := encodingFor(data)
	fi.IsBinary = binary
	if binary {
		fi.Encoding = model.EncodingBinary
	} else {
		if c.opts.DetectEncoding {
			fi.Encoding = encoding
		}
		if c.opts.CountLines {
			fi.LineCount = countLines(data)
		}
	}
	if c.opts.Hash {
		fi.ContentHash = fmt.Sprintf("%016x", xxhash.Sum64(data))
	}
	return fileResult{info: fi}
}

// startProgress starts the goroutine that delivers progress. emit never
// blocks: snapshots are dropped while the callback is busy.
func (c *Crawler) startProgress() (emit func(Progress), stop func()) {
	if c.opts.Progress == nil {
		return func(Progress) {}, func() {}
	}
	events := make(chan Progress, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range events {
			c.opts.Progress(p)
		}
	}()
	emit = func(p Progress) {
		select {
		case events <- p:
		default:
		}
	}
	stop = func() {
		close(events)
		<-done
	}
	return emit, stop
}

func buildTree(n *dirNode, sizes map[string]int64) model.DirectoryStructure {
	ds := model.DirectoryStructure{
		Path:           n.path,
		Name:           n.name,
		Depth:          n.depth,
		Files:          append([]string{}, n.files...),
		Subdirectories: []model.DirectoryStructure{},
	}
	sort.Strings(ds.Files)
	ds.FileCount = len(ds.Files)
	for _, f := range ds.Files {
		ds.TotalSize += sizes[f]
	}
	for _, child := range n.children {
		sub := buildTree(child, sizes)
		ds.FileCount += sub.FileCount
		ds.DirectoryCount += 1 + sub.DirectoryCount
		ds.TotalSize += sub.TotalSize
		ds.Subdirectories = append(ds.Subdirectories, sub)
	}
	return ds
}
