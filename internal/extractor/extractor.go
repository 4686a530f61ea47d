// Package extractor turns source files into symbols. Each language family has
// one Extractor implementation; the Registry maps file extensions onto them.
package extractor

import (
	"fmt"
	"runtime/debug"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"
)

// SourceInput is one file handed to an extractor.
type SourceInput struct {
	Path         string // relative to the crawl root, slash separated
	AbsolutePath string
	Language     string
	Content      []byte
	// ModulePath and ModuleDir locate the enclosing Go module, when any.
	ModulePath string
	ModuleDir  string
}

// ParsedFile is an extractor-specific syntax tree.
type ParsedFile interface {
	Source() SourceInput
	Close()
}

// LineCounts classifies the physical lines of a file.
type LineCounts struct {
	Total   int
	Code    int
	Comment int
	Blank   int
}

// FileResult is everything one file contributes to the code analysis.
type FileResult struct {
	Namespace        string
	Imports          []model.ImportRef
	Symbols          []model.CodeSymbol
	Lines            LineCounts
	NamingChecked    int
	NamingConforming int
}

// Extractor is the capability set every language handler provides.
// Implementations hold no per-file state and are safe for concurrent use.
type Extractor interface {
	Language() string
	Parse(in SourceInput) (ParsedFile, error)
	ExtractSymbols(p ParsedFile) (*FileResult, error)
	ComputeMetrics(p ParsedFile, r *FileResult)
}

// Run parses, extracts and measures one file. Any failure, including a
// panic inside an extractor, is returned as a ParseError.
func Run(e Extractor, in SourceInput) (res *FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = apperrors.NewParseError(in.Path, e.Language(), 0, fmt.Errorf("extractor panic: %v\n%s", r, debug.Stack()))
		}
	}()

	p, err := e.Parse(in)
	if err != nil {
		return nil, asParseError(in, e.Language(), err)
	}
	defer p.Close()

	res, err = e.ExtractSymbols(p)
	if err != nil {
		return nil, asParseError(in, e.Language(), err)
	}
	e.ComputeMetrics(p, res)
	return res, nil
}

func asParseError(in SourceInput, lang string, err error) error {
	if pe, ok := err.(*apperrors.ParseError); ok {
		return pe
	}
	return apperrors.NewParseError(in.Path, lang, 0, err)
}

// finishMetrics fills line counts, naming adherence and type aggregates.
// Every extractor's ComputeMetrics ends here.
func finishMetrics(in SourceInput, style commentStyle, r *FileResult) {
	if r == nil {
		return
	}
	r.Lines = classifyLines(in.Content, style)
	r.NamingChecked, r.NamingConforming = checkNaming(in.Language, r.Symbols)
	aggregateTypeMetrics(r.Symbols)
}

// aggregateTypeMetrics sums member complexity into their owning types.
func aggregateTypeMetrics(symbols []model.CodeSymbol) {
	byName := make(map[string]int, len(symbols))
	for i := range symbols {
		byName[symbols[i].FullName] = i
	}
	for i := range symbols {
		s := &symbols[i]
		if s.Parent == "" {
			continue
		}
		pi, ok := byName[s.Parent]
		if !ok || !symbols[pi].Kind.IsType() {
			continue
		}
		parent := &symbols[pi]
		parent.Metrics.MemberCount++
		parent.Metrics.TotalComplexity += s.Metrics.CyclomaticComplexity
		if s.Metrics.MaxNesting > parent.Metrics.MaxNesting {
			parent.Metrics.MaxNesting = s.Metrics.MaxNesting
		}
	}
}
