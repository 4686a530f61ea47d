package extractor

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"
)

// constructors is the static language -> extractor table.
var constructors = map[string]func() Extractor{
	model.LangCSharp:     func() Extractor { return NewCSharpExtractor() },
	model.LangJava:       func() Extractor { return NewJavaExtractor() },
	model.LangPython:     func() Extractor { return NewPythonExtractor() },
	model.LangJavaScript: func() Extractor { return NewJavaScriptExtractor() },
	model.LangTypeScript: func() Extractor { return NewTypeScriptExtractor() },
	model.LangGo:         func() Extractor { return NewGoExtractor() },
	model.LangSQL:        func() Extractor { return NewSQLExtractor() },
	model.LangXAML:       func() Extractor { return NewMarkupExtractor(model.LangXAML) },
	model.LangXML:        func() Extractor { return NewMarkupExtractor(model.LangXML) },
	model.LangHTML:       func() Extractor { return NewMarkupExtractor(model.LangHTML) },
	model.LangRazor:      func() Extractor { return NewMarkupExtractor(model.LangRazor) },
}

// DefaultExtensions is the extension -> language mapping used when the
// configuration provides none.
var DefaultExtensions = map[string]string{
	".cs":     model.LangCSharp,
	".java":   model.LangJava,
	".py":     model.LangPython,
	".js":     model.LangJavaScript,
	".jsx":    model.LangJavaScript,
	".mjs":    model.LangJavaScript,
	".cjs":    model.LangJavaScript,
	".ts":     model.LangTypeScript,
	".tsx":    model.LangTypeScript,
	".go":     model.LangGo,
	".sql":    model.LangSQL,
	".xaml":   model.LangXAML,
	".html":   model.LangHTML,
	".htm":    model.LangHTML,
	".aspx":   model.LangHTML,
	".cshtml": model.LangRazor,
	".razor":  model.LangRazor,
}

// Registry maps file extensions to extractors.
type Registry struct {
	byExt map[string]Extractor
}

// DefaultRegistry returns a registry over DefaultExtensions.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(DefaultExtensions)
	return r
}

// NewRegistry builds a registry from an extension -> language mapping.
// Unknown languages are a configuration error.
func NewRegistry(mapping map[string]string) (*Registry, error) {
	if len(mapping) == 0 {
		mapping = DefaultExtensions
	}
	shared := make(map[string]Extractor)
	r := &Registry{byExt: make(map[string]Extractor, len(mapping))}
	for ext, lang := range mapping {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		lang = strings.ToLower(lang)
		if ext == ".tsx" && lang == model.LangTypeScript {
			r.byExt[ext] = NewTSXExtractor()
			continue
		}
		e, ok := shared[lang]
		if !ok {
			ctor, known := constructors[lang]
			if !known {
				return nil, apperrors.NewConfigurationError("analysis.extractors"+ext, lang, errors.New("no extractor for language"))
			}
			e = ctor()
			shared[lang] = e
		}
		r.byExt[ext] = e
	}
	return r, nil
}

// For returns the extractor responsible for a file path.
func (r *Registry) For(path string) (Extractor, bool) {
	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return e, ok
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// KnownLanguages lists every language an extractor exists for.
func KnownLanguages() []string {
	langs := make([]string, 0, len(constructors))
	for l := range constructors {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
