package analysis

import (
	"fmt"
	"sort"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"
)

// GlobalNamespace names the namespace view entry for symbols declared
// outside any namespace or package.
const GlobalNamespace = "(global)"

// reducer merges per-file results on a single goroutine.
type reducer struct {
	defaultAssembly  string
	symbols          []model.CodeSymbol
	byName           map[string]int
	files            []model.SourceFile
	projectOf        map[string]string // assembly -> manifest
	warnings         []model.Warning
	namingChecked    int
	namingConforming int
}

func newReducer(defaultAssembly string) *reducer {
	return &reducer{
		defaultAssembly: defaultAssembly,
		byName:          make(map[string]int),
		projectOf:       make(map[string]string),
	}
}

func (r *reducer) add(job fileJob, out fileOutcome) {
	sf := model.SourceFile{
		Path:         job.file.Path,
		AbsolutePath: job.file.AbsolutePath,
		Language:     job.extractor.Language(),
		Assembly:     job.assembly,
		Imports:      []model.ImportRef{},
		Symbols:      []string{},
		LineCount:    out.lines,
	}
	if _, ok := r.projectOf[job.assembly]; !ok || job.project != "" {
		r.projectOf[job.assembly] = job.project
	}

	if out.err != nil {
		sf.ParseFailed = true
		r.files = append(r.files, sf)
		r.warnings = append(r.warnings, model.WarningFromError(model.PhaseCodeAnalysis, out.err))
		return
	}

	res := out.result
	sf.Namespace = res.Namespace
	if res.Imports != nil {
		sf.Imports = res.Imports
	}
	sf.LineCount = res.Lines.Total
	sf.CodeLines = res.Lines.Code
	sf.CommentLines = res.Lines.Comment
	sf.BlankLines = res.Lines.Blank
	r.namingChecked += res.NamingChecked
	r.namingConforming += res.NamingConforming

	renamed := make(map[string]string)
	seen := make(map[string]bool)
	for _, s := range res.Symbols {
		s.Assembly = job.assembly
		if to, ok := renamed[s.Parent]; ok {
			if strings.HasPrefix(s.FullName, s.Parent) {
				s.FullName = to + strings.TrimPrefix(s.FullName, s.Parent)
			}
			s.Parent = to
		}
		name := r.place(s, renamed)
		if !seen[name] {
			seen[name] = true
			sf.Symbols = append(sf.Symbols, name)
		}
	}
	r.files = append(r.files, sf)
}

// place inserts a symbol under a unique full name and returns that name.
// Namespaces and partial types are merged into their first declaration;
// any other clash gets a numeric suffix and a warning.
func (r *reducer) place(s model.CodeSymbol, renamed map[string]string) string {
	i, exists := r.byName[s.FullName]
	if !exists {
		r.byName[s.FullName] = len(r.symbols)
		r.symbols = append(r.symbols, s)
		return s.FullName
	}
	existing := &r.symbols[i]
	if mergeable(*existing, s) {
		merge(existing, s)
		return existing.FullName
	}

	original := s.FullName
	n := 2
	for {
		candidate := fmt.Sprintf("%s#%d", original, n)
		if _, taken := r.byName[candidate]; !taken {
			s.FullName = candidate
			break
		}
		n++
	}
	renamed[original] = s.FullName
	r.warnings = append(r.warnings, model.NewWarning(model.PhaseCodeAnalysis, model.SeverityWarning,
		apperrors.KindParse, s.Location.File,
		fmt.Sprintf("duplicate symbol %s (first declared in %s) renamed to %s", original, existing.Location.File, s.FullName)))
	r.byName[s.FullName] = len(r.symbols)
	r.symbols = append(r.symbols, s)
	return s.FullName
}

func mergeable(a, b model.CodeSymbol) bool {
	if a.Kind == model.KindNamespace && b.Kind == model.KindNamespace {
		return true
	}
	return a.Kind == b.Kind && a.Kind.IsType() && (a.HasModifier("partial") || b.HasModifier("partial"))
}

func merge(into *model.CodeSymbol, from model.CodeSymbol) {
	if into.Kind == model.KindNamespace {
		return
	}
	into.BaseTypes = union(into.BaseTypes, from.BaseTypes)
	into.Modifiers = union(into.Modifiers, from.Modifiers)
	into.Attributes = union(into.Attributes, from.Attributes)
	into.References = append(into.References, from.References...)
	into.Documented = into.Documented || from.Documented
	into.Metrics.LinesOfCode += from.Metrics.LinesOfCode
	if into.Access == "" {
		into.Access = from.Access
	}
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			a = append(a, s)
		}
	}
	return a
}

// finish sorts the symbol table, rebuilds ownership and fills the views.
func (r *reducer) finish(code *model.CodeAnalysis) {
	sort.SliceStable(r.symbols, func(i, j int) bool { return r.symbols[i].FullName < r.symbols[j].FullName })
	index := make(map[string]int, len(r.symbols))
	for i := range r.symbols {
		index[r.symbols[i].FullName] = i
		r.symbols[i].Members = nil
	}
	for i := range r.symbols {
		s := &r.symbols[i]
		pi, ok := index[s.Parent]
		if !ok || s.Parent == s.FullName {
			continue
		}
		r.symbols[pi].Members = append(r.symbols[pi].Members, s.FullName)
	}
	for i := range r.symbols {
		s := &r.symbols[i]
		if !s.Kind.IsType() {
			continue
		}
		s.Metrics.MemberCount = len(s.Members)
		s.Metrics.TotalComplexity = 0
		for _, m := range s.Members {
			member := r.symbols[index[m]]
			s.Metrics.TotalComplexity += member.Metrics.CyclomaticComplexity
			if member.Metrics.MaxNesting > s.Metrics.MaxNesting {
				s.Metrics.MaxNesting = member.Metrics.MaxNesting
			}
		}
	}

	code.Symbols = r.symbols
	if code.Symbols == nil {
		code.Symbols = []model.CodeSymbol{}
	}
	code.Files = r.files
	if code.Files == nil {
		code.Files = []model.SourceFile{}
	}
	code.Namespaces = namespaceView(code.Symbols)
	code.Assemblies = assemblyView(code.Symbols, code.Files, r.projectOf)
	code.Warnings = append(code.Warnings, r.warnings...)
	code.Metrics = computeMetrics(code, r.namingChecked, r.namingConforming)
	code.Quality = Score(code.Metrics)
}

// NamespaceOf returns the namespace view key of a symbol.
func NamespaceOf(s model.CodeSymbol) string {
	if s.Namespace == "" {
		return GlobalNamespace
	}
	return s.Namespace
}

func namespaceView(symbols []model.CodeSymbol) []model.NamespaceInfo {
	byName := make(map[string]*model.NamespaceInfo)
	files := make(map[string]map[string]bool)
	for _, s := range symbols {
		ns := NamespaceOf(s)
		info, ok := byName[ns]
		if !ok {
			info = &model.NamespaceInfo{Name: ns, Assembly: s.Assembly, Types: []string{}}
			byName[ns] = info
			files[ns] = make(map[string]bool)
		}
		info.SymbolCount++
		if s.Kind.IsType() {
			info.Types = append(info.Types, s.FullName)
		}
		if s.Location.File != "" {
			files[ns][s.Location.File] = true
		}
	}
	out := make([]model.NamespaceInfo, 0, len(byName))
	for ns, info := range byName {
		info.Files = sortedKeys(files[ns])
		sort.Strings(info.Types)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func assemblyView(symbols []model.CodeSymbol, files []model.SourceFile, projectOf map[string]string) []model.AssemblyInfo {
	byName := make(map[string]*model.AssemblyInfo)
	namespaces := make(map[string]map[string]bool)
	fileSets := make(map[string]map[string]bool)
	get := func(name string) *model.AssemblyInfo {
		info, ok := byName[name]
		if !ok {
			info = &model.AssemblyInfo{Name: name, Project: projectOf[name]}
			byName[name] = info
			namespaces[name] = make(map[string]bool)
			fileSets[name] = make(map[string]bool)
		}
		return info
	}
	for _, f := range files {
		get(f.Assembly)
		fileSets[f.Assembly][f.Path] = true
	}
	for _, s := range symbols {
		info := get(s.Assembly)
		info.SymbolCount++
		namespaces[s.Assembly][NamespaceOf(s)] = true
	}
	out := make([]model.AssemblyInfo, 0, len(byName))
	for name, info := range byName {
		info.Namespaces = sortedKeys(namespaces[name])
		info.Files = sortedKeys(fileSets[name])
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
