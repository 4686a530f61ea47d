package resolver

import (
	"context"
	"regexp"
	"strings"

	"legacylens/internal/model"
)

// dynamicPattern is a reflection-style construct. Group 1, when present,
// captures the literal the construct names.
type dynamicPattern struct {
	name string
	kind model.DependencyKind
	re   *regexp.Regexp
}

func pattern(name string, kind model.DependencyKind, expr string) dynamicPattern {
	return dynamicPattern{name: name, kind: kind, re: regexp.MustCompile(expr)}
}

var scriptPatterns = []dynamicPattern{
	pattern("dynamic_require", model.DepDynamicLoad, `\brequire\(\s*[^'"\s)]`),
	pattern("dynamic_import", model.DepDynamicLoad, `\bimport\(\s*(?:['"]([^'"]+)['"])?`),
	pattern("eval", model.DepEval, `\beval\(`),
	pattern("function_constructor", model.DepEval, `\bnew\s+Function\(`),
	pattern("reflect_get", model.DepReflection, `\bReflect\.(?:get|apply|construct)\(`),
}

var dynamicPatterns = map[string][]dynamicPattern{
	model.LangCSharp: {
		pattern("type_get_type", model.DepReflection, `\bType\.GetType\(\s*(?:"([^"]+)")?`),
		pattern("activator", model.DepReflection, `\bActivator\.CreateInstance(?:<(\w+)>)?\(`),
		pattern("get_method", model.DepReflection, `\.Get(?:Method|Property|Field)\(\s*(?:"([^"]+)")?`),
		pattern("invoke_member", model.DepReflection, `\.InvokeMember\(\s*(?:"([^"]+)")?`),
		pattern("assembly_load", model.DepDynamicLoad, `\bAssembly\.(?:Load|LoadFrom|LoadFile)\(\s*(?:"([^"]+)")?`),
		pattern("dynamic_keyword", model.DepReflection, `\bdynamic\s+\w+\s*=`),
	},
	model.LangJava: {
		pattern("class_for_name", model.DepReflection, `\bClass\.forName\(\s*(?:"([^"]+)")?`),
		pattern("get_method", model.DepReflection, `\.get(?:Declared)?(?:Method|Field)\(\s*(?:"([^"]+)")?`),
		pattern("new_instance", model.DepReflection, `\.newInstance\(`),
		pattern("load_class", model.DepDynamicLoad, `\.loadClass\(\s*(?:"([^"]+)")?`),
		pattern("service_loader", model.DepDynamicLoad, `\bServiceLoader\.load\(\s*(\w+)?`),
		pattern("script_eval", model.DepEval, `\bScriptEngine\b[\s\S]{0,80}?\.eval\(`),
	},
	model.LangPython: {
		pattern("import_module", model.DepDynamicLoad, `\bimportlib\.import_module\(\s*(?:['"]([^'"]+)['"])?`),
		pattern("dunder_import", model.DepDynamicLoad, `\b__import__\(\s*(?:['"]([^'"]+)['"])?`),
		pattern("getattr", model.DepReflection, `\bgetattr\(\s*[^,]+,\s*(?:['"](\w+)['"])?`),
		pattern("eval", model.DepEval, `\beval\(`),
		pattern("exec", model.DepEval, `\bexec\(`),
	},
	model.LangJavaScript: scriptPatterns,
	model.LangTypeScript: scriptPatterns,
	model.LangGo: {
		pattern("reflect", model.DepReflection, `\breflect\.(?:ValueOf|TypeOf|New)\(`),
		pattern("method_by_name", model.DepReflection, `\.MethodByName\(\s*(?:"([^"]+)")?`),
		pattern("plugin_open", model.DepDynamicLoad, `\bplugin\.Open\(\s*(?:"([^"]+)")?`),
	},
	model.LangSQL: {
		pattern("dynamic_sql", model.DepEval, `(?i)\b(?:sp_executesql|EXEC(?:UTE)?\s*\(\s*@\w+)`),
	},
}

// dynamicStage finds reflection, dynamic loading and eval constructs by
// text pattern, flagging those that sit inside a branch.
type dynamicStage struct{}

func (dynamicStage) Name() string { return "dynamic" }

func (dynamicStage) Run(ctx context.Context, st *state) (ResolveStats, error) {
	var stats ResolveStats
	for _, f := range st.code.Files {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		patterns := dynamicPatterns[f.Language]
		if len(patterns) == 0 || f.ParseFailed {
			continue
		}
		src := st.source(f)
		if src == nil {
			continue
		}
		text := string(src)
		masked := maskComments(text, f.Language)
		for _, p := range patterns {
			for _, m := range p.re.FindAllStringSubmatchIndex(masked, -1) {
				stats.Attempted++
				line := lineAt(text, m[0])
				dep := model.DynamicDependency{
					From:        st.enclosing(f.Path, line),
					Kind:        p.kind,
					Pattern:     p.name,
					Language:    f.Language,
					Conditional: isConditional(masked, m[0], f.Language),
					Location:    model.Location{File: f.Path, StartLine: line, EndLine: line},
				}
				if len(m) > 3 && m[2] >= 0 {
					dep.Target = text[m[2]:m[3]]
					if to, ok := st.resolveLiteral(dep.Target); ok {
						dep.ResolvedTo = to
						stats.Resolved++
					} else {
						stats.Skipped++
					}
				} else {
					stats.Skipped++
				}
				st.dynamic = append(st.dynamic, dep)
			}
		}
	}
	return stats, nil
}

// resolveLiteral maps a string naming a type or module ("com.shop.Plugin",
// "Shop.Plugins.Csv, Shop.Plugins") onto a repository symbol.
func (st *state) resolveLiteral(lit string) (string, bool) {
	name := strings.TrimSpace(lit)
	if i := strings.Index(name, ","); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.ReplaceAll(name, "+", ".")
	if name == "" {
		return "", false
	}
	if s, ok := st.ix.Symbol(name); ok {
		return s.FullName, true
	}
	if st.ix.IsType(name) {
		return name, true
	}
	if t, ok := st.ix.ResolveType(name, nil); ok {
		return t, true
	}
	return "", false
}

// enclosing returns the most specific symbol of a file spanning line, or
// the file itself for top-level code.
func (st *state) enclosing(file string, line int) string {
	if st.byFile == nil {
		st.byFile = make(map[string][]int)
		for i, s := range st.code.Symbols {
			st.byFile[s.Location.File] = append(st.byFile[s.Location.File], i)
		}
	}
	best, span := "", -1
	for _, i := range st.byFile[file] {
		s := st.code.Symbols[i]
		if s.Kind == model.KindNamespace || line < s.Location.StartLine || line > s.Location.EndLine {
			continue
		}
		if d := s.Location.EndLine - s.Location.StartLine; span < 0 || d < span {
			best, span = s.FullName, d
		}
	}
	if best == "" {
		return file
	}
	return best
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
