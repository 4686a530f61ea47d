package resolver

import (
	"context"
	"path"
	"strings"

	"legacylens/internal/model"
)

// External dependency kinds.
const (
	ExternalPackage = "package"
	ExternalStdlib  = "standard_library"
	ExternalImport  = "unresolved_import"
	ExternalType    = "unresolved_type"
	RegistryStdlib  = "stdlib"
)

var languageRegistry = map[string]string{
	model.LangCSharp:     "nuget",
	model.LangJava:       "maven",
	model.LangPython:     "pypi",
	model.LangJavaScript: "npm",
	model.LangTypeScript: "npm",
	model.LangGo:         "go",
}

var pythonStdlib = setOf("abc", "argparse", "asyncio", "base64", "collections", "concurrent", "contextlib",
	"copy", "csv", "dataclasses", "datetime", "decimal", "enum", "functools", "glob", "hashlib", "http",
	"importlib", "io", "itertools", "json", "logging", "math", "multiprocessing", "os", "pathlib", "pickle",
	"random", "re", "shutil", "socket", "sqlite3", "string", "subprocess", "sys", "tempfile", "threading",
	"time", "typing", "unittest", "urllib", "uuid", "warnings", "xml", "zipfile")

var nodeBuiltins = setOf("assert", "buffer", "child_process", "cluster", "crypto", "dns", "events", "fs",
	"http", "https", "net", "os", "path", "process", "querystring", "readline", "stream", "string_decoder",
	"timers", "tls", "url", "util", "vm", "worker_threads", "zlib")

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// externalStage aggregates every reference that does not resolve inside the
// repository: imports, qualified base types and attributes, and the packages
// the build manifests declare.
type externalStage struct{}

func (externalStage) Name() string { return "external" }

func (externalStage) Run(ctx context.Context, st *state) (ResolveStats, error) {
	var stats ResolveStats
	internal := st.internalNamespaces()

	for _, p := range st.code.Projects {
		for _, pkg := range p.Packages {
			st.addExternal(model.ExternalDependency{
				Name:     pkg.Name,
				Version:  pkg.Version,
				Registry: pkg.Registry,
				Kind:     ExternalPackage,
			}, "")
		}
	}

	for _, f := range st.code.Files {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		referrers := st.fileUnits()[f.Path]
		if len(referrers) == 0 {
			referrers = []string{f.Path}
		}
		for _, imp := range f.Imports {
			p := strings.TrimSpace(imp.Path)
			if p == "" || strings.HasPrefix(p, ".") || internal(p) {
				continue
			}
			if _, _, ok := resolveImport(st, f, imp); ok {
				continue
			}
			stats.Attempted++
			dep, ok := st.classify(p, f)
			if ok {
				stats.Resolved++
			} else {
				stats.Skipped++
			}
			for _, r := range referrers {
				st.addExternal(dep, r)
			}
		}
	}

	for i := range st.code.Symbols {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		s := &st.code.Symbols[i]
		var names []string
		if s.Kind.IsType() {
			_, unresolved := st.ix.ResolveBases(s)
			names = append(names, unresolved...)
		}
		for _, attr := range s.Attributes {
			name := strings.TrimPrefix(strings.TrimSpace(attr), "@")
			if j := strings.Index(name, "("); j >= 0 {
				name = name[:j]
			}
			if strings.Contains(name, ".") {
				if _, ok := resolveAttribute(st, s, name); !ok {
					names = append(names, name)
				}
			}
		}
		if len(names) == 0 {
			continue
		}
		unit := st.ix.Unit(s.FullName)
		file := model.SourceFile{Path: s.Location.File, Language: s.Language}
		for _, name := range names {
			stats.Attempted++
			if strings.Contains(name, ".") && !internal(name) {
				if dep, ok := st.classify(name, file); ok {
					stats.Resolved++
					st.addExternal(dep, unit)
					continue
				}
			}
			stats.Skipped++
			st.addExternal(model.ExternalDependency{
				Name:     name,
				Registry: languageRegistry[s.Language],
				Kind:     ExternalType,
			}, unit)
		}
	}
	return stats, nil
}

// internalNamespaces reports whether a dotted or slashed name is an
// in-repository namespace or a prefix of one.
func (st *state) internalNamespaces() func(string) bool {
	names := make(map[string]bool)
	for _, ns := range st.code.Namespaces {
		for n := ns.Name; n != ""; {
			names[n] = true
			i := strings.LastIndexAny(n, "./")
			if i < 0 {
				break
			}
			n = n[:i]
		}
	}
	return func(name string) bool {
		return names[strings.TrimSuffix(name, ".*")]
	}
}

// classify maps an unresolved name onto a declared package, the language's
// standard library, or an unresolved package root. ok is false only for the
// last case.
func (st *state) classify(name string, f model.SourceFile) (model.ExternalDependency, bool) {
	registry := languageRegistry[f.Language]
	for _, pkg := range st.declaredPackages(f.Path, registry) {
		if packageMatches(registry, pkg.Name, name) {
			return model.ExternalDependency{Name: pkg.Name, Version: pkg.Version, Registry: pkg.Registry, Kind: ExternalPackage}, true
		}
	}
	if isStdlib(f.Language, name) {
		return model.ExternalDependency{Name: packageRoot(f.Language, name), Registry: RegistryStdlib, Kind: ExternalStdlib}, true
	}
	return model.ExternalDependency{Name: packageRoot(f.Language, name), Registry: registry, Kind: ExternalImport}, false
}

// declaredPackages lists the packages of every project enclosing file that
// publish to registry.
func (st *state) declaredPackages(file, registry string) []model.PackageReference {
	var out []model.PackageReference
	dir := path.Dir(file)
	for _, p := range st.code.Projects {
		if p.Path != "." && p.Path != "" && dir != p.Path && !strings.HasPrefix(dir, p.Path+"/") {
			continue
		}
		for _, pkg := range p.Packages {
			if pkg.Registry == registry {
				out = append(out, pkg)
			}
		}
	}
	return out
}

func packageMatches(registry, pkg, name string) bool {
	switch registry {
	case "go":
		return name == pkg || strings.HasPrefix(name, pkg+"/")
	case "npm":
		return packageRoot(model.LangJavaScript, name) == pkg
	case "maven":
		group := pkg
		if i := strings.Index(pkg, ":"); i >= 0 {
			group = pkg[:i]
		}
		return name == group || strings.HasPrefix(name, group+".")
	case "nuget":
		n, p := strings.ToLower(name), strings.ToLower(pkg)
		return n == p || strings.HasPrefix(n, p+".") || strings.HasPrefix(p, n+".")
	case "pypi":
		top := strings.ToLower(packageRoot(model.LangPython, name))
		norm := strings.ToLower(strings.NewReplacer("-", "_", ".", "_").Replace(pkg))
		return top == norm || "py"+top == norm || "python_"+top == norm
	}
	return false
}

func isStdlib(language, name string) bool {
	switch language {
	case model.LangGo:
		first, _, _ := strings.Cut(name, "/")
		return !strings.Contains(first, ".")
	case model.LangCSharp:
		return name == "System" || strings.HasPrefix(name, "System.") || strings.HasPrefix(name, "Microsoft.")
	case model.LangJava:
		for _, p := range []string{"java.", "javax.", "jdk.", "sun."} {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
	case model.LangPython:
		return pythonStdlib[packageRoot(language, name)]
	case model.LangJavaScript, model.LangTypeScript:
		return strings.HasPrefix(name, "node:") || nodeBuiltins[packageRoot(language, name)]
	}
	return false
}

// packageRoot shortens an import to the package that provides it.
func packageRoot(language, name string) string {
	switch language {
	case model.LangGo:
		parts := strings.Split(name, "/")
		if len(parts) >= 3 && strings.Contains(parts[0], ".") {
			return strings.Join(parts[:3], "/")
		}
		return name
	case model.LangJavaScript, model.LangTypeScript:
		parts := strings.Split(strings.TrimPrefix(name, "node:"), "/")
		if strings.HasPrefix(parts[0], "@") && len(parts) > 1 {
			return parts[0] + "/" + parts[1]
		}
		return parts[0]
	case model.LangPython:
		top, _, _ := strings.Cut(name, ".")
		return top
	case model.LangJava, model.LangCSharp:
		parts := strings.Split(strings.TrimSuffix(name, ".*"), ".")
		if len(parts) > 2 {
			parts = parts[:2]
		}
		return strings.Join(parts, ".")
	}
	return name
}
