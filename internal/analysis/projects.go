package analysis

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
)

// Project kinds and their package registries.
const (
	ProjectMSBuild = "msbuild"
	ProjectMaven   = "maven"
	ProjectNPM     = "npm"
	ProjectGo      = "go"
	ProjectPython  = "python"
)

var registryFor = map[string]string{
	ProjectMSBuild: "nuget",
	ProjectMaven:   "maven",
	ProjectNPM:     "npm",
	ProjectGo:      "go",
	ProjectPython:  "pypi",
}

type manifestParser func(rel string, data []byte) (model.ProjectInfo, error)

// manifestFor picks the parser for a file name, or nil when the file is not
// a build manifest.
func manifestFor(name string) manifestParser {
	switch strings.ToLower(name) {
	case "go.mod":
		return parseGoMod
	case "package.json":
		return parsePackageJSON
	case "pom.xml":
		return parsePOM
	case "pyproject.toml":
		return parsePyProject
	case "requirements.txt":
		return parseRequirements
	case "packages.config":
		return parsePackagesConfig
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".csproj", ".vbproj", ".fsproj":
		return parseMSBuild
	}
	return nil
}

// discoverProjects reads every build manifest in the inventory. Projects
// sharing a directory and kind are merged, so packages.config lands on the
// project file next to it.
func discoverProjects(fs *model.FileSystemAnalysis) ([]model.ProjectInfo, []model.Warning) {
	var (
		projects []model.ProjectInfo
		warnings []model.Warning
	)
	byKey := make(map[[2]string]int)
	for _, fi := range fs.Files {
		parse := manifestFor(fi.Name)
		if parse == nil || fi.IsBinary {
			continue
		}
		data, err := os.ReadFile(fi.AbsolutePath)
		if err != nil {
			warnings = append(warnings, model.WarningFromError(model.PhaseCodeAnalysis, apperrors.NewIOError("read", fi.Path, err)))
			continue
		}
		p, err := parse(fi.Path, data)
		if err != nil {
			warnings = append(warnings, model.WarningFromError(model.PhaseCodeAnalysis,
				apperrors.NewParseError(fi.Path, "manifest", 0, err)))
			continue
		}
		p.Path = path.Dir(fi.Path)
		p.Manifest = fi.Path
		if p.Name == "" {
			p.Name = dirName(p.Path, fs.RootPath)
		}
		key := [2]string{p.Path, p.Kind}
		if i, ok := byKey[key]; ok {
			merged := &projects[i]
			merged.Packages = append(merged.Packages, p.Packages...)
			if strings.EqualFold(path.Base(merged.Manifest), "packages.config") {
				merged.Name, merged.Manifest = p.Name, p.Manifest
			}
			continue
		}
		byKey[key] = len(projects)
		projects = append(projects, p)
	}
	for i := range projects {
		projects[i].Packages = dedupePackages(projects[i].Packages)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Path == projects[j].Path {
			return projects[i].Manifest < projects[j].Manifest
		}
		return projects[i].Path < projects[j].Path
	})
	return projects, warnings
}

func dirName(dir, root string) string {
	if dir == "." || dir == "" {
		return rootName(root)
	}
	return path.Base(dir)
}

func rootName(root string) string {
	if root == "" {
		return "application"
	}
	base := path.Base(strings.ReplaceAll(root, "\\", "/"))
	if base == "." || base == "/" {
		return "application"
	}
	return base
}

func dedupePackages(pkgs []model.PackageReference) []model.PackageReference {
	seen := make(map[model.PackageReference]bool, len(pkgs))
	out := make([]model.PackageReference, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Name == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Version < out[j].Version
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func pkg(kind, name, version string) model.PackageReference {
	return model.PackageReference{
		Name:     strings.TrimSpace(name),
		Version:  strings.TrimSpace(version),
		Registry: registryFor[kind],
	}
}

func parseGoMod(rel string, data []byte) (model.ProjectInfo, error) {
	f, err := modfile.ParseLax(rel, data, nil)
	if err != nil {
		return model.ProjectInfo{}, err
	}
	p := model.ProjectInfo{Kind: ProjectGo, Language: model.LangGo}
	if f.Module != nil {
		p.Name = f.Module.Mod.Path
	}
	for _, r := range f.Require {
		p.Packages = append(p.Packages, pkg(ProjectGo, r.Mod.Path, r.Mod.Version))
	}
	return p, nil
}

type packageJSON struct {
	Name                 string            `json:"name"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func parsePackageJSON(rel string, data []byte) (model.ProjectInfo, error) {
	var doc packageJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.ProjectInfo{}, err
	}
	p := model.ProjectInfo{Name: doc.Name, Kind: ProjectNPM, Language: model.LangJavaScript}
	for _, deps := range []map[string]string{doc.Dependencies, doc.DevDependencies, doc.PeerDependencies, doc.OptionalDependencies} {
		for name, version := range deps {
			p.Packages = append(p.Packages, pkg(ProjectNPM, name, version))
		}
	}
	return p, nil
}

type pomProject struct {
	GroupID      string `xml:"groupId"`
	ArtifactID   string `xml:"artifactId"`
	Dependencies []struct {
		GroupID    string `xml:"groupId"`
		ArtifactID string `xml:"artifactId"`
		Version    string `xml:"version"`
	} `xml:"dependencies>dependency"`
}

func parsePOM(rel string, data []byte) (model.ProjectInfo, error) {
	var doc pomProject
	if err := xml.Unmarshal(data, &doc); err != nil {
		return model.ProjectInfo{}, err
	}
	p := model.ProjectInfo{Name: doc.ArtifactID, Kind: ProjectMaven, Language: model.LangJava}
	for _, d := range doc.Dependencies {
		name := d.ArtifactID
		if d.GroupID != "" {
			name = d.GroupID + ":" + d.ArtifactID
		}
		p.Packages = append(p.Packages, pkg(ProjectMaven, name, d.Version))
	}
	return p, nil
}

type msbuildProject struct {
	PropertyGroups []struct {
		AssemblyName  string `xml:"AssemblyName"`
		RootNamespace string `xml:"RootNamespace"`
	} `xml:"PropertyGroup"`
	ItemGroups []struct {
		PackageReferences []struct {
			Include      string `xml:"Include,attr"`
			Version      string `xml:"Version,attr"`
			VersionValue string `xml:"Version"`
		} `xml:"PackageReference"`
		References []struct {
			Include string `xml:"Include,attr"`
		} `xml:"Reference"`
	} `xml:"ItemGroup"`
}

func parseMSBuild(rel string, data []byte) (model.ProjectInfo, error) {
	var doc msbuildProject
	if err := xml.Unmarshal(data, &doc); err != nil {
		return model.ProjectInfo{}, err
	}
	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	for _, pg := range doc.PropertyGroups {
		if pg.AssemblyName != "" {
			name = pg.AssemblyName
			break
		}
	}
	p := model.ProjectInfo{Name: name, Kind: ProjectMSBuild, Language: model.LangCSharp}
	for _, ig := range doc.ItemGroups {
		for _, ref := range ig.PackageReferences {
			version := ref.Version
			if version == "" {
				version = ref.VersionValue
			}
			p.Packages = append(p.Packages, pkg(ProjectMSBuild, ref.Include, version))
		}
		// Reference Include="Name, Version=1.2.3.4, Culture=neutral"
		for _, ref := range ig.References {
			parts := strings.Split(ref.Include, ",")
			var version string
			for _, part := range parts[1:] {
				if v, ok := strings.CutPrefix(strings.TrimSpace(part), "Version="); ok {
					version = v
				}
			}
			if version == "" {
				// framework references such as System.Data carry no version
				continue
			}
			p.Packages = append(p.Packages, pkg(ProjectMSBuild, parts[0], version))
		}
	}
	return p, nil
}

type packagesConfig struct {
	Packages []struct {
		ID      string `xml:"id,attr"`
		Version string `xml:"version,attr"`
	} `xml:"package"`
}

func parsePackagesConfig(rel string, data []byte) (model.ProjectInfo, error) {
	var doc packagesConfig
	if err := xml.Unmarshal(data, &doc); err != nil {
		return model.ProjectInfo{}, err
	}
	p := model.ProjectInfo{Kind: ProjectMSBuild, Language: model.LangCSharp}
	for _, d := range doc.Packages {
		p.Packages = append(p.Packages, pkg(ProjectMSBuild, d.ID, d.Version))
	}
	return p, nil
}

type pyProject struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyProject(rel string, data []byte) (model.ProjectInfo, error) {
	var doc pyProject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return model.ProjectInfo{}, err
	}
	p := model.ProjectInfo{Name: doc.Project.Name, Kind: ProjectPython, Language: model.LangPython}
	if p.Name == "" {
		p.Name = doc.Tool.Poetry.Name
	}
	for _, req := range doc.Project.Dependencies {
		if name, version, ok := parseRequirement(req); ok {
			p.Packages = append(p.Packages, pkg(ProjectPython, name, version))
		}
	}
	for name, spec := range doc.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		var version string
		switch v := spec.(type) {
		case string:
			version = v
		case map[string]any:
			version, _ = v["version"].(string)
		}
		p.Packages = append(p.Packages, pkg(ProjectPython, name, version))
	}
	return p, nil
}

var requirementRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._\-]*)(?:\[[^\]]*\])?\s*(?:(?:==|>=|<=|~=|!=|>|<)\s*([^\s;,]+))?`)

// parseRequirement reads a PEP 508 line such as "requests[socks]>=2.31; python_version>'3'".
func parseRequirement(line string) (name, version string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
		return "", "", false
	}
	m := requirementRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

var errEmptyRequirements = errors.New("no requirements")

func parseRequirements(rel string, data []byte) (model.ProjectInfo, error) {
	p := model.ProjectInfo{Kind: ProjectPython, Language: model.LangPython}
	for _, line := range strings.Split(string(data), "\n") {
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		if name, version, ok := parseRequirement(line); ok {
			p.Packages = append(p.Packages, pkg(ProjectPython, name, version))
		}
	}
	if len(p.Packages) == 0 && strings.TrimSpace(string(data)) != "" && !onlyComments(data) {
		return p, errEmptyRequirements
	}
	return p, nil
}

func onlyComments(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "-") {
			return false
		}
	}
	return true
}

// projectFor returns the nearest project enclosing a file, preferring one of
// the file's language when several manifests share a directory.
func projectFor(projects []model.ProjectInfo, file, language string) (model.ProjectInfo, bool) {
	var (
		best  model.ProjectInfo
		depth = -1
		found bool
	)
	dir := path.Dir(file)
	for _, p := range projects {
		if !encloses(p.Path, dir) {
			continue
		}
		d := pathDepth(p.Path)
		switch {
		case d > depth:
			best, depth, found = p, d, true
		case d == depth && best.Language != language && p.Language == language:
			best = p
		}
	}
	return best, found
}

// goModuleFor returns the nearest go.mod project enclosing a file.
func goModuleFor(projects []model.ProjectInfo, file string) (model.ProjectInfo, bool) {
	var goProjects []model.ProjectInfo
	for _, p := range projects {
		if p.Kind == ProjectGo {
			goProjects = append(goProjects, p)
		}
	}
	return projectFor(goProjects, file, model.LangGo)
}

func encloses(projectDir, dir string) bool {
	if projectDir == "." || projectDir == "" {
		return true
	}
	return dir == projectDir || strings.HasPrefix(dir, projectDir+"/")
}

func pathDepth(dir string) int {
	if dir == "." || dir == "" {
		return 0
	}
	return strings.Count(dir, "/") + 1
}
