package resolver

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"

	"legacylens/internal/analysis"
	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var allFamilies = Options{Static: true, Dynamic: true, Database: true}

// codeFor writes files under a temp root and runs code analysis over them.
func codeFor(t *testing.T, files map[string]string) *model.CodeAnalysis {
	t.Helper()
	root := t.TempDir()
	fs := &model.FileSystemAnalysis{RootPath: root}
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		fs.Files = append(fs.Files, model.FileInfo{
			Path:         rel,
			AbsolutePath: full,
			Name:         path.Base(rel),
			Extension:    path.Ext(rel),
			Language:     model.LanguageFor(rel),
		})
	}
	sort.Slice(fs.Files, func(i, j int) bool { return fs.Files[i].Path < fs.Files[j].Path })
	fs.TotalFiles = len(fs.Files)
	return analysis.NewEngine(analysis.Options{Workers: 2}).Analyze(context.Background(), fs)
}

func resolve(t *testing.T, opts Options, files map[string]string) *model.DependencyAnalysis {
	t.Helper()
	return New(opts).Resolve(context.Background(), codeFor(t, files))
}

func staticBetween(deps *model.DependencyAnalysis, from, to string) []model.StaticDependency {
	var out []model.StaticDependency
	for _, d := range deps.Static {
		if d.From == from && d.To == to {
			out = append(out, d)
		}
	}
	return out
}

func externalNamed(deps *model.DependencyAnalysis, name string) (model.ExternalDependency, bool) {
	for _, d := range deps.External {
		if d.Name == name {
			return d, true
		}
	}
	return model.ExternalDependency{}, false
}

func TestResolve_Empty(t *testing.T) {
	deps := New(allFamilies).Resolve(context.Background(), nil)

	assert.Empty(t, deps.Static)
	assert.Empty(t, deps.Cycles)
	assert.NotNil(t, deps.Dynamic)
	assert.NotNil(t, deps.External)
	assert.False(t, deps.Partial)
}

func TestResolve_CycleBetweenFiles(t *testing.T) {
	deps := resolve(t, allFamilies, map[string]string{
		"src/A.java": "package shop;\n\npublic class A {\n  private B b;\n}\n",
		"src/B.java": "package shop;\n\npublic class B {\n  private A a;\n}\n",
	})

	require.Len(t, staticBetween(deps, "shop.A", "shop.B"), 1)
	require.Len(t, staticBetween(deps, "shop.B", "shop.A"), 1)
	assert.Equal(t, model.DepFieldType, staticBetween(deps, "shop.A", "shop.B")[0].Kind)

	require.Len(t, deps.Cycles, 1)
	cycle := deps.Cycles[0]
	assert.Equal(t, 2, cycle.Length)
	assert.ElementsMatch(t, []string{"shop.A", "shop.B"}, cycle.Nodes)
	assert.False(t, cycle.SelfLoop)
	for i, n := range cycle.Nodes {
		next := cycle.Nodes[(i+1)%len(cycle.Nodes)]
		assert.True(t, deps.Graph.HasEdge(n, next), "edge %s -> %s", n, next)
	}
	assert.Equal(t, 1, deps.Metrics.CycleCount)
}

func TestResolve_SelfReferences(t *testing.T) {
	t.Run("recursion and self-typed fields", func(t *testing.T) {
		deps := resolve(t, allFamilies, map[string]string{
			"src/Node.java": `package shop;

public class Node {
  private Node next;

  public Node append(Node other) {
    Node copy = new Node();
    return next == null ? copy : next.append(other);
  }
}
`,
		})

		assert.Empty(t, staticBetween(deps, "shop.Node", "shop.Node"))
		assert.Empty(t, deps.Cycles)
		assert.Zero(t, deps.Metrics.CycleCount)
	})

	t.Run("self-import", func(t *testing.T) {
		deps := resolve(t, allFamilies, map[string]string{
			"src/Node.java": "package shop;\n\nimport shop.Node;\n\npublic class Node {\n  private Node next;\n}\n",
		})

		self := staticBetween(deps, "shop.Node", "shop.Node")
		require.Len(t, self, 1)
		assert.Equal(t, model.DepImport, self[0].Kind)
		assert.Equal(t, []model.DependencyKind{model.DepImport}, self[0].Constructs)

		require.Len(t, deps.Cycles, 1)
		cycle := deps.Cycles[0]
		assert.True(t, cycle.SelfLoop)
		assert.Equal(t, 1, cycle.Length)
		assert.Equal(t, []string{"shop.Node"}, cycle.Nodes)
		assert.True(t, deps.Graph.HasEdge("shop.Node", "shop.Node"))
	})
}

func TestResolve_OneRecordPerPair(t *testing.T) {
	deps := resolve(t, allFamilies, map[string]string{
		"src/A.java": `package shop;

public class A extends B {
  public void run() {
    B other = new B();
    other.work();
  }
}
`,
		"src/B.java": `package shop;

public class B {
  public void work() {}
}
`,
	})

	pair := staticBetween(deps, "shop.A", "shop.B")
	require.Len(t, pair, 1)
	assert.Equal(t, model.DepInheritance, pair[0].Kind)
	assert.Contains(t, pair[0].Constructs, model.DepInheritance)
	assert.Greater(t, pair[0].Count, 1)
	assert.Empty(t, deps.Cycles)
	assert.Equal(t, 1, deps.Metrics.ByKind[model.DepInheritance])
}

func TestResolve_DynamicConditional(t *testing.T) {
	deps := resolve(t, allFamilies, map[string]string{
		"src/Loader.java": `package shop;

public class Loader {
  public void load(boolean extra) throws Exception {
    Class.forName("shop.Plugin");
    // Class.forName("shop.Commented");
    if (extra) {
      Class.forName("shop.Other");
    }
  }
}
`,
		"src/Plugin.java": "package shop;\n\npublic class Plugin {}\n",
	})

	require.Len(t, deps.Dynamic, 2)
	byTarget := map[string]model.DynamicDependency{}
	for _, d := range deps.Dynamic {
		byTarget[d.Target] = d
	}

	plain := byTarget["shop.Plugin"]
	assert.False(t, plain.Conditional)
	assert.Equal(t, "shop.Plugin", plain.ResolvedTo)
	assert.Equal(t, model.DepReflection, plain.Kind)
	assert.Equal(t, "class_for_name", plain.Pattern)
	assert.Equal(t, "shop.Loader.load(boolean)", plain.From)
	assert.Equal(t, 5, plain.Location.StartLine)

	branch := byTarget["shop.Other"]
	assert.True(t, branch.Conditional)
	assert.Empty(t, branch.ResolvedTo)
}

func TestResolve_DynamicDisabled(t *testing.T) {
	deps := resolve(t, Options{Static: true}, map[string]string{
		"src/Loader.java": "package shop;\n\npublic class Loader {\n  void load() throws Exception { Class.forName(\"x.Y\"); }\n}\n",
	})
	assert.Empty(t, deps.Dynamic)
}

func TestResolve_DatabaseLiteral(t *testing.T) {
	deps := resolve(t, allFamilies, map[string]string{
		"db/orders.sql": "CREATE TABLE Orders (\n  id INT,\n  total DECIMAL(10,2)\n);\n",
		"src/Repo.java": `package shop;

public class Repo {
  public String find() {
    String q = "SELECT id, total FROM Orders WHERE id = ?";
    return q;
  }
}
`,
	})

	var found *model.DatabaseDependency
	for i, d := range deps.Database {
		if d.Technology == "embedded_sql" {
			found = &deps.Database[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Orders", found.Object)
	assert.Equal(t, OpSelect, found.Operation)
	assert.Equal(t, "shop.Repo.find()", found.From)

	pair := staticBetween(deps, "shop.Repo", "Orders")
	require.Len(t, pair, 1)
	assert.Equal(t, model.DepDatabase, pair[0].Kind)
}

func TestResolve_ExternalPackages(t *testing.T) {
	deps := resolve(t, allFamilies, map[string]string{
		"go.mod": "module example.com/shop\n\ngo 1.22\n\nrequire (\n\tgithub.com/google/uuid v1.6.0\n\tgithub.com/unused/lib v0.1.0\n)\n",
		"id.go": `package shop

import (
	"fmt"

	"github.com/acme/tools/strutil"
	"github.com/google/uuid"
)

func NewID() string {
	return fmt.Sprint(uuid.NewString(), strutil.Upper("x"))
}
`,
	})

	pkg, ok := externalNamed(deps, "github.com/google/uuid")
	require.True(t, ok)
	assert.Equal(t, "v1.6.0", pkg.Version)
	assert.Equal(t, "go", pkg.Registry)
	assert.Equal(t, ExternalPackage, pkg.Kind)
	assert.Equal(t, 1, pkg.ReferenceCount)

	unused, ok := externalNamed(deps, "github.com/unused/lib")
	require.True(t, ok)
	assert.Zero(t, unused.ReferenceCount)

	std, ok := externalNamed(deps, "fmt")
	require.True(t, ok)
	assert.Equal(t, RegistryStdlib, std.Registry)

	unknown, ok := externalNamed(deps, "github.com/acme/tools")
	require.True(t, ok)
	assert.Equal(t, ExternalImport, unknown.Kind)

	seen := map[externalKey]bool{}
	for _, d := range deps.External {
		key := externalKey{d.Name, d.Version, d.Registry}
		assert.False(t, seen[key], "duplicate external %v", key)
		seen[key] = true
	}
}

func TestBuildGraph_HealsMissingEndpoints(t *testing.T) {
	code := &model.CodeAnalysis{Symbols: []model.CodeSymbol{
		{Name: "A", FullName: "app.A", Kind: model.KindClass},
	}}
	g, healed := buildGraph(code, []model.StaticDependency{
		{From: "app.A", To: "app.Gone", Kind: model.DepFieldType, Scope: model.ScopeType, Count: 1},
		{From: "app", To: "lib", Kind: model.DepImport, Scope: model.ScopeNamespace, Count: 1},
	})

	require.Len(t, healed, 1)
	assert.Equal(t, "app.Gone", healed[0].Missing)
	assert.Len(t, g.Edges, 1)
	assert.Equal(t, []string{"app.Gone"}, g.Placeholders())
}

func TestResolve_Cancelled(t *testing.T) {
	code := codeFor(t, map[string]string{
		"src/A.java": "package shop;\n\npublic class A { B b; }\n",
		"src/B.java": "package shop;\n\npublic class B {}\n",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deps := New(allFamilies).Resolve(ctx, code)

	assert.True(t, deps.Partial)
	cancelled := 0
	for _, w := range deps.Warnings {
		if w.Kind == string(apperrors.KindCancelled) {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestIsConditional(t *testing.T) {
	tests := []struct {
		name     string
		language string
		src      string
		marker   string
		want     bool
	}{
		{"plain statement", model.LangCSharp, "void M() {\n  X();\n}", "X()", false},
		{"inside if block", model.LangCSharp, "void M() {\n  if (a) {\n    X();\n  }\n}", "X()", true},
		{"after closed if", model.LangCSharp, "void M() {\n  if (a) {\n    Y();\n  }\n  X();\n}", "X()", false},
		{"braceless if", model.LangJava, "void m() {\n  if (a) X();\n}", "X()", true},
		{"ternary", model.LangJavaScript, "function f() {\n  const v = a ? X() : null;\n}", "X()", true},
		{"for header semicolons", model.LangJava, "void m() {\n  for (int i = 0; i < n; i++) {\n    X();\n  }\n}", "X()", true},
		{"python nested if", model.LangPython, "def f():\n    if a:\n        x = 1\n        X()\n", "X()", true},
		{"python function body", model.LangPython, "def f():\n    x = 1\n    X()\n", "X()", false},
		{"python inline", model.LangPython, "def f():\n    v = X() if a else None\n", "X()", true},
		{"sql if block", model.LangSQL, "CREATE PROCEDURE p AS\nBEGIN\n  IF @a = 1\n  BEGIN\n    EXEC (@sql)\n  END\nEND", "EXEC", true},
		{"sql plain", model.LangSQL, "CREATE PROCEDURE p AS\nBEGIN\n  EXEC (@sql)\nEND", "EXEC", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset := indexOf(t, tt.src, tt.marker)
			assert.Equal(t, tt.want, isConditional(tt.src, offset, tt.language))
		})
	}
}

func TestMaskComments(t *testing.T) {
	src := "a(); // Class.forName(\"x\")\nb(\"// kept\"); /* gone\n */ c();"
	masked := maskComments(src, model.LangJava)

	assert.Len(t, masked, len(src))
	assert.NotContains(t, masked, "forName")
	assert.NotContains(t, masked, "gone")
	assert.Contains(t, masked, `"// kept"`)
	assert.Contains(t, masked, "c();")
	assert.Equal(t, 3, len(splitLines(masked)))
}

func TestEmbeddedObjects(t *testing.T) {
	got := embeddedObjects(`"SELECT o.id FROM [dbo].[Orders] o JOIN Customers c ON c.id = o.cid"`)
	assert.Equal(t, []sqlObjectRef{{OpSelect, "dbo.Orders"}, {OpSelect, "Customers"}}, got)

	assert.Equal(t, []sqlObjectRef{{OpInsert, "Audit"}}, embeddedObjects(`"INSERT INTO Audit (msg) VALUES (?)"`))
	assert.Equal(t, []sqlObjectRef{{OpUpdate, "Orders"}}, embeddedObjects(`"UPDATE Orders SET total = 0"`))
	assert.Empty(t, embeddedObjects(`"hello, world"`))
}

func TestPackageRoot(t *testing.T) {
	assert.Equal(t, "github.com/acme/tools", packageRoot(model.LangGo, "github.com/acme/tools/strutil"))
	assert.Equal(t, "net/http", packageRoot(model.LangGo, "net/http"))
	assert.Equal(t, "@angular/core", packageRoot(model.LangTypeScript, "@angular/core/testing"))
	assert.Equal(t, "lodash", packageRoot(model.LangJavaScript, "lodash/fp"))
	assert.Equal(t, "numpy", packageRoot(model.LangPython, "numpy.linalg"))
	assert.Equal(t, "org.springframework", packageRoot(model.LangJava, "org.springframework.web.bind.*"))
}

func TestPackageMatches(t *testing.T) {
	assert.True(t, packageMatches("maven", "org.springframework:spring-web", "org.springframework.web.bind.annotation"))
	assert.True(t, packageMatches("nuget", "Newtonsoft.Json", "Newtonsoft.Json.Linq"))
	assert.True(t, packageMatches("pypi", "PyYAML", "yaml"))
	assert.True(t, packageMatches("npm", "@nestjs/common", "@nestjs/common/decorators"))
	assert.False(t, packageMatches("go", "github.com/google/uuid", "github.com/google/uuidx"))
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	t.Fatalf("%q not found", sub)
	return -1
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
