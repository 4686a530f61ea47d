package crawler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func defaultOptions() Options {
	return Options{Hash: true, DetectEncoding: true, CountLines: true, FollowSymlinks: true, Workers: 4}
}

func TestCrawl_EmptyDirectory(t *testing.T) {
	fsa, err := New(defaultOptions()).Crawl(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, fsa.TotalFiles)
	assert.Equal(t, 0, fsa.TotalDirectories)
	assert.Empty(t, fsa.Files)
	assert.Empty(t, fsa.Warnings)
	assert.False(t, fsa.Partial)
}

func TestCrawl_MissingRoot(t *testing.T) {
	_, err := New(defaultOptions()).Crawl(context.Background(), filepath.Join(t.TempDir(), "nope"))
	var ioErr *apperrors.IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestCrawl_Metadata(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/App.cs":        "class App {}\n// done\n",
		"src/Data/Repo.cs":  "class Repo {}",
		"README.md":         "# hi\n",
		"appsettings.json":  "{}\n",
		"logo.png":          "\x89PNG\x00\x00binary",
		"docs/unicode.txt":  "héllo\n",
		"node_modules/x.js": "ignored",
	})

	opts := defaultOptions()
	opts.Exclude = []string{"**/node_modules/**"}
	fsa, err := New(opts).Crawl(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 6, fsa.TotalFiles)
	assert.Equal(t, 3, fsa.TotalDirectories, "src, src/Data, docs")

	byPath := make(map[string]model.FileInfo)
	for _, f := range fsa.Files {
		byPath[f.Path] = f
	}

	t.Run("categories", func(t *testing.T) {
		assert.Equal(t, model.CategorySource, byPath["src/App.cs"].Category)
		assert.Equal(t, model.CategoryDoc, byPath["README.md"].Category)
		assert.Equal(t, model.CategoryConfig, byPath["appsettings.json"].Category)
		assert.Equal(t, model.CategoryResource, byPath["logo.png"].Category)
		assert.Equal(t, 2, fsa.FilesByCategory[model.CategorySource])
	})

	t.Run("binary detection", func(t *testing.T) {
		png := byPath["logo.png"]
		assert.True(t, png.IsBinary)
		assert.Equal(t, model.EncodingBinary, png.Encoding)
		assert.Zero(t, png.LineCount)
	})

	t.Run("lines and encoding", func(t *testing.T) {
		assert.Equal(t, 2, byPath["src/App.cs"].LineCount)
		assert.Equal(t, 1, byPath["src/Data/Repo.cs"].LineCount)
		assert.Equal(t, "ascii", byPath["src/App.cs"].Encoding)
		assert.Equal(t, "utf-8", byPath["docs/unicode.txt"].Encoding)
		assert.Equal(t, model.LangCSharp, byPath["src/App.cs"].Language)
	})

	t.Run("hash", func(t *testing.T) {
		assert.Len(t, byPath["src/App.cs"].ContentHash, 16)
	})

	t.Run("tree aggregates", func(t *testing.T) {
		assert.Equal(t, fsa.TotalFiles, fsa.Root.FileCount)
		var src model.DirectoryStructure
		for _, d := range fsa.Root.Subdirectories {
			if d.Path == "src" {
				src = d
			}
		}
		assert.Equal(t, 2, src.FileCount)
		assert.Equal(t, 1, src.DirectoryCount)
		assert.Equal(t, []string{"src/App.cs"}, src.Files)
	})

	t.Run("sorted output", func(t *testing.T) {
		for i := 1; i < len(fsa.Files); i++ {
			assert.Less(t, fsa.Files[i-1].Path, fsa.Files[i].Path)
		}
	})
}

func TestCrawl_Deterministic(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, d := range []string{"a", "b", "c/d"} {
		for _, f := range []string{"x.go", "y.py", "z.ts"} {
			files[d+"/"+f] = "package main\n"
		}
	}
	writeTree(t, root, files)

	first, err := New(defaultOptions()).Crawl(context.Background(), root)
	require.NoError(t, err)
	second, err := New(defaultOptions()).Crawl(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first.TotalFiles, second.TotalFiles)
	require.Len(t, second.Files, len(first.Files))
	for i := range first.Files {
		assert.Equal(t, first.Files[i].Path, second.Files[i].Path)
		assert.Equal(t, first.Files[i].ContentHash, second.Files[i].ContentHash)
	}
}

func TestCrawl_UnreadableFileDegradesToWarning(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.cs": "class A {}", "b.cs": "class B {}", "c.cs": "class C {}"})
	require.NoError(t, os.Symlink(filepath.Join(root, "missing.cs"), filepath.Join(root, "broken.cs")))

	fsa, err := New(defaultOptions()).Crawl(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, fsa.TotalFiles)

	var ioWarnings int
	for _, w := range fsa.Warnings {
		if w.Kind == string(apperrors.KindIO) {
			ioWarnings++
			assert.Equal(t, "broken.cs", w.Path)
		}
	}
	assert.Equal(t, 1, ioWarnings)
}

func TestCrawl_SymlinkCycle(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pkg/a.go": "package pkg\n"})
	require.NoError(t, os.Symlink(root, filepath.Join(root, "pkg", "loop")))

	fsa, err := New(defaultOptions()).Crawl(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, fsa.TotalFiles)
	require.Len(t, fsa.Warnings, 1)
	assert.Contains(t, fsa.Warnings[0].Message, "symlink cycle")
}

func TestCrawl_Limits(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"top.cs":          "class Top {}",
		"one/two/deep.cs": "class Deep {}",
		"big.sql":         "SELECT 1;\nSELECT 2;\nSELECT 3;\n",
	})

	t.Run("max depth", func(t *testing.T) {
		opts := defaultOptions()
		opts.MaxDepth = 1
		fsa, err := New(opts).Crawl(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, 2, fsa.TotalFiles)
		assert.Equal(t, 1, fsa.TotalDirectories)
	})

	t.Run("max file size", func(t *testing.T) {
		opts := defaultOptions()
		opts.MaxFileSize = 20
		fsa, err := New(opts).Crawl(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, 2, fsa.TotalFiles)
		require.Len(t, fsa.Warnings, 1)
		assert.Equal(t, model.SeverityInfo, fsa.Warnings[0].Severity)
		assert.Equal(t, 1, fsa.SkippedFiles)
	})

	t.Run("include filter", func(t *testing.T) {
		opts := defaultOptions()
		opts.Include = []string{"**/*.cs"}
		fsa, err := New(opts).Crawl(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, 2, fsa.TotalFiles)
	})

	t.Run("gitignore", func(t *testing.T) {
		writeTree(t, root, map[string]string{".gitignore": "one/\n*.sql\n"})
		defer os.Remove(filepath.Join(root, ".gitignore"))
		opts := defaultOptions()
		opts.RespectGitignore = true
		fsa, err := New(opts).Crawl(context.Background(), root)
		require.NoError(t, err)
		var paths []string
		for _, f := range fsa.Files {
			paths = append(paths, f.Path)
		}
		assert.ElementsMatch(t, []string{".gitignore", "top.cs"}, paths)
	})
}

func TestCrawl_Progress(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.cs": "", "b/c.cs": ""})

	var mu sync.Mutex
	var last Progress
	var calls atomic.Int32
	opts := defaultOptions()
	opts.Progress = func(p Progress) {
		calls.Add(1)
		mu.Lock()
		defer mu.Unlock()
		if p.FilesProcessed >= last.FilesProcessed {
			last = p
		}
	}
	_, err := New(opts).Crawl(context.Background(), root)
	require.NoError(t, err)
	assert.Positive(t, calls.Load())
}

// countdownContext reports cancellation after a fixed number of Err checks,
// which makes a mid-crawl cancellation deterministic.
type countdownContext struct {
	context.Context
	remaining atomic.Int32
}

func (c *countdownContext) Err() error {
	if c.remaining.Add(-1) < 0 {
		return context.Canceled
	}
	return nil
}

func TestCrawl_CancelledMidway(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[name+".cs"] = "class " + name + " {}"
	}
	writeTree(t, root, files)

	ctx := &countdownContext{Context: context.Background()}
	// one check for the root directory, then one per dispatched file
	ctx.remaining.Store(4)

	opts := defaultOptions()
	opts.Workers = 1
	fsa, err := New(opts).Crawl(ctx, root)
	require.NoError(t, err)
	assert.True(t, fsa.Partial)
	assert.Equal(t, 3, fsa.TotalFiles)

	var cancelled int
	for _, w := range fsa.Warnings {
		if w.Kind == string(apperrors.KindCancelled) {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, model.CategoryConfig, Categorize("Dockerfile", nil))
	assert.Equal(t, model.CategoryConfig, Categorize("requirements.txt", nil))
	assert.Equal(t, model.CategoryDoc, Categorize("LICENSE", nil))
	assert.Equal(t, model.CategorySource, Categorize("Main.java", nil))
	assert.Equal(t, model.CategoryDoc, Categorize("schema.sql", map[string]model.FileCategory{".sql": model.CategoryDoc}))
}
