package crawler

import (
	"path/filepath"
	"strings"

	"legacylens/internal/model"
)

var categoryByExtension = map[string]model.FileCategory{}

func init() {
	register := func(cat model.FileCategory, exts ...string) {
		for _, ext := range exts {
			categoryByExtension[ext] = cat
		}
	}
	register(model.CategorySource,
		".cs", ".vb", ".java", ".kt", ".scala", ".go", ".py", ".pyw",
		".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx",
		".c", ".h", ".cpp", ".cc", ".hpp", ".rb", ".php", ".swift", ".rs", ".fs",
		".sh", ".ps1", ".bas", ".cls", ".frm",
		".sql", ".xaml", ".cshtml", ".razor", ".html", ".htm", ".aspx", ".ascx",
	)
	register(model.CategoryConfig,
		".json", ".yaml", ".yml", ".xml", ".config", ".ini", ".toml", ".env",
		".csproj", ".vbproj", ".sln", ".props", ".targets", ".properties",
		".gradle", ".cfg", ".conf", ".editorconfig", ".lock", ".mod", ".sum",
	)
	register(model.CategoryDoc,
		".md", ".markdown", ".txt", ".rst", ".adoc", ".doc", ".docx", ".pdf", ".rtf",
	)
}

// special names are matched case-insensitively before the extension table.
var categoryByName = map[string]model.FileCategory{
	"dockerfile":       model.CategoryConfig,
	"makefile":         model.CategoryConfig,
	"requirements.txt": model.CategoryConfig,
	".gitignore":       model.CategoryConfig,
	".gitattributes":   model.CategoryConfig,
	"jenkinsfile":      model.CategoryConfig,
}

var docPrefixes = []string{"readme", "license", "changelog", "contributing", "authors", "notice"}

// Categorize returns the category of a file name. Overrides map lower-case
// extensions to categories and win over the built-in table.
func Categorize(name string, overrides map[string]model.FileCategory) model.FileCategory {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)
	if cat, ok := overrides[ext]; ok {
		return cat
	}
	if cat, ok := categoryByName[lower]; ok {
		return cat
	}
	for _, prefix := range docPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return model.CategoryDoc
		}
	}
	if cat, ok := categoryByExtension[ext]; ok {
		return cat
	}
	return model.CategoryResource
}
