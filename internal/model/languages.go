package model

import (
	"path/filepath"
	"strings"
)

// Language names shared by the crawler and the extractor registry.
const (
	LangCSharp     = "csharp"
	LangJava       = "java"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangGo         = "go"
	LangSQL        = "sql"
	LangXAML       = "xaml"
	LangXML        = "xml"
	LangHTML       = "html"
	LangRazor      = "razor"
)

// LanguageByExtension maps lower-case extensions to a language name.
var LanguageByExtension = map[string]string{
	".cs":      LangCSharp,
	".java":    LangJava,
	".py":      LangPython,
	".pyw":     LangPython,
	".js":      LangJavaScript,
	".jsx":     LangJavaScript,
	".mjs":     LangJavaScript,
	".cjs":     LangJavaScript,
	".ts":      LangTypeScript,
	".tsx":     LangTypeScript,
	".go":      LangGo,
	".sql":     LangSQL,
	".xaml":    LangXAML,
	".xml":     LangXML,
	".config":  LangXML,
	".html":    LangHTML,
	".htm":     LangHTML,
	".aspx":    LangHTML,
	".ascx":    LangHTML,
	".cshtml":  LangRazor,
	".razor":   LangRazor,
	".vb":      "vb",
	".kt":      "kotlin",
	".scala":   "scala",
	".c":       "c",
	".h":       "c",
	".cpp":     "cpp",
	".cc":      "cpp",
	".hpp":     "cpp",
	".rb":      "ruby",
	".php":     "php",
	".swift":   "swift",
	".rs":      "rust",
	".sh":      "shell",
	".ps1":     "powershell",
	".fs":      "fsharp",
	".bas":     "vb6",
	".cls":     "vb6",
	".frm":     "vb6",
	".json":    "json",
	".yaml":    "yaml",
	".yml":     "yaml",
	".toml":    "toml",
	".csproj":  LangXML,
	".vbproj":  LangXML,
	".props":   LangXML,
	".targets": LangXML,
}

// LanguageFor guesses the language of a file from its name.
func LanguageFor(name string) string {
	return LanguageByExtension[strings.ToLower(filepath.Ext(name))]
}
