package model

import "time"

// SymbolKind classifies a CodeSymbol.
type SymbolKind string

const (
	KindNamespace   SymbolKind = "namespace"
	KindClass       SymbolKind = "class"
	KindInterface   SymbolKind = "interface"
	KindStruct      SymbolKind = "struct"
	KindEnum        SymbolKind = "enum"
	KindRecord      SymbolKind = "record"
	KindDelegate    SymbolKind = "delegate"
	KindMethod      SymbolKind = "method"
	KindConstructor SymbolKind = "constructor"
	KindFunction    SymbolKind = "function"
	KindProperty    SymbolKind = "property"
	KindField       SymbolKind = "field"
	KindEvent       SymbolKind = "event"
	KindConstant    SymbolKind = "constant"
	KindVariable    SymbolKind = "variable"
	KindTable       SymbolKind = "table"
	KindView        SymbolKind = "view"
	KindProcedure   SymbolKind = "procedure"
	KindTrigger     SymbolKind = "trigger"
	KindElement     SymbolKind = "element"
)

// IsType reports whether symbols of this kind own members and act as
// dependency graph nodes.
func (k SymbolKind) IsType() bool {
	switch k {
	case KindClass, KindInterface, KindStruct, KindEnum, KindRecord, KindDelegate, KindTable, KindView:
		return true
	}
	return false
}

// IsCallable reports whether symbols of this kind have a body that can call.
func (k SymbolKind) IsCallable() bool {
	switch k {
	case KindMethod, KindConstructor, KindFunction, KindProcedure, KindTrigger:
		return true
	}
	return false
}

// IsData reports whether the kind stores state (fields and properties).
func (k SymbolKind) IsData() bool {
	switch k {
	case KindField, KindProperty, KindConstant, KindVariable:
		return true
	}
	return false
}

// Access is a declared visibility.
type Access string

const (
	AccessPublic            Access = "public"
	AccessProtected         Access = "protected"
	AccessInternal          Access = "internal"
	AccessProtectedInternal Access = "protected_internal"
	AccessPrivate           Access = "private"
	AccessPackage           Access = "package"
)

// Location points into a source file. File is relative to the crawl root.
type Location struct {
	File        string `json:"file"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	StartColumn int    `json:"start_column"`
}

// Parameter is one declared parameter of a callable.
type Parameter struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	DefaultValue string   `json:"default_value"`
	Modifiers    []string `json:"modifiers"`
}

// ReferenceKind classifies a syntactic reference made from a symbol body.
type ReferenceKind string

const (
	RefCall           ReferenceKind = "call"
	RefPropertyAccess ReferenceKind = "property_access"
	RefInstantiation  ReferenceKind = "instantiation"
	RefTypeUsage      ReferenceKind = "type_usage"
	RefEvent          ReferenceKind = "event"
)

// SymbolReference is a reference as written in source. Target is the
// referenced name; Receiver is the expression it was reached through and
// ReceiverType the receiver's declared type when it is visible locally.
type SymbolReference struct {
	Kind         ReferenceKind `json:"kind"`
	Target       string        `json:"target"`
	Receiver     string        `json:"receiver"`
	ReceiverType string        `json:"receiver_type"`
	Line         int           `json:"line"`
}

// SymbolMetrics holds per-symbol size and complexity figures. Types carry
// aggregates over their members.
type SymbolMetrics struct {
	LinesOfCode          int `json:"lines_of_code"`
	CyclomaticComplexity int `json:"cyclomatic_complexity"`
	CognitiveComplexity  int `json:"cognitive_complexity"`
	MaxNesting           int `json:"max_nesting"`
	ParameterCount       int `json:"parameter_count"`
	MemberCount          int `json:"member_count"`
	TotalComplexity      int `json:"total_complexity"`
}

// CodeSymbol is a named program element. FullName is unique within one
// analysis; Members lists the full names of the symbols it exclusively owns.
type CodeSymbol struct {
	Name       string            `json:"name"`
	FullName   string            `json:"full_name"`
	Kind       SymbolKind        `json:"kind"`
	Access     Access            `json:"access"`
	Namespace  string            `json:"namespace"`
	Assembly   string            `json:"assembly"`
	Language   string            `json:"language"`
	Location   Location          `json:"location"`
	Parent     string            `json:"parent"`
	Members    []string          `json:"members"`
	Parameters []Parameter       `json:"parameters"`
	ReturnType string            `json:"return_type"`
	Type       string            `json:"type"`
	BaseTypes  []string          `json:"base_types"`
	Modifiers  []string          `json:"modifiers"`
	Attributes []string          `json:"attributes"`
	References []SymbolReference `json:"references"`
	Metrics    SymbolMetrics     `json:"metrics"`
	Documented bool              `json:"documented"`
}

// HasModifier reports whether the symbol was declared with modifier m.
func (s CodeSymbol) HasModifier(m string) bool {
	for _, mod := range s.Modifiers {
		if mod == m {
			return true
		}
	}
	return false
}

// IsStatic reports a static (or class-level) declaration.
func (s CodeSymbol) IsStatic() bool {
	return s.HasModifier("static")
}

// IsAbstract reports abstract types and interfaces.
func (s CodeSymbol) IsAbstract() bool {
	return s.Kind == KindInterface || s.HasModifier("abstract")
}

// ImportRef is one import, using or require statement.
type ImportRef struct {
	Path  string `json:"path"`
	Alias string `json:"alias"`
	Line  int    `json:"line"`
}

// SourceFile is the per-file result of code analysis. Files an extractor
// could not parse are kept with ParseFailed set and no symbols.
type SourceFile struct {
	Path         string      `json:"path"`
	AbsolutePath string      `json:"absolute_path"`
	Language     string      `json:"language"`
	Namespace    string      `json:"namespace"`
	Assembly     string      `json:"assembly"`
	Imports      []ImportRef `json:"imports"`
	Symbols      []string    `json:"symbols"`
	LineCount    int         `json:"line_count"`
	CodeLines    int         `json:"code_lines"`
	CommentLines int         `json:"comment_lines"`
	BlankLines   int         `json:"blank_lines"`
	ParseFailed  bool        `json:"parse_failed"`
}

// NamespaceInfo is the hierarchical view of one namespace.
type NamespaceInfo struct {
	Name        string   `json:"name"`
	Assembly    string   `json:"assembly"`
	Types       []string `json:"types"`
	Files       []string `json:"files"`
	SymbolCount int      `json:"symbol_count"`
}

// AssemblyInfo is the hierarchical view of one assembly or project unit.
type AssemblyInfo struct {
	Name        string   `json:"name"`
	Project     string   `json:"project"`
	Namespaces  []string `json:"namespaces"`
	Files       []string `json:"files"`
	SymbolCount int      `json:"symbol_count"`
}

// PackageReference is a declared third-party package.
type PackageReference struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Registry string `json:"registry"`
}

// ProjectInfo is a discovered build manifest.
type ProjectInfo struct {
	Name     string             `json:"name"`
	Path     string             `json:"path"`
	Manifest string             `json:"manifest"`
	Kind     string             `json:"kind"`
	Language string             `json:"language"`
	Packages []PackageReference `json:"packages"`
}

// CodeMetrics aggregates sizes and complexity across the codebase.
type CodeMetrics struct {
	TotalFiles          int                `json:"total_files"`
	ParsedFiles         int                `json:"parsed_files"`
	FailedFiles         int                `json:"failed_files"`
	TotalLines          int                `json:"total_lines"`
	CodeLines           int                `json:"code_lines"`
	CommentLines        int                `json:"comment_lines"`
	BlankLines          int                `json:"blank_lines"`
	TotalSymbols        int                `json:"total_symbols"`
	TypeCount           int                `json:"type_count"`
	MethodCount         int                `json:"method_count"`
	AverageCyclomatic   float64            `json:"average_cyclomatic"`
	AverageCognitive    float64            `json:"average_cognitive"`
	AverageMethodLength float64            `json:"average_method_length"`
	MaxNesting          int                `json:"max_nesting"`
	CommentDensity      float64            `json:"comment_density"`
	DocumentedRatio     float64            `json:"documented_ratio"`
	NamingAdherence     float64            `json:"naming_adherence"`
	SymbolsByKind       map[SymbolKind]int `json:"symbols_by_kind"`
	FilesByLanguage     map[string]int     `json:"files_by_language"`
}

// QualityScores are each in [0,100].
type QualityScores struct {
	Maintainability float64 `json:"maintainability"`
	Testability     float64 `json:"testability"`
	Readability     float64 `json:"readability"`
	Documentation   float64 `json:"documentation"`
	Overall         float64 `json:"overall"`
}

// CodeAnalysis is the code analysis engine's output. Symbols is the flat
// source of truth sorted by full name; Namespaces and Assemblies are views.
type CodeAnalysis struct {
	Symbols    []CodeSymbol    `json:"symbols"`
	Files      []SourceFile    `json:"files"`
	Namespaces []NamespaceInfo `json:"namespaces"`
	Assemblies []AssemblyInfo  `json:"assemblies"`
	Projects   []ProjectInfo   `json:"projects"`
	Metrics    CodeMetrics     `json:"metrics"`
	Quality    QualityScores   `json:"quality"`
	Partial    bool            `json:"partial"`
	Warnings   []Warning       `json:"warnings"`
	Duration   time.Duration   `json:"duration"`
}
