package model

import "time"

// FileCategory is the coarse role of a file in the repository.
type FileCategory string

const (
	CategorySource   FileCategory = "source"
	CategoryConfig   FileCategory = "config"
	CategoryResource FileCategory = "resource"
	CategoryDoc      FileCategory = "doc"
)

// EncodingBinary marks files detected as binary content.
const EncodingBinary = "binary"

// FileInfo describes a single crawled file. Path is relative to the crawl
// root and always uses forward slashes.
type FileInfo struct {
	Path         string       `json:"path"`
	AbsolutePath string       `json:"absolute_path"`
	Name         string       `json:"name"`
	Extension    string       `json:"extension"`
	Category     FileCategory `json:"category"`
	Language     string       `json:"language"`
	Size         int64        `json:"size"`
	ModifiedAt   time.Time    `json:"modified_at"`
	Encoding     string       `json:"encoding"`
	LineCount    int          `json:"line_count"`
	ContentHash  string       `json:"content_hash"`
	IsBinary     bool         `json:"is_binary"`
	IsSymlink    bool         `json:"is_symlink"`
}

// DirectoryStructure is one node of the crawled directory tree. Counts and
// sizes are recursive.
type DirectoryStructure struct {
	Path           string               `json:"path"`
	Name           string               `json:"name"`
	Depth          int                  `json:"depth"`
	Files          []string             `json:"files"`
	Subdirectories []DirectoryStructure `json:"subdirectories"`
	FileCount      int                  `json:"file_count"`
	DirectoryCount int                  `json:"directory_count"`
	TotalSize      int64                `json:"total_size"`
}

// FileSystemAnalysis is the crawler's output.
type FileSystemAnalysis struct {
	RootPath         string               `json:"root_path"`
	Files            []FileInfo           `json:"files"`
	Root             DirectoryStructure   `json:"root"`
	TotalFiles       int                  `json:"total_files"`
	TotalDirectories int                  `json:"total_directories"`
	TotalSize        int64                `json:"total_size"`
	FilesByCategory  map[FileCategory]int `json:"files_by_category"`
	FilesByLanguage  map[string]int       `json:"files_by_language"`
	SkippedFiles     int                  `json:"skipped_files"`
	Partial          bool                 `json:"partial"`
	Warnings         []Warning            `json:"warnings"`
	Duration         time.Duration        `json:"duration"`
}

// SourceFiles returns the files categorized as source, in crawl order.
func (f *FileSystemAnalysis) SourceFiles() []FileInfo {
	var out []FileInfo
	for _, fi := range f.Files {
		if fi.Category == CategorySource {
			out = append(out, fi)
		}
	}
	return out
}
