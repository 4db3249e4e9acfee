package types

import (
	"path"
	"strings"
)

// SubKind classifies a tracked file for payload filtering
type SubKind string

const (
	SubKindCode    SubKind = "code"
	SubKindMarkup  SubKind = "markup"
	SubKindConfig  SubKind = "config"
	SubKindText    SubKind = "text"
	SubKindUnknown SubKind = "unknown"
)

// DiscoveredFile is one file found by a discovery pass. It is produced fresh each run.
type DiscoveredFile struct {
	RepoID       string
	FullPath     string
	RelativePath string // Forward slashes, relative to the source root
	SizeBytes    int64
	IsBinary     bool
}

// Ext returns the lowercase extension of the relative path, including the dot
func (f DiscoveredFile) Ext() string {
	return strings.ToLower(path.Ext(f.RelativePath))
}

// SubKindForPath infers a SubKind from a file extension
func SubKindForPath(p string) SubKind {
	switch strings.ToLower(path.Ext(p)) {
	case ".cs", ".go", ".java", ".py", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx",
		".rs", ".kt", ".kts", ".c", ".h", ".cc", ".cpp", ".hpp", ".cxx", ".rb",
		".php", ".swift", ".scala", ".sql", ".sh", ".ps1":
		return SubKindCode
	case ".md", ".markdown", ".rst", ".adoc", ".html", ".htm", ".xml", ".razor", ".cshtml":
		return SubKindMarkup
	case ".json", ".yaml", ".yml", ".toml", ".ini", ".config", ".csproj", ".props", ".targets", ".sln":
		return SubKindConfig
	case ".txt":
		return SubKindText
	default:
		return SubKindUnknown
	}
}
