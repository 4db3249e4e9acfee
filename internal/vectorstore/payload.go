package vectorstore

import (
	"strings"
)

// Payload field names stored with every point
const (
	FieldDocID           = "doc_id"
	FieldProjectID       = "project_id"
	FieldRepoURL         = "repo_url"
	FieldPath            = "path"
	FieldPathDirs        = "path_dirs"
	FieldCanonicalPath   = "canonical_path"
	FieldBlobURI         = "blob_uri"
	FieldSymbolName      = "symbol_name"
	FieldSymbolKind      = "symbol_kind"
	FieldSectionKey      = "section_key"
	FieldLineStart       = "line_start"
	FieldLineEnd         = "line_end"
	FieldCharStart       = "char_start"
	FieldCharEnd         = "char_end"
	FieldPartIndex       = "part_index"
	FieldPartTotal       = "part_total"
	FieldEstimatedTokens = "estimated_tokens"
	FieldContentHash     = "content_hash"
	FieldText            = "text"
	FieldLanguage        = "language"
	FieldSubKind         = "sub_kind"
	FieldIndexedAt       = "indexed_at"
)

// IndexType is a payload index schema type
type IndexType string

const (
	IndexKeyword IndexType = "keyword"
	IndexInteger IndexType = "integer"
)

// PayloadIndex describes one payload field index
type PayloadIndex struct {
	Field string
	Type  IndexType
}

// RequiredIndexes are created by EnsureInitialized
var RequiredIndexes = []PayloadIndex{
	{Field: FieldDocID, Type: IndexKeyword},
	{Field: FieldPath, Type: IndexKeyword},
	{Field: FieldPathDirs, Type: IndexKeyword},
	{Field: FieldProjectID, Type: IndexKeyword},
	{Field: FieldSymbolKind, Type: IndexKeyword},
	{Field: FieldPartIndex, Type: IndexInteger},
}

// PathDirs returns every directory prefix of a slash-separated path, so
// that "src/orders/a.cs" can be found under "src" and "src/orders"
func PathDirs(p string) []string {
	p = strings.Trim(p, "/")
	parts := strings.Split(p, "/")
	if len(parts) <= 1 {
		return []string{}
	}

	dirs := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		dirs = append(dirs, strings.Join(parts[:i], "/"))
	}
	return dirs
}

// PayloadString reads a string field
func PayloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadInt reads a numeric field regardless of how it was decoded
func PayloadInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}
