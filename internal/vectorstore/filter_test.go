package vectorstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Matches(t *testing.T) {
	payload := map[string]any{
		FieldDocID:      "doc-1",
		FieldSymbolKind: "method",
		FieldPartIndex:  float64(2),
		FieldPathDirs:   []any{"src", "src/orders"},
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil matches all", nil, true},
		{"must value", NewFilter(MatchValue(FieldDocID, "doc-1")), true},
		{"must value mismatch", NewFilter(MatchValue(FieldDocID, "doc-2")), false},
		{"int vs float", NewFilter(MatchValue(FieldPartIndex, 2)), true},
		{"any", NewFilter(MatchAny(FieldSymbolKind, "type", "method")), true},
		{"any mismatch", NewFilter(MatchAny(FieldSymbolKind, "type", "field")), false},
		{"array contains", NewFilter(MatchValue(FieldPathDirs, "src/orders")), true},
		{"array lacks", NewFilter(MatchValue(FieldPathDirs, "src/billing")), false},
		{"missing field", NewFilter(MatchValue("nope", "x")), false},
		{"must not", &Filter{MustNot: []Condition{MatchValue(FieldDocID, "doc-1")}}, false},
		{"should one of", &Filter{Should: []Condition{MatchValue(FieldDocID, "x"), MatchValue(FieldSymbolKind, "method")}}, true},
		{"should none", &Filter{Should: []Condition{MatchValue(FieldDocID, "x")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(payload))
		})
	}
}

func TestFilter_JSONShape(t *testing.T) {
	f := NewFilter(MatchValue(FieldDocID, "abc"), MatchAny(FieldSymbolKind, "type", "method"))
	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"must":[{"key":"doc_id","match":{"value":"abc"}},{"key":"symbol_kind","match":{"any":["type","method"]}}]}`, string(data))
}

func TestFilter_IsEmpty(t *testing.T) {
	var nilFilter *Filter
	assert.True(t, nilFilter.IsEmpty())
	assert.True(t, (&Filter{}).IsEmpty())
	assert.False(t, DocIDFilter("x").IsEmpty())
}

func TestPathDirs(t *testing.T) {
	assert.Equal(t, []string{}, PathDirs("a.cs"))
	assert.Equal(t, []string{"src"}, PathDirs("src/a.cs"))
	assert.Equal(t, []string{"src", "src/orders", "src/orders/impl"}, PathDirs("/src/orders/impl/a.cs"))
}

func TestParseDistance(t *testing.T) {
	d, ok := ParseDistance("COSINE")
	assert.True(t, ok)
	assert.Equal(t, DistanceCosine, d)
	d, ok = ParseDistance("euclidean")
	assert.True(t, ok)
	assert.Equal(t, DistanceEuclid, d)
	_, ok = ParseDistance("manhattan")
	assert.False(t, ok)
}
