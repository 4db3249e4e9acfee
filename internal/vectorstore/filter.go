package vectorstore

import (
	"fmt"
	"reflect"
)

// Match is a payload match clause: an exact value or any of several values
type Match struct {
	Value any   `json:"value,omitempty"`
	Any   []any `json:"any,omitempty"`
}

// Condition matches one payload field
type Condition struct {
	Key   string `json:"key"`
	Match Match  `json:"match"`
}

// Filter combines conditions the way the vector store evaluates them: all
// of Must, at least one of Should when present, and none of MustNot
type Filter struct {
	Must    []Condition `json:"must,omitempty"`
	Should  []Condition `json:"should,omitempty"`
	MustNot []Condition `json:"must_not,omitempty"`
}

// MatchValue matches a field equal to v, or an array field containing v
func MatchValue(key string, v any) Condition {
	return Condition{Key: key, Match: Match{Value: v}}
}

// MatchAny matches a field equal to any of values
func MatchAny(key string, values ...any) Condition {
	return Condition{Key: key, Match: Match{Any: values}}
}

// NewFilter returns a filter requiring every condition
func NewFilter(must ...Condition) *Filter {
	return &Filter{Must: must}
}

// DocIDFilter matches every point of one document
func DocIDFilter(docID string) *Filter {
	return NewFilter(MatchValue(FieldDocID, docID))
}

// IsEmpty reports whether the filter has no conditions
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0)
}

// Matches evaluates the filter against a payload. A nil filter matches everything.
func (f *Filter) Matches(payload map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !c.Matches(payload) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if c.Matches(payload) {
			return false
		}
	}
	if len(f.Should) == 0 {
		return true
	}
	for _, c := range f.Should {
		if c.Matches(payload) {
			return true
		}
	}
	return false
}

// Matches evaluates one condition against a payload
func (c Condition) Matches(payload map[string]any) bool {
	field, ok := payload[c.Key]
	if !ok || field == nil {
		return false
	}

	candidates := c.Match.Any
	if c.Match.Value != nil {
		candidates = append([]any{c.Match.Value}, candidates...)
	}

	for _, value := range fieldValues(field) {
		for _, want := range candidates {
			if valuesEqual(value, want) {
				return true
			}
		}
	}
	return false
}

// fieldValues flattens array payload fields
func fieldValues(field any) []any {
	rv := reflect.ValueOf(field)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return []any{field}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// valuesEqual compares payload values across JSON number representations
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
