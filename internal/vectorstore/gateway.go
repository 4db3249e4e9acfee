package vectorstore

import (
	"context"
	"strings"
)

// Distance is the vector similarity metric of a collection
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// ParseDistance maps a case-insensitive metric name to a Distance
func ParseDistance(s string) (Distance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return DistanceCosine, true
	case "dot":
		return DistanceDot, true
	case "euclid", "euclidean":
		return DistanceEuclid, true
	default:
		return "", false
	}
}

// Point is one embedded chunk: an id, its vector and its payload
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ScoredPoint is a search hit
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Gateway synchronizes points with a vector store. Implementations must be
// safe for concurrent use.
type Gateway interface {
	// EnsureInitialized creates the collection and its payload indexes if
	// absent. Calling it repeatedly, or from several processes, is safe.
	EnsureInitialized(ctx context.Context, collection string) error

	// Upsert writes points in a single request
	Upsert(ctx context.Context, collection string, points []Point) error

	// UpsertInBatches writes points with adaptive batch sizing. A
	// maxPerBatch of zero uses the gateway default.
	UpsertInBatches(ctx context.Context, collection string, points []Point, vectorDims, maxPerBatch int) error

	// Search returns up to limit points closest to vector that match filter
	Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error)

	DeleteByIDs(ctx context.Context, collection string, ids []string) error
	DeleteByDocID(ctx context.Context, collection, docID string) error
	DeleteByDocIDs(ctx context.Context, collection string, docIDs []string) error
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	// Count returns the number of points matching filter; nil counts all
	Count(ctx context.Context, collection string, filter *Filter) (int, error)

	Close() error
}
