package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nuvos/nuvos-index/internal/retry"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// DefaultQdrantTimeout bounds a single HTTP request
	DefaultQdrantTimeout = 30 * time.Second

	// maxDeleteIDsPerRequest keeps delete-by-doc-id filters small
	maxDeleteIDsPerRequest = 256

	// maxErrorBody caps how much of an error response is kept
	maxErrorBody = 4096
)

// QdrantOptions configures a QdrantClient
type QdrantOptions struct {
	URL                  string
	APIKey               string
	VectorSize           int
	Distance             Distance
	Timeout              time.Duration
	RequestsPerSecond    float64
	MaxBatchPoints       int
	PayloadOverheadBytes int
	Retry                retry.Config
	HTTPClient           *http.Client
	Logger               *slog.Logger
}

// QdrantClient implements Gateway over the Qdrant HTTP API
type QdrantClient struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	opts    QdrantOptions
	logger  *slog.Logger

	mu          sync.Mutex
	initialized map[string]bool
}

// NewQdrantClient validates options and creates a client
func NewQdrantClient(opts QdrantOptions) (*QdrantClient, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("%w: vector store url is required", types.ErrConfig)
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: vector store api key is required", types.ErrConfig)
	}
	if opts.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive, got %d", types.ErrConfig, opts.VectorSize)
	}

	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid vector store url %q", types.ErrConfig, opts.URL)
	}

	if opts.Distance == "" {
		opts.Distance = DistanceCosine
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQdrantTimeout
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = retry.DefaultConfig()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QdrantClient{
		baseURL:     base,
		apiKey:      opts.APIKey,
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		opts:        opts,
		logger:      logger,
		initialized: make(map[string]bool),
	}, nil
}

// qdrantResponse is the envelope of every Qdrant reply
type qdrantResponse struct {
	Result json.RawMessage `json:"result"`
	Status any             `json:"status"`
}

// do sends one request. A nil out discards the result.
func (c *QdrantClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(op, resp.StatusCode, strings.TrimSpace(string(data)), parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope qdrantResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", op, err)
	}
	return nil
}

// call wraps do with bounded retries on transient failures
func (c *QdrantClient) call(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	_, err := retry.Do(ctx, c.opts.Retry, IsTransient, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, op, method, path, query, body, out)
	})
	return err
}

func collectionPath(collection string, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + suffix
}

// EnsureInitialized implements Gateway
func (c *QdrantClient) EnsureInitialized(ctx context.Context, collection string) error {
	if collection == "" {
		return fmt.Errorf("%w: collection name is empty", types.ErrInvalidArgument)
	}

	c.mu.Lock()
	done := c.initialized[collection]
	c.mu.Unlock()
	if done {
		return nil
	}

	info, exists, err := c.getCollection(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		if err := c.checkVectors(collection, info); err != nil {
			return err
		}
	} else {
		if err := c.createCollection(ctx, collection); err != nil {
			return err
		}
		c.logger.Info("created collection",
			slog.String("collection", collection),
			slog.Int("vector_size", c.opts.VectorSize),
			slog.String("distance", string(c.opts.Distance)))
	}

	for _, idx := range RequiredIndexes {
		if err := c.createIndex(ctx, collection, idx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.initialized[collection] = true
	c.mu.Unlock()
	return nil
}

// collectionInfo is the part of GET /collections/{name} that is checked
type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors json.RawMessage `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type vectorParams struct {
	Size     int      `json:"size"`
	Distance Distance `json:"distance"`
}

func (c *QdrantClient) getCollection(ctx context.Context, collection string) (*collectionInfo, bool, error) {
	var info collectionInfo
	err := c.call(ctx, "get collection", http.MethodGet, collectionPath(collection, ""), nil, nil, &info)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &info, true, nil
}

// checkVectors rejects an existing collection whose vectors do not match the
// configured size and distance
func (c *QdrantClient) checkVectors(collection string, info *collectionInfo) error {
	var params vectorParams
	raw := info.Config.Params.Vectors
	if len(raw) == 0 || json.Unmarshal(raw, &params) != nil || params.Size == 0 {
		return fmt.Errorf("%w: collection %s does not have a single unnamed vector", types.ErrConfig, collection)
	}
	if params.Size != c.opts.VectorSize {
		return fmt.Errorf("%w: collection %s has vector size %d, configured %d",
			types.ErrConfig, collection, params.Size, c.opts.VectorSize)
	}
	if !strings.EqualFold(string(params.Distance), string(c.opts.Distance)) {
		return fmt.Errorf("%w: collection %s uses %s distance, configured %s",
			types.ErrConfig, collection, params.Distance, c.opts.Distance)
	}
	return nil
}

func (c *QdrantClient) createCollection(ctx context.Context, collection string) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.opts.VectorSize,
			"distance": c.opts.Distance,
		},
	}
	err := c.call(ctx, "create collection", http.MethodPut, collectionPath(collection, ""), nil, body, nil)
	if alreadyExists(err) {
		return nil
	}
	return err
}

func (c *QdrantClient) createIndex(ctx context.Context, collection string, idx PayloadIndex) error {
	body := map[string]any{
		"field_name":   idx.Field,
		"field_schema": map[string]any{"type": idx.Type},
	}
	query := url.Values{"wait": {"true"}}
	err := c.call(ctx, "create payload index "+idx.Field, http.MethodPut, collectionPath(collection, "/index"), query, body, nil)
	if alreadyExists(err) {
		return nil
	}
	return err
}

// alreadyExists treats conflicts from concurrent initializers as success
func alreadyExists(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(se.Body), "already exists")
}

// Upsert implements Gateway
func (c *QdrantClient) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	return c.call(ctx, "upsert points", http.MethodPut, collectionPath(collection, "/points"),
		url.Values{"wait": {"true"}}, map[string]any{"points": points}, nil)
}

// UpsertInBatches implements Gateway. Retries of transient failures are
// handled by the batching loop so a slice is never resent twice at once.
func (c *QdrantClient) UpsertInBatches(ctx context.Context, collection string, points []Point, vectorDims, maxPerBatch int) error {
	if maxPerBatch <= 0 {
		maxPerBatch = c.opts.MaxBatchPoints
	}
	opts := BatchOptions{
		VectorDims:           vectorDims,
		MaxPerBatch:          maxPerBatch,
		PayloadOverheadBytes: c.opts.PayloadOverheadBytes,
		Retry:                c.opts.Retry,
		Logger:               c.logger,
	}
	return UploadInBatches(ctx, points, opts, func(ctx context.Context, batch []Point) error {
		return c.do(ctx, "upsert points", http.MethodPut, collectionPath(collection, "/points"),
			url.Values{"wait": {"true"}}, map[string]any{"points": batch}, nil)
	})
}

type qdrantScoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search implements Gateway
func (c *QdrantClient) Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: search vector is empty", types.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if !filter.IsEmpty() {
		body["filter"] = filter
	}

	var hits []qdrantScoredPoint
	if err := c.call(ctx, "search points", http.MethodPost, collectionPath(collection, "/points/search"), nil, body, &hits); err != nil {
		return nil, err
	}

	results := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		results = append(results, ScoredPoint{
			ID:      formatID(h.ID),
			Score:   h.Score,
			Payload: h.Payload,
		})
	}
	return results, nil
}

// DeleteByIDs implements Gateway
func (c *QdrantClient) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.call(ctx, "delete points", http.MethodPost, collectionPath(collection, "/points/delete"),
		url.Values{"wait": {"true"}}, map[string]any{"points": ids}, nil)
}

// DeleteByDocID implements Gateway
func (c *QdrantClient) DeleteByDocID(ctx context.Context, collection, docID string) error {
	if docID == "" {
		return fmt.Errorf("%w: doc id is empty", types.ErrInvalidArgument)
	}
	return c.DeleteByFilter(ctx, collection, DocIDFilter(docID))
}

// DeleteByDocIDs implements Gateway
func (c *QdrantClient) DeleteByDocIDs(ctx context.Context, collection string, docIDs []string) error {
	for start := 0; start < len(docIDs); start += maxDeleteIDsPerRequest {
		end := min(start+maxDeleteIDsPerRequest, len(docIDs))
		values := make([]any, 0, end-start)
		for _, id := range docIDs[start:end] {
			values = append(values, id)
		}
		if err := c.DeleteByFilter(ctx, collection, NewFilter(MatchAny(FieldDocID, values...))); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByFilter implements Gateway. An empty filter is rejected rather
// than deleting the whole collection.
func (c *QdrantClient) DeleteByFilter(ctx context.Context, collection string, filter *Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("%w: delete filter is empty", types.ErrInvalidArgument)
	}
	return c.call(ctx, "delete points by filter", http.MethodPost, collectionPath(collection, "/points/delete"),
		url.Values{"wait": {"true"}}, map[string]any{"filter": filter}, nil)
}

// Count implements Gateway
func (c *QdrantClient) Count(ctx context.Context, collection string, filter *Filter) (int, error) {
	body := map[string]any{"exact": true}
	if !filter.IsEmpty() {
		body["filter"] = filter
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := c.call(ctx, "count points", http.MethodPost, collectionPath(collection, "/points/count"), nil, body, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Close releases idle connections
func (c *QdrantClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func formatID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
