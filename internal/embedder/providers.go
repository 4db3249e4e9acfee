package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/zeebo/xxh3"

	"github.com/nuvos/nuvos-index/internal/retry"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 64
	DefaultTimeout   = 30 * time.Second
)

// HTTPOptions configures an HTTPProvider
type HTTPOptions struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	MaxBatch   int
	Timeout    time.Duration
	Retry      retry.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPProvider implements Embedder against an OpenAI-compatible
// /embeddings endpoint. Jina AI serves the same request shape.
type HTTPProvider struct {
	opts       HTTPOptions
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Embedder = (*HTTPProvider)(nil)

// providerDefaults returns base url, model and dimension for a provider
func providerDefaults(provider string) (string, string, int) {
	switch provider {
	case ProviderJina:
		return DefaultJinaBaseURL, DefaultJinaModel, JinaDimension
	default:
		return DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension
	}
}

// NewHTTPProvider creates a remote embedder, filling unset options with
// the provider's defaults
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	opts.Provider = strings.ToLower(strings.TrimSpace(opts.Provider))
	if opts.Provider == "" {
		opts.Provider = ProviderOpenAI
	}
	if opts.Provider != ProviderOpenAI && opts.Provider != ProviderJina {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, opts.Provider)
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key not set", ErrNoProviderEnabled, opts.Provider)
	}

	baseURL, model, dim := providerDefaults(opts.Provider)
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	if opts.Model == "" {
		opts.Model = model
	}
	if opts.Dimension <= 0 {
		opts.Dimension = dim
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = retry.DefaultConfig()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPProvider{
		opts:       opts,
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + "/embeddings",
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Embed implements Embedder
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Embedder. Texts are sent in groups of MaxBatch.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.opts.MaxBatch {
		end := min(start+p.opts.MaxBatch, len(texts))
		vectors, err := retry.Do(ctx, p.opts.Retry, isRetryable, func() ([][]float32, error) {
			return p.callAPI(ctx, texts[start:end])
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// apiError is a non-200 response from the embedding endpoint
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// isRetryable retries rate limits, server errors and network timeouts
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input": texts,
		"model": p.opts.Model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts))
	}
	sort.SliceStable(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) != p.opts.Dimension {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(data.Embedding), p.opts.Dimension)
		}
		vectors[i] = data.Embedding
	}

	p.logger.Debug("embedded batch",
		slog.String("provider", p.opts.Provider),
		slog.String("model", p.opts.Model),
		slog.Int("texts", len(texts)))
	return vectors, nil
}

// Dimension implements Embedder
func (p *HTTPProvider) Dimension() int {
	return p.opts.Dimension
}

// Provider returns the provider name
func (p *HTTPProvider) Provider() string {
	return p.opts.Provider
}

// Model implements Embedder
func (p *HTTPProvider) Model() string {
	return p.opts.Model
}

// Close implements Embedder
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic feature-hashed vectors without a
// network call. Texts sharing identifiers land near each other, which is
// enough for offline use and tests but is not a semantic model.
type LocalProvider struct {
	dimension int
}

var _ Embedder = (*LocalProvider)(nil)

// NewLocalProvider creates a local embedder. A non-positive dimension
// uses LocalDimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{dimension: dimension}
}

// Embed implements Embedder
func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vector := make([]float32, l.dimension)
	for _, token := range tokenize(text) {
		h := xxh3.HashString(token)
		idx := int(h % uint64(l.dimension))
		if h&(1<<63) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}
	return NormalizeVector(vector), nil
}

// EmbedBatch implements Embedder
func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Dimension implements Embedder
func (l *LocalProvider) Dimension() int {
	return l.dimension
}

// Model implements Embedder
func (l *LocalProvider) Model() string {
	return DefaultLocalModel
}

// Close implements Embedder
func (l *LocalProvider) Close() error {
	return nil
}

// tokenize splits text into lowercase identifier-like tokens
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
