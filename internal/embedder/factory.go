package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nuvos/nuvos-index/internal/retry"
)

// Environment variables consulted when no api key is configured
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	CacheSize int
	MaxBatch  int
	Timeout   time.Duration
	Retry     retry.Config
}

// New creates an embedder from configuration. A positive CacheSize wraps
// the provider in an LRU cache.
func New(cfg Config, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var base Embedder
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case ProviderLocal:
		base = NewLocalProvider(cfg.Dimension)
	case ProviderOpenAI, ProviderJina:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(envKeyFor(provider))
		}
		p, err := NewHTTPProvider(HTTPOptions{
			Provider:  provider,
			BaseURL:   cfg.BaseURL,
			APIKey:    key,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			MaxBatch:  cfg.MaxBatch,
			Timeout:   cfg.Timeout,
			Retry:     cfg.Retry,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCached(base, cfg.CacheSize), nil
	}
	return base, nil
}

// DefaultDimension returns the vector size a provider produces when no
// dimension is configured
func DefaultDimension(provider string) int {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderLocal:
		return LocalDimension
	case ProviderJina:
		return JinaDimension
	default:
		return OpenAIDimension
	}
}

// DetectProvider picks a provider from the api keys present in the
// environment, falling back to local
func DetectProvider() string {
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}

func envKeyFor(provider string) string {
	if provider == ProviderJina {
		return EnvJinaAPIKey
	}
	return EnvOpenAIAPIKey
}
