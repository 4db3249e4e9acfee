package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nuvos/nuvos-index/internal/chunker"
	"github.com/nuvos/nuvos-index/internal/discovery"
	"github.com/nuvos/nuvos-index/internal/embedder"
	"github.com/nuvos/nuvos-index/internal/ledger"
	"github.com/nuvos/nuvos-index/internal/vectorstore"
	"github.com/nuvos/nuvos-index/pkg/types"
)

const (
	// EnvPrefix prefixes every environment override, e.g. NUVOS_TOKEN_BUDGET
	EnvPrefix = "NUVOS"

	// EnvQdrantAPIKey is consulted when vector_store.api_key is empty
	EnvQdrantAPIKey = "QDRANT_API_KEY"

	// FileName is the config file base name looked up under <root>/.nuvos
	FileName = "config"

	BackendQdrant = "qdrant"
	BackendSQLite = "sqlite"

	DefaultCollection      = "code_chunks"
	DefaultRef             = "main"
	DefaultCheckpointEvery = 25
	DefaultQdrantURL       = "http://localhost:6333"
)

// VectorStore selects and configures the vector store backend
type VectorStore struct {
	Backend              string        `mapstructure:"backend"`
	URL                  string        `mapstructure:"url"`
	APIKey               string        `mapstructure:"api_key"`
	VectorSize           int           `mapstructure:"vector_size"`
	Distance             string        `mapstructure:"distance"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RequestsPerSecond    float64       `mapstructure:"requests_per_second"`
	MaxBatchPoints       int           `mapstructure:"max_batch_points"`
	PayloadOverheadBytes int           `mapstructure:"payload_overhead_bytes"`
	SQLitePath           string        `mapstructure:"sqlite_path"`
}

// Embedding configures the embedding provider
type Embedding struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBatch  int           `mapstructure:"max_batch"`
}

// Log configures the process logger
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the ingestion configuration
type Config struct {
	SourceRoot string `mapstructure:"source_root"`
	ProjectID  string `mapstructure:"project_id"`
	RepoURL    string `mapstructure:"repo_url"`
	Ref        string `mapstructure:"ref"`
	Collection string `mapstructure:"collection"`

	TokenBudget            int `mapstructure:"token_budget"`
	OverlapLines           int `mapstructure:"overlap_lines"`
	SummaryMaxTokens       int `mapstructure:"summary_max_tokens"`
	MaxIterationsPerSymbol int `mapstructure:"max_iterations_per_symbol"`

	Workers         int `mapstructure:"workers"`
	CheckpointEvery int `mapstructure:"checkpoint_every"`

	Include          []string `mapstructure:"include"`
	Exclude          []string `mapstructure:"exclude"`
	BinaryExtensions []string `mapstructure:"binary_extensions"`
	MaxFileBytes     int64    `mapstructure:"max_file_bytes"`

	VectorStore VectorStore `mapstructure:"vector_store"`
	Embedding   Embedding   `mapstructure:"embedding"`
	Log         Log         `mapstructure:"log"`

	// ConfigFile is the file that was read, empty when none was found
	ConfigFile string `mapstructure:"-"`
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("source_root", ".")
	v.SetDefault("project_id", "")
	v.SetDefault("repo_url", "")
	v.SetDefault("ref", DefaultRef)
	v.SetDefault("collection", DefaultCollection)

	v.SetDefault("token_budget", chunker.DefaultTokenBudget)
	v.SetDefault("overlap_lines", chunker.DefaultOverlapLines)
	v.SetDefault("summary_max_tokens", chunker.DefaultSummaryMaxTokens)
	v.SetDefault("max_iterations_per_symbol", chunker.DefaultMaxIterationsPerSymbol)

	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("checkpoint_every", DefaultCheckpointEvery)

	v.SetDefault("include", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("binary_extensions", []string{})
	v.SetDefault("max_file_bytes", discovery.DefaultMaxFileBytes)

	v.SetDefault("vector_store.backend", BackendQdrant)
	v.SetDefault("vector_store.url", DefaultQdrantURL)
	v.SetDefault("vector_store.api_key", "")
	v.SetDefault("vector_store.vector_size", 0)
	v.SetDefault("vector_store.distance", string(vectorstore.DistanceCosine))
	v.SetDefault("vector_store.timeout", vectorstore.DefaultQdrantTimeout)
	v.SetDefault("vector_store.requests_per_second", 0)
	v.SetDefault("vector_store.max_batch_points", vectorstore.MaxInitialBatch)
	v.SetDefault("vector_store.payload_overhead_bytes", vectorstore.DefaultPayloadOverheadBytes)
	v.SetDefault("vector_store.sqlite_path", "")

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.cache_size", 10000)
	v.SetDefault("embedding.timeout", embedder.DefaultTimeout)
	v.SetDefault("embedding.max_batch", embedder.DefaultBatchSize)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment overrides
// registered. Flags are bound separately with BindFlags.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"root":          "source_root",
	"project-id":    "project_id",
	"repo-url":      "repo_url",
	"ref":           "ref",
	"collection":    "collection",
	"workers":       "workers",
	"token-budget":  "token_budget",
	"overlap-lines": "overlap_lines",
	"include":       "include",
	"exclude":       "exclude",
	"backend":       "vector_store.backend",
	"qdrant-url":    "vector_store.url",
	"sqlite-path":   "vector_store.sqlite_path",
	"provider":      "embedding.provider",
	"model":         "embedding.model",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// AddFlags registers the configuration flags shared by every command
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a config file (yaml, json or toml)")
	fs.StringP("root", "r", ".", "source root to index")
	fs.String("project-id", "", "project id (default: lowercase root directory name)")
	fs.String("repo-url", "", "repository url (default: local://<project-id>)")
	fs.String("ref", DefaultRef, "branch or tag recorded in blob uris")
	fs.String("collection", DefaultCollection, "vector store collection")
	fs.Int("workers", runtime.NumCPU(), "files processed concurrently")
	fs.Int("token-budget", chunker.DefaultTokenBudget, "maximum estimated tokens per chunk")
	fs.Int("overlap-lines", chunker.DefaultOverlapLines, "lines repeated between adjacent windows")
	fs.StringSlice("include", nil, "glob patterns to include (default: all files)")
	fs.StringSlice("exclude", nil, "glob patterns to exclude")
	fs.String("backend", BackendQdrant, "vector store backend: qdrant or sqlite")
	fs.String("qdrant-url", DefaultQdrantURL, "qdrant base url")
	fs.String("sqlite-path", "", "sqlite database path (default: <root>/.nuvos/index/points.db)")
	fs.String("provider", "", "embedding provider: openai, jina or local (default: detected from api keys)")
	fs.String("model", "", "embedding model")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
}

// BindFlags binds every flag registered by AddFlags that is present in fs.
// Only flags the user set override file and environment values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file, if any, and resolves derived defaults.
// configFile overrides the lookup of <root>/.nuvos/config.{yaml,json,toml}.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	rawRoot := v.GetString("source_root")
	root, err := filepath.Abs(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve source root: %v", types.ErrConfig, err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config file %s: %v", types.ErrConfig, configFile, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(filepath.Join(root, ledger.DirName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: read config file: %v", types.ErrConfig, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", types.ErrConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	// A relative source_root from the file is relative to the file
	switch {
	case cfg.SourceRoot == "" || cfg.SourceRoot == rawRoot:
		cfg.SourceRoot = root
	case !filepath.IsAbs(cfg.SourceRoot) && cfg.ConfigFile != "":
		cfg.SourceRoot = filepath.Join(filepath.Dir(cfg.ConfigFile), cfg.SourceRoot)
	}
	cfg.resolve()
	return &cfg, nil
}

// resolve fills values that default from other values
func (c *Config) resolve() {
	if abs, err := filepath.Abs(c.SourceRoot); err == nil {
		c.SourceRoot = abs
	}
	if c.ProjectID == "" {
		c.ProjectID = strings.ToLower(filepath.Base(c.SourceRoot))
	}
	if c.RepoURL == "" {
		c.RepoURL = "local://" + c.ProjectID
	}
	if c.Ref == "" {
		c.Ref = DefaultRef
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}

	c.VectorStore.Backend = strings.ToLower(strings.TrimSpace(c.VectorStore.Backend))
	if c.VectorStore.APIKey == "" {
		c.VectorStore.APIKey = os.Getenv(EnvQdrantAPIKey)
	}
	if c.VectorStore.SQLitePath == "" {
		c.VectorStore.SQLitePath = filepath.Join(c.SourceRoot, ledger.DirName, "index", "points.db")
	}

	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = embedder.DetectProvider()
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = embedder.DefaultDimension(c.Embedding.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		c.VectorStore.VectorSize = c.Embedding.Dimension
	}
}

// Validate reports every configuration error found, before any file is touched
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{types.ErrConfig}, args...)...))
	}

	if info, err := os.Stat(c.SourceRoot); err != nil {
		add("source_root %s: %v", c.SourceRoot, err)
	} else if !info.IsDir() {
		add("source_root %s is not a directory", c.SourceRoot)
	}

	if c.TokenBudget <= 0 {
		add("token_budget must be positive, got %d", c.TokenBudget)
	}
	if c.OverlapLines < 0 {
		add("overlap_lines must not be negative, got %d", c.OverlapLines)
	}
	if c.SummaryMaxTokens <= 0 {
		add("summary_max_tokens must be positive, got %d", c.SummaryMaxTokens)
	}
	if c.MaxIterationsPerSymbol <= 0 {
		add("max_iterations_per_symbol must be positive, got %d", c.MaxIterationsPerSymbol)
	}
	if c.Workers <= 0 {
		add("workers must be positive, got %d", c.Workers)
	}
	if c.CheckpointEvery <= 0 {
		add("checkpoint_every must be positive, got %d", c.CheckpointEvery)
	}

	vs := c.VectorStore
	switch vs.Backend {
	case BackendQdrant:
		if vs.URL == "" {
			add("vector_store.url is required for the qdrant backend")
		}
		if vs.APIKey == "" {
			add("vector_store.api_key is required for the qdrant backend (or set %s)", EnvQdrantAPIKey)
		}
	case BackendSQLite:
		if vs.SQLitePath == "" {
			add("vector_store.sqlite_path is required for the sqlite backend")
		}
	default:
		add("unknown vector_store.backend %q", vs.Backend)
	}
	if _, ok := vectorstore.ParseDistance(vs.Distance); !ok {
		add("unknown vector_store.distance %q", vs.Distance)
	}
	if vs.VectorSize <= 0 {
		add("vector_store.vector_size must be positive, got %d", vs.VectorSize)
	} else if vs.VectorSize != c.Embedding.Dimension {
		add("vector_store.vector_size %d does not match embedding.dimension %d", vs.VectorSize, c.Embedding.Dimension)
	}
	if vs.PayloadOverheadBytes < 0 {
		add("vector_store.payload_overhead_bytes must not be negative")
	}

	switch c.Embedding.Provider {
	case embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderLocal:
	default:
		add("unknown embedding.provider %q", c.Embedding.Provider)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log.level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("unknown log.format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
