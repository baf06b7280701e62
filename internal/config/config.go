// Package config loads and validates the guiderag configuration.
//
// Configuration sources, in precedence order (highest wins):
//  1. Built-in defaults
//  2. Config file (.guiderag.yaml / .guiderag.yml in the given dir)
//  3. Environment variables (GUIDERAG_*, plus GEMINI_API_KEY)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"      json:"cache"`
	Search    SearchConfig    `yaml:"search"     json:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"  json:"embedding"`
	Reranker  RerankerConfig  `yaml:"reranker"   json:"reranker"`
	WebSearch WebSearchConfig `yaml:"web_search" json:"web_search"`
	Redis     RedisConfig     `yaml:"redis"      json:"redis"`
	Logging   LoggingConfig   `yaml:"logging"    json:"logging"`
}

// CacheConfig controls the file cache location and expiry windows.
// Expiries are duration strings ("12h", "30m").
type CacheConfig struct {
	Dir         string `yaml:"dir" json:"dir"`
	ShortExpiry string `yaml:"short_expiry" json:"short_expiry"`
	LongExpiry  string `yaml:"long_expiry" json:"long_expiry"`
}

// ShortExpiryDuration parses the short expiry, falling back to 12h.
func (c CacheConfig) ShortExpiryDuration() time.Duration {
	return parseDurationOr(c.ShortExpiry, 12*time.Hour)
}

// LongExpiryDuration parses the long expiry, falling back to 24h.
func (c CacheConfig) LongExpiryDuration() time.Duration {
	return parseDurationOr(c.LongExpiry, 24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SearchConfig holds retrieval fan-outs, fusion weights, and rescore
// multipliers.
type SearchConfig struct {
	DenseK      int     `yaml:"dense_k" json:"dense_k"`
	DenseFetchK int     `yaml:"dense_fetch_k" json:"dense_fetch_k"`
	MMRLambda   float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
	LexicalK    int     `yaml:"lexical_k" json:"lexical_k"`
	RRFConstant int     `yaml:"rrf_constant" json:"rrf_constant"`
	RerankTopN  int     `yaml:"rerank_top_n" json:"rerank_top_n"`
	FinalTopN   int     `yaml:"final_top_n" json:"final_top_n"`

	// Default and recency fusion weights. Each pair must sum to 1.0.
	DefaultDenseWeight float64 `yaml:"default_dense_weight" json:"default_dense_weight"`
	RecencyDenseWeight float64 `yaml:"recency_dense_weight" json:"recency_dense_weight"`

	// RecencyKeywords override the built-in keyword list when non-empty.
	RecencyKeywords []string `yaml:"recency_keywords" json:"recency_keywords"`

	// Rescore multipliers.
	QualityWeight float64 `yaml:"quality_weight" json:"quality_weight"`
	ClassBonus    float64 `yaml:"class_bonus" json:"class_bonus"`
	ViewsWeight   float64 `yaml:"views_weight" json:"views_weight"`
	LikesWeight   float64 `yaml:"likes_weight" json:"likes_weight"`

	// BranchTimeout is a duration string ("30s") bounding each pipeline
	// branch.
	BranchTimeout string `yaml:"branch_timeout" json:"branch_timeout"`
}

// BranchTimeoutDuration parses the branch timeout, falling back to 30s.
func (c SearchConfig) BranchTimeoutDuration() time.Duration {
	return parseDurationOr(c.BranchTimeout, 30*time.Second)
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "gemini" or "static".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// RerankerConfig configures the cross-encoder reranker server client.
type RerankerConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
}

// WebSearchConfig configures the Gemini grounded web search branch.
type WebSearchConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Model         string `yaml:"model" json:"model"`
	RecencyMonths int    `yaml:"recency_months" json:"recency_months"`

	// APIKey comes from GEMINI_API_KEY, never from the config file.
	APIKey string `yaml:"-" json:"-"`
}

// RedisConfig enables the Redis result cache backend. When Addr is empty
// the file cache serves results.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Dir:         defaultCacheDir(),
			ShortExpiry: "12h",
			LongExpiry:  "24h",
		},
		Search: SearchConfig{
			DenseK:             20,
			DenseFetchK:        60,
			MMRLambda:          0.8,
			LexicalK:           20,
			RRFConstant:        60,
			RerankTopN:         10,
			FinalTopN:          5,
			DefaultDenseWeight: 0.3,
			RecencyDenseWeight: 0.7,
			QualityWeight:      0.2,
			ClassBonus:         5.0,
			ViewsWeight:        0.05,
			LikesWeight:        0.1,
			BranchTimeout:      "30s",
		},
		Embedding: EmbeddingConfig{
			Provider:   "gemini",
			Model:      "text-embedding-004",
			Dimensions: 768,
			BatchSize:  32,
			CacheSize:  4096,
		},
		Reranker: RerankerConfig{
			Endpoint: "http://localhost:9659",
			Model:    "bge-reranker-v2-m3",
		},
		WebSearch: WebSearchConfig{
			Model:         "gemini-2.0-flash",
			RecencyMonths: 3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guiderag-cache"
	}
	return filepath.Join(home, ".cache", "guiderag")
}

// Load builds the effective configuration for a directory: defaults, then
// the directory's config file if present, then environment overrides, then
// validation.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts .guiderag.yaml then .guiderag.yml. A missing file
// is not an error.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".guiderag.yaml", ".guiderag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Zero is not a
// practical value for any of the numeric tunables, so non-zero is the
// merge criterion throughout.
func (c *Config) mergeWith(other *Config) {
	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.ShortExpiry != "" {
		c.Cache.ShortExpiry = other.Cache.ShortExpiry
	}
	if other.Cache.LongExpiry != "" {
		c.Cache.LongExpiry = other.Cache.LongExpiry
	}

	if other.Search.DenseK != 0 {
		c.Search.DenseK = other.Search.DenseK
	}
	if other.Search.DenseFetchK != 0 {
		c.Search.DenseFetchK = other.Search.DenseFetchK
	}
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}
	if other.Search.LexicalK != 0 {
		c.Search.LexicalK = other.Search.LexicalK
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.RerankTopN != 0 {
		c.Search.RerankTopN = other.Search.RerankTopN
	}
	if other.Search.FinalTopN != 0 {
		c.Search.FinalTopN = other.Search.FinalTopN
	}
	if other.Search.DefaultDenseWeight != 0 {
		c.Search.DefaultDenseWeight = other.Search.DefaultDenseWeight
	}
	if other.Search.RecencyDenseWeight != 0 {
		c.Search.RecencyDenseWeight = other.Search.RecencyDenseWeight
	}
	if len(other.Search.RecencyKeywords) > 0 {
		c.Search.RecencyKeywords = other.Search.RecencyKeywords
	}
	if other.Search.QualityWeight != 0 {
		c.Search.QualityWeight = other.Search.QualityWeight
	}
	if other.Search.ClassBonus != 0 {
		c.Search.ClassBonus = other.Search.ClassBonus
	}
	if other.Search.ViewsWeight != 0 {
		c.Search.ViewsWeight = other.Search.ViewsWeight
	}
	if other.Search.LikesWeight != 0 {
		c.Search.LikesWeight = other.Search.LikesWeight
	}
	if other.Search.BranchTimeout != "" {
		c.Search.BranchTimeout = other.Search.BranchTimeout
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Reranker.Enabled {
		c.Reranker.Enabled = true
	}
	if other.Reranker.Endpoint != "" {
		c.Reranker.Endpoint = other.Reranker.Endpoint
	}
	if other.Reranker.Model != "" {
		c.Reranker.Model = other.Reranker.Model
	}

	if other.WebSearch.Enabled {
		c.WebSearch.Enabled = true
	}
	if other.WebSearch.Model != "" {
		c.WebSearch.Model = other.WebSearch.Model
	}
	if other.WebSearch.RecencyMonths != 0 {
		c.WebSearch.RecencyMonths = other.WebSearch.RecencyMonths
	}

	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
	if other.Redis.Password != "" {
		c.Redis.Password = other.Redis.Password
	}
	if other.Redis.DB != 0 {
		c.Redis.DB = other.Redis.DB
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
}

// applyEnvOverrides applies environment variables. They take precedence
// over both defaults and the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.WebSearch.APIKey = v
	}
	if v := os.Getenv("GUIDERAG_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("GUIDERAG_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.DefaultDenseWeight = f
		}
	}
	if v := os.Getenv("GUIDERAG_RECENCY_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.RecencyDenseWeight = f
		}
	}
	if v := os.Getenv("GUIDERAG_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("GUIDERAG_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("GUIDERAG_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("GUIDERAG_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
		c.Reranker.Enabled = true
	}
	if v := os.Getenv("GUIDERAG_WEB_SEARCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.WebSearch.Enabled = b
		}
	}
	if v := os.Getenv("GUIDERAG_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("GUIDERAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration. Retrieval stages degrade at runtime
// when their backends fail, but a missing API key for an enabled web
// search branch is a deployment mistake and fails here.
func (c *Config) Validate() error {
	if c.WebSearch.Enabled && c.WebSearch.APIKey == "" {
		return fmt.Errorf("web_search.enabled requires GEMINI_API_KEY to be set")
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"search.default_dense_weight", c.Search.DefaultDenseWeight},
		{"search.recency_dense_weight", c.Search.RecencyDenseWeight},
	} {
		if w.value < 0 || w.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", w.name, w.value)
		}
	}

	if c.Search.MMRLambda < 0 || c.Search.MMRLambda > 1 {
		return fmt.Errorf("search.mmr_lambda must be between 0 and 1, got %f", c.Search.MMRLambda)
	}
	if c.Search.DenseK <= 0 || c.Search.LexicalK <= 0 {
		return fmt.Errorf("search.dense_k and search.lexical_k must be positive")
	}
	if c.Search.DenseFetchK < c.Search.DenseK {
		return fmt.Errorf("search.dense_fetch_k (%d) must be at least dense_k (%d)",
			c.Search.DenseFetchK, c.Search.DenseK)
	}
	if c.Search.FinalTopN <= 0 || c.Search.RerankTopN < c.Search.FinalTopN {
		return fmt.Errorf("search.rerank_top_n (%d) must be at least final_top_n (%d), both positive",
			c.Search.RerankTopN, c.Search.FinalTopN)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"cache.short_expiry", c.Cache.ShortExpiry},
		{"cache.long_expiry", c.Cache.LongExpiry},
		{"search.branch_timeout", c.Search.BranchTimeout},
	} {
		if d.value == "" {
			continue
		}
		if parsed, err := time.ParseDuration(d.value); err != nil || parsed <= 0 {
			return fmt.Errorf("%s must be a positive duration, got %q", d.name, d.value)
		}
	}

	// A gemini provider without a key is not fatal here: the service falls
	// back to the static embedder so indexing and lexical search keep
	// working offline.
	switch strings.ToLower(c.Embedding.Provider) {
	case "gemini", "static":
	default:
		return fmt.Errorf("embedding.provider must be 'gemini' or 'static', got %s", c.Embedding.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
