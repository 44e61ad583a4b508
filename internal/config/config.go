// Package config loads skillscan settings: built-in defaults, then an
// optional YAML file, then SKILLSCAN_* variables from the environment or a
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "SKILLSCAN_"

// Config is the complete runtime configuration.
type Config struct {
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Matching  MatchingConfig  `yaml:"matching"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Workers   int             `yaml:"workers"`
	LogLevel  string          `yaml:"log_level"`
}

// TaxonomyConfig configures the snapshot source tiers.
type TaxonomyConfig struct {
	RemoteURL     string        `yaml:"remote_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	CacheDir      string        `yaml:"cache_dir"`
	CacheMaxAge   time.Duration `yaml:"cache_max_age"`
	ReferenceDir  string        `yaml:"reference_dir"`
	DomainDir     string        `yaml:"domain_dir"`
	MinRecords    int           `yaml:"min_records"`
	MinRatio      float64       `yaml:"min_ratio"` // of the last good source size
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// MatchingConfig configures the match passes.
type MatchingConfig struct {
	FuzzyThreshold        float64 `yaml:"fuzzy_threshold"` // 0..100
	MaxFuzzyTokens        int     `yaml:"max_fuzzy_tokens"`
	Semantic              bool    `yaml:"semantic"`
	SemanticThreshold     float64 `yaml:"semantic_threshold"` // cosine
	SemanticTopK          int     `yaml:"semantic_top_k"`
	MaxSemanticCandidates int     `yaml:"max_semantic_candidates"`
	MaxSemanticChars      int     `yaml:"max_semantic_chars"`
}

// EmbeddingConfig configures the embedder of the semantic pass.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Index   string `yaml:"index"` // memory | sqlite
}

// DiscoveryConfig configures the discovery pass.
type DiscoveryConfig struct {
	MinLength     int     `yaml:"min_length"`
	Confidence    float64 `yaml:"confidence"`
	BlacklistPath string  `yaml:"blacklist_path"`
	Emit          bool    `yaml:"emit"`
}

// LedgerConfig configures discovery persistence.
type LedgerConfig struct {
	Backend    string        `yaml:"backend"` // json | sqlite
	Path       string        `yaml:"path"`
	IgnorePath string        `yaml:"ignore_path"`
	SQLiteDSN  string        `yaml:"sqlite_dsn"`
	RedisURL   string        `yaml:"redis_url"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Taxonomy: TaxonomyConfig{
			RemoteTimeout: 10 * time.Second,
			CacheDir:      "data/cache",
			CacheMaxAge:   24 * time.Hour,
			ReferenceDir:  "data/reference",
			DomainDir:     "data/domains",
			MinRecords:    10,
			MinRatio:      0.5,
			RetryInterval: 5 * time.Minute,
		},
		Matching: MatchingConfig{
			FuzzyThreshold:        80,
			MaxFuzzyTokens:        500,
			SemanticThreshold:     0.6,
			SemanticTopK:          5,
			MaxSemanticCandidates: 2000,
			MaxSemanticChars:      8000,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
			Index: "memory",
		},
		Discovery: DiscoveryConfig{
			MinLength:     3,
			Confidence:    0.7,
			BlacklistPath: "data/blacklist.txt",
		},
		Ledger: LedgerConfig{
			Backend:    "json",
			Path:       "data/discovery_ledger.json",
			IgnorePath: "data/ignore.txt",
			SQLiteDSN:  "data/skillscan.db",
			LockTTL:    30 * time.Second,
		},
		Workers:  4,
		LogLevel: "info",
	}
}

// Load reads path (optional, "" to skip), then .env in the working directory
// and the process environment. Process variables win over .env entries.
func Load(path string) (Config, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	env := envReader{lookup: func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}}
	env.apply(&cfg)
	if len(env.errs) > 0 {
		return cfg, errors.Join(env.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) apply(cfg *Config) {
	t, m, e, d, l := &cfg.Taxonomy, &cfg.Matching, &cfg.Embedding, &cfg.Discovery, &cfg.Ledger

	r.str("REMOTE_URL", &t.RemoteURL)
	r.duration("REMOTE_TIMEOUT", &t.RemoteTimeout)
	r.str("CACHE_DIR", &t.CacheDir)
	r.duration("CACHE_MAX_AGE", &t.CacheMaxAge)
	r.str("REFERENCE_DIR", &t.ReferenceDir)
	r.str("DOMAIN_DIR", &t.DomainDir)
	r.integer("MIN_RECORDS", &t.MinRecords)
	r.float("MIN_RATIO", &t.MinRatio)
	r.duration("RETRY_INTERVAL", &t.RetryInterval)

	r.float("FUZZY_THRESHOLD", &m.FuzzyThreshold)
	r.integer("MAX_FUZZY_TOKENS", &m.MaxFuzzyTokens)
	r.boolean("SEMANTIC", &m.Semantic)
	r.float("SEMANTIC_THRESHOLD", &m.SemanticThreshold)
	r.integer("SEMANTIC_TOP_K", &m.SemanticTopK)
	r.integer("MAX_SEMANTIC_CANDIDATES", &m.MaxSemanticCandidates)
	r.integer("MAX_SEMANTIC_CHARS", &m.MaxSemanticChars)

	r.str("EMBEDDING_URL", &e.BaseURL)
	r.str("EMBEDDING_MODEL", &e.Model)
	if v, ok := r.lookup("OPENAI_API_KEY"); ok && e.APIKey == "" {
		e.APIKey = v
	}
	r.str("EMBEDDING_API_KEY", &e.APIKey)
	r.str("VECTOR_INDEX", &e.Index)

	r.integer("DISCOVERY_MIN_LENGTH", &d.MinLength)
	r.float("DISCOVERY_CONFIDENCE", &d.Confidence)
	r.str("BLACKLIST_PATH", &d.BlacklistPath)
	r.boolean("EMIT_DISCOVERIES", &d.Emit)

	r.str("LEDGER_BACKEND", &l.Backend)
	r.str("LEDGER_PATH", &l.Path)
	r.str("IGNORE_PATH", &l.IgnorePath)
	r.str("SQLITE_DSN", &l.SQLiteDSN)
	r.str("REDIS_URL", &l.RedisURL)
	r.duration("LOCK_TTL", &l.LockTTL)

	r.integer("WORKERS", &cfg.Workers)
	r.str("LOG_LEVEL", &cfg.LogLevel)
}

func (r *envReader) get(name string) (string, string, bool) {
	key := EnvPrefix + name
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return key, "", false
	}
	return key, strings.TrimSpace(v), true
}

func (r *envReader) str(name string, dst *string) {
	if _, v, ok := r.get(name); ok {
		*dst = v
	}
}

func (r *envReader) integer(name string, dst *int) {
	key, v, ok := r.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) float(name string, dst *float64) {
	key, v, ok := r.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (r *envReader) boolean(name string, dst *bool) {
	key, v, ok := r.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(name string, dst *time.Duration) {
	key, v, ok := r.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Matching.FuzzyThreshold > 0 && c.Matching.FuzzyThreshold <= 100,
		"matching.fuzzy_threshold must be in (0, 100], got %v", c.Matching.FuzzyThreshold)
	check(c.Matching.MaxFuzzyTokens > 0, "matching.max_fuzzy_tokens must be positive")
	check(c.Matching.SemanticThreshold > 0 && c.Matching.SemanticThreshold <= 1,
		"matching.semantic_threshold must be in (0, 1], got %v", c.Matching.SemanticThreshold)
	check(c.Matching.SemanticTopK > 0, "matching.semantic_top_k must be positive")
	check(c.Matching.MaxSemanticCandidates > 0, "matching.max_semantic_candidates must be positive")
	check(c.Matching.MaxSemanticChars > 0, "matching.max_semantic_chars must be positive")
	check(c.Discovery.MinLength > 0, "discovery.min_length must be positive")
	check(c.Discovery.Confidence > 0 && c.Discovery.Confidence <= 1,
		"discovery.confidence must be in (0, 1], got %v", c.Discovery.Confidence)
	check(c.Taxonomy.CacheMaxAge > 0, "taxonomy.cache_max_age must be positive")
	check(c.Taxonomy.RemoteTimeout > 0, "taxonomy.remote_timeout must be positive")
	check(c.Taxonomy.MinRecords >= 0, "taxonomy.min_records must not be negative")
	check(c.Taxonomy.MinRatio > 0 && c.Taxonomy.MinRatio <= 1,
		"taxonomy.min_ratio must be in (0, 1], got %v", c.Taxonomy.MinRatio)
	check(c.Taxonomy.RetryInterval > 0, "taxonomy.retry_interval must be positive")
	check(c.Workers > 0, "workers must be positive")
	check(c.Ledger.Backend == "json" || c.Ledger.Backend == "sqlite",
		"ledger.backend must be json or sqlite, got %q", c.Ledger.Backend)
	check(c.Ledger.Backend != "json" || c.Ledger.Path != "", "ledger.path is required for the json backend")
	check(c.Ledger.Backend != "sqlite" || c.Ledger.SQLiteDSN != "", "ledger.sqlite_dsn is required for the sqlite backend")
	check(c.Embedding.Index == "memory" || c.Embedding.Index == "sqlite",
		"embedding.index must be memory or sqlite, got %q", c.Embedding.Index)
	check(!c.Matching.Semantic || c.Embedding.BaseURL != "" || c.Embedding.APIKey != "",
		"matching.semantic needs embedding.base_url or an API key")
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
