// Package config loads the memory store's configuration from environment
// variables (optionally seeded from a .env file) into a composed-section
// Config with per-area defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BackendMode selects between an embedded, single-process engine and a
// networked one, for both the relational and vector adapters.
type BackendMode string

const (
	BackendLocal  BackendMode = "local"
	BackendRemote BackendMode = "remote"
)

type VectorMode string

const (
	VectorLocal VectorMode = "local"
	VectorCloud VectorMode = "cloud"
)

// RelationalConfig selects and connects the relational backend.
type RelationalConfig struct {
	Backend       BackendMode
	SQLitePath    string // used when Backend == local
	PostgresDSN   string // used when Backend == remote
	MaxOpenConns  int
	MaxIdleConns  int
	ConnMaxLifetime time.Duration
}

// VectorConfig selects and connects the vector backend.
type VectorConfig struct {
	Mode           VectorMode
	EmbeddingDim   int
	QdrantAddr     string
	QdrantAPIKey   string
	CollectionName string
}

// RetryConfig mirrors the extraction/vector-adapter retry knobs.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      float64
}

// ChunkingConfig controls the extraction orchestrator's chunker.
type ChunkingConfig struct {
	Enabled            bool
	MaxTokensPerChunk  int
	OverlapTokens      int
	Strategy           string // sliding_window | conversation_boundary | semantic
	TokenCountMethod   string // chars4 (default) or injected
	FailureMode        string // fail_fast | continue_on_error
}

// ExtractionConfig bundles the orchestrator's settings.
type ExtractionConfig struct {
	MemoryTypes   []string
	MinConfidence float64
	BatchSize     int
	Retry         RetryConfig
	Chunking      ChunkingConfig
}

// RetentionPolicy is the per-memory-type TTL/importance/grace bundle.
type RetentionPolicy struct {
	TTL                time.Duration
	ImportanceMultiplier float64
	GracePeriod        time.Duration
}

// ImportanceWeights weight the importance scorer's inputs.
type ImportanceWeights struct {
	AccessFrequency   float64
	Confidence        float64
	RelationshipCount float64
}

// DecayFunctionConfig names which decay function to use and its params.
type DecayFunctionConfig struct {
	Kind       string // exponential | linear
	Lambda     float64 // exponential
	DecayPeriod time.Duration // linear
}

// LifecycleConfig bundles the lifecycle engine's settings.
type LifecycleConfig struct {
	Enabled              bool
	DefaultTTL           time.Duration
	RetentionPolicies    map[string]RetentionPolicy
	DecayFunction        DecayFunctionConfig
	DecayThreshold       float64
	ImportanceWeights    ImportanceWeights
	EvaluationInterval   time.Duration // >= 60s, enforced in Load
	BatchSize            int           // [1,10000]
	ArchiveRetentionPeriod time.Duration
	AuditRetentionPeriod time.Duration
}

// MakerConfig bundles the consensus extractor's settings.
type MakerConfig struct {
	Enabled     bool
	Replicas    int
	VoteK       int
	MaxRetries  int
	Temperature float64
	Timeout     time.Duration
	Model       string
}

// RateLimitConfig configures the Redis-backed outbound call limiter.
type RateLimitConfig struct {
	Enabled     bool
	RedisAddr   string
	RedisDB     int
	WindowSize  time.Duration
	MaxRequests int
}

// Config is the top-level composed configuration.
type Config struct {
	Relational RelationalConfig
	Vector     VectorConfig
	Extraction ExtractionConfig
	Lifecycle  LifecycleConfig
	Maker      MakerConfig
	RateLimit  RateLimitConfig
	LogLevel   string
}

// Load reads configuration from the environment, optionally seeded by a
// .env file at envPath (ignored if it does not exist), and validates the
// cross-field constraints below.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("configuration_error: loading %s: %w", envPath, err)
			}
		}
	}

	cfg := Default()

	cfg.Relational.Backend = BackendMode(getEnv("MEMORY_RELATIONAL_BACKEND", string(cfg.Relational.Backend)))
	cfg.Relational.SQLitePath = getEnv("MEMORY_SQLITE_PATH", cfg.Relational.SQLitePath)
	cfg.Relational.PostgresDSN = getEnv("MEMORY_POSTGRES_DSN", cfg.Relational.PostgresDSN)

	cfg.Vector.Mode = VectorMode(getEnv("MEMORY_VECTOR_MODE", string(cfg.Vector.Mode)))
	cfg.Vector.EmbeddingDim = getEnvInt("MEMORY_EMBEDDING_DIM", cfg.Vector.EmbeddingDim)
	cfg.Vector.QdrantAddr = getEnv("MEMORY_QDRANT_ADDR", cfg.Vector.QdrantAddr)
	cfg.Vector.QdrantAPIKey = getEnv("MEMORY_QDRANT_API_KEY", cfg.Vector.QdrantAPIKey)
	cfg.Vector.CollectionName = getEnv("MEMORY_QDRANT_COLLECTION", cfg.Vector.CollectionName)

	cfg.Extraction.MinConfidence = getEnvFloat("EXTRACTION_MIN_CONFIDENCE", cfg.Extraction.MinConfidence)
	cfg.Extraction.BatchSize = getEnvInt("EXTRACTION_BATCH_SIZE", cfg.Extraction.BatchSize)
	if types := os.Getenv("EXTRACTION_MEMORY_TYPES"); types != "" {
		cfg.Extraction.MemoryTypes = strings.Split(types, ",")
	}

	cfg.Lifecycle.EvaluationInterval = getEnvDuration("LIFECYCLE_EVALUATION_INTERVAL", cfg.Lifecycle.EvaluationInterval)
	cfg.Lifecycle.BatchSize = getEnvInt("LIFECYCLE_BATCH_SIZE", cfg.Lifecycle.BatchSize)
	cfg.Lifecycle.DecayThreshold = getEnvFloat("LIFECYCLE_DECAY_THRESHOLD", cfg.Lifecycle.DecayThreshold)

	cfg.Maker.Enabled = getEnvBool("MAKER_ENABLED", cfg.Maker.Enabled)
	cfg.Maker.Replicas = getEnvInt("MAKER_REPLICAS", cfg.Maker.Replicas)
	cfg.Maker.VoteK = getEnvInt("MAKER_VOTE_K", cfg.Maker.VoteK)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RedisAddr = getEnv("RATE_LIMIT_REDIS_ADDR", cfg.RateLimit.RedisAddr)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if policyPath := os.Getenv("MEMORY_POLICY_FILE"); policyPath != "" {
		policies, err := LoadPolicyFile(policyPath)
		if err != nil {
			return nil, err
		}
		for memType, p := range policies {
			cfg.Lifecycle.RetentionPolicies[memType] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// policyFile is the YAML shape of an operator-supplied retention policy
// override file, one entry per memory type, merged over the built-in
// defaults by Load.
type policyFile struct {
	Policies map[string]struct {
		TTL                  string  `yaml:"ttl"`
		ImportanceMultiplier float64 `yaml:"importance_multiplier"`
		GracePeriod          string  `yaml:"grace_period"`
	} `yaml:"policies"`
}

// LoadPolicyFile reads a YAML file of per-memory-type retention policy
// overrides, letting operators tune TTL/importance/grace without touching
// environment variables.
func LoadPolicyFile(path string) (map[string]RetentionPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration_error: reading policy file %s: %w", path, err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("configuration_error: parsing policy file %s: %w", path, err)
	}

	out := make(map[string]RetentionPolicy, len(pf.Policies))
	for memType, raw := range pf.Policies {
		ttl, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return nil, fmt.Errorf("configuration_error: policy %q has invalid ttl %q: %w", memType, raw.TTL, err)
		}
		grace, err := time.ParseDuration(raw.GracePeriod)
		if err != nil {
			grace = time.Hour
		}
		out[memType] = RetentionPolicy{TTL: ttl, ImportanceMultiplier: raw.ImportanceMultiplier, GracePeriod: grace}
	}
	return out, nil
}

// Default returns the suggested defaults: 100k-token chunks, 60s minimum
// evaluation interval, 3 MAKER replicas at temperature 0.4.
func Default() *Config {
	return &Config{
		Relational: RelationalConfig{
			Backend:      BackendLocal,
			SQLitePath:   "memory.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLifetime: time.Hour,
		},
		Vector: VectorConfig{
			Mode:           VectorLocal,
			EmbeddingDim:   1536,
			CollectionName: "workspace_memories",
		},
		Extraction: ExtractionConfig{
			MemoryTypes:   []string{"entity", "fact", "decision"},
			MinConfidence: 0.3,
			BatchSize:     10,
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Backoff:      2.0,
			},
			Chunking: ChunkingConfig{
				Enabled:           true,
				MaxTokensPerChunk: 100_000,
				OverlapTokens:     2_000,
				Strategy:          "sliding_window",
				TokenCountMethod:  "chars4",
				FailureMode:       "continue_on_error",
			},
		},
		Lifecycle: LifecycleConfig{
			Enabled:    true,
			DefaultTTL: 30 * 24 * time.Hour,
			RetentionPolicies: map[string]RetentionPolicy{
				"fact":     {TTL: 30 * 24 * time.Hour, ImportanceMultiplier: 2.0, GracePeriod: time.Hour},
				"decision": {TTL: 90 * 24 * time.Hour, ImportanceMultiplier: 3.0, GracePeriod: time.Hour},
				"entity":   {TTL: 60 * 24 * time.Hour, ImportanceMultiplier: 2.0, GracePeriod: time.Hour},
			},
			DecayFunction:      DecayFunctionConfig{Kind: "exponential", Lambda: 0.05},
			DecayThreshold:     0.3,
			ImportanceWeights:  ImportanceWeights{AccessFrequency: 0.4, Confidence: 0.3, RelationshipCount: 0.3},
			EvaluationInterval: 5 * time.Minute,
			BatchSize:          500,
			ArchiveRetentionPeriod: 180 * 24 * time.Hour,
			AuditRetentionPeriod:   365 * 24 * time.Hour,
		},
		Maker: MakerConfig{
			Enabled:     true,
			Replicas:    3,
			VoteK:       1,
			MaxRetries:  1,
			Temperature: 0.4,
			Timeout:     10 * time.Second,
			Model:       "claude-haiku",
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			RedisDB:     0,
			WindowSize:  time.Minute,
			MaxRequests: 60,
		},
		LogLevel: "info",
	}
}

// Validate enforces cross-field invariants explicitly, beyond what
// per-field env parsing can catch.
func (c *Config) Validate() error {
	if c.Lifecycle.EvaluationInterval < 60*time.Second {
		return fmt.Errorf("configuration_error: lifecycle.evaluation_interval must be >= 60s, got %s", c.Lifecycle.EvaluationInterval)
	}
	if c.Lifecycle.BatchSize < 1 || c.Lifecycle.BatchSize > 10000 {
		return fmt.Errorf("configuration_error: lifecycle.batch_size must be in [1,10000], got %d", c.Lifecycle.BatchSize)
	}
	if c.Lifecycle.DecayThreshold < 0 || c.Lifecycle.DecayThreshold > 1 {
		return fmt.Errorf("configuration_error: lifecycle.decay_threshold must be in [0,1]")
	}
	sum := c.Lifecycle.ImportanceWeights.AccessFrequency + c.Lifecycle.ImportanceWeights.Confidence + c.Lifecycle.ImportanceWeights.RelationshipCount
	if sum < 0.99 || sum > 1.01 {
		// Warning-only: an off-1.0 sum does not fail the load here;
		// lifecycle.NewEngine logs a warning for it.
		_ = sum
	}
	if c.Vector.EmbeddingDim <= 0 {
		return fmt.Errorf("configuration_error: vector.embedding_dim must be positive")
	}
	if c.Extraction.Chunking.OverlapTokens > int(float64(c.Extraction.Chunking.MaxTokensPerChunk)*0.2) {
		return fmt.Errorf("configuration_error: chunking.overlap_tokens must be <= 20%% of max_tokens_per_chunk")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
