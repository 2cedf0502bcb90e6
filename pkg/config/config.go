package config

import (
	"context"
	"encoding/json"
	"time"
)

// Config represents the complete configuration for docqa.
// It is loaded once per process and passed to every component constructor.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"   validate:"required"`
	Chunking   ChunkingConfig   `koanf:"chunking"   validate:"required"`
	Embedder   EmbedderConfig   `koanf:"embedder"   validate:"required"`
	Generation GenerationConfig `koanf:"generation" validate:"required"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"  validate:"required"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Cache      CacheConfig      `koanf:"cache"`
	Runtime    RuntimeConfig    `koanf:"runtime"`
}

// DatabaseConfig contains the chunk store connection settings.
type DatabaseConfig struct {
	ConnString     SensitiveString `koanf:"conn_string"     env:"DB_CONN_STRING"     sensitive:"true"`
	Schema         string          `koanf:"schema"          env:"DB_SCHEMA"          validate:"required"`
	Table          string          `koanf:"table"           env:"DB_TABLE"           validate:"required"`
	MaxConns       int             `koanf:"max_conns"       env:"DB_MAX_CONNS"       validate:"min=1,max=100"`
	ConnectTimeout time.Duration   `koanf:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
	QueryTimeout   time.Duration   `koanf:"query_timeout"   env:"DB_QUERY_TIMEOUT"`
}

// ChunkingConfig controls the token window chunker.
type ChunkingConfig struct {
	Size    int `koanf:"size"    env:"CHUNK_SIZE_TOKENS"    validate:"min=1"`
	Overlap int `koanf:"overlap" env:"CHUNK_OVERLAP_TOKENS" validate:"min=0"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Provider     string          `koanf:"provider"      env:"EMBEDDING_PROVIDER"      validate:"oneof=google openai"`
	Model        string          `koanf:"model"         env:"EMBEDDING_MODEL"         validate:"required"`
	Dimension    int             `koanf:"dimension"     env:"EMBEDDING_DIM"           validate:"min=1"`
	APIKey       SensitiveString `koanf:"api_key"       env:"GOOGLE_API_KEY"          sensitive:"true"`
	BaseURL      string          `koanf:"base_url"      env:"EMBEDDING_BASE_URL"`
	BatchSize    int             `koanf:"batch_size"    env:"EMBEDDING_BATCH_SIZE"    validate:"min=1"`
	Concurrency  int             `koanf:"concurrency"   env:"EMBEDDING_CONCURRENCY"   validate:"min=1"`
	CacheSize    int             `koanf:"cache_size"    env:"EMBEDDING_CACHE_SIZE"    validate:"min=0"`
	Timeout      time.Duration   `koanf:"timeout"       env:"EMBEDDING_TIMEOUT"`
	DocumentTask string          `koanf:"document_task" env:"EMBEDDING_DOCUMENT_TASK"`
	QueryTask    string          `koanf:"query_task"    env:"EMBEDDING_QUERY_TASK"`
}

// GenerationConfig configures answer synthesis.
type GenerationConfig struct {
	Provider        string          `koanf:"provider"          env:"GENERATION_PROVIDER"          validate:"oneof=googleai openai"`
	Model           string          `koanf:"model"             env:"GENERATION_MODEL"             validate:"required"`
	FallbackModels  []string        `koanf:"fallback_models"   env:"GENERATION_FALLBACK_MODELS"`
	APIKey          SensitiveString `koanf:"api_key"           env:"GENERATION_API_KEY"           sensitive:"true"`
	MaxOutputTokens int             `koanf:"max_output_tokens" env:"GENERATION_MAX_OUTPUT_TOKENS" validate:"min=1"`
	Temperature     float64         `koanf:"temperature"       env:"GENERATION_TEMPERATURE"       validate:"min=0,max=2"`
	Timeout         time.Duration   `koanf:"timeout"           env:"GENERATION_TIMEOUT"`
}

// RetrievalConfig configures hybrid ranking and prompt assembly.
type RetrievalConfig struct {
	TopK             int     `koanf:"top_k"              env:"RAG_TOP_K"              validate:"min=1,max=200"`
	MaxContextChars  int     `koanf:"max_context_chars"  env:"RAG_MAX_CONTEXT_CHARS"  validate:"min=1"`
	SemanticWeight   float64 `koanf:"semantic_weight"    env:"RAG_SEMANTIC_WEIGHT"    validate:"min=0,max=1"`
	LexicalWeight    float64 `koanf:"lexical_weight"     env:"RAG_LEXICAL_WEIGHT"     validate:"min=0,max=1"`
	TextSearchConfig string  `koanf:"text_search_config" env:"RAG_TEXT_SEARCH_CONFIG" validate:"required"`
	HNSWThreshold    int     `koanf:"hnsw_threshold"     env:"RAG_HNSW_THRESHOLD"     validate:"min=1"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	SampleSize    int `koanf:"sample_size"    env:"INGEST_SAMPLE_SIZE"    validate:"min=0"`
	RetryAttempts int `koanf:"retry_attempts" env:"INGEST_RETRY_ATTEMPTS" validate:"min=1,max=10"`
}

// CacheConfig enables a Redis backed embedding cache shared between runs.
type CacheConfig struct {
	RedisURL SensitiveString `koanf:"redis_url" env:"REDIS_URL"    sensitive:"true"`
	Prefix   string          `koanf:"prefix"    env:"CACHE_PREFIX"`
	TTL      time.Duration   `koanf:"ttl"       env:"CACHE_TTL"`
}

// RuntimeConfig contains process-wide behavior.
type RuntimeConfig struct {
	LogLevel string `koanf:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error disabled"`
	LogJSON  bool   `koanf:"log_json"  env:"LOG_JSON"`
	// MetricsFile receives a Prometheus text snapshot when the command exits.
	MetricsFile string `koanf:"metrics_file" env:"METRICS_FILE"`
}

// Service defines the configuration loading interface.
type Service interface {
	// Load loads configuration from the specified sources with precedence order.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks if the configuration meets all validation requirements.
	Validate(config *Config) error
	// GetSource returns which source provided a specific configuration key.
	GetSource(key string) SourceType
}

// Source defines the interface for configuration sources.
type Source interface {
	Load() (map[string]any, error)
	Type() SourceType
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceYAML    SourceType = "yaml"
	SourceEnv     SourceType = "env"
	SourceDefault SourceType = "default"
)

// SensitiveString hides its value from logs and JSON output.
type SensitiveString string

const redacted = "[REDACTED]"

func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the raw secret.
func (s SensitiveString) Value() string {
	return string(s)
}

func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Schema:         "public",
			Table:          "rag_chunks",
			MaxConns:       4,
			ConnectTimeout: 5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 160,
		},
		Embedder: EmbedderConfig{
			Provider:     "google",
			Model:        "gemini-embedding-001",
			Dimension:    768,
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			BatchSize:    100,
			Concurrency:  2,
			CacheSize:    512,
			Timeout:      30 * time.Second,
			DocumentTask: "RETRIEVAL_DOCUMENT",
			QueryTask:    "QUESTION_ANSWERING",
		},
		Generation: GenerationConfig{
			Provider:        "googleai",
			Model:           "gemini-2.0-flash",
			FallbackModels:  []string{"gemini-1.5-flash", "gemini-1.5-flash-8b"},
			MaxOutputTokens: 512,
			Temperature:     0.2,
			Timeout:         60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:             8,
			MaxContextChars:  12000,
			SemanticWeight:   0.85,
			LexicalWeight:    0.15,
			TextSearchConfig: "english",
			HNSWThreshold:    2000,
		},
		Ingest: IngestConfig{
			SampleSize:    10,
			RetryAttempts: 3,
		},
		Cache: CacheConfig{
			Prefix: "docqa:",
			TTL:    30 * 24 * time.Hour,
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}

// Load loads configuration from defaults and the environment.
func Load(ctx context.Context) (*Config, error) {
	return NewService().Load(ctx, NewDefaultProvider(), NewEnvProvider())
}
