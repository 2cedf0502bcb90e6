package configutil

import (
	"errors"
	"strings"

	"github.com/compozy/docqa/engine/infra/cache"
	"github.com/compozy/docqa/engine/infra/postgres"
	"github.com/compozy/docqa/engine/knowledge/answer"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/ingest"
	"github.com/compozy/docqa/engine/knowledge/retriever"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/config"
)

const embedderID = "default"

var errNilConfig = errors.New("configuration is required")

func ToChunkSettings(cfg *config.Config) chunk.Settings {
	return chunk.Settings{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap}
}

func ToEmbedderAdapterConfig(cfg *config.Config) (*embedder.Config, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	e := &cfg.Embedder
	taskTypes := embedder.DefaultTaskTypes()
	if task := strings.TrimSpace(e.DocumentTask); task != "" {
		taskTypes[embedder.IntentDocument] = task
	}
	if task := strings.TrimSpace(e.QueryTask); task != "" {
		taskTypes[embedder.IntentQuery] = task
	}
	return &embedder.Config{
		ID:        embedderID,
		Provider:  embedder.Provider(strings.TrimSpace(e.Provider)),
		Model:     strings.TrimSpace(e.Model),
		APIKey:    strings.TrimSpace(e.APIKey.Value()),
		BaseURL:   strings.TrimSpace(e.BaseURL),
		Dimension: e.Dimension,
		BatchSize: e.BatchSize,
		CacheSize: e.CacheSize,
		Timeout:   e.Timeout,
		TaskTypes: taskTypes,
	}, nil
}

func ToPostgresConfig(cfg *config.Config) *postgres.Config {
	return &postgres.Config{
		ConnString:     cfg.Database.ConnString.Value(),
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		Label:          cfg.Database.Table,
	}
}

func ToVectorStoreConfig(cfg *config.Config) *vectordb.Config {
	return &vectordb.Config{
		Schema:           cfg.Database.Schema,
		Table:            cfg.Database.Table,
		Dimension:        cfg.Embedder.Dimension,
		TextSearchConfig: cfg.Retrieval.TextSearchConfig,
		HNSWThreshold:    cfg.Retrieval.HNSWThreshold,
		QueryTimeout:     cfg.Database.QueryTimeout,
	}
}

func ToRetrieverOptions(cfg *config.Config) retriever.Options {
	return retriever.Options{
		TopK:           cfg.Retrieval.TopK,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
	}
}

func ToGeneratorConfig(cfg *config.Config) *answer.GeneratorConfig {
	return &answer.GeneratorConfig{
		Provider:     answer.Provider(strings.TrimSpace(cfg.Generation.Provider)),
		APIKey:       cfg.GenerationAPIKey(),
		DefaultModel: cfg.Generation.Model,
	}
}

func ToSynthesizerConfig(cfg *config.Config) answer.Config {
	return answer.Config{
		Model:           cfg.Generation.Model,
		FallbackModels:  append([]string(nil), cfg.Generation.FallbackModels...),
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Temperature:     cfg.Generation.Temperature,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		Timeout:         cfg.Generation.Timeout,
	}
}

func ToIngestOptions(cfg *config.Config) ingest.Options {
	sample := cfg.Ingest.SampleSize
	if sample == 0 {
		sample = -1
	}
	return ingest.Options{
		EmbeddingModel: cfg.Embedder.Model,
		BatchSize:      cfg.Embedder.BatchSize,
		Concurrency:    cfg.Embedder.Concurrency,
		RetryAttempts:  cfg.Ingest.RetryAttempts,
		SampleSize:     sample,
	}
}

// ToCacheConfig returns nil when no shared cache is configured.
func ToCacheConfig(cfg *config.Config) *cache.Config {
	url := strings.TrimSpace(cfg.Cache.RedisURL.Value())
	if url == "" {
		return nil
	}
	return &cache.Config{URL: url, Prefix: cfg.Cache.Prefix, TTL: cfg.Cache.TTL}
}
