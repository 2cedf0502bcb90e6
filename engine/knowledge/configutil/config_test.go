package configutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/pkg/config"
)

func TestToEmbedderAdapterConfig(t *testing.T) {
	t.Run("Should map provider settings and task overrides", func(t *testing.T) {
		cfg := config.Default()
		cfg.Embedder.APIKey = " key "
		cfg.Embedder.QueryTask = "RETRIEVAL_QUERY"
		cfg.Embedder.Timeout = 5 * time.Second
		out, err := ToEmbedderAdapterConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, embedder.ProviderGoogle, out.Provider)
		assert.Equal(t, "key", out.APIKey)
		assert.Equal(t, 768, out.Dimension)
		assert.Equal(t, "RETRIEVAL_DOCUMENT", out.TaskTypes[embedder.IntentDocument])
		assert.Equal(t, "RETRIEVAL_QUERY", out.TaskTypes[embedder.IntentQuery])
		assert.Equal(t, 5*time.Second, out.Timeout)
	})

	t.Run("Should reject a nil configuration", func(t *testing.T) {
		_, err := ToEmbedderAdapterConfig(nil)
		require.Error(t, err)
	})
}

func TestComponentConfigs(t *testing.T) {
	t.Run("Should carry store, retrieval, and generation settings", func(t *testing.T) {
		cfg := config.Default()
		cfg.Database.Table = "manual_chunks"
		cfg.Embedder.APIKey = "shared"
		store := ToVectorStoreConfig(cfg)
		assert.Equal(t, "manual_chunks", store.Table)
		assert.Equal(t, cfg.Embedder.Dimension, store.Dimension)
		assert.Equal(t, "english", store.TextSearchConfig)
		opts := ToRetrieverOptions(cfg)
		assert.InDelta(t, 0.85, opts.SemanticWeight, 1e-9)
		assert.Equal(t, "shared", ToGeneratorConfig(cfg).APIKey)
		synth := ToSynthesizerConfig(cfg)
		assert.Equal(t, cfg.Generation.Model, synth.Model)
		assert.Equal(t, cfg.Retrieval.MaxContextChars, synth.MaxContextChars)
	})

	t.Run("Should disable samples when the size is zero", func(t *testing.T) {
		cfg := config.Default()
		cfg.Ingest.SampleSize = 0
		assert.Negative(t, ToIngestOptions(cfg).SampleSize)
		cfg.Ingest.SampleSize = 5
		assert.Equal(t, 5, ToIngestOptions(cfg).SampleSize)
	})
}

func TestToCacheConfig(t *testing.T) {
	t.Run("Should stay disabled without a redis url", func(t *testing.T) {
		assert.Nil(t, ToCacheConfig(config.Default()))
	})

	t.Run("Should carry prefix and ttl", func(t *testing.T) {
		cfg := config.Default()
		cfg.Cache.RedisURL = "redis://localhost:6379/1"
		out := ToCacheConfig(cfg)
		require.NotNil(t, out)
		assert.Equal(t, "redis://localhost:6379/1", out.URL)
		assert.Equal(t, "docqa:", out.Prefix)
		assert.Equal(t, 30*24*time.Hour, out.TTL)
	})
}
