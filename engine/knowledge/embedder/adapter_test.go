package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
)

type stubClient struct {
	mu      sync.Mutex
	calls   [][]string
	intents []Intent
	width   int
	err     error
}

func (s *stubClient) EmbedBatch(_ context.Context, texts []string, intent Intent, dimension int) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), texts...))
	s.intents = append(s.intents, intent)
	if s.err != nil {
		return nil, s.err
	}
	width := dimension
	if s.width > 0 {
		width = s.width
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, width)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	getErr  error
	writes  int
}

func (m *mapCache) GetVectors(_ context.Context, keys []string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string][]float32)
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mapCache) SetVectors(_ context.Context, vectors map[string][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string][]float32)
	}
	for k, v := range vectors {
		m.entries[k] = v
		m.writes++
	}
	return nil
}

func testConfig() *Config {
	return &Config{ID: "test", Provider: ProviderGoogle, Model: "m", Dimension: 3, BatchSize: 2}
}

func TestAdapter_Embed(t *testing.T) {
	ctx := context.Background()

	t.Run("Should preserve order across batches", func(t *testing.T) {
		client := &stubClient{}
		a, err := Wrap(testConfig(), client)
		require.NoError(t, err)
		vectors, err := a.Embed(ctx, []string{"a", "bb", "ccc", "dddd", "eeeee"}, IntentDocument, 3)
		require.NoError(t, err)
		require.Len(t, vectors, 5)
		for i, v := range vectors {
			assert.Len(t, v, 3)
			assert.Equal(t, float32(i+1), v[0])
		}
		assert.Len(t, client.calls, 3)
		assert.Equal(t, IntentDocument, client.intents[0])
	})

	t.Run("Should return empty result for no texts", func(t *testing.T) {
		client := &stubClient{}
		a, err := Wrap(testConfig(), client)
		require.NoError(t, err)
		vectors, err := a.Embed(ctx, nil, IntentQuery, 3)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Empty(t, client.calls)
	})

	t.Run("Should fail the whole call on a dimension mismatch", func(t *testing.T) {
		a, err := Wrap(testConfig(), &stubClient{width: 4})
		require.NoError(t, err)
		vectors, err := a.Embed(ctx, []string{"x", "y"}, IntentDocument, 3)
		require.Error(t, err)
		assert.Nil(t, vectors)
		assert.True(t, core.HasCode(err, core.ErrCodeEmbeddingService))
		assert.True(t, core.HasCode(err, core.ErrCodeDimensionMismatch))
		var dimErr *DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 4, dimErr.Actual)
	})

	t.Run("Should wrap provider failures as embedding service errors", func(t *testing.T) {
		cause := errors.New("quota exhausted")
		a, err := Wrap(testConfig(), &stubClient{err: cause})
		require.NoError(t, err)
		_, err = a.Embed(ctx, []string{"x"}, IntentQuery, 3)
		require.ErrorIs(t, err, cause)
		assert.Equal(t, core.ErrCodeEmbeddingService, core.CodeOf(err))
	})

	t.Run("Should reject invalid dimension and intent", func(t *testing.T) {
		a, err := Wrap(testConfig(), &stubClient{})
		require.NoError(t, err)
		_, err = a.Embed(ctx, []string{"x"}, IntentQuery, 0)
		assert.True(t, core.HasCode(err, core.ErrCodeValidation))
		_, err = a.Embed(ctx, []string{"x"}, Intent("other"), 3)
		assert.True(t, core.HasCode(err, core.ErrCodeValidation))
	})

	t.Run("Should serve repeated texts from the cache", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheSize = 8
		client := &stubClient{}
		a, err := Wrap(cfg, client)
		require.NoError(t, err)
		_, err = a.Embed(ctx, []string{"same", "same"}, IntentQuery, 3)
		require.NoError(t, err)
		second, err := a.Embed(ctx, []string{"same"}, IntentQuery, 3)
		require.NoError(t, err)
		assert.Len(t, client.calls, 1)
		assert.Equal(t, []string{"same"}, client.calls[0])
		assert.Equal(t, float32(4), second[0][0])
		second[0][0] = 99
		third, err := a.Embed(ctx, []string{"same"}, IntentQuery, 3)
		require.NoError(t, err)
		assert.Equal(t, float32(4), third[0][0])
	})

	t.Run("Should key the cache by intent", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheSize = 8
		client := &stubClient{}
		a, err := Wrap(cfg, client)
		require.NoError(t, err)
		_, err = a.Embed(ctx, []string{"q"}, IntentQuery, 3)
		require.NoError(t, err)
		_, err = a.Embed(ctx, []string{"q"}, IntentDocument, 3)
		require.NoError(t, err)
		assert.Len(t, client.calls, 2)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	t.Run("Should require an api key", func(t *testing.T) {
		_, err := New(context.Background(), testConfig())
		assert.True(t, core.HasCode(err, core.ErrCodeConfiguration))
	})
	t.Run("Should reject unknown providers", func(t *testing.T) {
		cfg := testConfig()
		cfg.Provider = "cohere"
		cfg.APIKey = "k"
		_, err := New(context.Background(), cfg)
		assert.True(t, core.HasCode(err, core.ErrCodeConfiguration))
	})
	t.Run("Should validate required fields", func(t *testing.T) {
		_, err := Wrap(&Config{Provider: ProviderGoogle}, &stubClient{})
		assert.ErrorIs(t, err, errMissingID)
		_, err = Wrap(&Config{ID: "x", Provider: ProviderGoogle, Model: "m", Dimension: 3}, &stubClient{})
		assert.ErrorIs(t, err, errInvalidBatchSize)
	})

	t.Run("Should share vectors across adapters through the shared cache", func(t *testing.T) {
		shared := &mapCache{}
		first, err := Wrap(testConfig(), &stubClient{})
		require.NoError(t, err)
		first.UseSharedCache(shared)
		_, err = first.Embed(ctx, []string{"alpha", "beta"}, IntentDocument, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, shared.writes)

		client := &stubClient{}
		second, err := Wrap(testConfig(), client)
		require.NoError(t, err)
		second.UseSharedCache(shared)
		vectors, err := second.Embed(ctx, []string{"beta", "gamma", "alpha"}, IntentDocument, 3)
		require.NoError(t, err)
		require.Len(t, client.calls, 1)
		assert.Equal(t, []string{"gamma"}, client.calls[0])
		assert.Equal(t, float32(4), vectors[0][0])
		assert.Equal(t, float32(5), vectors[1][0])
		assert.Equal(t, float32(5), vectors[2][0])
	})

	t.Run("Should fall back to the provider when the shared cache fails", func(t *testing.T) {
		client := &stubClient{}
		a, err := Wrap(testConfig(), client)
		require.NoError(t, err)
		a.UseSharedCache(&mapCache{getErr: errors.New("redis down")})
		vectors, err := a.Embed(ctx, []string{"alpha"}, IntentQuery, 3)
		require.NoError(t, err)
		assert.Len(t, client.calls, 1)
		assert.Equal(t, float32(5), vectors[0][0])
	})
}
