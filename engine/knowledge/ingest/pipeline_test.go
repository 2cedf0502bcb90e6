package ingest_test

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/ingest"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

const dimension = 4

type hashEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures []error
	intents  []embedder.Intent
}

func textVector(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{float32(sum & 0xff), float32(sum >> 8 & 0xff), float32(sum >> 16 & 0xff), 1}
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string, intent embedder.Intent, dim int) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.intents = append(e.intents, intent)
	if len(e.failures) > 0 {
		err := e.failures[0]
		e.failures = e.failures[1:]
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := textVector(text)
		out[i] = v[:dim]
	}
	return out, nil
}

type recordingStore struct {
	vectordb.Store
	mu       sync.Mutex
	inserted []vectordb.Record
}

func (s *recordingStore) InsertIfNew(ctx context.Context, records []vectordb.Record) (int, error) {
	s.mu.Lock()
	s.inserted = append(s.inserted, records...)
	s.mu.Unlock()
	return s.Store.InsertIfNew(ctx, records)
}

type brokenSchemaStore struct {
	vectordb.Store
}

func (brokenSchemaStore) EnsureSchema(context.Context) error {
	return core.NewError(errors.New("extension vector is not available"), core.ErrCodeSchema, nil)
}

func testContext() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewForTests())
}

func newPipeline(t *testing.T, emb embedder.Embedder, store vectordb.Store, opts ingest.Options) *ingest.Pipeline {
	t.Helper()
	chunker, err := chunk.NewProcessor(chunk.Settings{Size: 4, Overlap: 1})
	require.NoError(t, err)
	opts.RetryBackoff = time.Millisecond
	pipeline, err := ingest.NewPipeline(chunker, emb, store, opts)
	require.NoError(t, err)
	return pipeline
}

func memoryStore(t *testing.T) vectordb.Store {
	t.Helper()
	store, err := vectordb.NewMemory(dimension)
	require.NoError(t, err)
	return store
}

var doc = chunk.Document{Source: "letters.txt", Text: "a b c d e f g h i j"}

func TestPipeline_Run(t *testing.T) {
	t.Run("Should insert once and count duplicates on re-ingest", func(t *testing.T) {
		store := memoryStore(t)
		emb := &hashEmbedder{}
		pipeline := newPipeline(t, emb, store, ingest.Options{EmbeddingModel: "test-embed"})

		first, err := pipeline.Run(testContext(), doc)
		require.NoError(t, err)
		assert.Equal(t, 3, first.ChunksTotal)
		assert.Equal(t, 3, first.ChunksInserted)
		assert.Equal(t, 0, first.DuplicatesTotal)
		assert.Equal(t, "test-embed", first.EmbeddingModel)
		assert.Equal(t, dimension, first.EmbeddingDimension)
		assert.Len(t, first.SampleIDs, 3)
		assert.False(t, first.RunID.IsZero())

		second, err := pipeline.Run(testContext(), doc)
		require.NoError(t, err)
		assert.Equal(t, 3, second.ChunksTotal)
		assert.Equal(t, 0, second.ChunksInserted)
		assert.Equal(t, 3, second.DuplicatesTotal)
		assert.Empty(t, second.SampleIDs)
		assert.Equal(t, 1, emb.calls)

		count, err := store.Count(testContext())
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
		assert.Equal(t, []embedder.Intent{embedder.IntentDocument}, emb.intents)
	})

	t.Run("Should keep vectors aligned with chunks across parallel batches", func(t *testing.T) {
		store := &recordingStore{Store: memoryStore(t)}
		pipeline := newPipeline(t, &hashEmbedder{}, store, ingest.Options{BatchSize: 1, Concurrency: 3})
		result, err := pipeline.Run(testContext(), doc)
		require.NoError(t, err)
		require.Len(t, store.inserted, 3)
		assert.Equal(t, 3, result.ChunksInserted)
		for _, rec := range store.inserted {
			assert.Equal(t, textVector(rec.Text), rec.Embedding)
			assert.Equal(t, core.ContentHash(rec.Text), rec.Hash)
			assert.Equal(t, "letters.txt", rec.Metadata[chunk.MetaSource])
		}
		assert.Equal(t, "a b c d", store.inserted[0].Text)
		assert.Equal(t, "g h i j", store.inserted[2].Text)
	})

	t.Run("Should cap sample ids", func(t *testing.T) {
		pipeline := newPipeline(t, &hashEmbedder{}, memoryStore(t), ingest.Options{SampleSize: 2})
		result, err := pipeline.Run(testContext(), doc)
		require.NoError(t, err)
		assert.Len(t, result.SampleIDs, 2)
	})

	t.Run("Should retry transient embedding failures", func(t *testing.T) {
		emb := &hashEmbedder{failures: []error{
			core.NewError(errors.New("503"), core.ErrCodeEmbeddingService, nil),
		}}
		pipeline := newPipeline(t, emb, memoryStore(t), ingest.Options{RetryAttempts: 2})
		result, err := pipeline.Run(testContext(), doc)
		require.NoError(t, err)
		assert.Equal(t, 3, result.ChunksInserted)
		assert.Equal(t, 2, emb.calls)
	})

	t.Run("Should not retry dimension mismatches", func(t *testing.T) {
		mismatch := core.NewError(
			core.NewError(errors.New("width 3"), core.ErrCodeDimensionMismatch, nil),
			core.ErrCodeEmbeddingService,
			nil,
		)
		emb := &hashEmbedder{failures: []error{mismatch, mismatch, mismatch}}
		store := memoryStore(t)
		pipeline := newPipeline(t, emb, store, ingest.Options{RetryAttempts: 3})
		_, err := pipeline.Run(testContext(), doc)
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeEmbeddingService))
		assert.Equal(t, 1, emb.calls)
		count, err := store.Count(testContext())
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("Should abort before embedding on schema errors", func(t *testing.T) {
		emb := &hashEmbedder{}
		pipeline := newPipeline(t, emb, brokenSchemaStore{Store: memoryStore(t)}, ingest.Options{})
		_, err := pipeline.Run(testContext(), doc)
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeSchema))
		assert.Zero(t, emb.calls)
	})

	t.Run("Should reject blank documents", func(t *testing.T) {
		pipeline := newPipeline(t, &hashEmbedder{}, memoryStore(t), ingest.Options{})
		_, err := pipeline.Run(testContext(), chunk.Document{Text: " \n\t "})
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeValidation))
	})

	t.Run("Should count repeated windows within one document once", func(t *testing.T) {
		store := memoryStore(t)
		pipeline := newPipeline(t, &hashEmbedder{}, store, ingest.Options{})
		result, err := pipeline.Run(testContext(), chunk.Document{Text: "a b c a b c a b c a b c a"})
		require.NoError(t, err)
		count, err := store.Count(testContext())
		require.NoError(t, err)
		assert.Equal(t, int64(result.ChunksInserted), count)
		assert.Equal(t, result.ChunksTotal, result.ChunksInserted+result.DuplicatesTotal)
		assert.Equal(t, 4, result.ChunksTotal)
		assert.Equal(t, 1, result.ChunksInserted)
	})
}
