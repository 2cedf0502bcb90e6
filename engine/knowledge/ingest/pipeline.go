package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

// Pipeline chunks a document, skips content already stored, embeds the rest,
// and persists it.
type Pipeline struct {
	chunker  *chunk.Processor
	embedder embedder.Embedder
	store    vectordb.Store
	options  Options
}

// Result summarizes one ingestion run.
type Result struct {
	RunID              core.ID  `json:"run_id"`
	Source             string   `json:"source,omitempty"`
	ChunksTotal        int      `json:"chunks_total"`
	ChunksInserted     int      `json:"chunks_inserted"`
	DuplicatesTotal    int      `json:"duplicates_total"`
	EmbeddingModel     string   `json:"embedding_model"`
	EmbeddingDimension int      `json:"embedding_dimension"`
	SampleIDs          []string `json:"sample_ids"`
}

func NewPipeline(
	chunker *chunk.Processor,
	emb embedder.Embedder,
	store vectordb.Store,
	opts Options,
) (*Pipeline, error) {
	if chunker == nil {
		return nil, errors.New("ingest: chunker is required")
	}
	if emb == nil {
		return nil, errors.New("ingest: embedder implementation is required")
	}
	if store == nil {
		return nil, errors.New("ingest: chunk store is required")
	}
	return &Pipeline{chunker: chunker, embedder: emb, store: store, options: opts.withDefaults()}, nil
}

// Run ingests doc. Schema problems abort before any chunk is embedded; chunks
// whose content hash is already stored are counted as duplicates.
func (p *Pipeline) Run(ctx context.Context, doc chunk.Document) (*Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, core.NewError(errors.New("ingest: document text is required"), core.ErrCodeValidation, nil)
	}
	runID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := logger.FromContext(ctx).With("run_id", runID.String(), "source", doc.Source)
	result := &Result{
		RunID:              runID,
		Source:             doc.Source,
		EmbeddingModel:     p.options.EmbeddingModel,
		EmbeddingDimension: p.store.Dimension(),
		SampleIDs:          []string{},
	}
	if err := p.store.EnsureSchema(ctx); err != nil {
		recordFailure(ctx, "schema")
		return nil, err
	}
	chunks, err := p.chunker.Process([]chunk.Document{doc})
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeValidation, nil)
	}
	result.ChunksTotal = len(chunks)
	fresh, err := p.freshChunks(ctx, chunks)
	if err != nil {
		recordFailure(ctx, "lookup")
		return nil, err
	}
	log.Debug("Chunks prepared", "chunks", len(chunks), "new", len(fresh))
	if len(fresh) > 0 {
		vectors, err := p.embed(ctx, fresh)
		if err != nil {
			recordFailure(ctx, "embed")
			return nil, err
		}
		records := buildRecords(fresh, vectors)
		inserted, err := p.store.InsertIfNew(ctx, records)
		if err != nil {
			recordFailure(ctx, "insert")
			return nil, err
		}
		result.ChunksInserted = inserted
		for i := 0; i < len(records) && i < p.options.SampleSize; i++ {
			result.SampleIDs = append(result.SampleIDs, records[i].ID)
		}
	}
	result.DuplicatesTotal = result.ChunksTotal - result.ChunksInserted
	recordRun(ctx, time.Since(start), result.ChunksInserted, result.DuplicatesTotal)
	log.Info(
		"Ingestion completed",
		"chunks_total", result.ChunksTotal,
		"chunks_inserted", result.ChunksInserted,
		"duplicates_total", result.DuplicatesTotal,
		"duration", time.Since(start),
	)
	return result, nil
}

// freshChunks drops chunks whose hash is stored or repeated earlier in chunks.
func (p *Pipeline) freshChunks(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	hashes := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		if _, ok := seen[chunks[i].Hash]; ok {
			continue
		}
		seen[chunks[i].Hash] = struct{}{}
		hashes = append(hashes, chunks[i].Hash)
	}
	existing, err := p.store.ExistingHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}
	fresh := make([]chunk.Chunk, 0, len(hashes))
	for i := range chunks {
		h := chunks[i].Hash
		if _, stored := existing[h]; stored {
			continue
		}
		existing[h] = struct{}{}
		fresh = append(fresh, chunks[i])
	}
	return fresh, nil
}

// embed splits chunks into batches embedded in parallel; vectors keep chunk order.
func (p *Pipeline) embed(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	dimension := p.store.Dimension()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.options.Concurrency)
	for start := 0; start < len(chunks); start += p.options.BatchSize {
		end := min(start+p.options.BatchSize, len(chunks))
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}
		offset := start
		g.Go(func() error {
			out, err := p.embedBatch(gctx, texts, dimension)
			if err != nil {
				return err
			}
			copy(vectors[offset:], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) embedBatch(ctx context.Context, texts []string, dimension int) ([][]float32, error) {
	recordBatch(ctx, len(texts))
	backoff := retry.WithMaxRetries(
		uint64(p.options.RetryAttempts-1), // #nosec G115 -- attempts defaulted positive
		retry.NewExponential(p.options.RetryBackoff),
	)
	var out [][]float32
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		vectors, err := p.embedder.Embed(ctx, texts, embedder.IntentDocument, dimension)
		if err != nil {
			if retryable(err) {
				logger.FromContext(ctx).Warn("Embedding batch failed; retrying", "error", core.RedactError(err))
				return retry.RetryableError(err)
			}
			return err
		}
		if len(vectors) != len(texts) {
			return core.NewError(
				fmt.Errorf("ingest: embedder returned %d vectors for %d chunks", len(vectors), len(texts)),
				core.ErrCodeEmbeddingService,
				nil,
			)
		}
		out = vectors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retryable reports transient embedding failures. Width mismatches and
// configuration problems repeat on every attempt.
func retryable(err error) bool {
	if core.HasCode(err, core.ErrCodeDimensionMismatch) || core.HasCode(err, core.ErrCodeConfiguration) {
		return false
	}
	return core.HasCode(err, core.ErrCodeEmbeddingService)
}

func buildRecords(chunks []chunk.Chunk, vectors [][]float32) []vectordb.Record {
	records := make([]vectordb.Record, len(chunks))
	for i := range chunks {
		records[i] = vectordb.Record{
			ID:        chunks[i].ID,
			Text:      chunks[i].Text,
			Hash:      chunks[i].Hash,
			Embedding: vectors[i],
			Metadata:  core.CloneMap(chunks[i].Metadata),
		}
	}
	return records
}
