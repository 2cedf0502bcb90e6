package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/answer"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/ingest"
	"github.com/compozy/docqa/engine/knowledge/retriever"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

const (
	modeStored    = "stored"
	modeEphemeral = "ephemeral"
	chatSource    = "chat"
)

// Citation identifies a retrieved chunk backing an answer.
type Citation struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// QueryResult is the answer to a question plus the chunks it was built from.
type QueryResult struct {
	Answer    string           `json:"answer"`
	Citations []Citation       `json:"citations"`
	Model     string           `json:"model,omitempty"`
	Attempts  []answer.Attempt `json:"attempts,omitempty"`
}

// Deps wires the knowledge service. Store may be nil when only Chat is used.
type Deps struct {
	Chunker     *chunk.Processor
	Embedder    embedder.Embedder
	Store       vectordb.Store
	Synthesizer *answer.Synthesizer
	// Dimension is the embedding width used when Store is nil.
	Dimension int
	Retrieval retriever.Options
	Ingest    ingest.Options
}

type Service struct {
	chunker     *chunk.Processor
	embedder    embedder.Embedder
	store       vectordb.Store
	synthesizer *answer.Synthesizer
	dimension   int
	retrieval   retriever.Options
	pipeline    *ingest.Pipeline
	retriever   *retriever.Service
}

func NewService(deps Deps) (*Service, error) {
	if deps.Chunker == nil {
		return nil, errors.New("knowledge: chunker is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("knowledge: synthesizer is required")
	}
	s := &Service{
		chunker:     deps.Chunker,
		embedder:    deps.Embedder,
		store:       deps.Store,
		synthesizer: deps.Synthesizer,
		dimension:   deps.Dimension,
		retrieval:   deps.Retrieval,
	}
	if deps.Store == nil {
		if deps.Dimension <= 0 {
			return nil, core.NewError(
				errors.New("knowledge: embedding dimension must be positive"),
				core.ErrCodeConfiguration,
				nil,
			)
		}
		if err := deps.Retrieval.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.dimension = deps.Store.Dimension()
	pipeline, err := ingest.NewPipeline(deps.Chunker, deps.Embedder, deps.Store, deps.Ingest)
	if err != nil {
		return nil, err
	}
	ret, err := retriever.NewService(deps.Embedder, deps.Store, deps.Retrieval)
	if err != nil {
		return nil, err
	}
	s.pipeline = pipeline
	s.retriever = ret
	return s, nil
}

func (s *Service) requireStore() error {
	if s.store == nil {
		return core.NewError(
			errors.New("knowledge: chunk store is not configured"),
			core.ErrCodeConfiguration,
			nil,
		)
	}
	return nil
}

// Ingest persists doc into the chunk store.
func (s *Service) Ingest(ctx context.Context, doc chunk.Document) (*ingest.Result, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.pipeline.Run(ctx, doc)
}

// Query answers question from the stored chunks. Citations list every
// retrieved chunk in rank order.
func (s *Service) Query(ctx context.Context, question string, topK int) (*QueryResult, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	start := time.Now()
	matches, err := s.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	result := s.answer(ctx, modeStored, question, matches)
	RecordQueryLatency(ctx, modeStored, time.Since(start))
	return result, nil
}

// Chat answers question from text alone. Nothing is persisted.
func (s *Service) Chat(ctx context.Context, question string, text string) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, core.NewError(errors.New("knowledge: question is required"), core.ErrCodeValidation, nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.NewError(errors.New("knowledge: text is required"), core.ErrCodeValidation, nil)
	}
	start := time.Now()
	store, err := vectordb.NewMemory(s.dimension)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = store.Close(ctx)
	}()
	pipeline, err := ingest.NewPipeline(s.chunker, s.embedder, store, ingest.Options{SampleSize: -1})
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, chunk.Document{Source: chatSource, Text: text})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("Indexed chat text", "chunks", res.ChunksInserted)
	ret, err := retriever.NewService(s.embedder, store, s.retrieval)
	if err != nil {
		return nil, err
	}
	matches, err := ret.Retrieve(ctx, question, 0)
	if err != nil {
		return nil, err
	}
	result := s.answer(ctx, modeEphemeral, question, matches)
	RecordQueryLatency(ctx, modeEphemeral, time.Since(start))
	return result, nil
}

// Schema reconciles the chunk table and reports its layout.
func (s *Service) Schema(ctx context.Context) (*vectordb.SchemaInfo, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return DescribeStore(ctx, s.store)
}

// DescribeStore runs EnsureSchema on store and reports its layout. Stores that
// cannot describe themselves report only dimension and row count.
func DescribeStore(ctx context.Context, store vectordb.Store) (*vectordb.SchemaInfo, error) {
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if describer, ok := store.(vectordb.Describer); ok {
		return describer.Describe(ctx)
	}
	rows, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &vectordb.SchemaInfo{Dimension: store.Dimension(), Index: vectordb.IndexNone, Rows: rows}, nil
}

func (s *Service) answer(ctx context.Context, mode string, question string, matches []vectordb.Match) *QueryResult {
	if len(matches) == 0 {
		RecordRetrievalEmpty(ctx, mode)
	}
	res := s.synthesizer.Answer(ctx, question, matches)
	RecordAnswer(ctx, mode, res.Found)
	return &QueryResult{
		Answer:    res.Answer,
		Citations: citations(matches),
		Model:     res.Model,
		Attempts:  res.Attempts,
	}
}

func citations(matches []vectordb.Match) []Citation {
	out := make([]Citation, len(matches))
	for i := range matches {
		out[i] = Citation{
			ID:       matches[i].ID,
			Metadata: core.CloneMap(matches[i].Metadata),
			Score:    matches[i].Score,
		}
	}
	return out
}
