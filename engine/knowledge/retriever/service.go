package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

const (
	DefaultTopK           = 8
	DefaultSemanticWeight = 0.85
	DefaultLexicalWeight  = 0.15
)

// Options sets the ranking defaults applied to every retrieval.
type Options struct {
	TopK           int
	SemanticWeight float64
	LexicalWeight  float64
}

// DefaultOptions returns the 0.85/0.15 hybrid weighting with top 8.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, SemanticWeight: DefaultSemanticWeight, LexicalWeight: DefaultLexicalWeight}
}

type Service struct {
	embedder embedder.Embedder
	store    vectordb.Store
	opts     Options
	tracer   trace.Tracer
}

func NewService(emb embedder.Embedder, store vectordb.Store, opts Options) (*Service, error) {
	if emb == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if store == nil {
		return nil, errors.New("retriever: chunk store is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		embedder: emb,
		store:    store,
		opts:     opts,
		tracer:   otel.Tracer("docqa.knowledge.retriever"),
	}, nil
}

// Validate rejects negative weights and a zero pair.
func (o Options) Validate() error {
	if o.SemanticWeight < 0 || o.LexicalWeight < 0 {
		return core.NewError(
			errors.New("retriever: ranking weights must be non-negative"),
			core.ErrCodeConfiguration,
			nil,
		)
	}
	if o.SemanticWeight == 0 && o.LexicalWeight == 0 {
		return core.NewError(
			errors.New("retriever: semantic and lexical weights cannot both be zero"),
			core.ErrCodeConfiguration,
			nil,
		)
	}
	return nil
}

// Options returns the effective ranking options.
func (s *Service) Options() Options {
	return s.opts
}

// Retrieve ranks stored chunks against question. A non-positive topK uses the
// configured default. An empty store yields an empty slice.
func (s *Service) Retrieve(ctx context.Context, question string, topK int) (matches []vectordb.Match, err error) {
	if strings.TrimSpace(question) == "" {
		return nil, core.NewError(errors.New("retriever: question is required"), core.ErrCodeValidation, nil)
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.retrieve", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("dimension", s.store.Dimension()),
	))
	defer s.finishRetrieve(ctx, span, start, &matches, &err)

	vector, err := s.embedQuery(ctx, question)
	if err != nil {
		return nil, err
	}
	matches, err = s.search(ctx, vector, vectordb.SearchOptions{
		TopK:           topK,
		QueryText:      question,
		SemanticWeight: s.opts.SemanticWeight,
		LexicalWeight:  s.opts.LexicalWeight,
	})
	if err != nil {
		return nil, err
	}
	vectordb.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Service) embedQuery(ctx context.Context, question string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.embed_query")
	defer span.End()
	vectors, err := s.embedder.Embed(spanCtx, []string{question}, embedder.IntentQuery, s.store.Dimension())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(vectors) != 1 {
		err := core.NewError(
			fmt.Errorf("retriever: expected one query embedding, got %d", len(vectors)),
			core.ErrCodeEmbeddingService,
			nil,
		)
		span.RecordError(err)
		return nil, err
	}
	return vectors[0], nil
}

func (s *Service) search(ctx context.Context, vector []float32, opts vectordb.SearchOptions) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "docqa.knowledge.retriever.hybrid_search", trace.WithAttributes(
		attribute.Int("top_k", opts.TopK),
		attribute.Float64("semantic_weight", opts.SemanticWeight),
		attribute.Float64("lexical_weight", opts.LexicalWeight),
	))
	defer span.End()
	matches, err := s.store.Search(spanCtx, vector, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if matches == nil {
		matches = []vectordb.Match{}
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Service) finishRetrieve(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	matches *[]vectordb.Match,
	runErr *error,
) {
	seconds := time.Since(start).Seconds()
	log := logger.FromContext(ctx)
	if runErr != nil && *runErr != nil {
		err := *runErr
		log.Error("Retrieval failed", "error", core.RedactError(err), "duration_seconds", seconds)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	total := 0
	if matches != nil {
		total = len(*matches)
	}
	log.Info("Retrieval finished", "results", total, "duration_seconds", seconds)
	span.SetAttributes(attribute.Int("results", total))
	span.End()
}
