package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// openAIClient adapts a langchaingo embedder. OpenAI has no task types, so
// the intent only selects between document and query embedding calls.
type openAIClient struct {
	impl embeddings.Embedder
}

func newOpenAIClient(cfg *Config) (Client, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to initialize openai client: %w", cfg.ID, err)
	}
	impl, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: failed to construct openai embedder: %w", cfg.ID, err)
	}
	return &openAIClient{impl: impl}, nil
}

// WrapLangchain adapts any langchaingo embedder as a Client.
func WrapLangchain(impl embeddings.Embedder) Client {
	return &openAIClient{impl: impl}
}

func (c *openAIClient) EmbedBatch(ctx context.Context, texts []string, intent Intent, _ int) ([][]float32, error) {
	if intent == IntentQuery && len(texts) == 1 {
		vector, err := c.impl.EmbedQuery(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vector}, nil
	}
	return c.impl.EmbedDocuments(ctx, texts)
}
