package embedder

import (
	"context"
	"time"
)

// Intent tells the provider what the vector will be used for.
type Intent string

const (
	IntentDocument Intent = "document"
	IntentQuery    Intent = "query"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// Embedder converts texts to vectors of the requested dimension.
// Output order matches input order. Any vector whose length differs from
// dimension fails the whole call.
type Embedder interface {
	Embed(ctx context.Context, texts []string, intent Intent, dimension int) ([][]float32, error)
}

// Client embeds a single provider sized batch.
type Client interface {
	EmbedBatch(ctx context.Context, texts []string, intent Intent, dimension int) ([][]float32, error)
}

// SharedCache persists vectors across processes. Keys absent from the
// returned map are misses.
type SharedCache interface {
	GetVectors(ctx context.Context, keys []string) (map[string][]float32, error)
	SetVectors(ctx context.Context, vectors map[string][]float32) error
}

// Config describes an embedding backend.
type Config struct {
	ID        string
	Provider  Provider
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	BatchSize int
	CacheSize int
	Timeout   time.Duration
	// TaskTypes maps intents to provider task names.
	TaskTypes map[Intent]string
}

// DefaultTaskTypes are the Gemini task types used when none are configured.
func DefaultTaskTypes() map[Intent]string {
	return map[Intent]string{
		IntentDocument: "RETRIEVAL_DOCUMENT",
		IntentQuery:    "QUESTION_ANSWERING",
	}
}
