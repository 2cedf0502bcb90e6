package vectordb

import (
	"context"
	"fmt"
	"time"
)

// Record is a chunk ready to persist. len(Embedding) must equal the store dimension.
type Record struct {
	ID        string
	Text      string
	Hash      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls hybrid ranking.
type SearchOptions struct {
	TopK int
	// QueryText feeds the lexical term. Blank text disables it.
	QueryText      string
	SemanticWeight float64
	LexicalWeight  float64
}

// Match is a ranked retrieval result. It is never persisted.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Store is the chunk store contract shared by ingestion and retrieval.
type Store interface {
	EnsureSchema(ctx context.Context) error
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
	InsertIfNew(ctx context.Context, records []Record) (int, error)
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Count(ctx context.Context) (int64, error)
	Dimension() int
	Close(ctx context.Context) error
}

// Describer reports the physical layout of a store.
type Describer interface {
	Describe(ctx context.Context) (*SchemaInfo, error)
}

// IndexKind names the similarity index built over embeddings.
type IndexKind string

const (
	IndexIVFFlat IndexKind = "ivfflat"
	IndexHNSW    IndexKind = "hnsw"
	IndexNone    IndexKind = "none"
)

// SchemaInfo summarizes a reconciled store.
type SchemaInfo struct {
	Schema    string    `json:"schema"`
	Table     string    `json:"table"`
	Dimension int       `json:"dimension"`
	Index     IndexKind `json:"index"`
	Rows      int64     `json:"rows"`
}

// Config captures the chunk table layout.
type Config struct {
	Schema           string
	Table            string
	Dimension        int
	TextSearchConfig string
	// HNSWThreshold is the largest dimension served by an ivfflat index.
	HNSWThreshold int
	QueryTimeout  time.Duration
}

const (
	defaultSchema           = "public"
	defaultTable            = "rag_chunks"
	defaultTextSearchConfig = "english"
	defaultHNSWThreshold    = 2000
)

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Schema == "" {
		out.Schema = defaultSchema
	}
	if out.Table == "" {
		out.Table = defaultTable
	}
	if out.TextSearchConfig == "" {
		out.TextSearchConfig = defaultTextSearchConfig
	}
	if out.HNSWThreshold <= 0 {
		out.HNSWThreshold = defaultHNSWThreshold
	}
	return &out
}

// DimensionMismatchError reports a populated table whose embedding column
// width differs from the configured dimension.
type DimensionMismatchError struct {
	Table      string
	Current    int
	Configured int
	Rows       int64
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf(
		"table %s stores vector(%d) but %d is configured and the table holds %d rows; "+
			"re-ingest into a new table or restore the previous dimension",
		e.Table, e.Current, e.Configured, e.Rows,
	)
}
