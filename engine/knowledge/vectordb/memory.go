package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/compozy/docqa/engine/core"
)

// memoryStore keeps records in process. It mirrors the Postgres store
// semantics: fixed dimension, unique content hashes, hybrid ranking.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   []Record
	hashes    map[string]struct{}
}

func newMemoryStore(dimension int) *memoryStore {
	return &memoryStore{dimension: dimension, hashes: make(map[string]struct{})}
}

func (m *memoryStore) EnsureSchema(context.Context) error {
	return nil
}

func (m *memoryStore) Dimension() int {
	return m.dimension
}

func (m *memoryStore) ExistingHashes(_ context.Context, hashes []string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := m.hashes[h]; ok {
			found[h] = struct{}{}
		}
	}
	return found, nil
}

func (m *memoryStore) InsertIfNew(_ context.Context, records []Record) (int, error) {
	for i := range records {
		if err := checkRecord(&records[i], m.dimension); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for i := range records {
		rec := records[i]
		if _, ok := m.hashes[rec.Hash]; ok {
			continue
		}
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		rec.Metadata = core.CloneMap(rec.Metadata)
		m.records = append(m.records, rec)
		m.hashes[rec.Hash] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (m *memoryStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != m.dimension {
		return nil, core.NewError(
			fmt.Errorf("vectordb: query has %d dimensions, store expects %d", len(query), m.dimension),
			core.ErrCodeDimensionMismatch,
			nil,
		)
	}
	if opts.TopK <= 0 {
		return []Match{}, nil
	}
	start := time.Now()
	var terms []string
	if opts.LexicalWeight != 0 {
		terms = lexicalTerms(opts.QueryText)
	}
	m.mu.RLock()
	results := make([]Match, 0, len(m.records))
	for i := range m.records {
		rec := &m.records[i]
		score := opts.SemanticWeight * (1.0 / (1.0 + cosineDistance(query, rec.Embedding)))
		if len(terms) > 0 {
			score += opts.LexicalWeight * lexicalRank(terms, rec.Text)
		}
		results = append(results, Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: core.CloneMap(rec.Metadata),
		})
	}
	m.mu.RUnlock()
	SortMatches(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	recordSearch(ctx, "memory", opts.TopK, time.Since(start), results)
	return results, nil
}

func (m *memoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *memoryStore) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.hashes = make(map[string]struct{})
	return nil
}

// SortMatches orders by descending score, then ascending id.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// cosineDistance matches pgvector's <=> operator. Zero vectors sit at distance 1.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func lexicalTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// lexicalRank is the fraction of query terms present in text, in [0, 1].
func lexicalRank(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, t := range lexicalTerms(text) {
		present[t] = struct{}{}
	}
	hits := 0
	for _, t := range terms {
		if _, ok := present[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
