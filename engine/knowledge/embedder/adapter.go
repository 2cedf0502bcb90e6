package embedder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/tokens"
	"github.com/compozy/docqa/pkg/logger"
)

// Adapter wraps a provider client with batching, caching, and dimension checks.
type Adapter struct {
	id        string
	provider  Provider
	model     string
	dimension int
	batchSize int
	client    Client
	cacheMu   sync.Mutex
	cache     *lru.Cache[string, []float32]
	shared    SharedCache
}

var (
	errMissingID        = errors.New("embedder id is required")
	errMissingProvider  = errors.New("embedder provider is required")
	errMissingModel     = errors.New("embedder model is required")
	errMissingAPIKey    = errors.New("embedder api key is required")
	errInvalidDimension = errors.New("embedder dimension must be greater than zero")
	errInvalidBatchSize = errors.New("embedder batch size must be greater than zero")
)

// New constructs a provider-backed embedder adapter.
func New(ctx context.Context, cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewError(
			fmt.Errorf("embedder %q: %w", cfg.ID, errMissingAPIKey),
			core.ErrCodeConfiguration,
			map[string]any{"provider": string(cfg.Provider)},
		)
	}
	client, err := buildProviderClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(cfg, client)
}

// Wrap constructs an adapter around an existing client.
func Wrap(cfg *Config, client Client) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if client == nil {
		return nil, fmt.Errorf("embedder %q: client is required", cfg.ID)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	a := &Adapter{
		id:        cfg.ID,
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		client:    client,
	}
	if cfg.CacheSize > 0 {
		if err := a.EnableCache(cfg.CacheSize); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Model returns the provider model id.
func (a *Adapter) Model() string {
	return a.model
}

// Dimension returns the configured vector dimension.
func (a *Adapter) Dimension() int {
	return a.dimension
}

// BatchSize returns the configured batch size.
func (a *Adapter) BatchSize() int {
	return a.batchSize
}

// EnableCache initializes an LRU cache for embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return fmt.Errorf("embedder %q: cache size must be greater than zero", a.id)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %q: init cache: %w", a.id, err)
	}
	a.cacheMu.Lock()
	a.cache = cache
	a.cacheMu.Unlock()
	return nil
}

// UseSharedCache consults c after the in-process cache and before the provider.
// Shared cache failures are logged and otherwise ignored.
func (a *Adapter) UseSharedCache(c SharedCache) {
	a.shared = c
}

// Embed returns one vector per text, in input order.
func (a *Adapter) Embed(ctx context.Context, texts []string, intent Intent, dimension int) ([][]float32, error) {
	if dimension <= 0 {
		return nil, core.NewError(
			fmt.Errorf("embedder %q: %w", a.id, errInvalidDimension),
			core.ErrCodeValidation,
			map[string]any{"dimension": dimension},
		)
	}
	if intent != IntentDocument && intent != IntentQuery {
		return nil, core.NewError(
			fmt.Errorf("embedder %q: unknown intent %q", a.id, intent),
			core.ErrCodeValidation,
			nil,
		)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	order := make([]string, 0, len(texts))
	hits := 0
	for i, text := range texts {
		if vector, ok := a.lookupCache(cacheKey(intent, dimension, text)); ok {
			results[i] = vector
			hits++
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	order, hits = a.fillFromShared(ctx, order, missing, results, intent, dimension, hits)
	recordCache(ctx, a.provider, hits, len(texts)-hits)
	fresh := make(map[string][]float32, len(order))
	for start := 0; start < len(order); start += a.batchSize {
		end := min(start+a.batchSize, len(order))
		batch := order[start:end]
		vectors, err := a.embedBatch(ctx, batch, intent, dimension)
		if err != nil {
			return nil, err
		}
		for i, text := range batch {
			for _, idx := range missing[text] {
				results[idx] = cloneVector(vectors[i])
			}
			key := cacheKey(intent, dimension, text)
			a.storeCache(key, vectors[i])
			fresh[key] = vectors[i]
		}
	}
	a.storeShared(ctx, fresh)
	return results, nil
}

// fillFromShared resolves pending texts from the shared cache and returns the
// texts still to embed.
func (a *Adapter) fillFromShared(
	ctx context.Context,
	order []string,
	missing map[string][]int,
	results [][]float32,
	intent Intent,
	dimension int,
	hits int,
) ([]string, int) {
	if a.shared == nil || len(order) == 0 {
		return order, hits
	}
	keys := make([]string, len(order))
	for i, text := range order {
		keys[i] = cacheKey(intent, dimension, text)
	}
	found, err := a.shared.GetVectors(ctx, keys)
	if err != nil {
		logger.FromContext(ctx).Warn("Shared embedding cache lookup failed", "embedder", a.id, "error", core.RedactError(err))
		return order, hits
	}
	pending := order[:0:0]
	for i, text := range order {
		vector, ok := found[keys[i]]
		if !ok || len(vector) != dimension {
			pending = append(pending, text)
			continue
		}
		for _, idx := range missing[text] {
			results[idx] = cloneVector(vector)
			hits++
		}
		a.storeCache(keys[i], vector)
	}
	return pending, hits
}

func (a *Adapter) storeShared(ctx context.Context, vectors map[string][]float32) {
	if a.shared == nil || len(vectors) == 0 {
		return
	}
	if err := a.shared.SetVectors(ctx, vectors); err != nil {
		logger.FromContext(ctx).Warn("Shared embedding cache write failed", "embedder", a.id, "error", core.RedactError(err))
	}
}

func (a *Adapter) embedBatch(ctx context.Context, batch []string, intent Intent, dimension int) ([][]float32, error) {
	start := time.Now()
	vectors, err := a.client.EmbedBatch(ctx, batch, intent, dimension)
	if err != nil {
		recordError(ctx, a.provider, a.model)
		return nil, a.serviceError(err, nil)
	}
	if len(vectors) != len(batch) {
		recordError(ctx, a.provider, a.model)
		return nil, a.serviceError(
			fmt.Errorf("received %d embeddings for %d texts", len(vectors), len(batch)),
			nil,
		)
	}
	for i := range vectors {
		if len(vectors[i]) != dimension {
			recordError(ctx, a.provider, a.model)
			return nil, a.serviceError(
				core.NewError(
					&DimensionError{Expected: dimension, Actual: len(vectors[i]), Index: i},
					core.ErrCodeDimensionMismatch,
					nil,
				),
				map[string]any{"expected": dimension, "actual": len(vectors[i])},
			)
		}
	}
	tokenCount := tokens.Estimate(ctx, a.model, batch...)
	recordRequest(ctx, a.provider, a.model, len(batch), tokenCount, time.Since(start))
	logger.FromContext(ctx).Debug(
		"Embedded batch",
		"embedder", a.id,
		"intent", string(intent),
		"texts", len(batch),
		"tokens_estimate", tokenCount,
		"duration", time.Since(start),
	)
	return vectors, nil
}

// DimensionError reports a provider vector whose width differs from the request.
type DimensionError struct {
	Expected int
	Actual   int
	Index    int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d at index %d", e.Expected, e.Actual, e.Index)
}

func (a *Adapter) serviceError(err error, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["embedder"] = a.id
	details["model"] = a.model
	return core.NewError(fmt.Errorf("embedder %q: %w", a.id, err), core.ErrCodeEmbeddingService, details)
}

func (a *Adapter) lookupCache(key string) ([]float32, bool) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil {
		return nil, false
	}
	value, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(value), true
}

func (a *Adapter) storeCache(key string, vector []float32) {
	if len(vector) == 0 {
		return
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache != nil {
		a.cache.Add(key, cloneVector(vector))
	}
}

func cacheKey(intent Intent, dimension int, text string) string {
	return string(intent) + "|" + strconv.Itoa(dimension) + "|" + core.ContentHash(text)
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.ID) == "" {
		return errMissingID
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingProvider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errMissingModel)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidDimension)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("embedder %q: %w", cfg.ID, errInvalidBatchSize)
	}
	return nil
}

func buildProviderClient(ctx context.Context, cfg *Config) (Client, error) {
	switch cfg.Provider {
	case ProviderGoogle:
		return newGoogleClient(ctx, cfg), nil
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, core.NewError(
			fmt.Errorf("embedder %q: provider %q is not supported", cfg.ID, cfg.Provider),
			core.ErrCodeConfiguration,
			nil,
		)
	}
}
