package cli

import (
	"context"
	"errors"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/cache"
	"github.com/compozy/docqa/engine/infra/postgres"
	"github.com/compozy/docqa/engine/knowledge"
	"github.com/compozy/docqa/engine/knowledge/answer"
	"github.com/compozy/docqa/engine/knowledge/chunk"
	"github.com/compozy/docqa/engine/knowledge/configutil"
	"github.com/compozy/docqa/engine/knowledge/embedder"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/config"
	"github.com/compozy/docqa/pkg/logger"
)

var errNoConfig = errors.New("configuration not found in context")

// components holds the components a command needs. Close releases them.
type components struct {
	redis   *cache.Redis
	db      *postgres.Store
	store   vectordb.Store
	service *knowledge.Service
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, core.NewError(errNoConfig, core.ErrCodeConfiguration, nil)
	}
	return cfg, nil
}

func configurationError(err error) error {
	if err == nil {
		return nil
	}
	return core.NewError(err, core.ErrCodeConfiguration, nil)
}

// openStore connects to Postgres and binds the chunk table. Nothing touches
// the network before the DSN is known to be present.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, vectordb.Store, error) {
	if err := cfg.RequireStore(); err != nil {
		return nil, nil, configurationError(err)
	}
	db, err := postgres.NewStore(ctx, configutil.ToPostgresConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	store, err := vectordb.NewPGVector(db.Pool(), configutil.ToVectorStoreConfig(cfg))
	if err != nil {
		_ = db.Close(ctx)
		return nil, nil, err
	}
	return db, store, nil
}

// newComponents builds the knowledge service. withStore opens the chunk store;
// without it only Chat is usable.
func newComponents(ctx context.Context, cfg *config.Config, withStore bool) (*components, error) {
	if withStore {
		if err := cfg.RequireStore(); err != nil {
			return nil, configurationError(err)
		}
	}
	if err := cfg.RequireEmbedder(); err != nil {
		return nil, configurationError(err)
	}
	if err := cfg.RequireGeneration(); err != nil {
		return nil, configurationError(err)
	}
	chunker, err := chunk.NewProcessor(configutil.ToChunkSettings(cfg))
	if err != nil {
		return nil, configurationError(err)
	}
	embCfg, err := configutil.ToEmbedderAdapterConfig(cfg)
	if err != nil {
		return nil, configurationError(err)
	}
	emb, err := embedder.New(ctx, embCfg)
	if err != nil {
		return nil, err
	}
	rt := &components{}
	rt.attachSharedCache(ctx, cfg, emb)
	gen, err := answer.NewGenerator(ctx, configutil.ToGeneratorConfig(cfg))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	synth, err := answer.NewSynthesizer(gen, configutil.ToSynthesizerConfig(cfg))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if withStore {
		rt.db, rt.store, err = openStore(ctx, cfg)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}
	rt.service, err = knowledge.NewService(knowledge.Deps{
		Chunker:     chunker,
		Embedder:    emb,
		Store:       rt.store,
		Synthesizer: synth,
		Dimension:   cfg.Embedder.Dimension,
		Retrieval:   configutil.ToRetrieverOptions(cfg),
		Ingest:      configutil.ToIngestOptions(cfg),
	})
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	logger.FromContext(ctx).Debug(
		"Runtime ready",
		"embedding_model", embCfg.Model,
		"dimension", embCfg.Dimension,
		"models", synth.Candidates(),
		"store", withStore,
	)
	return rt, nil
}

// attachSharedCache wires the Redis embedding cache when configured. An
// unreachable server only costs cache hits.
func (r *components) attachSharedCache(ctx context.Context, cfg *config.Config, emb *embedder.Adapter) {
	cacheCfg := configutil.ToCacheConfig(cfg)
	if cacheCfg == nil {
		return
	}
	client, err := cache.NewRedis(ctx, cacheCfg)
	if err != nil {
		logger.FromContext(ctx).Warn("Shared embedding cache unavailable", "error", core.RedactError(err))
		return
	}
	r.redis = client
	emb.UseSharedCache(cache.NewVectorCache(client))
}

func (r *components) Close(ctx context.Context) {
	log := logger.FromContext(ctx)
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			log.Warn("Failed to close redis", "error", core.RedactError(err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(ctx); err != nil {
			log.Warn("Failed to close chunk store", "error", core.RedactError(err))
		}
	}
	if r.db != nil {
		if err := r.db.Close(ctx); err != nil {
			log.Warn("Failed to close database", "error", core.RedactError(err))
		}
	}
}
