package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/postgres"
	"github.com/compozy/docqa/pkg/logger"
)

var (
	psql            = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	vectorTypeRegex = regexp.MustCompile(`^vector(?:\((\d+)\))?$`)
)

type pgStore struct {
	db           postgres.DB
	schema       string
	table        string
	tableIdent   string
	dimension    int
	tsConfig     string
	hnswAbove    int
	queryTimeout time.Duration
}

type searchRow struct {
	ID       string  `db:"id"`
	Content  string  `db:"content"`
	Metadata []byte  `db:"metadata"`
	Score    float64 `db:"score"`
}

func newPGStore(db postgres.DB, cfg *Config) *pgStore {
	return &pgStore{
		db:           db,
		schema:       cfg.Schema,
		table:        cfg.Table,
		tableIdent:   pgx.Identifier{cfg.Schema, cfg.Table}.Sanitize(),
		dimension:    cfg.Dimension,
		tsConfig:     cfg.TextSearchConfig,
		hnswAbove:    cfg.HNSWThreshold,
		queryTimeout: cfg.QueryTimeout,
	}
}

func (p *pgStore) Dimension() int {
	return p.dimension
}

// Close is a no-op; the pool belongs to the caller.
func (p *pgStore) Close(_ context.Context) error {
	return nil
}

func (p *pgStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

func (p *pgStore) indexIdent(suffix string) string {
	return pgx.Identifier{p.table + suffix}.Sanitize()
}

func schemaError(step string, err error) error {
	return core.NewError(fmt.Errorf("pgvector: %s: %w", step, err), core.ErrCodeSchema, map[string]any{"step": step})
}

// EnsureSchema creates or reconciles the chunk table. Every statement is
// idempotent so concurrent callers converge on the same layout.
func (p *pgStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	log := logger.FromContext(ctx).With("table", p.tableIdent, "dimension", p.dimension)
	if p.schema != defaultSchema {
		stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{p.schema}.Sanitize()
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return schemaError("create schema", err)
		}
	}
	if _, err := p.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return schemaError("enable extension", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		content text NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata jsonb,
		content_hash text,
		created_at timestamptz DEFAULT now()
	)`, p.tableIdent, p.dimension)
	if _, err := p.db.Exec(ctx, createTable); err != nil {
		return schemaError("create table", err)
	}
	if err := p.reconcileDimension(ctx, log); err != nil {
		return err
	}
	createHashIdx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (content_hash)",
		p.indexIdent("_content_hash_idx"), p.tableIdent,
	)
	if _, err := p.db.Exec(ctx, createHashIdx); err != nil {
		return schemaError("create content hash index", err)
	}
	kind, err := p.ensureSimilarityIndex(ctx, log)
	if err != nil {
		return err
	}
	createTSIdx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s)",
		p.indexIdent("_tsv_idx"), p.tableIdent, p.tsvectorExpr(),
	)
	if _, err := p.db.Exec(ctx, createTSIdx); err != nil {
		return schemaError("create full-text index", err)
	}
	if _, err := p.db.Exec(ctx, "ANALYZE "+p.tableIdent); err != nil {
		return schemaError("analyze", err)
	}
	log.Debug("Chunk table ready", "index", string(kind))
	return nil
}

func (p *pgStore) reconcileDimension(ctx context.Context, log logger.Logger) error {
	current, err := p.currentDimension(ctx)
	if err != nil {
		return err
	}
	if current == p.dimension {
		return nil
	}
	rows, err := p.Count(ctx)
	if err != nil {
		return schemaError("count rows", err)
	}
	if rows > 0 {
		mismatch := &DimensionMismatchError{
			Table:      p.tableIdent,
			Current:    current,
			Configured: p.dimension,
			Rows:       rows,
		}
		return core.NewError(
			core.NewError(mismatch, core.ErrCodeDimensionMismatch, nil),
			core.ErrCodeSchema,
			map[string]any{"current": current, "configured": p.dimension, "rows": rows},
		)
	}
	alter := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN embedding TYPE vector(%d)", p.tableIdent, p.dimension)
	if _, err := p.db.Exec(ctx, alter); err != nil {
		return schemaError("alter embedding dimension", err)
	}
	log.Info("Embedding column resized", "from", current, "to", p.dimension)
	return nil
}

func (p *pgStore) currentDimension(ctx context.Context) (int, error) {
	const query = `SELECT format_type(a.atttypid, a.atttypmod)
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND a.attname = 'embedding' AND NOT a.attisdropped`
	var typ string
	if err := p.db.QueryRow(ctx, query, p.schema, p.table).Scan(&typ); err != nil {
		return 0, schemaError("inspect embedding column", err)
	}
	dim, ok := parseVectorType(typ)
	if !ok {
		return 0, schemaError("inspect embedding column", fmt.Errorf("embedding column has type %q", typ))
	}
	return dim, nil
}

// parseVectorType extracts D from "vector(D)". An unsized vector yields 0.
func parseVectorType(typ string) (int, bool) {
	m := vectorTypeRegex.FindStringSubmatch(typ)
	if m == nil {
		return 0, false
	}
	if m[1] == "" {
		return 0, true
	}
	dim, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return dim, true
}

// ensureSimilarityIndex builds ivfflat up to the threshold and hnsw above it.
// A failed hnsw build leaves the table without a similarity index.
func (p *pgStore) ensureSimilarityIndex(ctx context.Context, log logger.Logger) (IndexKind, error) {
	if p.dimension <= p.hnswAbove {
		stmt := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops)",
			p.indexIdent("_embedding_ivfflat_idx"), p.tableIdent,
		)
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return IndexNone, schemaError("create ivfflat index", err)
		}
		return IndexIVFFlat, nil
	}
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
		p.indexIdent("_embedding_hnsw_idx"), p.tableIdent,
	)
	if _, err := p.db.Exec(ctx, stmt); err != nil {
		log.Warn("Similarity index unavailable; searches will scan the table", "error", core.RedactError(err))
		return IndexNone, nil
	}
	return IndexHNSW, nil
}

func (p *pgStore) tsvectorExpr() string {
	return fmt.Sprintf("to_tsvector('%s', content)", p.tsConfig)
}

func (p *pgStore) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(hashes) == 0 {
		return found, nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	query, args, err := psql.Select("content_hash").
		From(p.tableIdent).
		Where(sq.Expr("content_hash = ANY(?)", hashes)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("pgvector: build hash lookup: %w", err)
	}
	var existing []string
	if err := pgxscan.Select(ctx, p.db, &existing, query, args...); err != nil {
		recordStoreError(ctx, "existing_hashes")
		return nil, core.NewError(fmt.Errorf("pgvector: lookup hashes: %w", err), core.ErrCodeStore, nil)
	}
	for _, h := range existing {
		found[h] = struct{}{}
	}
	return found, nil
}

// InsertIfNew writes records in one transaction and returns how many rows were
// actually inserted. Rows whose content hash already exists are skipped.
func (p *pgStore) InsertIfNew(ctx context.Context, records []Record) (inserted int, err error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i := range records {
		if err := checkRecord(&records[i], p.dimension); err != nil {
			return 0, err
		}
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	tx, txErr := p.db.Begin(ctx)
	if txErr != nil {
		return 0, core.NewError(fmt.Errorf("pgvector: begin tx: %w", txErr), core.ErrCodeStore, nil)
	}
	defer func() {
		if err != nil {
			recordStoreError(ctx, "insert")
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %w", rbErr, err)
			}
			inserted = 0
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			recordStoreError(ctx, "insert")
			err = core.NewError(fmt.Errorf("pgvector: commit: %w", commitErr), core.ErrCodeStore, nil)
			inserted = 0
		}
	}()
	for i := range records {
		rec := &records[i]
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		rawMeta, marshalErr := json.Marshal(metadata)
		if marshalErr != nil {
			return 0, fmt.Errorf("pgvector: marshal metadata for %q: %w", rec.ID, marshalErr)
		}
		stmt, args, buildErr := psql.Insert(p.tableIdent).
			Columns("id", "content", "embedding", "metadata", "content_hash").
			Values(rec.ID, rec.Text, pgvector.NewVector(rec.Embedding), rawMeta, rec.Hash).
			Suffix("ON CONFLICT (content_hash) DO NOTHING").
			ToSql()
		if buildErr != nil {
			return 0, fmt.Errorf("pgvector: build insert: %w", buildErr)
		}
		tag, execErr := tx.Exec(ctx, stmt, args...)
		if execErr != nil {
			return 0, core.NewError(
				fmt.Errorf("pgvector: insert %q: %w", rec.ID, execErr),
				core.ErrCodeStore,
				map[string]any{"id": rec.ID},
			)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func checkRecord(rec *Record, dimension int) error {
	if len(rec.Embedding) != dimension {
		return core.NewError(
			fmt.Errorf("vectordb: record %q has %d dimensions, store expects %d", rec.ID, len(rec.Embedding), dimension),
			core.ErrCodeDimensionMismatch,
			map[string]any{"id": rec.ID, "expected": dimension, "actual": len(rec.Embedding)},
		)
	}
	if rec.Hash == "" {
		return core.NewError(
			fmt.Errorf("vectordb: record %q has no content hash", rec.ID),
			core.ErrCodeValidation,
			nil,
		)
	}
	return nil
}

// Search ranks rows by a weighted sum of vector similarity and full-text rank:
// semantic * 1/(1 + cosine distance) + lexical * ts_rank, ties broken by id.
func (p *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != p.dimension {
		return nil, core.NewError(
			fmt.Errorf("pgvector: query has %d dimensions, store expects %d", len(query), p.dimension),
			core.ErrCodeDimensionMismatch,
			nil,
		)
	}
	topK := opts.TopK
	if topK <= 0 {
		return []Match{}, nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	sqlText, args, err := p.searchQuery(query, opts)
	if err != nil {
		return nil, err
	}
	var rows []searchRow
	if err := pgxscan.Select(ctx, p.db, &rows, sqlText, args...); err != nil {
		recordStoreError(ctx, "search")
		return nil, core.NewError(fmt.Errorf("pgvector: search: %w", err), core.ErrCodeStore, nil)
	}
	results := make([]Match, 0, len(rows))
	for i := range rows {
		meta := make(map[string]any)
		if len(rows[i].Metadata) > 0 {
			if err := json.Unmarshal(rows[i].Metadata, &meta); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata for %q: %w", rows[i].ID, err)
			}
		}
		results = append(results, Match{
			ID:       rows[i].ID,
			Score:    rows[i].Score,
			Text:     rows[i].Content,
			Metadata: meta,
		})
	}
	recordSearch(ctx, "pgvector", topK, time.Since(start), results)
	return results, nil
}

func (p *pgStore) searchQuery(query []float32, opts SearchOptions) (string, []any, error) {
	vec := pgvector.NewVector(query)
	score := sq.Expr("(? * (1.0 / (1.0 + (embedding <=> ?))))", opts.SemanticWeight, vec)
	if opts.LexicalWeight != 0 && opts.QueryText != "" {
		score = sq.Expr(
			fmt.Sprintf(
				"(? * (1.0 / (1.0 + (embedding <=> ?))) + ? * coalesce(ts_rank(%s, websearch_to_tsquery('%s', ?)), 0))",
				p.tsvectorExpr(), p.tsConfig,
			),
			opts.SemanticWeight, vec, opts.LexicalWeight, opts.QueryText,
		)
	}
	sqlText, args, err := psql.
		Select("id::text AS id", "content", "metadata").
		Column(sq.Alias(score, "score")).
		From(p.tableIdent).
		OrderBy("score DESC", "id ASC").
		Limit(uint64(opts.TopK)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("pgvector: build search: %w", err)
	}
	return sqlText, args, nil
}

func (p *pgStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	query, args, err := psql.Select("count(*)").From(p.tableIdent).ToSql()
	if err != nil {
		return 0, fmt.Errorf("pgvector: build count: %w", err)
	}
	var n int64
	if err := p.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, core.NewError(fmt.Errorf("pgvector: count: %w", err), core.ErrCodeStore, nil)
	}
	return n, nil
}

// Describe reports the column width, similarity index, and row count.
func (p *pgStore) Describe(ctx context.Context) (*SchemaInfo, error) {
	dim, err := p.currentDimension(ctx)
	if err != nil {
		return nil, err
	}
	const indexQuery = `SELECT coalesce(max(CASE
	WHEN indexdef ILIKE '%using hnsw%' THEN 'hnsw'
	WHEN indexdef ILIKE '%using ivfflat%' THEN 'ivfflat'
END), 'none') FROM pg_indexes WHERE schemaname = $1 AND tablename = $2`
	var kind string
	if err := p.db.QueryRow(ctx, indexQuery, p.schema, p.table).Scan(&kind); err != nil {
		return nil, core.NewError(fmt.Errorf("pgvector: inspect indexes: %w", err), core.ErrCodeStore, nil)
	}
	rows, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &SchemaInfo{
		Schema:    p.schema,
		Table:     p.table,
		Dimension: dim,
		Index:     IndexKind(kind),
		Rows:      rows,
	}, nil
}
