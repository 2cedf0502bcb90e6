package vectordb

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/postgres"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewPGVector returns a Postgres backed store over db. The caller owns db.
func NewPGVector(db postgres.DB, cfg *Config) (Store, error) {
	if db == nil {
		return nil, errors.New("pgvector: database handle is required")
	}
	if cfg == nil {
		return nil, errors.New("pgvector: config is required")
	}
	normalized := cfg.withDefaults()
	if err := validateConfig(normalized); err != nil {
		return nil, err
	}
	return newPGStore(db, normalized), nil
}

// NewMemory returns an in-process store with the same contract, for ephemeral use.
func NewMemory(dimension int) (Store, error) {
	if dimension <= 0 {
		return nil, core.NewError(
			fmt.Errorf("vectordb: dimension must be greater than zero"),
			core.ErrCodeValidation,
			map[string]any{"dimension": dimension},
		)
	}
	return newMemoryStore(dimension), nil
}

func validateConfig(cfg *Config) error {
	if cfg.Dimension <= 0 {
		return core.NewError(
			fmt.Errorf("pgvector: dimension must be greater than zero"),
			core.ErrCodeConfiguration,
			map[string]any{"dimension": cfg.Dimension},
		)
	}
	for name, value := range map[string]string{
		"schema":             cfg.Schema,
		"table":              cfg.Table,
		"text_search_config": cfg.TextSearchConfig,
	} {
		if !identifierPattern.MatchString(value) {
			return core.NewError(
				fmt.Errorf("pgvector: %s %q is not a valid identifier", name, value),
				core.ErrCodeConfiguration,
				nil,
			)
		}
	}
	return nil
}
