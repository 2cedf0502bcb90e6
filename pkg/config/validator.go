package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingSetting reports a setting that a command needs but the configuration lacks.
var ErrMissingSetting = errors.New("missing required setting")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateCustom(cfg *Config) error {
	if err := validateDatabase(&cfg.Database); err != nil {
		return err
	}
	if err := validateRetrieval(&cfg.Retrieval); err != nil {
		return err
	}
	if cfg.Embedder.Provider == "google" {
		if cfg.Embedder.DocumentTask == "" || cfg.Embedder.QueryTask == "" {
			return fmt.Errorf("embedder task types are required for the google provider")
		}
	}
	return nil
}

func validateDatabase(cfg *DatabaseConfig) error {
	if !identifierPattern.MatchString(cfg.Schema) {
		return fmt.Errorf("database schema %q is not a valid identifier", cfg.Schema)
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return fmt.Errorf("database table %q is not a valid identifier", cfg.Table)
	}
	if cfg.ConnectTimeout < 0 || cfg.QueryTimeout < 0 {
		return fmt.Errorf("database timeouts must not be negative")
	}
	return nil
}

func validateRetrieval(cfg *RetrievalConfig) error {
	if cfg.SemanticWeight == 0 && cfg.LexicalWeight == 0 {
		return fmt.Errorf("semantic_weight and lexical_weight cannot both be zero")
	}
	if !identifierPattern.MatchString(cfg.TextSearchConfig) {
		return fmt.Errorf("text_search_config %q is not a valid identifier", cfg.TextSearchConfig)
	}
	return nil
}

func trimModels(models []string) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// RequireStore checks the settings needed to open the chunk store.
func (c *Config) RequireStore() error {
	if c.Database.ConnString.Value() == "" {
		return fmt.Errorf("%w: DB_CONN_STRING", ErrMissingSetting)
	}
	return nil
}

// RequireEmbedder checks the settings needed to call the embedding provider.
func (c *Config) RequireEmbedder() error {
	if c.Embedder.APIKey.Value() == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, GetEnvVarForConfigPath("embedder.api_key"))
	}
	return nil
}

// RequireGeneration checks the settings needed to call the generation provider.
// The embedding key is reused when no generation key is configured.
func (c *Config) RequireGeneration() error {
	if c.GenerationAPIKey() == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, GetEnvVarForConfigPath("generation.api_key"))
	}
	return nil
}

// GenerationAPIKey returns the generation key, falling back to the embedding key.
func (c *Config) GenerationAPIKey() string {
	if key := c.Generation.APIKey.Value(); key != "" {
		return key
	}
	return c.Embedder.APIKey.Value()
}
