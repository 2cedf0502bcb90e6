package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/monitoring"
	"github.com/compozy/docqa/pkg/config"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runRoot(t *testing.T, args ...string) (*bytes.Buffer, *config.Config, error) {
	t.Helper()
	root := RootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	base := []string{"--env-file", "", "--log-level", "disabled", "--output", "json"}
	root.SetArgs(append(base, args...))
	executed, err := root.ExecuteC()
	var cfg *config.Config
	if executed != nil && executed.Context() != nil {
		cfg = config.FromContext(executed.Context())
	}
	return out, cfg, err
}

func TestExtractCmd(t *testing.T) {
	t.Run("Should print normalized text as JSON", func(t *testing.T) {
		path := writeTemp(t, "notes.txt", "first\t line\n\n\nsecond\n")
		out, _, err := runRoot(t, "extract", path)
		require.NoError(t, err)
		var view extractView
		require.NoError(t, json.Unmarshal(out.Bytes(), &view))
		assert.Equal(t, "first line\nsecond", view.Text)
		assert.Equal(t, path, view.Source)
	})

	t.Run("Should surface a validation error for a missing file", func(t *testing.T) {
		_, _, err := runRoot(t, "extract", filepath.Join(t.TempDir(), "missing.txt"))
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeValidation))
	})
}

func TestSetupGlobalConfig(t *testing.T) {
	t.Run("Should layer YAML under explicitly set flags", func(t *testing.T) {
		cfgPath := writeTemp(t, "docqa.yaml", "chunking:\n  size: 100\ndatabase:\n  table: manuals\n")
		doc := writeTemp(t, "doc.txt", "text")
		_, cfg, err := runRoot(t, "--config", cfgPath, "--chunk-size", "50", "extract", doc)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 50, cfg.Chunking.Size)
		assert.Equal(t, "manuals", cfg.Database.Table)
		assert.Equal(t, config.Default().Retrieval.TopK, cfg.Retrieval.TopK)
	})

	t.Run("Should reject an invalid configuration", func(t *testing.T) {
		doc := writeTemp(t, "doc.txt", "text")
		_, _, err := runRoot(t, "--table", "bad-name", "extract", doc)
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeConfiguration))
	})

	t.Run("Should write a metrics snapshot when requested", func(t *testing.T) {
		monitoring.ResetSystemMetricsForTesting()
		t.Cleanup(monitoring.ResetSystemMetricsForTesting)
		metricsPath := filepath.Join(t.TempDir(), "docqa.prom")
		doc := writeTemp(t, "doc.txt", "text")
		_, _, err := runRoot(t, "--metrics-file", metricsPath, "extract", doc)
		require.NoError(t, err)
		data, err := os.ReadFile(metricsPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "docqa_build_info")
	})
}

func TestAskCmd(t *testing.T) {
	t.Run("Should fail with a configuration error before connecting when the DSN is missing", func(t *testing.T) {
		t.Setenv("DB_CONN_STRING", "")
		_, _, err := runRoot(t, "ask", "what is the warranty?")
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeConfiguration))
		assert.ErrorIs(t, err, config.ErrMissingSetting)
	})
}

func TestExpandPaths(t *testing.T) {
	t.Run("Should expand globs and keep literal paths", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
		a := filepath.Join(dir, "a.txt")
		b := filepath.Join(dir, "nested", "b.txt")
		require.NoError(t, os.WriteFile(a, []byte("a"), 0o600))
		require.NoError(t, os.WriteFile(b, []byte("b"), 0o600))
		paths, err := expandPaths([]string{filepath.Join(dir, "**", "*.txt"), a})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a, b}, paths)
	})

	t.Run("Should reject a glob without matches", func(t *testing.T) {
		_, err := expandPaths([]string{filepath.Join(t.TempDir(), "*.pdf")})
		require.Error(t, err)
		assert.True(t, core.HasCode(err, core.ErrCodeValidation))
	})
}
