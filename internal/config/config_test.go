package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := load("", "", envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 80.0, cfg.Matching.FuzzyThreshold)
	assert.Equal(t, 0.6, cfg.Matching.SemanticThreshold)
	assert.False(t, cfg.Discovery.Emit)
	assert.Equal(t, 10, cfg.Taxonomy.MinRecords)
	assert.Equal(t, 0.5, cfg.Taxonomy.MinRatio)
}

func TestLoadLayers(t *testing.T) {
	yamlPath := writeFile(t, "skillscan.yaml", `
taxonomy:
  remote_url: https://taxonomy.example/skills
  cache_max_age: 6h
matching:
  fuzzy_threshold: 85
ledger:
  backend: sqlite
workers: 8
`)
	envPath := writeFile(t, ".env", "SKILLSCAN_WORKERS=2\nSKILLSCAN_EMIT_DISCOVERIES=true\n")

	cfg, err := load(yamlPath, envPath, envOf(map[string]string{
		"SKILLSCAN_WORKERS":        "3",
		"SKILLSCAN_REMOTE_TIMEOUT": "2s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://taxonomy.example/skills", cfg.Taxonomy.RemoteURL)
	assert.Equal(t, 6*time.Hour, cfg.Taxonomy.CacheMaxAge)
	assert.Equal(t, 2*time.Second, cfg.Taxonomy.RemoteTimeout)
	assert.Equal(t, 85.0, cfg.Matching.FuzzyThreshold)
	assert.Equal(t, "sqlite", cfg.Ledger.Backend)
	assert.Equal(t, 3, cfg.Workers, "process environment wins over .env and YAML")
	assert.True(t, cfg.Discovery.Emit, ".env applies when the process does not set a variable")
	assert.Equal(t, 5, cfg.Matching.SemanticTopK, "unset values keep their defaults")
}

func TestLoadAPIKeyFallback(t *testing.T) {
	cfg, err := load("", "", envOf(map[string]string{
		"OPENAI_API_KEY":     "sk-test",
		"SKILLSCAN_SEMANTIC": "1",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.Matching.Semantic)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := load("", "", envOf(map[string]string{
		"SKILLSCAN_WORKERS":       "many",
		"SKILLSCAN_CACHE_MAX_AGE": "tomorrow",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKILLSCAN_WORKERS")
	assert.Contains(t, err.Error(), "SKILLSCAN_CACHE_MAX_AGE")

	_, err = load("", "", envOf(map[string]string{"SKILLSCAN_FUZZY_THRESHOLD": "120"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")

	_, err = load("", "", envOf(map[string]string{"SKILLSCAN_SEMANTIC": "true"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matching.semantic")

	_, err = load("", "", envOf(map[string]string{"SKILLSCAN_MIN_RATIO": "1.5"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_ratio")

	_, err = load(writeFile(t, "bad.yaml", "workers: [1"), "", envOf(nil))
	assert.Error(t, err)

	_, err = load(filepath.Join(t.TempDir(), "missing.yaml"), "", envOf(nil))
	assert.Error(t, err)
}

func TestLoadMissingDotenvIsFine(t *testing.T) {
	_, err := load("", filepath.Join(t.TempDir(), ".env"), envOf(nil))
	assert.NoError(t, err)
}
