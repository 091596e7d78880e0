package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidation(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsShortEvaluationInterval(t *testing.T) {
	cfg := Default()
	cfg.Lifecycle.EvaluationInterval = 10 * time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeBatchSize(t *testing.T) {
	cfg := Default()
	cfg.Lifecycle.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg.Lifecycle.BatchSize = 20000
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsExcessiveChunkOverlap(t *testing.T) {
	cfg := Default()
	cfg.Extraction.Chunking.MaxTokensPerChunk = 1000
	cfg.Extraction.Chunking.OverlapTokens = 500
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveEmbeddingDim(t *testing.T) {
	cfg := Default()
	cfg.Vector.EmbeddingDim = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_ReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("MEMORY_RELATIONAL_BACKEND", "remote")
	t.Setenv("MEMORY_POSTGRES_DSN", "postgres://example")
	t.Setenv("LIFECYCLE_DECAY_THRESHOLD", "0.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Relational.Backend)
	assert.Equal(t, "postgres://example", cfg.Relational.PostgresDSN)
	assert.Equal(t, 0.5, cfg.Lifecycle.DecayThreshold)
}

func TestLoad_MergesPolicyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policies:
  fact:
    ttl: 240h
    importance_multiplier: 5.0
    grace_period: 2h
`), 0o644))

	t.Setenv("MEMORY_POLICY_FILE", path)
	cfg, err := Load("")
	require.NoError(t, err)

	p := cfg.Lifecycle.RetentionPolicies["fact"]
	assert.Equal(t, 240*time.Hour, p.TTL)
	assert.Equal(t, 5.0, p.ImportanceMultiplier)
}

func TestLoadPolicyFile_RejectsInvalidTTL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policies:
  fact:
    ttl: not-a-duration
`), 0o644))

	_, err := LoadPolicyFile(path)
	assert.Error(t, err)
}

func TestLoadPolicyFile_DefaultsGracePeriodWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nogracee.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policies:
  fact:
    ttl: 24h
    importance_multiplier: 1.0
`), 0o644))

	policies, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, policies["fact"].GracePeriod)
}
