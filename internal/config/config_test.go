package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesRetryDefaultPolicy(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 8, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  default_ttl: 30s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, Default().Retry, cfg.Retry, "fields absent from the file must keep their default")
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestRetryPolicyConversion(t *testing.T) {
	cfg := Default()
	policy := cfg.RetryPolicy()
	assert.Equal(t, cfg.Retry.InitialInterval, policy.InitialInterval)
	assert.Equal(t, cfg.Retry.MaxAttempts, policy.MaxAttempts)
}
