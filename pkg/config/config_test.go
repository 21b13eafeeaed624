package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, 10, cfg.Commit.RetryLimit)
	assert.Equal(t, 64, cfg.Deltify.MinWindowSize)
	assert.Equal(t, 32, cfg.Deltify.ChainRecursionLimit)
	assert.Equal(t, 4096, cfg.Cache.NodeRevisionCacheSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("falls back to defaults when unset", func(t *testing.T) {
		cfg := LoadFromEnv()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, Default(), cfg)
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("NORNICFS_DATA_DIR", "/tmp/repo")
		t.Setenv("NORNICFS_IN_MEMORY", "true")
		t.Setenv("NORNICFS_COMMIT_RETRIES", "3")
		t.Setenv("NORNICFS_DELTIFY_MIN_SIZE", "128")
		t.Setenv("NORNICFS_DELTA_CHAIN_LIMIT", "8")
		t.Setenv("NORNICFS_NODEREV_CACHE_SIZE", "16")

		cfg := LoadFromEnv()
		assert.Equal(t, "/tmp/repo", cfg.Storage.DataDir)
		assert.True(t, cfg.Storage.InMemory)
		assert.Equal(t, 3, cfg.Commit.RetryLimit)
		assert.Equal(t, 128, cfg.Deltify.MinWindowSize)
		assert.Equal(t, 8, cfg.Deltify.ChainRecursionLimit)
		assert.Equal(t, 16, cfg.Cache.NodeRevisionCacheSize)
	})

	t.Run("ignores malformed ints", func(t *testing.T) {
		t.Setenv("NORNICFS_COMMIT_RETRIES", "not-a-number")
		cfg := LoadFromEnv()
		assert.Equal(t, 10, cfg.Commit.RetryLimit)
	})
}

func TestValidate(t *testing.T) {
	t.Run("empty data dir without in-memory fails", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.DataDir = ""
		err := cfg.Validate()
		require.Error(t, err)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Error(), "Storage.DataDir")
	})

	t.Run("empty data dir is fine when in-memory", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.DataDir = ""
		cfg.Storage.InMemory = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := &Config{
			Storage: StorageConfig{DataDir: ""},
			Commit:  CommitConfig{RetryLimit: 0},
			Deltify: DeltifyConfig{MinWindowSize: -1, ChainRecursionLimit: 0},
			Cache:   CacheConfig{NodeRevisionCacheSize: -1},
		}
		err := cfg.Validate()
		require.Error(t, err)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Len(t, cerr.Problems, 5)
	})
}
