// Package config handles configuration for nornicfs via environment variables.
//
// nornicfs uses environment variables for configuration rather than a config
// file or a parsing library; every setting has a sensible default so the
// zero-config path (embedding the package, or running `nornicfs init`)
// works out of the box.
//
// Configuration is loaded with LoadFromEnv() and should be checked with
// Validate() before it is handed to pkg/fs.Open.
//
// Example:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all nornicfs configuration loaded from environment variables.
type Config struct {
	// Storage settings for the on-disk Badger-backed tables.
	Storage StorageConfig

	// Commit settings for the transaction/commit engine.
	Commit CommitConfig

	// Deltify settings for representation storage.
	Deltify DeltifyConfig

	// Cache settings for the node-revision cache.
	Cache CacheConfig
}

// StorageConfig holds on-disk storage settings.
type StorageConfig struct {
	// DataDir is the directory holding the repository's Badger tables.
	DataDir string
	// InMemory runs the KV store in memory only, for tests and ephemeral use.
	InMemory bool
	// SyncWrites forces fsync on every underlying KV commit.
	SyncWrites bool
}

// CommitConfig holds transaction/commit engine settings.
type CommitConfig struct {
	// RetryLimit bounds the retry loop around transient KV serialization
	// conflicts during revision allocation (spec §5, §7 "Transient").
	RetryLimit int
}

// DeltifyConfig holds representation deltification policy (spec §4.2).
type DeltifyConfig struct {
	// MinWindowSize is the smallest fulltext size eligible for
	// deltification; smaller files are always stored as fulltext.
	MinWindowSize int
	// ChainRecursionLimit is the delta-chain read depth (spec §4.2) at
	// which a reader reconstructs each source as a whole fulltext instead
	// of reading it by range; that reconstruction restarts the depth
	// count, so total recursion depth is not capped by this value.
	ChainRecursionLimit int
}

// CacheConfig holds node-revision cache settings (spec §5).
type CacheConfig struct {
	// NodeRevisionCacheSize is the maximum number of node-revision
	// records held in the in-process LRU cache. Safe across handles
	// because node-revisions are immutable once committed.
	NodeRevisionCacheSize int
}

// LoadFromEnv builds a Config from environment variables, falling back to
// defaults for anything unset.
//
// Environment variables:
//
//	NORNICFS_DATA_DIR            (default "./data")
//	NORNICFS_IN_MEMORY            (default "false")
//	NORNICFS_SYNC_WRITES          (default "false")
//	NORNICFS_COMMIT_RETRIES       (default "10")
//	NORNICFS_DELTIFY_MIN_SIZE     (default "64")
//	NORNICFS_DELTA_CHAIN_LIMIT    (default "32")
//	NORNICFS_NODEREV_CACHE_SIZE   (default "4096")
func LoadFromEnv() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:    getEnv("NORNICFS_DATA_DIR", "./data"),
			InMemory:   getEnvBool("NORNICFS_IN_MEMORY", false),
			SyncWrites: getEnvBool("NORNICFS_SYNC_WRITES", false),
		},
		Commit: CommitConfig{
			RetryLimit: getEnvInt("NORNICFS_COMMIT_RETRIES", 10),
		},
		Deltify: DeltifyConfig{
			MinWindowSize:       getEnvInt("NORNICFS_DELTIFY_MIN_SIZE", 64),
			ChainRecursionLimit: getEnvInt("NORNICFS_DELTA_CHAIN_LIMIT", 32),
		},
		Cache: CacheConfig{
			NodeRevisionCacheSize: getEnvInt("NORNICFS_NODEREV_CACHE_SIZE", 4096),
		},
	}
}

// Default returns a Config populated entirely with defaults, ignoring
// whatever is currently set in the environment.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DataDir: "./data"},
		Commit:  CommitConfig{RetryLimit: 10},
		Deltify: DeltifyConfig{MinWindowSize: 64, ChainRecursionLimit: 32},
		Cache:   CacheConfig{NodeRevisionCacheSize: 4096},
	}
}

// Validate checks the configuration for internally-inconsistent or
// out-of-range values, returning a *ConfigError collecting every problem
// found rather than failing on the first one.
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.DataDir == "" && !c.Storage.InMemory {
		errs = append(errs, "Storage.DataDir must be set unless Storage.InMemory is true")
	}
	if c.Commit.RetryLimit < 1 {
		errs = append(errs, "Commit.RetryLimit must be >= 1")
	}
	if c.Deltify.MinWindowSize < 0 {
		errs = append(errs, "Deltify.MinWindowSize must be >= 0")
	}
	if c.Deltify.ChainRecursionLimit < 1 {
		errs = append(errs, "Deltify.ChainRecursionLimit must be >= 1")
	}
	if c.Cache.NodeRevisionCacheSize < 0 {
		errs = append(errs, "Cache.NodeRevisionCacheSize must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Problems: errs}
}

// ConfigError reports one or more configuration problems found by Validate.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
