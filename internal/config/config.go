package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/logging"
)

// Environment variables
const (
	EnvConfig        = "DIARYLOCK_CONFIG"
	EnvDB            = "DIARYLOCK_DB"
	EnvBackend       = "DIARYLOCK_BACKEND"
	EnvLogLevel      = "DIARYLOCK_LOG_LEVEL"
	EnvLogFormat     = "DIARYLOCK_LOG_FORMAT"
	EnvKDFIterations = "DIARYLOCK_KDF_ITERATIONS"
)

// Storage backends
const (
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultDBFile is the database file used when none is configured
const DefaultDBFile = ".diarylock"

// Config is the diarylock configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	KDF     KDFConfig     `yaml:"kdf"`
}

// StorageConfig selects where diaries live
type StorageConfig struct {
	Backend string `yaml:"backend"` // bolt, sqlite or postgres
	Path    string `yaml:"path"`    // file path, or DSN for sql backends
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// KDFConfig sets the key derivation parameters for new locks. Diaries that
// are already locked keep the parameters they were locked with.
type KDFConfig struct {
	Iterations int `yaml:"iterations"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendBolt,
			Path:    DefaultDBFile,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		KDF: KDFConfig{
			Iterations: crypto.DefaultIterations,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and environment variable overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if db := os.Getenv(EnvDB); db != "" {
		cfg.Storage.Path = db
	}
	if backend := os.Getenv(EnvBackend); backend != "" {
		cfg.Storage.Backend = backend
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv(EnvLogFormat); format != "" {
		cfg.Logging.Format = format
	}
	if iterations := os.Getenv(EnvKDFIterations); iterations != "" {
		n, err := strconv.Atoi(iterations)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvKDFIterations, iterations, err)
		}
		cfg.KDF.Iterations = n
	}
	return nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case BackendBolt, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be bolt, sqlite, or postgres)", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.Params().Validate(); err != nil {
		return err
	}
	return nil
}

// Params returns the key derivation parameters for new locks
func (c *Config) Params() crypto.Params {
	p := crypto.DefaultParams()
	p.Iterations = c.KDF.Iterations
	return p
}
