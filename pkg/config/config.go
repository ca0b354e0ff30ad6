package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"asyncimage/pkg/cacheclient"

	"github.com/caarlos0/env/v9"
	"github.com/gregjones/httpcache"
	"github.com/sirupsen/logrus"
)

const (
	CacheModeDisk   = "disk"
	CacheModeMemory = "memory"
)

type Config struct {
	ConfigDir string `env:"ASYNCIMAGE_CONFIG_DIR"`

	// CacheMode selects the response store, "disk" or "memory".
	CacheMode string        `env:"ASYNCIMAGE_CACHE" envDefault:"disk"`
	Timeout   time.Duration `env:"ASYNCIMAGE_TIMEOUT" envDefault:"30s"`
	Scale     float64       `env:"ASYNCIMAGE_SCALE" envDefault:"1"`
	LogLevel  string        `env:"ASYNCIMAGE_LOG_LEVEL" envDefault:"info"`

	SuppressAnimationOnCacheHit bool `env:"ASYNCIMAGE_SUPPRESS_ANIMATION" envDefault:"true"`
}

// NewConfig reads the environment into a Config.
func NewConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = getConfigDir()
	}
	if cfg.CacheMode != CacheModeDisk && cfg.CacheMode != CacheModeMemory {
		return nil, fmt.Errorf("unknown cache mode %q", cfg.CacheMode)
	}
	return &cfg, nil
}

// getConfigDir picks the per-user config location, or the temp dir when the
// platform has none.
func getConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "asyncimage")
}

// GetCacheDir returns the disk cache directory under ConfigDir, creating it
// if needed.
func (c *Config) GetCacheDir() (string, error) {
	cacheDir := filepath.Join(c.ConfigDir, "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir %s: %w", cacheDir, err)
	}
	return cacheDir, nil
}

// NewCache builds the response store selected by CacheMode.
func (c *Config) NewCache() (httpcache.Cache, error) {
	if c.CacheMode == CacheModeMemory {
		return cacheclient.NewMemoryCache(), nil
	}

	cacheDir, err := c.GetCacheDir()
	if err != nil {
		return nil, err
	}
	return cacheclient.NewDiskCache(cacheDir)
}

// NewLogger builds a text logger on stderr at LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

// EnsureConfigDir creates ConfigDir. An existing directory is fine.
func (c *Config) EnsureConfigDir() error {
	if c.ConfigDir == "" {
		return errors.New("config dir is not set")
	}
	if err := os.MkdirAll(c.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", c.ConfigDir, err)
	}
	return nil
}
