package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	defaultDataDir               = "data"
	defaultWorkerTimeoutSeconds  = 300
	defaultLookbackSeconds       = 86400
	defaultSampleIntervalSeconds = 30
	defaultSampleParallel        = 4
)

// CoinConfig points one coin at its database and at exactly one status
// source: a local pool log to tail, or a remote status endpoint.
type CoinConfig struct {
	DBPath    string `toml:"db_path"`
	LogPath   string `toml:"log_path"`
	StatusURL string `toml:"status_url"`
}

// Config is the explicit value object handed to the reader, liveness
// tracker, view and sampler at construction. Nothing reads the process
// environment.
type Config struct {
	DataDir   string `toml:"data_dir"`
	DBPath    string `toml:"db_path"`
	LogPath   string `toml:"log_path"`
	StatusURL string `toml:"status_url"`

	// WorkerTimeoutSeconds is the liveness TTL: a worker not seen for
	// this long is considered inactive.
	WorkerTimeoutSeconds int `toml:"worker_timeout_seconds"`
	// LookbackSeconds bounds "recent" wallet-history queries.
	LookbackSeconds       int `toml:"lookback_seconds"`
	SampleIntervalSeconds int `toml:"sample_interval_seconds"`
	// SampleParallel caps how many coins refresh concurrently.
	SampleParallel int `toml:"sample_parallel"`

	LogFile string `toml:"log_file"`
	Debug   bool   `toml:"debug"`

	Coins map[string]CoinConfig `toml:"coins"`
}

func defaultConfig() Config {
	return Config{
		DataDir:               defaultDataDir,
		WorkerTimeoutSeconds:  defaultWorkerTimeoutSeconds,
		LookbackSeconds:       defaultLookbackSeconds,
		SampleIntervalSeconds: defaultSampleIntervalSeconds,
		SampleParallel:        defaultSampleParallel,
	}
}

func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutSeconds) * time.Second
}

func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackSeconds) * time.Second
}

func (c Config) SampleInterval() time.Duration {
	if c.SampleIntervalSeconds < 1 {
		return time.Second
	}
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LogPath != "" && c.StatusURL != "" {
		return fmt.Errorf("log_path and status_url are mutually exclusive")
	}
	for name, coin := range c.Coins {
		if coin.LogPath != "" && coin.StatusURL != "" {
			return fmt.Errorf("coin %q: log_path and status_url are mutually exclusive", name)
		}
	}
	return nil
}

// coinTargets resolves the per-coin sections; a config without any coin
// sections behaves as a single coin built from the top-level fields.
func (c Config) coinTargets() map[string]CoinConfig {
	if len(c.Coins) > 0 {
		return c.Coins
	}
	if c.DBPath == "" && c.LogPath == "" && c.StatusURL == "" {
		return nil
	}
	return map[string]CoinConfig{
		"default": {DBPath: c.DBPath, LogPath: c.LogPath, StatusURL: c.StatusURL},
	}
}

// coinDBPath picks a coin's database path, defaulting under the data dir.
func (c Config) coinDBPath(name string, coin CoinConfig) string {
	if coin.DBPath != "" {
		return coin.DBPath
	}
	return filepath.Join(c.DataDir, name+".sqlite")
}

// ensureExampleConfig writes a commented config.toml.example next to the
// data so operators can copy it to a real config and edit.
func ensureExampleConfig(dataDir string) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Warn("create data directory failed", "dir", dataDir, "error", err)
		return
	}
	cfg := defaultConfig()
	cfg.LogPath = "/var/log/ckpool/ckpool.log"
	cfg.DBPath = filepath.Join(dataDir, "ckpool.sqlite")
	data, err := toml.Marshal(cfg)
	if err != nil {
		logger.Warn("encode config example failed", "error", err)
		return
	}
	header := []byte("# Generated example (copy to a real config and edit as needed)\n\n")
	path := filepath.Join(dataDir, "config.toml.example")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		logger.Warn("write example config failed", "path", path, "error", err)
	}
}
