package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log_path = "/var/log/ckpool/ckpool.log"
db_path = "data/btc.sqlite"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogPath != "/var/log/ckpool/ckpool.log" {
		t.Fatalf("log_path = %q", cfg.LogPath)
	}
	if cfg.WorkerTimeoutSeconds != defaultWorkerTimeoutSeconds {
		t.Fatalf("worker timeout = %d, want default %d", cfg.WorkerTimeoutSeconds, defaultWorkerTimeoutSeconds)
	}
	if cfg.LookbackSeconds != defaultLookbackSeconds {
		t.Fatalf("lookback = %d, want default %d", cfg.LookbackSeconds, defaultLookbackSeconds)
	}
	if cfg.SampleParallel != defaultSampleParallel {
		t.Fatalf("parallel = %d, want default %d", cfg.SampleParallel, defaultSampleParallel)
	}
	if cfg.DataDir != defaultDataDir {
		t.Fatalf("data_dir = %q, want default %q", cfg.DataDir, defaultDataDir)
	}
}

func TestLoadConfigPerCoinSections(t *testing.T) {
	path := writeConfigFile(t, `
data_dir = "cache"
worker_timeout_seconds = 120

[coins.btc]
log_path = "/var/log/ckpool/btc.log"

[coins.tbtc]
status_url = "https://pool.example/status"
db_path = "elsewhere/tbtc.sqlite"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	targets := cfg.coinTargets()
	if len(targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(targets))
	}
	if targets["btc"].LogPath != "/var/log/ckpool/btc.log" {
		t.Fatalf("btc = %+v", targets["btc"])
	}
	if targets["tbtc"].StatusURL != "https://pool.example/status" {
		t.Fatalf("tbtc = %+v", targets["tbtc"])
	}
	if got := cfg.coinDBPath("btc", targets["btc"]); got != filepath.Join("cache", "btc.sqlite") {
		t.Fatalf("btc db path = %q, want the data-dir default", got)
	}
	if got := cfg.coinDBPath("tbtc", targets["tbtc"]); got != "elsewhere/tbtc.sqlite" {
		t.Fatalf("tbtc db path = %q, want the explicit path", got)
	}
	if cfg.WorkerTimeoutSeconds != 120 {
		t.Fatalf("worker timeout = %d", cfg.WorkerTimeoutSeconds)
	}
}

func TestLoadConfigRejectsBothSources(t *testing.T) {
	path := writeConfigFile(t, `
log_path = "/var/log/ckpool/ckpool.log"
status_url = "https://pool.example/status"
`)
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected mutual-exclusion error at the top level")
	}

	path = writeConfigFile(t, `
[coins.btc]
log_path = "/var/log/ckpool/btc.log"
status_url = "https://pool.example/status"
`)
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected mutual-exclusion error for the coin section")
	}
}

func TestCoinTargetsFallback(t *testing.T) {
	cfg := defaultConfig()
	if targets := cfg.coinTargets(); targets != nil {
		t.Fatalf("unconfigured targets = %v, want none", targets)
	}

	cfg.LogPath = "/var/log/ckpool/ckpool.log"
	cfg.DBPath = "data/pool.sqlite"
	targets := cfg.coinTargets()
	if len(targets) != 1 {
		t.Fatalf("targets = %d, want the single default coin", len(targets))
	}
	coin, ok := targets["default"]
	if !ok || coin.LogPath != cfg.LogPath || coin.DBPath != cfg.DBPath {
		t.Fatalf("default coin = %+v", coin)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEnsureExampleConfig(t *testing.T) {
	dir := t.TempDir()
	ensureExampleConfig(dir)
	data, err := os.ReadFile(filepath.Join(dir, "config.toml.example"))
	if err != nil {
		t.Fatalf("example config missing: %v", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if cfg.WorkerTimeoutSeconds != defaultWorkerTimeoutSeconds {
		t.Fatalf("example worker timeout = %d", cfg.WorkerTimeoutSeconds)
	}
}
