package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oagw/gateway/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090

database:
  driver: "sqlite"
  dsn: ":memory:"

rate_limit:
  num_shards: 16
  cleanup_interval: 1m

logging:
  level: "debug"
  format: "console"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("Database.DSN = %s, want :memory:", cfg.Database.DSN)
	}
	if cfg.RateLimit.NumShards != 16 {
		t.Errorf("RateLimit.NumShards = %d, want 16", cfg.RateLimit.NumShards)
	}
	if cfg.RateLimit.CleanupInterval != time.Minute {
		t.Errorf("RateLimit.CleanupInterval = %v, want 1m", cfg.RateLimit.CleanupInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
server:
  port: 9000
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default Database.Driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "oagw.db" {
		t.Errorf("default Database.DSN = %s, want oagw.db", cfg.Database.DSN)
	}
	if cfg.RateLimit.NumShards != 32 {
		t.Errorf("default RateLimit.NumShards = %d, want 32", cfg.RateLimit.NumShards)
	}
	if cfg.RateLimit.CleanupInterval != 5*time.Minute {
		t.Errorf("default RateLimit.CleanupInterval = %v, want 5m", cfg.RateLimit.CleanupInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %s, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("default Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Proxy.MaxBodyBytes != 10<<20 {
		t.Errorf("default Proxy.MaxBodyBytes = %d, want %d", cfg.Proxy.MaxBodyBytes, 10<<20)
	}
	if cfg.Proxy.ConnectTimeout != 5*time.Second {
		t.Errorf("default Proxy.ConnectTimeout = %v, want 5s", cfg.Proxy.ConnectTimeout)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_DATABASE_DSN", "/data/env-test.db")
	defer os.Unsetenv("TEST_DATABASE_DSN")

	content := `
database:
  dsn: "${TEST_DATABASE_DSN}"
`

	cfg := writeAndLoad(t, content)

	if cfg.Database.DSN != "/data/env-test.db" {
		t.Errorf("Database.DSN = %s, want /data/env-test.db", cfg.Database.DSN)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("OAGW_SERVER_PORT", "9999")
	defer os.Unsetenv("OAGW_SERVER_PORT")

	content := `
server:
  port: 8080
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999 (env override)", cfg.Server.Port)
	}
}

func TestLoad_InvalidDatabaseDriver(t *testing.T) {
	content := `
database:
  driver: "postgres"
`

	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for invalid database.driver")
	}
}

func TestLoad_InvalidLoggingLevel(t *testing.T) {
	content := `
logging:
  level: "verbose"
`

	_, err := writeAndLoadErr(t, content)
	if err == nil {
		t.Fatal("expected error for invalid logging.level")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("OAGW_DATABASE_DSN", "/data/from-env.db")
	os.Setenv("OAGW_LOG_LEVEL", "warn")
	defer os.Unsetenv("OAGW_DATABASE_DSN")
	defer os.Unsetenv("OAGW_LOG_LEVEL")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Database.DSN != "/data/from-env.db" {
		t.Errorf("Database.DSN = %s, want /data/from-env.db", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
