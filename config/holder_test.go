package config_test

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oagw/gateway/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", got.Server.Port)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	cfg := h.Get()
	if cfg.RateLimit.NumShards != 16 {
		t.Errorf("initial RateLimit.NumShards = %d, want 16", cfg.RateLimit.NumShards)
	}

	newContent := `
server:
  port: 9000

rate_limit:
  num_shards: 64
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg = h.Get()
	if cfg.RateLimit.NumShards != 64 {
		t.Errorf("reloaded RateLimit.NumShards = %d, want 64", cfg.RateLimit.NumShards)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var called bool
	var receivedCfg *config.Config

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		called = true
		receivedCfg = cfg
		mu.Unlock()
	})

	newContent := `
server:
  port: 9100
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if !called {
		t.Error("OnChange callback was not called")
	}
	if receivedCfg == nil {
		t.Error("received nil config in callback")
	} else if receivedCfg.Server.Port != 9100 {
		t.Errorf("callback received Port = %d, want 9100", receivedCfg.Server.Port)
	}
	mu.Unlock()
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	invalidContent := `
database:
  driver: "postgres"
`
	if err := os.WriteFile(path, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	err = h.Reload()
	if err == nil {
		t.Error("Reload should fail for invalid config")
	}

	cfg := h.Get()
	if cfg.RateLimit.NumShards != 16 {
		t.Errorf("should keep old config, got RateLimit.NumShards = %d", cfg.RateLimit.NumShards)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := `
server:
  port: 9200
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	if callCount == 0 {
		t.Error("file watcher did not trigger reload")
	}
	mu.Unlock()

	cfg := h.Get()
	if cfg.Server.Port != 9200 {
		t.Errorf("after file watch, Server.Port = %d, want 9200", cfg.Server.Port)
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := h.Get()
				if cfg == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	if len(fields) == 0 {
		t.Error("ReloadableFields returned empty")
	}

	expected := []string{"logging.level", "rate_limit.cleanup_interval"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()
	if len(fields) == 0 {
		t.Error("NonReloadableFields returned empty")
	}

	expected := []string{"server.host", "server.port", "database.dsn", "rate_limit.num_shards"}
	for _, e := range expected {
		found := false
		for _, f := range fields {
			if f == e {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
}

func TestHolder_ReloadWithLogLevelChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
server:
  port: 9000

logging:
  level: "error"
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %s, want error", cfg.Logging.Level)
	}
}

func TestHolder_ReloadWithCleanupIntervalChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	newContent := `
server:
  port: 9000

rate_limit:
  num_shards: 16
  cleanup_interval: 10m
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg := h.Get()
	if cfg.RateLimit.CleanupInterval != 10*time.Minute {
		t.Errorf("RateLimit.CleanupInterval = %v, want 10m", cfg.RateLimit.CleanupInterval)
	}
}

func TestHolder_MultipleOnChangeCallbacks(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount1, callCount2 int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount1++
		mu.Unlock()
	})

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount2++
		mu.Unlock()
	})

	newContent := `
server:
  port: 9300
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if callCount1 != 1 {
		t.Errorf("first callback called %d times, want 1", callCount1)
	}
	if callCount2 != 1 {
		t.Errorf("second callback called %d times, want 1", callCount2)
	}
	mu.Unlock()
}

func TestHolder_WatchFileWithDifferentFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	dir := filepath.Dir(path)
	otherFile := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(otherFile, []byte("test: data"), 0644); err != nil {
		t.Fatalf("write other file: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cfg := h.Get()
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port changed unexpectedly to %d", cfg.Server.Port)
	}
}

func TestHolder_StopBeforeWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}

	h.Stop()

	cfg := h.Get()
	if cfg == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestHolder_StopAfterWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	h.Stop()

	cfg := h.Get()
	if cfg == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestNewHolder_InvalidPath(t *testing.T) {
	_, err := config.NewHolder("/nonexistent/path/config.yaml", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for nonexistent config path")
	}
}

func TestNewHolder_InvalidConfig(t *testing.T) {
	content := `
database:
  driver: "postgres"
`
	path := writeConfig(t, content)

	_, err := config.NewHolder(path, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestHolder_WatchFile_MultipleChanges(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	for i := 1; i <= 3; i++ {
		newContent := `
server:
  port: ` + fmt.Sprintf("%d", 9000+i) + `
`
		if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
			t.Fatalf("write new config: %v", err)
		}
		time.Sleep(60 * time.Millisecond)
	}

	mu.Lock()
	if callCount < 1 {
		t.Errorf("expected at least 1 callback, got %d", callCount)
	}
	mu.Unlock()
}

// Helpers

func validConfig() string {
	return `
server:
  port: 9000

rate_limit:
  num_shards: 16
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
