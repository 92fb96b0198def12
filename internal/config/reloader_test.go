package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestReloaderCurrent(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 9999

	r := NewReloader("", "", cfg)
	if got := r.Current().Server.Port; got != 9999 {
		t.Errorf("Current().Server.Port = %d, want 9999", got)
	}
}

func TestReloaderReload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	dotenvPath := filepath.Join(dir, ".env")

	writeFile := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	writeFile(dotenvPath, "TALLY_RELOAD_VAR=initial\n")
	writeFile(configPath, `{
		// gateway
		"server": {"host": "127.0.0.1", "port": 18520}
	}`)

	initial := Default()
	r := NewReloader(configPath, dotenvPath, initial)

	var notified atomic.Int32
	var lastPort atomic.Int64
	r.OnReload(func(cfg *Config) {
		notified.Add(1)
		lastPort.Store(int64(cfg.Server.Port))
	})

	// Rotate the env var, then reload.
	writeFile(dotenvPath, "TALLY_RELOAD_VAR=rotated\n")
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := os.Getenv("TALLY_RELOAD_VAR"); got != "rotated" {
		t.Errorf("TALLY_RELOAD_VAR = %q, want %q", got, "rotated")
	}
	if notified.Load() != 1 {
		t.Errorf("listener called %d times, want 1", notified.Load())
	}
	if lastPort.Load() != 18520 {
		t.Errorf("listener saw port %d, want 18520", lastPort.Load())
	}
	if r.Current() == initial {
		t.Error("Current() still returns the pre-reload config")
	}
}

func TestReloaderMissingDotenv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"server": {"port": 18520}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, filepath.Join(dir, "absent.env"), Default())
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload with missing .env: %v", err)
	}
}

func TestReloaderBadConfigKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{broken`), 0o600); err != nil {
		t.Fatal(err)
	}

	initial := Default()
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)

	if err := r.Reload(); err == nil {
		t.Fatal("expected error for unparseable config")
	}
	if r.Current() != initial {
		t.Error("failed reload should leave the previous config current")
	}
}
