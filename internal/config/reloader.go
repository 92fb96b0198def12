package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Reloader re-reads the config and .env files on demand and hands the new
// config to registered listeners. Reads of the current config are lock-free.
type Reloader struct {
	configPath string
	dotenvPath string

	current atomic.Pointer[Config]

	mu        sync.Mutex // serializes Reload and listener registration
	listeners []func(*Config)
}

// NewReloader creates a Reloader seeded with initial.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{configPath: configPath, dotenvPath: dotenvPath}
	r.current.Store(initial)
	return r
}

// Current returns the most recently loaded config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers fn to be called with each successfully reloaded config.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload re-reads the .env file in override mode, reloads the config so env
// templates pick up rotated values, swaps it in, and notifies listeners. On
// failure the previous config stays current.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	cfg, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}
