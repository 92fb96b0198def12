package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"tally/internal/config"
)

// provider defers model construction until first use so a misconfigured
// driver only fails when asked for.
type provider struct {
	cfg  config.ProviderConfig
	once sync.Once
	mdl  model.ToolCallingChatModel
	err  error
}

func (p *provider) get(ctx context.Context) (model.ToolCallingChatModel, error) {
	p.once.Do(func() {
		p.mdl, p.err = CreateModel(ctx, p.cfg)
	})
	return p.mdl, p.err
}

// Registry holds the named model providers from config. The provider set is
// fixed at construction; only initialization happens lazily.
type Registry struct {
	providers   map[string]*provider
	defaultName string
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{
		providers:   make(map[string]*provider, len(cfg.Providers)),
		defaultName: cfg.Default,
	}
	for name, provCfg := range cfg.Providers {
		r.providers[name] = &provider{cfg: provCfg}
	}
	return r
}

// Get returns the named model, initializing it on first use.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}
	return p.get(ctx)
}

// Default returns the default model.
func (r *Registry) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	if r.defaultName == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	return r.Get(ctx, r.defaultName)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
