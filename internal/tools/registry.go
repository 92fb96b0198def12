package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"
)

// Handler executes one tool call for the given owner. Handlers never return
// Go errors for business failures; everything is folded into the Outcome.
type Handler func(ctx context.Context, ownerID string, args json.RawMessage) Outcome

// Registry holds the fixed tool catalog.
type Registry struct {
	specs    map[string]*ToolSpec
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]*ToolSpec),
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool to the catalog.
func (r *Registry) Register(spec *ToolSpec, h Handler) {
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q", spec.Name))
	}
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = h
	r.order = append(r.order, spec.Name)
}

// Invoke validates args against the tool's schema and runs its handler scoped
// to ownerID. Validation failures never reach the handler.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage, ownerID string) Outcome {
	spec, ok := r.specs[name]
	if !ok {
		return Failure(FailUnknownTool, fmt.Sprintf("unknown tool %q", name))
	}
	if ownerID == "" {
		return Failure(FailInvalidInput, "missing owner id")
	}
	if err := spec.ValidateArgs(args); err != nil {
		return Failure(FailInvalidInput, err.Error())
	}

	out := r.handlers[name](ctx, ownerID, args)
	if !out.OK {
		slog.Debug("tool failed", "tool", name, "kind", out.Kind, "detail", out.Detail)
	}
	return out
}

// Spec returns the spec for a tool name, or nil.
func (r *Registry) Spec(name string) *ToolSpec {
	return r.specs[name]
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ToolInfos returns the catalog as Eino ToolInfos, in registration order.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.specs[name].ToToolInfo())
	}
	return infos
}
