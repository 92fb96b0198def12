// Package mcp exposes the task tool catalog over the Model Context Protocol.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"tally/internal/tools"
)

// NewMCPServer creates an MCP server exposing every tool in the registry.
// The server runs single-user: every invocation is scoped to userID.
func NewMCPServer(registry *tools.Registry, userID string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "tally",
		Version: "0.1.0",
	}, nil)

	for _, name := range registry.Names() {
		spec := registry.Spec(name)
		if spec == nil {
			continue
		}

		mcpTool := toolSpecToMCPTool(spec)

		// Capture name in closure
		toolName := name

		server.AddTool(mcpTool, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			outcome := registry.Invoke(ctx, toolName, req.Params.Arguments, userID)
			if !outcome.OK {
				slog.Debug("mcp tool failed", "tool", toolName, "kind", outcome.Kind)
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: outcome.Detail}},
				}, nil
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(outcome.Payload)}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", name)
	}

	return server
}

// Run serves MCP over stdio until the context is cancelled.
func Run(ctx context.Context, registry *tools.Registry, userID string) error {
	server := NewMCPServer(registry, userID)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
