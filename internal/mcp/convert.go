package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"tally/internal/tools"
)

// toolSpecToMCPTool converts a tools.ToolSpec to an mcp.Tool with JSON Schema.
func toolSpecToMCPTool(spec *tools.ToolSpec) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: spec.ToJSONSchema(),
	}
}
