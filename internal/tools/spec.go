// Package tools declares the fixed catalog of task operations and executes
// them against the task store. It knows nothing about conversations.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/schema"
)

// ToolSpec describes a single tool and its parameter schema.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	// Destructive tools require an explicit confirmation turn before the
	// orchestrator will execute them.
	Destructive bool `json:"destructive,omitempty"`
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"` // "string", "number", "boolean", "integer"
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ValidateArgs checks raw JSON arguments against the spec: required fields
// present, types matching, enum membership, no unknown fields.
func (s *ToolSpec) ValidateArgs(raw json.RawMessage) error {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("arguments are not a JSON object: %w", err)
		}
	}

	for name, p := range s.Parameters {
		v, ok := args[name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", name)
			}
			continue
		}
		if err := checkParam(name, &p, v); err != nil {
			return err
		}
	}

	for name := range args {
		if _, ok := s.Parameters[name]; !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	return nil
}

func checkParam(name string, p *ParamSpec, v any) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", name)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("parameter %q must be one of %v", name, p.Enum)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", name)
		}
	case "integer":
		f, ok := v.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("parameter %q must be an integer", name)
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("parameter %q must be a number", name)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ToToolInfo converts the spec to an Eino ToolInfo for model binding.
func (s *ToolSpec) ToToolInfo() *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: s.Name,
		Desc: s.Description,
	}

	if len(s.Parameters) > 0 {
		params := make(map[string]*schema.ParameterInfo, len(s.Parameters))
		for name, p := range s.Parameters {
			params[name] = &schema.ParameterInfo{
				Type:     paramTypeToDataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
				Enum:     p.Enum,
			}
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}

	return info
}

// ToJSONSchema converts the parameter specs to a JSON Schema object, as used
// by the MCP server.
func (s *ToolSpec) ToJSONSchema() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	var required []string

	for name, p := range s.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop

		if p.Required {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// paramTypeToDataType maps string type names to Eino DataType constants.
func paramTypeToDataType(t string) schema.DataType {
	switch t {
	case "string":
		return schema.String
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	default:
		return schema.String
	}
}
