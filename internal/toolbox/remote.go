package toolbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/paula/internal/skills"
)

// MCPRegistry is the part of the MCP client registry the proxy tool
// needs. Keeps this package decoupled from the mcp server bridge.
type MCPRegistry interface {
	Has(name string) bool
	Call(ctx context.Context, serverName, tool string, args map[string]any) (string, error)
}

// MCPCallTool proxies a tool call to a configured MCP server.
type MCPCallTool struct {
	registry MCPRegistry
}

func NewMCPCallTool(registry MCPRegistry) *MCPCallTool {
	return &MCPCallTool{registry: registry}
}

func (t *MCPCallTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("mcp_call", "Call a tool exposed by a configured MCP server.",
		map[string]*schema.ParameterInfo{
			"server": {
				Type:     schema.String,
				Desc:     "Name of the configured MCP server.",
				Required: true,
			},
			"tool": {
				Type:     schema.String,
				Desc:     "Tool name on that server.",
				Required: true,
			},
			"arguments": {
				Type: schema.Object,
				Desc: "Arguments for the remote tool.",
			},
		}), nil
}

func (t *MCPCallTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Server    string         `json:"server"`
		Tool      string         `json:"tool"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("mcp_call: parse input: %w", err)
	}
	if input.Server == "" || input.Tool == "" {
		return "", fmt.Errorf("mcp_call: server and tool are required")
	}
	if !t.registry.Has(input.Server) {
		return "", &ToolNotFoundError{Name: input.Server}
	}
	return t.registry.Call(ctx, input.Server, input.Tool, input.Arguments)
}

// SkillCallTool proxies a payload to a configured skill endpoint.
type SkillCallTool struct {
	registry *skills.Registry
}

func NewSkillCallTool(registry *skills.Registry) *SkillCallTool {
	return &SkillCallTool{registry: registry}
}

func (t *SkillCallTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo("skill_call", "Call a configured skill endpoint with a JSON payload.",
		map[string]*schema.ParameterInfo{
			"skill": {
				Type:     schema.String,
				Desc:     "Name of the configured skill.",
				Required: true,
			},
			"payload": {
				Type: schema.Object,
				Desc: "JSON payload for the skill.",
			},
		}), nil
}

func (t *SkillCallTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input struct {
		Skill   string          `json:"skill"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("skill_call: parse input: %w", err)
	}
	if input.Skill == "" {
		return "", fmt.Errorf("skill_call: skill is required")
	}
	if t.registry.Get(input.Skill) == nil {
		return "", &ToolNotFoundError{Name: input.Skill}
	}
	return t.registry.Invoke(ctx, input.Skill, input.Payload)
}

var (
	_ tool.InvokableTool = (*MCPCallTool)(nil)
	_ tool.InvokableTool = (*SkillCallTool)(nil)
)
