package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cloudwego/eino/schema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/paula/internal/toolbox"
)

// NewToolServer creates an MCP server exposing the toolbox's tools, so
// other MCP clients can call them. If filter is non-empty, only the tool
// with that name is exposed.
func NewToolServer(ctx context.Context, box *toolbox.ToolBox, filter string) (*mcpsdk.Server, error) {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "paula",
		Version: "0.1.0",
	}, nil)

	infos, err := box.Infos(ctx)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if filter != "" && info.Name != filter {
			continue
		}

		toolName := info.Name
		server.AddTool(toolInfoToMCPTool(info), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			res := box.Invoke(ctx, toolName, string(req.Params.Arguments))
			if res.Failed() {
				slog.Debug("mcp tool error", "tool", toolName, "error", res.Err)
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Err.Error()}},
				}, nil
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Output}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", toolName)
	}

	return server, nil
}

// toolInfoToMCPTool converts an eino tool schema to an mcp.Tool with
// JSON Schema. A tool without a declared schema gets a permissive object.
func toolInfoToMCPTool(info *schema.ToolInfo) *mcpsdk.Tool {
	inputSchema := map[string]any{"type": "object"}

	if info.ParamsOneOf != nil {
		if js, err := info.ParamsOneOf.ToJSONSchema(); err == nil && js != nil {
			data, err := json.Marshal(js)
			if err == nil {
				var m map[string]any
				if json.Unmarshal(data, &m) == nil {
					inputSchema = m
				}
			}
		}
	}

	return &mcpsdk.Tool{
		Name:        info.Name,
		Description: info.Desc,
		InputSchema: inputSchema,
	}
}
