package tools

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient lists and calls tools exposed by MCP servers.
type MCPClient interface {
	Tools(ctx context.Context) (map[string][]mcp.Tool, error)
	CallTool(ctx context.Context, fullName string, args map[string]any) (string, error)
}

// MCPToolName is the registry name of an MCP server tool.
func MCPToolName(server, tool string) string {
	return server + "_" + tool
}

// RegisterMCP registers every tool of every enabled MCP server, ordered by
// server then tool name.
func RegisterMCP(ctx context.Context, reg *Registry, client MCPClient) error {
	byServer, err := client.Tools(ctx)
	if err != nil {
		return fmt.Errorf("register mcp tools: %w", err)
	}
	for _, server := range slices.Sorted(maps.Keys(byServer)) {
		serverTools := slices.SortedFunc(slices.Values(byServer[server]), func(a, b mcp.Tool) int {
			switch {
			case a.Name < b.Name:
				return -1
			case a.Name > b.Name:
				return 1
			}
			return 0
		})
		for _, tool := range serverTools {
			name := MCPToolName(server, tool.Name)
			if err := reg.Register(Tool{
				Name:        name,
				Description: tool.Description,
				Parameters:  mcpSchema(tool),
				Handler:     mcpHandler(client, name),
			}); err != nil {
				return fmt.Errorf("register mcp tools: %w", err)
			}
		}
	}
	return nil
}

func mcpSchema(tool mcp.Tool) map[string]any {
	properties := tool.InputSchema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	return schema
}

func mcpHandler(client MCPClient, name string) Handler {
	return func(ctx context.Context, args Args) Result {
		out, err := client.CallTool(ctx, name, args)
		if err != nil {
			return Failure(errs.Kind(errs.ErrExternal, err))
		}
		return Success(map[string]any{"content": out})
	}
}
