package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"web":        {Command: "web-mcp"},
		"web_search": {Command: "search-mcp"},
		"db":         {Type: "carrier-pigeon"},
	}
	return cfg
}

func TestEnabledServers(t *testing.T) {
	cfg := testConfig()
	cfg.MCPDisable = []string{"db"}
	svc := New(cfg, nil)

	require.True(t, svc.IsEnabled("web"))
	require.False(t, svc.IsEnabled("db"))

	names := []string{}
	for name := range svc.EnabledServers() {
		names = append(names, name)
	}
	require.Equal(t, []string{"web", "web_search"}, names)

	cfg.MCPDisable = []string{"*"}
	require.False(t, New(cfg, nil).IsEnabled("web"))
}

func TestSplit(t *testing.T) {
	svc := New(testConfig(), nil)

	server, tool, ok := svc.split("web_search_query")
	require.True(t, ok)
	require.Equal(t, "web_search", server)
	require.Equal(t, "query", tool)

	server, tool, ok = svc.split("web_fetch")
	require.True(t, ok)
	require.Equal(t, "web", server)
	require.Equal(t, "fetch", tool)

	_, _, ok = svc.split("nope_tool")
	require.False(t, ok)
}

func TestCallToolErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MCPDisable = []string{"web"}
	svc := New(cfg, nil)

	_, err := svc.CallTool(context.Background(), "nope_tool", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.CallTool(context.Background(), "web_fetch", nil)
	require.ErrorContains(t, err, "disabled")

	_, err = svc.CallTool(context.Background(), "db_query", nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.ErrorContains(t, err, "unsupported MCP server type")
}

func TestToolsNoServers(t *testing.T) {
	tools, err := New(config.Default(), nil).Tools(context.Background())
	require.NoError(t, err)
	require.Empty(t, tools)
}

func TestText(t *testing.T) {
	require.Equal(t, "hello [Non-text content]", Text([]mcp.Content{
		mcp.TextContent{Type: "text", Text: "hello "},
		mcp.ImageContent{Type: "image", Data: "AA==", MIMEType: "image/png"},
	}))
}
