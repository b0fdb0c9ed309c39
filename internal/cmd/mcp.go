package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	mmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	imcp "github.com/dotcommander/lmagent/internal/mcp"
	"github.com/dotcommander/lmagent/internal/present"
	"github.com/dotcommander/lmagent/internal/tools"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			mcpList(os.Stdout, present.StdoutStyles(), &rt.cfg)
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List the tools enabled MCP servers add to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), rt.cfg.MCPTimeout)
			defer cancel()
			return mcpListTools(ctx, os.Stdout, present.StdoutStyles(), imcp.New(rt.cfg, nil))
		},
	})

	return mcpCmd
}

func mcpList(w io.Writer, s present.Styles, cfg *config.Config) {
	svc := imcp.New(*cfg, nil)
	for _, name := range slices.Sorted(maps.Keys(cfg.MCPServers)) {
		line := name
		if svc.IsEnabled(name) {
			line += s.Timeago.Render(" (enabled)")
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// mcpListTools prints each tool under the name the model calls it by.
func mcpListTools(ctx context.Context, w io.Writer, s present.Styles, svc *imcp.Service) error {
	servers, err := svc.Tools(ctx)
	if err != nil {
		return errs.Wrap(err, "Could not list MCP tools.")
	}

	for _, server := range slices.Sorted(maps.Keys(servers)) {
		list := servers[server]
		slices.SortFunc(list, func(a, b mmcp.Tool) int { return strings.Compare(a.Name, b.Name) })
		for _, tool := range list {
			_, _ = fmt.Fprintln(w, s.Timeago.Render(server+" > ")+tools.MCPToolName(server, tool.Name))
		}
	}
	return nil
}
