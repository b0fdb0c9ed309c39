// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the conversation.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/lmagent/internal/config"
	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
)

// Service lists and calls tools of the configured MCP servers.
type Service struct {
	servers    map[string]config.MCPServerConfig
	disabled   []string
	timeout    time.Duration
	inheritEnv bool
	logger     *log.Logger
}

// New creates a new MCP service.
func New(cfg config.Config, logger *log.Logger) *Service {
	return &Service{
		servers:    cfg.MCPServers,
		disabled:   cfg.MCPDisable,
		timeout:    cfg.MCPTimeout,
		inheritEnv: !cfg.MCPNoInheritEnv,
		logger:     logging.OrDiscard(logger),
	}
}

// IsEnabled reports whether the named MCP server is enabled.
func (s *Service) IsEnabled(name string) bool {
	return !slices.Contains(s.disabled, "*") &&
		!slices.Contains(s.disabled, name)
}

// EnabledServers iterates enabled MCP servers in stable order.
func (s *Service) EnabledServers() iter.Seq2[string, config.MCPServerConfig] {
	return func(yield func(string, config.MCPServerConfig) bool) {
		for _, name := range slices.Sorted(maps.Keys(s.servers)) {
			if !s.IsEnabled(name) {
				continue
			}
			if !yield(name, s.servers[name]) {
				return
			}
		}
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Tools returns tools grouped by server name.
func (s *Service) Tools(ctx context.Context) (map[string][]mcp.Tool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var mu sync.Mutex
	var wg errgroup.Group
	result := map[string][]mcp.Tool{}
	for sname, server := range s.EnabledServers() {
		wg.Go(func() error {
			serverTools, err := s.toolsFor(ctx, sname, server)
			if errors.Is(err, context.DeadlineExceeded) {
				return errs.Wrap(
					fmt.Errorf("timeout while listing tools for %q: check the command or URL and that the server is running", sname),
					"Could not list tools",
				)
			}
			if err != nil {
				return errs.Wrap(err, "Could not list tools")
			}
			s.logger.Debug("mcp tools", "server", sname, "count", len(serverTools))
			mu.Lock()
			result[sname] = append(result[sname], serverTools...)
			mu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("mcp tools: %w", err)
	}
	return result, nil
}

// split resolves "<server>_<tool>". Server names may contain underscores, so
// the longest configured server prefix wins.
func (s *Service) split(fullName string) (string, string, bool) {
	best := ""
	for name := range s.servers {
		if strings.HasPrefix(fullName, name+"_") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return "", "", false
	}
	return best, strings.TrimPrefix(fullName, best+"_"), true
}

// CallTool executes a tool call against the configured server.
// fullName must be of the form: <server>_<tool>.
func (s *Service) CallTool(ctx context.Context, fullName string, args map[string]any) (string, error) {
	sname, tool, ok := s.split(fullName)
	if !ok {
		return "", errs.Kind(errs.ErrNotFound, fmt.Errorf("mcp: no server for tool %q", fullName))
	}
	if !s.IsEnabled(sname) {
		return "", fmt.Errorf("mcp: server is disabled: %q", sname)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cli, err := s.initClient(ctx, s.servers[sname])
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}
	defer cli.Close() //nolint:errcheck

	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args
	s.logger.Debug("mcp call", "server", sname, "tool", tool)
	result, err := cli.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("mcp: %w", err)
	}

	text := Text(result.Content)
	if result.IsError {
		return "", errors.New(text)
	}
	return text, nil
}

// Text concatenates the text parts of a tool result.
func Text(contents []mcp.Content) string {
	var sb strings.Builder
	for _, content := range contents {
		switch content := content.(type) {
		case mcp.TextContent:
			sb.WriteString(content.Text)
		default:
			sb.WriteString("[Non-text content]")
		}
	}
	return sb.String()
}

func (s *Service) initClient(ctx context.Context, server config.MCPServerConfig) (*client.Client, error) {
	var cli *client.Client
	var err error

	switch server.Type {
	case "", "stdio":
		env := server.Env
		if s.inheritEnv {
			env = append(os.Environ(), server.Env...)
		}
		cli, err = client.NewStdioMCPClient(
			server.Command,
			env,
			server.Args...,
		)
	case "sse":
		cli, err = client.NewSSEMCPClient(server.URL)
	case "http":
		cli, err = client.NewStreamableHttpClient(server.URL)
	default:
		return nil, errs.Kind(errs.ErrValidation, fmt.Errorf("unsupported MCP server type: %q, supported types are: stdio, sse, http", server.Type))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := cli.Start(ctx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	if _, err := cli.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return cli, nil
}

func (s *Service) toolsFor(ctx context.Context, name string, server config.MCPServerConfig) ([]mcp.Tool, error) {
	cli, err := s.initClient(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", name, err)
	}
	defer cli.Close() //nolint:errcheck

	tools, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("could not setup %s: %w", name, err)
	}
	return tools.Tools, nil
}
