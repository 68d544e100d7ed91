// Package mcp resolves named MCP endpoints to client sessions and proxies
// tool calls to them.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/paula/internal/config"
)

// ToolDescriptor is the surfaced shape of one remote tool.
type ToolDescriptor struct {
	Server      string
	Name        string
	Description string
}

// Registry maps server names to endpoints. Names are resolved at startup;
// sessions connect lazily on first use and are reused after.
type Registry struct {
	servers map[string]*server
	logger  *slog.Logger
}

type server struct {
	endpoint string

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

func NewRegistry(cfgs []config.MCPServerConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		servers: make(map[string]*server, len(cfgs)),
		logger:  logger.With("component", "mcp"),
	}
	for _, cfg := range cfgs {
		r.servers[cfg.Name] = &server{endpoint: cfg.Endpoint}
	}
	return r
}

// Servers returns the configured server names.
func (r *Registry) Servers() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	return names
}

// Has reports whether a server name is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.servers[name]
	return ok
}

// Call invokes a tool on a named server and returns the text content of
// the result. A tool-reported error comes back as an error carrying the
// remote message.
func (r *Registry) Call(ctx context.Context, serverName, tool string, args map[string]any) (string, error) {
	srv, ok := r.servers[serverName]
	if !ok {
		return "", fmt.Errorf("unknown mcp server %q", serverName)
	}

	session, err := srv.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("mcp server %q: %w", serverName, err)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		// The session may have gone stale; drop it so the next call
		// reconnects.
		srv.reset()
		return "", fmt.Errorf("mcp call %s/%s: %w", serverName, tool, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s/%s failed: %s", serverName, tool, text)
	}
	return text, nil
}

// ListTools returns the tools a named server advertises.
func (r *Registry) ListTools(ctx context.Context, serverName string) ([]ToolDescriptor, error) {
	srv, ok := r.servers[serverName]
	if !ok {
		return nil, fmt.Errorf("unknown mcp server %q", serverName)
	}

	session, err := srv.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: %w", serverName, err)
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		srv.reset()
		return nil, fmt.Errorf("mcp list tools %q: %w", serverName, err)
	}

	tools := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, ToolDescriptor{
			Server:      serverName,
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return tools, nil
}

// Close shuts down all open sessions.
func (r *Registry) Close() {
	for name, srv := range r.servers {
		srv.mu.Lock()
		if srv.session != nil {
			if err := srv.session.Close(); err != nil {
				r.logger.Debug("mcp session close", "server", name, "error", err)
			}
			srv.session = nil
		}
		srv.mu.Unlock()
	}
}

func (s *server) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session, nil
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "paula",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint: s.endpoint,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

func (s *server) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}
}

func contentText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
