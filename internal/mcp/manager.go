package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aicoder-go/aicoder/internal/tools"
)

// Manager coordinates MCP server lifecycles: starting the stdio servers
// declared in .mcp.json, discovering each one's tools via tools/list, and
// registering an MCPToolWrapper per tool so the agentic loop sees them
// like any other tool-registry entry.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*MCPClient // keyed by server name
	cwd     string
	log     *zap.Logger
}

// NewManager creates a new MCP manager rooted at cwd. Logging defaults to
// a no-op logger; call SetLogger to route startup/shutdown diagnostics
// through the application's structured logger.
func NewManager(cwd string) *Manager {
	return &Manager{
		clients: make(map[string]*MCPClient),
		cwd:     cwd,
		log:     zap.NewNop(),
	}
}

// SetLogger replaces the manager's logger.
func (m *Manager) SetLogger(log *zap.Logger) {
	if log != nil {
		m.log = log
	}
}

// StartServers connects to all configured MCP servers, discovers their tools,
// and registers them in the provided tool registry. A server that fails to
// start or list tools is skipped (logged, not fatal) so one misconfigured
// server doesn't block the rest.
func (m *Manager) StartServers(ctx context.Context, configs map[string]ServerConfig, registry *tools.Registry) error {
	var firstErr error

	for name, cfg := range configs {
		client, err := m.startServer(ctx, name, cfg)
		if err != nil {
			m.log.Warn("mcp server failed to start", zap.String("server", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		m.mu.Lock()
		m.clients[name] = client
		m.mu.Unlock()

		mcpTools, err := client.ListTools(ctx)
		if err != nil {
			m.log.Warn("mcp server tool discovery failed", zap.String("server", name), zap.Error(err))
			continue
		}

		for _, tool := range mcpTools {
			wrapper := NewMCPToolWrapper(name, tool, client)
			registry.Register(wrapper)
		}

		m.log.Info("mcp server tools registered", zap.String("server", name), zap.Int("count", len(mcpTools)))
	}

	return firstErr
}

// startServer creates a transport, connects, and initializes a single MCP server.
func (m *Manager) startServer(ctx context.Context, name string, cfg ServerConfig) (*MCPClient, error) {
	transport, err := m.transportForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	client := NewMCPClient(name, transport)

	if err := client.Initialize(ctx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return client, nil
}

// transportForConfig creates the stdio transport for the config. Every
// server in .mcp.json launches as a subprocess (§4.5); there is no
// HTTP/SSE server variant in scope.
func (m *Manager) transportForConfig(cfg ServerConfig) (Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("server config must have 'command'")
	}
	return NewStdioTransport(cfg.Command, cfg.Args, cfg.Env, m.cwd)
}

// Shutdown gracefully closes all server connections.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			m.log.Warn("error closing mcp server", zap.String("server", name), zap.Error(err))
		}
	}
	m.clients = make(map[string]*MCPClient)
}

// Servers returns the sorted list of connected server names.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client returns the client for a named server.
func (m *Manager) Client(name string) (*MCPClient, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[name]
	return client, ok
}

// ServerStatus returns a human-readable status string for an MCP server,
// for the /mcp debug command.
func (m *Manager) ServerStatus(name string) string {
	m.mu.Lock()
	client, ok := m.clients[name]
	m.mu.Unlock()

	if !ok {
		return fmt.Sprintf("%s: not connected", name)
	}

	info := client.ServerInfoResult()
	caps := client.Capabilities()

	status := fmt.Sprintf("%s: connected", name)
	if info.Name != "" {
		status += fmt.Sprintf(" (server: %s", info.Name)
		if info.Version != "" {
			status += fmt.Sprintf(" v%s", info.Version)
		}
		status += ")"
	}

	if caps.Tools != nil {
		status += " [tools]"
	}

	return status
}

// joinStrings joins strs with sep.
func joinStrings(strs []string, sep string) string {
	return strings.Join(strs, sep)
}
