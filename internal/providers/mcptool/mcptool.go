// Package mcptool adapts one or more Model Context Protocol servers to
// ports.ToolPort using the official MCP Go SDK. A Provider connects to every
// configured server at construction time, imports each server's tool
// catalogue, and routes Invoke calls to whichever server declared the
// named tool.
package mcptool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/room4-2/voxcore/internal/ports"
)

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	Name    string
	Command string            // stdio transport: executable + args, space-separated
	URL     string            // streamable-http transport
	Env     map[string]string // stdio transport only
}

type toolRoute struct {
	serverName string
}

// Provider routes ToolPort.Invoke calls to the MCP server that declared
// each named tool.
type Provider struct {
	client *mcpsdk.Client

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
	routes   map[string]toolRoute
}

// NewProvider connects to every server in servers and imports their tool
// catalogues. A server that fails to connect aborts construction; callers
// that want partial availability should split servers across providers.
func NewProvider(ctx context.Context, servers []ServerConfig) (*Provider, error) {
	p := &Provider{
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "voxcore", Version: "1.0.0"}, nil),
		sessions: make(map[string]*mcpsdk.ClientSession),
		routes:   make(map[string]toolRoute),
	}

	for _, cfg := range servers {
		if err := p.connect(ctx, cfg); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcptool: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch {
	case cfg.Command != "":
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcptool: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case cfg.URL != "":
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("mcptool: server %q needs either command or url", cfg.Name)
	}

	session, err := p.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcptool: connect to %q: %w", cfg.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[cfg.Name] = session
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("mcptool: list tools for %q: %w", cfg.Name, err)
		}
		p.routes[tool.Name] = toolRoute{serverName: cfg.Name}
	}
	return nil
}

func (p *Provider) Name() string { return "mcp" }

func (p *Provider) Invoke(ctx context.Context, name string, argumentsJSON string) (ports.ToolResult, error) {
	p.mu.RLock()
	route, ok := p.routes[name]
	var session *mcpsdk.ClientSession
	if ok {
		session = p.sessions[route.serverName]
	}
	p.mu.RUnlock()
	if !ok || session == nil {
		return ports.ToolResult{}, fmt.Errorf("mcptool: tool %q not found", name)
	}

	var argsMap map[string]any
	if argumentsJSON != "" && argumentsJSON != "{}" {
		if err := sonic.Unmarshal([]byte(argumentsJSON), &argsMap); err != nil {
			return ports.ToolResult{}, fmt.Errorf("mcptool: invalid arguments for %q: %w", name, err)
		}
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: argsMap})
	if err != nil {
		return ports.ToolResult{}, fmt.Errorf("mcptool: call %q: %w", name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if result.IsError {
		return ports.ToolResult{Err: sb.String()}, nil
	}
	return ports.ToolResult{ResultJSON: sb.String()}, nil
}

// Close disconnects every server session.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, s := range p.sessions {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
