package mcptool

import (
	"context"

	"github.com/room4-2/voxcore/internal/registry"
)

// Register connects to every configured MCP server once and wires the
// resulting Provider into reg under the "mcp" provider name. Connecting is
// eager (like whisper's model load) because ToolPort.Invoke must not pay
// per-call handshake latency.
func Register(ctx context.Context, reg *registry.Registry, servers []ServerConfig) error {
	p, err := NewProvider(ctx, servers)
	if err != nil {
		return err
	}
	reg.Register(registry.KindTool, "mcp", func(registry.ProviderConfig) (any, error) {
		return p, nil
	})
	return nil
}
