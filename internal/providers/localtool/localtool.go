// Package localtool implements ports.ToolPort with a small fixed set of
// in-process functions, adapted from the teacher's single hardcoded
// company-info tool. It is the last tier of the tool fallback chain: it
// needs no network round trip and never fails once registered.
package localtool

import (
	"context"
	"fmt"

	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

// Func is one built-in tool's handler. It receives the raw JSON arguments
// string and returns the JSON result string.
type Func func(ctx context.Context, argumentsJSON string) (string, error)

// Provider dispatches ToolPort.Invoke to a fixed map of built-in functions.
type Provider struct {
	funcs map[string]Func
}

// NewProvider returns a Provider seeded with the default built-ins plus any
// extra functions the caller supplies (extra overrides a default of the
// same name).
func NewProvider(extra map[string]Func) *Provider {
	funcs := defaultFuncs()
	for name, fn := range extra {
		funcs[name] = fn
	}
	return &Provider{funcs: funcs}
}

func defaultFuncs() map[string]Func {
	return map[string]Func{
		"get_company_info": func(ctx context.Context, argumentsJSON string) (string, error) {
			return companyInfoJSON(), nil
		},
	}
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) Invoke(ctx context.Context, name string, argumentsJSON string) (ports.ToolResult, error) {
	fn, ok := p.funcs[name]
	if !ok {
		return ports.ToolResult{}, fmt.Errorf("localtool: unknown function %q", name)
	}
	result, err := fn(ctx, argumentsJSON)
	if err != nil {
		return ports.ToolResult{Err: err.Error()}, nil
	}
	return ports.ToolResult{ResultJSON: result}, nil
}

// Register wires the local built-in tool adapter into reg under the
// "local" provider name.
func Register(reg *registry.Registry, extra map[string]Func) {
	provider := NewProvider(extra)
	reg.Register(registry.KindTool, "local", func(registry.ProviderConfig) (any, error) {
		return provider, nil
	})
}
