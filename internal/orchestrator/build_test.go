package orchestrator

import (
	"context"
	"testing"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

type stubLLM struct{ name string }

func (s stubLLM) Name() string { return s.name }
func (s stubLLM) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	return nil, nil
}

func TestChainForLeadsWithConfiguredProviderAndDedups(t *testing.T) {
	chain := chainFor(registry.KindLLM, "ollama")
	if len(chain) == 0 || chain[0] != "ollama" {
		t.Fatalf("expected configured provider first, got %v", chain)
	}
	seen := map[string]int{}
	for _, name := range chain {
		seen[name]++
	}
	for name, n := range seen {
		if n > 1 {
			t.Errorf("provider %q appears %d times in chain %v", name, n, chain)
		}
	}
}

func TestBuildLLMWrapsRegisteredCandidatesInFallbackOrder(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindLLM, "openai", func(cfg registry.ProviderConfig) (any, error) {
		return stubLLM{name: "openai"}, nil
	})
	reg.Register(registry.KindLLM, "ollama", func(cfg registry.ProviderConfig) (any, error) {
		return stubLLM{name: "ollama"}, nil
	})

	cfg := &config.ConfigSnapshot{LLMProvider: "openai", LLMModel: "gpt"}
	port, err := buildLLM(reg, cfg, func(int, int) {})
	if err != nil {
		t.Fatalf("buildLLM: %v", err)
	}
	if port == nil {
		t.Fatal("expected a non-nil fallback-wrapped LLM port")
	}
}

func TestBuildLLMErrorsWhenChainHasNoRegisteredProvider(t *testing.T) {
	reg := registry.New()
	cfg := &config.ConfigSnapshot{LLMProvider: "openai"}
	if _, err := buildLLM(reg, cfg, func(int, int) {}); err == nil {
		t.Fatal("expected an error when no llm provider is registered")
	}
}

func TestBuildToolReturnsNilWithoutErrorWhenNoneRegistered(t *testing.T) {
	reg := registry.New()
	cfg := &config.ConfigSnapshot{}
	port, err := buildTool(reg, cfg)
	if err != nil {
		t.Fatalf("buildTool: %v", err)
	}
	if port != nil {
		t.Fatal("expected a nil tool port when no tool providers are registered")
	}
}
