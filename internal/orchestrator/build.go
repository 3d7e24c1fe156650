package orchestrator

import (
	"fmt"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/fallback"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

// fallbackChains lists, per port kind, the failover order a call falls back
// through when its configured primary provider's breaker opens. The
// configured provider always leads its chain; the remaining tiers are this
// table's other entries for that kind, in table order. Names with no
// registered factory are skipped when the ports are built.
var fallbackChains = map[registry.Kind][]string{
	registry.KindLLM:  {"gemini", "openai", "ollama"},
	registry.KindSTT:  {"gemini", "openai", "whisper"},
	registry.KindTTS:  {"gemini", "openai"},
	registry.KindTool: {"mcp", "local"},
}

func chainFor(kind registry.Kind, primary string) []string {
	chain := []string{primary}
	for _, name := range fallbackChains[kind] {
		if name != primary {
			chain = append(chain, name)
		}
	}
	return chain
}

// buildPorts instantiates the fallback-wrapped STT/LLM/TTS/Tool ports for
// one call from cfg's provider selections, per spec §4.3's registry lookup
// and §4.4's failover wrapping.
func buildPorts(reg *registry.Registry, cfg *config.ConfigSnapshot, onActivate func(kind string) func(from, to int)) (ports.STTPort, ports.LLMPort, ports.TTSPort, ports.ToolPort, error) {
	sttPort, err := buildSTT(reg, cfg, onActivate("stt"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	llmPort, err := buildLLM(reg, cfg, onActivate("llm"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ttsPort, err := buildTTS(reg, cfg, onActivate("tts"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	toolPort, err := buildTool(reg, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return sttPort, llmPort, ttsPort, toolPort, nil
}

func buildSTT(reg *registry.Registry, cfg *config.ConfigSnapshot, onActivate func(int, int)) (ports.STTPort, error) {
	var candidates []ports.STTPort
	for _, name := range chainFor(registry.KindSTT, cfg.STTProvider) {
		if !reg.Has(registry.KindSTT, name) {
			continue
		}
		inst, err := reg.Create(registry.KindSTT, name, registry.ProviderConfig{"language": cfg.STTLanguage})
		if err != nil {
			continue
		}
		p, ok := inst.(ports.STTPort)
		if !ok {
			return nil, fmt.Errorf("orchestrator: provider %q does not implement ports.STTPort", name)
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("orchestrator: no stt providers registered for chain starting at %q", cfg.STTProvider)
	}
	return fallback.NewSTT(onActivate, candidates...), nil
}

func buildLLM(reg *registry.Registry, cfg *config.ConfigSnapshot, onActivate func(int, int)) (ports.LLMPort, error) {
	var candidates []ports.LLMPort
	for _, name := range chainFor(registry.KindLLM, cfg.LLMProvider) {
		if !reg.Has(registry.KindLLM, name) {
			continue
		}
		inst, err := reg.Create(registry.KindLLM, name, registry.ProviderConfig{"model": cfg.LLMModel})
		if err != nil {
			continue
		}
		p, ok := inst.(ports.LLMPort)
		if !ok {
			return nil, fmt.Errorf("orchestrator: provider %q does not implement ports.LLMPort", name)
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("orchestrator: no llm providers registered for chain starting at %q", cfg.LLMProvider)
	}
	return fallback.NewLLM(onActivate, candidates...), nil
}

func buildTTS(reg *registry.Registry, cfg *config.ConfigSnapshot, onActivate func(int, int)) (ports.TTSPort, error) {
	var candidates []ports.TTSPort
	for _, name := range chainFor(registry.KindTTS, cfg.TTSProvider) {
		if !reg.Has(registry.KindTTS, name) {
			continue
		}
		inst, err := reg.Create(registry.KindTTS, name, registry.ProviderConfig{"voice": cfg.TTSVoice})
		if err != nil {
			continue
		}
		p, ok := inst.(ports.TTSPort)
		if !ok {
			return nil, fmt.Errorf("orchestrator: provider %q does not implement ports.TTSPort", name)
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("orchestrator: no tts providers registered for chain starting at %q", cfg.TTSProvider)
	}
	return fallback.NewTTS(onActivate, candidates...), nil
}

func buildTool(reg *registry.Registry, cfg *config.ConfigSnapshot) (ports.ToolPort, error) {
	var candidates []ports.ToolPort
	for _, name := range fallbackChains[registry.KindTool] {
		if !reg.Has(registry.KindTool, name) {
			continue
		}
		inst, err := reg.Create(registry.KindTool, name, nil)
		if err != nil {
			continue
		}
		p, ok := inst.(ports.ToolPort)
		if !ok {
			return nil, fmt.Errorf("orchestrator: provider %q does not implement ports.ToolPort", name)
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		// A call with no tools.schema[] entries never invokes ToolPort;
		// leave it nil rather than failing session construction.
		return nil, nil
	}
	return fallback.NewTool(candidates...), nil
}
