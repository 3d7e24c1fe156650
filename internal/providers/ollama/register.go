package ollama

import "github.com/room4-2/voxcore/internal/registry"

// Register wires the Ollama LLM adapter into reg under the "ollama"
// provider name, the last tier of the LLM fallback chain.
func Register(reg *registry.Registry) {
	reg.Register(registry.KindLLM, "ollama", NewLLM)
}
