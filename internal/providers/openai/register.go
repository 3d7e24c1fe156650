package openai

import "github.com/room4-2/voxcore/internal/registry"

// Register wires the OpenAI STT, LLM, and TTS adapters into reg under the
// "openai" provider name for their respective kinds.
func Register(reg *registry.Registry) {
	reg.Register(registry.KindSTT, "openai", NewSTT)
	reg.Register(registry.KindLLM, "openai", NewLLM)
	reg.Register(registry.KindTTS, "openai", NewTTS)
}
