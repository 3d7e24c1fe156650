package gemini

import "github.com/room4-2/voxcore/internal/registry"

// Register wires the Gemini STT, LLM, and TTS adapters into reg under the
// "gemini" provider name for their respective kinds.
func Register(reg *registry.Registry) {
	reg.Register(registry.KindSTT, "gemini", NewSTT)
	reg.Register(registry.KindLLM, "gemini", NewLLM)
	reg.Register(registry.KindTTS, "gemini", NewTTS)
}
