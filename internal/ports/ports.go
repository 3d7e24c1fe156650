// Package ports defines the five provider-agnostic contracts of spec §4.2.
// Every vendor SDK (STT/LLM/TTS/tool/config backend) is adapted to one of
// these interfaces under internal/providers; no other package in this
// module imports a vendor SDK directly.
package ports

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
)

// Message is one turn of ConversationContext, mirrored here so LLMPort
// implementations don't need to import internal/convo.
type Message struct {
	Role       string // system | user | assistant | tool
	Content    string
	ToolCalls  []ToolCallSpec
	ToolCallID string
}

// ToolCallSpec is a committed (non-streaming) tool call on an assistant message.
type ToolCallSpec struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// ToolDefinition is a tool exposed to the LLM, from ConfigSnapshot's tools.schema[].
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// GenerateParams carries the sampling/config knobs of an LLM request.
type GenerateParams struct {
	Temperature float64
	MaxTokens   int
}

// GenerateRequest is the input to LLMPort.GenerateStream.
type GenerateRequest struct {
	Messages []Message
	Tools    []ToolDefinition
	Params   GenerateParams

	// ForceStop instructs the adapter to omit Tools entirely and force a
	// plain text (finish_reason=stop) completion, regardless of Tools'
	// contents. Set by the orchestrator's tool-calling loop (runTurn) once
	// it hits its depth cap (spec §4.7: "max depth 5, then force stop").
	ForceStop bool
}

// STTPort consumes audio until the stream closes or is cancelled, yielding
// partial frames continuously and a final frame per utterance. Implementations
// must be idempotent on cancellation: a second Close/cancel is a no-op.
type STTPort interface {
	// TranscribeStream starts a session and returns a channel of TextFrame.
	// The returned channel is closed when the session ends (audioIn closed,
	// ctx cancelled, or a fatal error — in which case an ErrorFrame precedes
	// closure on errs).
	TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (out <-chan frame.TextFrame, errs <-chan frame.ErrorFrame)
	Name() string
}

// LLMPort yields chunks in order and must emit a terminal chunk with a
// non-empty FinishReason. Cancelling ctx must abort within 100ms.
type LLMPort interface {
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan frame.LLMChunk, error)
	Name() string
}

// TTSRequest is the input to TTSPort.SynthesizeStream.
type TTSRequest struct {
	Text             string
	Voice            string
	Rate             int
	Pitch            float64
	Volume           float64
	BackpressureHint bool
}

// TTSPort emits audio frames at or faster than playback rate. Must support
// mid-stream cancellation returning within 50ms.
type TTSPort interface {
	SynthesizeStream(ctx context.Context, req TTSRequest) (<-chan frame.AudioFrame, error)
	Name() string
}

// ToolPort invokes a named tool synchronously from the pipeline's perspective.
type ToolResult struct {
	ResultJSON string
	Err        string
}

type ToolPort interface {
	Invoke(ctx context.Context, name string, argumentsJSON string) (ToolResult, error)
	Name() string
}

// ConfigSnapshotter is implemented by internal/config.ConfigSnapshot; kept
// here as a narrow view so ConfigRepositoryPort doesn't need to import
// internal/config's full package (avoids an import cycle with registry).
type ConfigSnapshotter interface {
	CallID() string
}

// ConfigRepositoryPort is read-only: load(call_id) -> ConfigSnapshot.
type ConfigRepositoryPort interface {
	Load(ctx context.Context, callID string) (ConfigSnapshotter, error)
}
