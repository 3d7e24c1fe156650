// Package frame defines the pipeline's unit of flow: the typed messages
// that pass between processors on bounded queues, and the terminal error
// shape every processor surfaces on failure.
//
// Frames are never mutated after emission. A processor that reacts to an
// input frame copies its TraceID onto whatever it emits; a processor that
// starts a new turn (the VAD, on first detected speech) allocates a fresh
// one via NewTraceID.
package frame

import (
	"time"

	"github.com/google/uuid"
)

// TraceID identifies one conversational turn across every frame it produces.
type TraceID string

// NewTraceID allocates a fresh per-turn identifier.
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

// Frame is implemented by every value that flows on a pipeline queue.
type Frame interface {
	Trace() TraceID
	Timestamp() int64 // monotonic nanoseconds, see Now()
}

// Now returns a monotonic timestamp suitable for Frame.Timestamp.
func Now() int64 {
	return time.Now().UnixNano()
}

// base carries the fields every frame variant shares.
type base struct {
	TraceID     TraceID
	TimestampNS int64
}

func newBase(trace TraceID) base {
	return base{TraceID: trace, TimestampNS: Now()}
}

func (b base) Trace() TraceID    { return b.TraceID }
func (b base) Timestamp() int64  { return b.TimestampNS }

// Channel identifies which leg of a call an AudioFrame belongs to.
type Channel int

const (
	ChannelInbound Channel = iota
	ChannelOutbound
)

// AudioFrame carries raw little-endian 16-bit PCM.
type AudioFrame struct {
	base
	PCM        []byte
	SampleRate int
	Channel    Channel
}

// NewAudioFrame builds an AudioFrame inheriting trace from its producer.
func NewAudioFrame(trace TraceID, pcm []byte, sampleRate int, ch Channel) AudioFrame {
	return AudioFrame{base: newBase(trace), PCM: pcm, SampleRate: sampleRate, Channel: ch}
}

// TextFrame is STT output or LLM output text. Partial frames may be
// superseded by a later frame of the same trace.
type TextFrame struct {
	base
	Text      string
	IsPartial bool
}

func NewTextFrame(trace TraceID, text string, partial bool) TextFrame {
	return TextFrame{base: newBase(trace), Text: text, IsPartial: partial}
}

// UserStartedSpeaking is a VAD event, idempotent per turn.
type UserStartedSpeaking struct{ base }

func NewUserStartedSpeaking(trace TraceID) UserStartedSpeaking {
	return UserStartedSpeaking{base: newBase(trace)}
}

// UserStoppedSpeaking is a VAD event, idempotent per turn.
type UserStoppedSpeaking struct{ base }

func NewUserStoppedSpeaking(trace TraceID) UserStoppedSpeaking {
	return UserStoppedSpeaking{base: newBase(trace)}
}

// FinishReason is the terminal marker on an LLM stream.
type FinishReason string

const (
	FinishStop        FinishReason = "stop"
	FinishLength      FinishReason = "length"
	FinishToolCalls   FinishReason = "tool_calls"
	FinishError       FinishReason = "error"
	FinishInterrupted FinishReason = "interrupted"
)

// FunctionCallDelta is one slice of an in-progress tool call.
type FunctionCallDelta struct {
	Name             string
	ArgumentsPartial string
	CallID           string
	Index            int
}

// LLMChunk is one slice of an LLM stream. Exactly one of Content or
// FunctionCall is set per chunk, except the terminal chunk which carries
// FinishReason and may otherwise be empty.
type LLMChunk struct {
	base
	Content      string
	FunctionCall *FunctionCallDelta
	FinishReason FinishReason
}

func NewLLMContentChunk(trace TraceID, content string) LLMChunk {
	return LLMChunk{base: newBase(trace), Content: content}
}

func NewLLMFunctionCallChunk(trace TraceID, fc FunctionCallDelta) LLMChunk {
	return LLMChunk{base: newBase(trace), FunctionCall: &fc}
}

func NewLLMTerminalChunk(trace TraceID, reason FinishReason) LLMChunk {
	return LLMChunk{base: newBase(trace), FinishReason: reason}
}

// TTSEndCause explains why a synthesized utterance stopped.
type TTSEndCause string

const (
	TTSEndNatural     TTSEndCause = "natural"
	TTSEndInterrupted TTSEndCause = "interrupted"
	TTSEndError       TTSEndCause = "error"
)

// TTSStart brackets the beginning of a synthesized utterance.
type TTSStart struct{ base }

func NewTTSStart(trace TraceID) TTSStart { return TTSStart{base: newBase(trace)} }

// TTSEnd brackets the end of a synthesized utterance.
type TTSEnd struct {
	base
	Cause TTSEndCause
}

func NewTTSEnd(trace TraceID, cause TTSEndCause) TTSEnd {
	return TTSEnd{base: newBase(trace), Cause: cause}
}

// ErrorKind is the error taxonomy of spec §7.
type ErrorKind string

const (
	ErrTransport         ErrorKind = "transport"
	ErrProviderTransient ErrorKind = "provider_transient"
	ErrProviderFatal     ErrorKind = "provider_fatal"
	ErrProtocolViolation ErrorKind = "protocol_violation"
	ErrTimeout           ErrorKind = "timeout"
	ErrTool              ErrorKind = "tool"
	ErrInternalInvariant ErrorKind = "internal_invariant"
)

// ErrorFrame is surfaced from any processor.
type ErrorFrame struct {
	base
	Port      string
	Kind      ErrorKind
	Retryable bool
	Message   string
}

func NewErrorFrame(trace TraceID, port string, kind ErrorKind, retryable bool, msg string) ErrorFrame {
	return ErrorFrame{base: newBase(trace), Port: port, Kind: kind, Retryable: retryable, Message: msg}
}
