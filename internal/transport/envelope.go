package transport

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// ClientEnvelope is the inbound WebSocket JSON message shape, generalizing
// the teacher's messages.ClientMessage into the frame-oriented model: a
// typed envelope whose payload is decoded lazily once Type is known.
type ClientEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AudioPayload carries base64-encoded 16-bit PCM in Data, which
// WebSocketAdapter decodes; SampleRate lets the browser
// declare its native rate instead of the teacher's hardcoded 16kHz.
type AudioPayload struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// ConfigPayload is the payload shape of a connect-time config envelope.
// WebSocketAdapter accepts such an envelope but neither decodes nor applies it.
type ConfigPayload struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// ControlPayload is the payload shape of a client control envelope
// (INTERRUPT/CANCEL_TURN/EMERGENCY_STOP), mirroring the teacher's
// ControlPayload{Action}. WebSocketAdapter accepts such an envelope but
// neither decodes nor acts on it.
type ControlPayload struct {
	Action string `json:"action"`
}

// Inbound envelope type discriminators.
const (
	TypeAudio   = "audio"
	TypeConfig  = "config"
	TypeControl = "control"
)

// Outbound envelope type discriminators, carried over from the teacher's
// messages/server.go constants.
const (
	TypeText   = "text"
	TypeStatus = "status"
	TypeError  = "error"

	// TypeClear is WebSocketAdapter's equivalent of spec §6's Twilio
	// `{event:"clear"}`: sent on every TTS interrupt so a browser client
	// discards whatever it has already buffered for playback.
	TypeClear = "clear"
)

// Outbound server error codes, carried over from the teacher's error taxonomy.
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeProviderError    = "PROVIDER_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeBufferFull       = "BUFFER_FULL"
)

// ServerEnvelope is the outbound WebSocket JSON message shape.
type ServerEnvelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload"`
}

// TextPayload carries partial or final transcript/assistant text back to
// the client for display, independent of the binary audio frames.
type TextPayload struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

// StatusPayload reports a state-machine transition or lifecycle event.
type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload reports a terminal or recoverable error condition.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewTextMessage(sessionID, text string, partial bool) ServerEnvelope {
	return ServerEnvelope{Type: TypeText, SessionID: sessionID, Payload: TextPayload{Text: text, IsPartial: partial}}
}

func NewStatusMessage(sessionID, status, message string) ServerEnvelope {
	return ServerEnvelope{Type: TypeStatus, SessionID: sessionID, Payload: StatusPayload{Status: status, Message: message}}
}

func NewErrorMessage(sessionID, code, message string) ServerEnvelope {
	return ServerEnvelope{Type: TypeError, SessionID: sessionID, Payload: ErrorPayload{Code: code, Message: message}}
}

func NewClearMessage(sessionID string) ServerEnvelope {
	return ServerEnvelope{Type: TypeClear, SessionID: sessionID}
}

// MarshalEnvelope encodes v with sonic, matching the hot-path JSON codec
// choice of SPEC_FULL.md's transport section.
func MarshalEnvelope(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// UnmarshalClientEnvelope decodes one inbound envelope.
func UnmarshalClientEnvelope(data []byte) (ClientEnvelope, error) {
	var env ClientEnvelope
	err := sonic.Unmarshal(data, &env)
	return env, err
}

// DecodePayload decodes an envelope's payload into dst.
func DecodePayload(env ClientEnvelope, dst any) error {
	return sonic.Unmarshal(env.Payload, dst)
}
