package transport

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
)

// Adapter unifies the two wire protocols spec §5 names (raw WebSocket audio
// and Twilio Media Streams) behind one interface the orchestrator drives.
// Both directions run concurrently: ReadAudio's returned channel is closed
// when the underlying connection ends, and WriteAudio drains until either
// its input channel closes or ctx is cancelled.
type Adapter interface {
	// ReadAudio streams inbound audio frames until the connection closes.
	ReadAudio(ctx context.Context) (<-chan frame.AudioFrame, error)

	// WriteAudio consumes outbound audio frames and writes them to the wire.
	WriteAudio(ctx context.Context, audio <-chan frame.AudioFrame) error

	// SendText delivers an out-of-band text/status/error envelope to the
	// client, independent of the audio stream.
	SendText(env ServerEnvelope) error

	// ClearPlayout signals the peer to discard whatever audio it has
	// already buffered for playback (spec §6's `clear` event), so a
	// barge-in drains the far end's own queue in addition to this
	// process's. Called once per TTS interrupt, after the local
	// transport-outbound queue has already been drained.
	ClearPlayout(ctx context.Context) error

	// Close tears down the underlying connection.
	Close() error
}
