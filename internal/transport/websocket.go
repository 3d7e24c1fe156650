package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voxcore/internal/frame"
)

const (
	writeTimeout    = 10 * time.Second
	readTimeout     = 60 * time.Second
	writeQueueDepth = 32
)

// NewUpgrader builds a gorilla websocket.Upgrader with the same buffer
// sizing and CORS allow-list check as the teacher's server package.
func NewUpgrader(allowedOrigins map[string]bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  65536,
		WriteBufferSize: 65536,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return allowedOrigins[r.Header.Get("Origin")]
		},
	}
}

// WebSocketAdapter bridges one browser WebSocket connection to the pipeline,
// generalizing the teacher's ClientSession write pump and binary-audio read
// loop away from a fixed 16kHz/Gemini assumption.
type WebSocketAdapter struct {
	conn       *websocket.Conn
	sessionID  string
	traceOf    func() frame.TraceID
	sampleRate int

	mu        sync.Mutex
	closed    bool
	writeChan chan any
	closeCh   chan struct{}
}

// NewWebSocketAdapter wraps an already-upgraded connection. traceOf supplies
// the current turn's TraceID for stamping inbound audio frames.
func NewWebSocketAdapter(conn *websocket.Conn, sessionID string, sampleRate int, traceOf func() frame.TraceID) *WebSocketAdapter {
	a := &WebSocketAdapter{
		conn:       conn,
		sessionID:  sessionID,
		traceOf:    traceOf,
		sampleRate: sampleRate,
		writeChan:  make(chan any, writeQueueDepth),
		closeCh:    make(chan struct{}),
	}
	go a.writePump()
	return a
}

// writePump serializes all outbound JSON envelopes onto the single
// connection, coalescing whatever has queued since the last write — the
// same batching the teacher's writePump performs.
func (a *WebSocketAdapter) writePump() {
	defer func() {
		a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		a.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}()

	for {
		select {
		case <-a.closeCh:
			return
		case msg, ok := <-a.writeChan:
			if !ok {
				return
			}
			if err := a.writeJSON(msg); err != nil {
				return
			}
			n := len(a.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-a.writeChan:
					if !ok {
						return
					}
					if err := a.writeJSON(msg); err != nil {
						return
					}
				default:
				}
			}
		}
	}
}

func (a *WebSocketAdapter) writeJSON(v any) error {
	data, err := MarshalEnvelope(v)
	if err != nil {
		return err
	}
	a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteMessage(websocket.TextMessage, data)
}

// SendText enqueues an out-of-band envelope, dropping it if the queue is
// full rather than blocking the pipeline (matches the teacher's queueMessage
// "drop on full, shouldn't happen with proper sizing" posture).
func (a *WebSocketAdapter) SendText(env ServerEnvelope) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return fmt.Errorf("transport: adapter closed")
	}
	select {
	case a.writeChan <- env:
		return nil
	default:
		return fmt.Errorf("transport: outbound queue full, dropped %s", env.Type)
	}
}

// ClearPlayout sends a TypeClear envelope, WebSocketAdapter's equivalent of
// Twilio's `{event:"clear"}`: the browser client's own signal to discard
// whatever audio it has already buffered for playback on barge-in.
func (a *WebSocketAdapter) ClearPlayout(ctx context.Context) error {
	return a.SendText(NewClearMessage(a.sessionID))
}

// ReadAudio reads binary audio frames and JSON control/config envelopes off
// the connection until it closes, forwarding only audio to the pipeline.
func (a *WebSocketAdapter) ReadAudio(ctx context.Context) (<-chan frame.AudioFrame, error) {
	out := make(chan frame.AudioFrame, writeQueueDepth)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.closeCh:
				return
			default:
			}

			a.conn.SetReadDeadline(time.Now().Add(readTimeout))
			msgType, data, err := a.conn.ReadMessage()
			if err != nil {
				logReadError(a.sessionID, err)
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				select {
				case out <- frame.NewAudioFrame(a.traceOf(), data, a.sampleRate, frame.ChannelInbound):
				case <-ctx.Done():
					return
				}
			case websocket.TextMessage:
				a.handleEnvelope(data, out, ctx)
			}
		}
	}()
	return out, nil
}

func (a *WebSocketAdapter) handleEnvelope(data []byte, out chan<- frame.AudioFrame, ctx context.Context) {
	env, err := UnmarshalClientEnvelope(data)
	if err != nil {
		a.SendText(NewErrorMessage(a.sessionID, ErrCodeInvalidMessage, "invalid envelope"))
		return
	}

	switch env.Type {
	case TypeAudio:
		var p AudioPayload
		if err := DecodePayload(env, &p); err != nil {
			a.SendText(NewErrorMessage(a.sessionID, ErrCodeInvalidMessage, "invalid audio payload"))
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			a.SendText(NewErrorMessage(a.sessionID, ErrCodeInvalidMessage, "invalid base64 audio"))
			return
		}
		rate := p.SampleRate
		if rate == 0 {
			rate = a.sampleRate
		}
		select {
		case out <- frame.NewAudioFrame(a.traceOf(), pcm, rate, frame.ChannelInbound):
		case <-ctx.Done():
		}
	case TypeControl, TypeConfig:
		// Accepted and ignored: nothing decodes or acts on these, and this
		// adapter only carries audio on its return channel.
	default:
		a.SendText(NewErrorMessage(a.sessionID, ErrCodeInvalidMessage, "unknown message type: "+env.Type))
	}
}

// WriteAudio streams outbound synthesized audio as binary WebSocket frames.
func (a *WebSocketAdapter) WriteAudio(ctx context.Context, audio <-chan frame.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case af, ok := <-audio:
			if !ok {
				return nil
			}
			a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := a.conn.WriteMessage(websocket.BinaryMessage, af.PCM); err != nil {
				return err
			}
		}
	}
}

// Close tears down the connection and stops the write pump.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.closeCh)
	close(a.writeChan)
	return a.conn.Close()
}

func logReadError(sessionID string, err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("transport: websocket read error session=%s: %v", sessionID, err)
	}
}
