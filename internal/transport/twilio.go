package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voxcore/internal/frame"
)

const (
	twilioSampleRate = 8000
	geminiSampleRate = 16000
)

// twilioEvent is the subset of Twilio's Media Streams protocol this adapter
// understands, grounded on the teacher's handleClientMessagesFromTwilio
// (connected/start/media/stop/mark).
type twilioEvent struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Start     struct {
		StreamSid string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type twilioMediaBack struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// twilioClearBack is spec §6's outbound `{event:"clear"}`, telling the
// carrier to drain whatever it has already buffered for playout.
type twilioClearBack struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// TwilioAdapter bridges a Twilio Media Streams WebSocket connection to the
// pipeline: inbound audio arrives as base64 mu-law at 8kHz and is decoded
// and upsampled; outbound audio is downsampled and mu-law encoded before
// being wrapped back into Twilio's media event envelope.
type TwilioAdapter struct {
	conn      *websocket.Conn
	sessionID string
	traceOf   func() frame.TraceID

	mu        sync.Mutex
	closed    bool
	streamSid string
	writeChan chan any
	closeCh   chan struct{}
}

// NewTwilioAdapter wraps an already-upgraded Twilio media stream connection.
func NewTwilioAdapter(conn *websocket.Conn, sessionID string, traceOf func() frame.TraceID) *TwilioAdapter {
	a := &TwilioAdapter{
		conn:      conn,
		sessionID: sessionID,
		traceOf:   traceOf,
		writeChan: make(chan any, writeQueueDepth),
		closeCh:   make(chan struct{}),
	}
	go a.writePump()
	return a
}

func (a *TwilioAdapter) writePump() {
	for {
		select {
		case <-a.closeCh:
			return
		case msg, ok := <-a.writeChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := a.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// SendText is a no-op for Twilio: the protocol has no side channel for
// arbitrary text, only audio media events and marks.
func (a *TwilioAdapter) SendText(env ServerEnvelope) error { return nil }

// ClearPlayout sends spec §6's `{event:"clear"}`, Twilio's own mechanism for
// draining the carrier's far-end playout buffer on barge-in. A no-op before
// the stream's "start" event has supplied a streamSid to address.
func (a *TwilioAdapter) ClearPlayout(ctx context.Context) error {
	a.mu.Lock()
	sid := a.streamSid
	closed := a.closed
	a.mu.Unlock()
	if closed || sid == "" {
		return nil
	}
	select {
	case a.writeChan <- twilioClearBack{Event: "clear", StreamSid: sid}:
		return nil
	default:
		return fmt.Errorf("transport: twilio outbound queue full")
	}
}

// ReadAudio decodes the Twilio media-stream JSON protocol into PCM audio
// frames at Gemini-native 16kHz, matching the teacher's muLawToPCMUpsample.
func (a *TwilioAdapter) ReadAudio(ctx context.Context) (<-chan frame.AudioFrame, error) {
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

			_, data, err := a.conn.ReadMessage()
			if err != nil {
				return
			}

			var ev twilioEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Printf("transport: malformed twilio event session=%s: %v", a.sessionID, err)
				continue
			}

			switch ev.Event {
			case "connected":
			case "start":
				a.mu.Lock()
				a.streamSid = ev.Start.StreamSid
				a.mu.Unlock()
			case "media":
				muLaw, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
				if err != nil {
					continue
				}
				pcm8k := MuLawToPCM16(muLaw)
				pcm16k := ResamplePCM16(pcm8k, twilioSampleRate, geminiSampleRate)
				select {
				case out <- frame.NewAudioFrame(a.traceOf(), pcm16k, geminiSampleRate, frame.ChannelInbound):
				case <-ctx.Done():
					return
				}
			case "stop":
				return
			case "mark":
				// Echo of a mark this adapter never sends (it only emits
				// "clear"); nothing to correlate against yet.
			default:
				log.Printf("transport: unknown twilio event %q session=%s", ev.Event, a.sessionID)
			}
		}
	}()
	return out, nil
}

// WriteAudio downsamples and mu-law encodes outbound audio, then wraps each
// chunk in a Twilio media event addressed to the call's streamSid.
func (a *TwilioAdapter) WriteAudio(ctx context.Context, audio <-chan frame.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case af, ok := <-audio:
			if !ok {
				return nil
			}
			pcm8k := ResamplePCM16(af.PCM, af.SampleRate, twilioSampleRate)
			muLaw := PCM16ToMuLaw(pcm8k)

			a.mu.Lock()
			sid := a.streamSid
			closed := a.closed
			a.mu.Unlock()
			if closed || sid == "" {
				continue
			}

			back := twilioMediaBack{Event: "media", StreamSid: sid}
			back.Media.Payload = base64.StdEncoding.EncodeToString(muLaw)

			select {
			case a.writeChan <- back:
			default:
				return fmt.Errorf("transport: twilio outbound queue full")
			}
		}
	}
}

// Close tears down the connection and stops the write pump.
func (a *TwilioAdapter) Close() error {
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
