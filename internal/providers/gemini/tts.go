package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

const speakInstruction = "You are a speech synthesizer. Speak the user's next message " +
	"back verbatim and immediately, with no commentary, no acknowledgement, and no added " +
	"words of your own."

const ttsSampleRate = 24000 // Live API's native audio-out rate

// TTS adapts a Gemini Live session, restricted to an AUDIO-only response
// modality, to ports.TTSPort by treating the requested text as the single
// user turn and forwarding every InlineData audio part it echoes back.
type TTS struct {
	apiKey string
	model  string
}

// NewTTS builds a Gemini speech synthesis adapter from its provider config.
func NewTTS(cfg registry.ProviderConfig) (any, error) {
	return &TTS{apiKey: stringField(cfg, "api_key"), model: stringField(cfg, "model")}, nil
}

func (t *TTS) Name() string { return "gemini" }

func (t *TTS) SynthesizeStream(ctx context.Context, req ports.TTSRequest) (<-chan frame.AudioFrame, error) {
	voice := req.Voice
	if voice == "" {
		voice = "Zephyr"
	}

	sess, err := connectLive(ctx, t.apiKey, liveOptions{
		model:             t.model,
		systemInstruction: speakInstruction,
		modalities:        []genai.Modality{"AUDIO"},
		voiceName:         voice,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini-tts: connect: %w", err)
	}
	if err := sess.sendText(req.Text); err != nil {
		sess.close()
		return nil, fmt.Errorf("gemini-tts: send text: %w", err)
	}

	out := make(chan frame.AudioFrame, 8)
	go func() {
		defer close(out)
		defer sess.close()

		trace := frame.NewTraceID()
		for {
			resp, err := sess.receive()
			if err != nil {
				return
			}
			if resp.ServerContent != nil && resp.ServerContent.ModelTurn != nil {
				for _, part := range resp.ServerContent.ModelTurn.Parts {
					if part.InlineData != nil && len(part.InlineData.Data) > 0 {
						select {
						case out <- frame.NewAudioFrame(trace, part.InlineData.Data, ttsSampleRate, frame.ChannelOutbound):
						case <-ctx.Done():
							return
						}
					}
				}
			}
			if resp.ServerContent != nil && resp.ServerContent.TurnComplete {
				return
			}
		}
	}()

	return out, nil
}
