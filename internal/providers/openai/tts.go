package openai

import (
	"context"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

const (
	defaultSpeechModel = "tts-1"
	defaultVoice       = "alloy"
	speechSampleRate   = 24000
	speechChunkBytes   = 4096
)

// TTS adapts OpenAI's speech synthesis endpoint to ports.TTSPort, requesting
// raw PCM output so the response streams straight onto AudioFrames without
// a decode step.
type TTS struct {
	client oai.Client
	model  string
}

// NewTTS builds an OpenAI speech synthesis adapter from its provider config.
func NewTTS(cfg registry.ProviderConfig) (any, error) {
	apiKey := stringField(cfg, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	model := stringField(cfg, "model")
	if model == "" {
		model = defaultSpeechModel
	}
	return &TTS{client: oai.NewClient(option.WithAPIKey(apiKey)), model: model}, nil
}

func (t *TTS) Name() string { return "openai" }

func (t *TTS) SynthesizeStream(ctx context.Context, req ports.TTSRequest) (<-chan frame.AudioFrame, error) {
	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(t.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Rate > 0 {
		params.Speed = oai.Float(float64(req.Rate) / 100)
	}

	resp, err := t.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai-tts: request speech: %w", err)
	}

	out := make(chan frame.AudioFrame, 8)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		trace := frame.NewTraceID()
		buf := make([]byte, speechChunkBytes)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				pcm := make([]byte, n)
				copy(pcm, buf[:n])
				select {
				case out <- frame.NewAudioFrame(trace, pcm, speechSampleRate, frame.ChannelOutbound):
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return out, nil
}
