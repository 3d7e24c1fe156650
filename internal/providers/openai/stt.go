package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/registry"
)

const defaultTranscribeModel = "whisper-1"

// STT adapts OpenAI's audio transcription endpoint to ports.STTPort.
// The endpoint takes one complete file, not a stream, so TranscribeStream
// buffers every frame of the utterance and transcribes once audioIn closes.
type STT struct {
	client   oai.Client
	model    string
	language string
}

// NewSTT builds an OpenAI transcription adapter from its provider config.
func NewSTT(cfg registry.ProviderConfig) (any, error) {
	apiKey := stringField(cfg, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	model := stringField(cfg, "model")
	if model == "" {
		model = defaultTranscribeModel
	}
	return &STT{
		client:   oai.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		language: stringField(cfg, "language"),
	}, nil
}

func (s *STT) Name() string { return "openai" }

func (s *STT) TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (<-chan frame.TextFrame, <-chan frame.ErrorFrame) {
	out := make(chan frame.TextFrame, 1)
	errs := make(chan frame.ErrorFrame, 1)

	go func() {
		defer close(out)
		defer close(errs)

		var trace frame.TraceID
		var pcm bytes.Buffer
		sampleRate := 16000
		for af := range audioIn {
			trace = af.Trace()
			sampleRate = af.SampleRate
			pcm.Write(af.PCM)
		}
		if pcm.Len() == 0 {
			return
		}

		params := oai.AudioTranscriptionNewParams{
			File:  oai.File(bytes.NewReader(wavBytes(pcm.Bytes(), sampleRate)), "utterance.wav", "audio/wav"),
			Model: oai.AudioModel(s.model),
		}
		if s.language != "" {
			params.Language = oai.String(s.language)
		}

		resp, err := s.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			errs <- frame.NewErrorFrame(trace, "openai-stt", frame.ErrProviderTransient, true, err.Error())
			return
		}
		out <- frame.NewTextFrame(trace, resp.Text, false)
	}()

	return out, errs
}

// wavBytes wraps raw little-endian 16-bit mono PCM in a minimal WAV header
// so the transcription endpoint can identify the format.
func wavBytes(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, uint16(2)) // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)

	return buf.Bytes()
}
