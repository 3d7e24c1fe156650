// Package whisper adapts whisper.cpp's Go CGO bindings to ports.STTPort.
// The model is loaded once at Register time and shared by every session;
// each TranscribeStream call opens its own inference context, buffering
// audio until an RMS-based silence gap flushes it to the model.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/registry"
)

const (
	bitsPerSample = 16

	defaultRMSThreshold        = 300.0
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// STT adapts a shared whisper.cpp model to ports.STTPort.
type STT struct {
	model    whisperlib.Model
	language string
}

// NewSTT loads the whisper.cpp model named by cfg["model_path"] once and
// returns an adapter that reuses it for every subsequent session. Repeated
// Register calls against the same model path should share a *Registry, not
// reload the model per call.
func NewSTT(cfg registry.ProviderConfig) (any, error) {
	modelPath := stringField(cfg, "model_path")
	if modelPath == "" {
		return nil, errors.New("whisper: model_path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	lang := stringField(cfg, "language")
	if lang == "" {
		lang = defaultLanguage
	}
	return &STT{model: model, language: lang}, nil
}

func (s *STT) Name() string { return "whisper" }

func (s *STT) TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (<-chan frame.TextFrame, <-chan frame.ErrorFrame) {
	out := make(chan frame.TextFrame, 8)
	errs := make(chan frame.ErrorFrame, 1)

	go func() {
		defer close(out)
		defer close(errs)

		var (
			trace     frame.TraceID
			buffer    []byte
			hadSpeech bool
			silenceMs int
		)

		bytesPerMs := defaultSampleRate * (bitsPerSample / 8) / 1000
		maxBufferBytes := defaultMaxBufferDurationMs * bytesPerMs

		flush := func() {
			if len(buffer) == 0 || !hadSpeech {
				buffer, hadSpeech, silenceMs = nil, false, 0
				return
			}
			pcm := buffer
			buffer, hadSpeech, silenceMs = nil, false, 0

			text, err := s.infer(pcm)
			if err != nil {
				log.Printf("whisper: inference failed: %v", err)
				errs <- frame.NewErrorFrame(trace, "whisper", frame.ErrProviderTransient, true, err.Error())
				return
			}
			if text == "" {
				return
			}
			out <- frame.NewTextFrame(trace, text, false)
		}

		for af := range audioIn {
			trace = af.Trace()
			chunk := af.PCM

			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, defaultSampleRate)

			if rms < defaultRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= defaultSilenceThresholdMs {
						flush()
					}
				}
				continue
			}
			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, chunk...)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				flush()
			}
		}
		flush()
	}()

	return out, errs
}

// infer converts buffered PCM to float32 samples and runs a fresh
// whisper.cpp context over them; contexts are not safe to share across
// concurrent sessions, but the underlying model is.
func (s *STT) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		log.Printf("whisper: set language %q failed, using model default: %v", s.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func chunkDurationMs(chunk []byte, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}

func stringField(cfg registry.ProviderConfig, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}
