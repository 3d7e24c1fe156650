package gemini

import (
	"context"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/registry"
)

const transcribeInstruction = "You are a transcription engine. Transcribe the incoming " +
	"audio verbatim in the speaker's language. Output only the words spoken, with no " +
	"commentary, translation, or punctuation you did not hear."

// STT adapts a Gemini Live session, restricted to a TEXT-only response
// modality, to ports.STTPort by treating every ModelTurn text part as
// transcript output.
type STT struct {
	apiKey   string
	model    string
	language string
}

// NewSTT builds a Gemini transcription adapter from its provider config.
func NewSTT(cfg registry.ProviderConfig) (any, error) {
	return &STT{
		apiKey:   stringField(cfg, "api_key"),
		model:    stringField(cfg, "model"),
		language: stringField(cfg, "language"),
	}, nil
}

func (s *STT) Name() string { return "gemini" }

func (s *STT) TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (<-chan frame.TextFrame, <-chan frame.ErrorFrame) {
	out := make(chan frame.TextFrame, 8)
	errs := make(chan frame.ErrorFrame, 1)

	go func() {
		defer close(out)
		defer close(errs)

		instruction := transcribeInstruction
		if s.language != "" {
			instruction += " The expected language is " + s.language + "."
		}

		sess, err := connectLive(ctx, s.apiKey, liveOptions{
			model:             s.model,
			systemInstruction: instruction,
			modalities:        []genai.Modality{"TEXT"},
		})
		if err != nil {
			errs <- errorFrame("", "gemini-stt", err)
			return
		}
		defer sess.close()

		var trace frame.TraceID
		sendDone := make(chan struct{})
		go func() {
			defer close(sendDone)
			for af := range audioIn {
				trace = af.Trace()
				if err := sess.sendAudio(af.PCM, af.SampleRate); err != nil {
					log.Printf("gemini-stt: send audio: %v", err)
					return
				}
			}
			if err := sess.endAudioStream(); err != nil {
				log.Printf("gemini-stt: end audio stream: %v", err)
			}
		}()

		var transcript strings.Builder
		for {
			resp, err := sess.receive()
			if err != nil {
				select {
				case <-sendDone:
					return // session closed after we asked it to
				default:
				}
				errs <- errorFrame(trace, "gemini-stt", err)
				return
			}

			if resp.ServerContent != nil && resp.ServerContent.ModelTurn != nil {
				for _, part := range resp.ServerContent.ModelTurn.Parts {
					if part.Text == "" {
						continue
					}
					transcript.WriteString(part.Text)
					out <- frame.NewTextFrame(trace, transcript.String(), true)
				}
			}
			if resp.ServerContent != nil && resp.ServerContent.TurnComplete {
				out <- frame.NewTextFrame(trace, transcript.String(), false)
				return
			}
		}
	}()

	return out, errs
}
