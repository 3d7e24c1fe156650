// Package gemini adapts Google's Gemini Live API to the STT, LLM, and TTS
// ports (spec §4.2) via three independent Live sessions, each opened with a
// ResponseModalities/system-instruction combination that narrows the
// model's native audio-in/audio-out behavior down to one port's contract.
package gemini

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

const defaultModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

// liveSession wraps one genai.Session, generalizing the teacher's Proxy
// type to an arbitrary system instruction, modality, and tool set so it can
// be reused across the STT/LLM/TTS adapters.
type liveSession struct {
	client  *genai.Client
	session *genai.Session

	mu     sync.RWMutex
	closed bool
}

func dial(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

// liveOptions configures one Live session's narrowed contract.
type liveOptions struct {
	model             string
	systemInstruction string
	modalities        []genai.Modality
	voiceName         string
	tools             []*genai.Tool
}

func connectLive(ctx context.Context, apiKey string, opt liveOptions) (*liveSession, error) {
	client, err := dial(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	model := opt.model
	if model == "" {
		model = defaultModel
	}

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: opt.modalities,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: opt.systemInstruction}},
		},
		Tools: opt.tools,
	}
	if opt.voiceName != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opt.voiceName},
			},
		}
	}

	session, err := client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: connect live session: %w", err)
	}
	return &liveSession{client: client, session: session}, nil
}

func (s *liveSession) sendAudio(pcm []byte, sampleRate int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("gemini: session closed")
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
			Data:     pcm,
		},
	})
}

func (s *liveSession) endAudioStream() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

func (s *liveSession) sendText(text string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("gemini: session closed")
	}
	turnComplete := true
	return s.session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns:        []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}},
		TurnComplete: &turnComplete,
	})
}

func (s *liveSession) sendToolResponses(resp []*genai.FunctionResponse) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("gemini: session closed")
	}
	return s.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: resp})
}

func (s *liveSession) receive() (*genai.LiveServerMessage, error) {
	return s.session.Receive()
}

func (s *liveSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Close()
}
