package openai

import "testing"

func TestNewTTSMissingAPIKey(t *testing.T) {
	if _, err := NewTTS(nil); err == nil {
		t.Fatal("expected error for empty api_key")
	}
}

func TestNewTTSDefaultsModel(t *testing.T) {
	inst, err := NewTTS(map[string]any{"api_key": "sk-test"})
	if err != nil {
		t.Fatalf("NewTTS: %v", err)
	}
	tts := inst.(*TTS)
	if tts.model != defaultSpeechModel {
		t.Errorf("expected default model %q, got %q", defaultSpeechModel, tts.model)
	}
}
