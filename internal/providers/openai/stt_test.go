package openai

import (
	"encoding/binary"
	"testing"
)

func TestWavBytesHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	out := wavBytes(pcm, 16000)

	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %v", out[:12])
	}
	if string(out[12:16]) != "fmt " || string(out[36:40]) != "data" {
		t.Fatalf("missing fmt/data chunk markers")
	}
	sampleRate := binary.LittleEndian.Uint32(out[24:28])
	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", sampleRate)
	}
	dataLen := binary.LittleEndian.Uint32(out[40:44])
	if int(dataLen) != len(pcm) {
		t.Errorf("expected data length %d, got %d", len(pcm), dataLen)
	}
	if string(out[44:]) != string(pcm) {
		t.Errorf("payload mismatch")
	}
}

func TestNewSTTMissingAPIKey(t *testing.T) {
	if _, err := NewSTT(nil); err == nil {
		t.Fatal("expected error for empty api_key")
	}
}

func TestNewSTTDefaultsModel(t *testing.T) {
	inst, err := NewSTT(map[string]any{"api_key": "sk-test"})
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}
	s := inst.(*STT)
	if s.model != defaultTranscribeModel {
		t.Errorf("expected default model %q, got %q", defaultTranscribeModel, s.model)
	}
}
