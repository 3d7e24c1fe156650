package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPcmToFloat32FullScale(t *testing.T) {
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, 2)
			binary.LittleEndian.PutUint16(pcm, uint16(tt.value))
			out := pcmToFloat32(pcm)
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("pcmToFloat32(%d) = %f; want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestComputeRMSSilence(t *testing.T) {
	pcm := make([]byte, 640) // 320 zero samples
	if rms := computeRMS(pcm); rms != 0 {
		t.Errorf("expected 0 RMS for silence, got %f", rms)
	}
}

func TestComputeRMSLoudTone(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(int16(32767)))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(int16(-32768)))
	rms := computeRMS(pcm)
	if rms < defaultRMSThreshold {
		t.Errorf("expected loud RMS above threshold %f, got %f", defaultRMSThreshold, rms)
	}
}

func TestChunkDurationMs(t *testing.T) {
	chunk := make([]byte, 320) // 160 samples at 16kHz mono = 10ms
	if got := chunkDurationMs(chunk, 16000); got != 10 {
		t.Errorf("expected 10ms, got %d", got)
	}
}

func TestChunkDurationMsInvalidSampleRate(t *testing.T) {
	if got := chunkDurationMs(make([]byte, 320), 0); got != 0 {
		t.Errorf("expected 0 for invalid sample rate, got %d", got)
	}
}

func TestNewSTTRequiresModelPath(t *testing.T) {
	if _, err := NewSTT(nil); err == nil {
		t.Fatal("expected error when model_path is missing")
	}
}
