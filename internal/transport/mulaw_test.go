package transport

import (
	"encoding/binary"
	"testing"
)

func TestMuLawRoundTripIsLossyButBounded(t *testing.T) {
	samples := []int16{0, 100, -100, 3000, -3000, 32000, -32000}
	for _, s := range samples {
		encoded := PcmToMuLawByte(s)
		decoded := decodeMuLawByte(encoded)

		diff := int(s) - int(decoded)
		if diff < 0 {
			diff = -diff
		}
		// mu-law is a lossy log codec; tolerate quantization error
		// proportional to the sample's magnitude.
		tolerance := int(s)/20 + 40
		if tolerance < 0 {
			tolerance = -tolerance
		}
		if diff > tolerance {
			t.Errorf("sample %d round-tripped to %d, diff %d exceeds tolerance %d", s, decoded, diff, tolerance)
		}
	}
}

func TestMuLawToPCM16DoublesLength(t *testing.T) {
	muLaw := []byte{0xFF, 0x00, 0x7F}
	pcm := MuLawToPCM16(muLaw)
	if len(pcm) != len(muLaw)*2 {
		t.Fatalf("expected %d bytes, got %d", len(muLaw)*2, len(pcm))
	}
}

func TestPCM16ToMuLawHalvesLength(t *testing.T) {
	pcm := make([]byte, 8)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	muLaw := PCM16ToMuLaw(pcm)
	if len(muLaw) != len(pcm)/2 {
		t.Fatalf("expected %d bytes, got %d", len(pcm)/2, len(muLaw))
	}
}

func TestResamplePCM16UpsampleDoublesSampleCount(t *testing.T) {
	pcm := make([]byte, 8) // 4 samples at 8kHz
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(i*100))
	}
	up := ResamplePCM16(pcm, 8000, 16000)
	if len(up) != 16 {
		t.Fatalf("expected 16 bytes (8 samples), got %d", len(up))
	}
}

func TestResamplePCM16SameRateIsNoop(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	out := ResamplePCM16(pcm, 8000, 8000)
	if len(out) != len(pcm) {
		t.Fatalf("expected passthrough, got len %d", len(out))
	}
}

func TestResamplePCM16DownsampleHalvesSampleCount(t *testing.T) {
	pcm := make([]byte, 16) // 8 samples at 16kHz
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(i*100))
	}
	down := ResamplePCM16(pcm, 16000, 8000)
	if len(down) != 8 {
		t.Fatalf("expected 8 bytes (4 samples), got %d", len(down))
	}
}
