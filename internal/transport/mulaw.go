// Package transport implements the inbound/outbound byte-stream adapters
// spec §1 treats as out of scope for the pipeline core: WebSocket JSON/
// binary framing and the Twilio media-stream protocol, both carrying raw
// PCM or mu-law encoded audio.
package transport

// muLawToPcmTable is a lookup table built once at init time so per-byte
// decode is a single array index on the hot audio path.
var muLawToPcmTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		muLawToPcmTable[i] = decodeMuLawByte(byte(i))
	}
}

// decodeMuLawByte implements the Sun Microsystems G.711 mu-law reference
// decoder.
func decodeMuLawByte(uVal byte) int16 {
	uVal = ^uVal

	sign := uVal & 0x80
	exponent := (uVal >> 4) & 0x07
	mantissa := uVal & 0x0F

	sample := int16((int32(mantissa)<<3 + 0x84) << exponent)
	sample -= 0x84

	if sign != 0 {
		return -sample
	}
	return sample
}

// PcmToMuLawByte encodes one 16-bit linear PCM sample to mu-law.
func PcmToMuLawByte(pcm int16) byte {
	const (
		bias = 0x84
		clip = 32635
	)

	sign := (pcm >> 8) & 0x80
	if pcm < 0 {
		pcm = -pcm
	}
	if pcm > clip {
		pcm = clip
	}
	pcm += bias

	exponent := 7
	for mask := 0x4000; (pcm&int16(mask)) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (pcm >> (exponent + 3)) & 0x0F

	ulawByte := byte(sign | (int16(exponent) << 4) | mantissa)
	return ^ulawByte
}

// MuLawToPCM16 decodes a buffer of mu-law bytes to 16-bit little-endian PCM.
func MuLawToPCM16(muLaw []byte) []byte {
	pcm := make([]byte, len(muLaw)*2)
	for i, b := range muLaw {
		v := muLawToPcmTable[b]
		pcm[2*i] = byte(uint16(v))
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

// PCM16ToMuLaw encodes 16-bit little-endian PCM to mu-law bytes.
func PCM16ToMuLaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = PcmToMuLawByte(sample)
	}
	return out
}

// ResamplePCM16 changes a 16-bit LE PCM stream's sample rate by nearest-
// neighbor duplication/decimation. It is a lightweight approximation
// suitable for telephony's 8kHz<->16kHz/24kHz conversions, matching the
// teacher's fixed-ratio upsample/downsample (session.go's 24kHz->8kHz and
// 8kHz->16kHz conversions), generalized to an arbitrary rate ratio.
func ResamplePCM16(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	sampleCount := len(pcm) / 2
	outCount := sampleCount * toRate / fromRate
	out := make([]byte, outCount*2)
	for i := 0; i < outCount; i++ {
		srcIdx := i * fromRate / toRate
		if srcIdx >= sampleCount {
			srcIdx = sampleCount - 1
		}
		out[2*i] = pcm[2*srcIdx]
		out[2*i+1] = pcm[2*srcIdx+1]
	}
	return out
}
