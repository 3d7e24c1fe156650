package fallback

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

type ttsCandidate struct {
	port    ports.TTSPort
	breaker *Breaker
}

// TTS implements ports.TTSPort with the primary/fallback + breaker policy.
type TTS struct {
	candidates []ttsCandidate
	onActivate func(fromIdx, toIdx int)
}

func NewTTS(onActivate func(fromIdx, toIdx int), providers ...ports.TTSPort) *TTS {
	cands := make([]ttsCandidate, len(providers))
	for i, p := range providers {
		cands[i] = ttsCandidate{port: p, breaker: NewBreaker()}
	}
	return &TTS{candidates: cands, onActivate: onActivate}
}

func (w *TTS) Name() string { return "tts-fallback" }

func (w *TTS) SynthesizeStream(ctx context.Context, req ports.TTSRequest) (<-chan frame.AudioFrame, error) {
	for i := range w.candidates {
		if !w.candidates[i].breaker.Allow() {
			continue
		}
		upstream, err := w.candidates[i].port.SynthesizeStream(ctx, req)
		if err != nil {
			w.candidates[i].breaker.RecordFailure()
			continue
		}
		if i > 0 && w.onActivate != nil {
			w.onActivate(0, i)
		}
		return w.relay(ctx, i, upstream), nil
	}
	return nil, &AllCandidatesExhaustedError{Kind: "tts"}
}

func (w *TTS) relay(ctx context.Context, idx int, upstream <-chan frame.AudioFrame) <-chan frame.AudioFrame {
	out := make(chan frame.AudioFrame, 32)
	go func() {
		defer close(out)
		for af := range upstream {
			select {
			case out <- af:
			case <-ctx.Done():
				return
			}
		}
		w.candidates[idx].breaker.RecordSuccess()
	}()
	return out
}
