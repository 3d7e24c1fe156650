package fallback

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

type sttCandidate struct {
	port    ports.STTPort
	breaker *Breaker
}

// STT implements ports.STTPort with the same primary/fallback + breaker
// policy as LLM, adapted to the two-channel (text, errors) streaming shape.
type STT struct {
	candidates []sttCandidate
	onActivate func(fromIdx, toIdx int)
}

func NewSTT(onActivate func(fromIdx, toIdx int), providers ...ports.STTPort) *STT {
	cands := make([]sttCandidate, len(providers))
	for i, p := range providers {
		cands[i] = sttCandidate{port: p, breaker: NewBreaker()}
	}
	return &STT{candidates: cands, onActivate: onActivate}
}

func (w *STT) Name() string { return "stt-fallback" }

func (w *STT) TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (<-chan frame.TextFrame, <-chan frame.ErrorFrame) {
	outText := make(chan frame.TextFrame, 32)
	outErr := make(chan frame.ErrorFrame, 4)

	idx := -1
	for i := range w.candidates {
		if w.candidates[i].breaker.Allow() {
			idx = i
			break
		}
	}
	if idx == -1 {
		close(outText)
		go func() {
			defer close(outErr)
			outErr <- frame.NewErrorFrame("", "stt-fallback", frame.ErrProviderFatal, false, "all stt candidates exhausted")
		}()
		return outText, outErr
	}
	if idx > 0 && w.onActivate != nil {
		w.onActivate(0, idx)
	}

	text, errs := w.candidates[idx].port.TranscribeStream(ctx, audioIn)
	go func() {
		defer close(outText)
		defer close(outErr)
		yielded := false
		for {
			select {
			case t, ok := <-text:
				if !ok {
					text = nil
					if errs == nil {
						w.candidates[idx].breaker.RecordSuccess()
						return
					}
					continue
				}
				yielded = true
				select {
				case outText <- t:
				case <-ctx.Done():
					return
				}
			case e, ok := <-errs:
				if !ok {
					errs = nil
					if text == nil {
						w.candidates[idx].breaker.RecordSuccess()
						return
					}
					continue
				}
				if e.Retryable && !yielded {
					w.candidates[idx].breaker.RecordFailure()
				}
				select {
				case outErr <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return outText, outErr
}
