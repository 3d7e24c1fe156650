package orchestrator

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
)

// teeAudio fans a single inbound audio stream out to two independent
// consumers (the VAD scorer and the raw pass-through leg sttproc routes
// into its active session), so each can read at its own pace without
// starving the other.
func teeAudio(ctx context.Context, in <-chan frame.AudioFrame) (<-chan frame.AudioFrame, <-chan frame.AudioFrame) {
	a := make(chan frame.AudioFrame, 32)
	b := make(chan frame.AudioFrame, 32)
	go func() {
		defer close(a)
		defer close(b)
		for {
			select {
			case <-ctx.Done():
				return
			case af, ok := <-in:
				if !ok {
					return
				}
				select {
				case a <- af:
				case <-ctx.Done():
					return
				}
				select {
				case b <- af:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return a, b
}

// mergeFrames combines a raw AudioFrame stream with the VAD's
// speech-boundary Frame stream into the single frame.Frame stream
// sttproc.Processor.Run expects, closing once both inputs close.
func mergeFrames(ctx context.Context, audio <-chan frame.AudioFrame, boundary <-chan frame.Frame) <-chan frame.Frame {
	out := make(chan frame.Frame, 64)
	go func() {
		defer close(out)
		for audio != nil || boundary != nil {
			select {
			case <-ctx.Done():
				return
			case af, ok := <-audio:
				if !ok {
					audio = nil
					continue
				}
				select {
				case out <- af:
				case <-ctx.Done():
					return
				}
			case fr, ok := <-boundary:
				if !ok {
					boundary = nil
					continue
				}
				select {
				case out <- fr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// teeChunks fans a single LLMChunk stream out to two consumers: one feeds
// the TTS processor (spoken content only), the other lets the caller
// observe every chunk (including tool-call deltas and the terminal chunk)
// to fold into the context aggregator.
func teeChunks(ctx context.Context, in <-chan frame.LLMChunk) (<-chan frame.LLMChunk, <-chan frame.LLMChunk) {
	speech := make(chan frame.LLMChunk, 32)
	all := make(chan frame.LLMChunk, 32)
	go func() {
		defer close(speech)
		defer close(all)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				select {
				case all <- chunk:
				case <-ctx.Done():
					return
				}
				if chunk.Content != "" {
					select {
					case speech <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return speech, all
}
