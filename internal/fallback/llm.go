package fallback

import (
	"context"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

// candidate pairs a port instance with its breaker.
type llmCandidate struct {
	port    ports.LLMPort
	breaker *Breaker
}

// LLM implements ports.LLMPort by delegating to an ordered primary+fallback
// chain, each guarded by its own circuit breaker (spec §4.4).
type LLM struct {
	candidates []llmCandidate
	onActivate func(fromIdx, toIdx int) // fallback_activations metric hook
}

// NewLLM builds a fallback wrapper over primary followed by fallbacks, in order.
func NewLLM(onActivate func(fromIdx, toIdx int), providers ...ports.LLMPort) *LLM {
	cands := make([]llmCandidate, len(providers))
	for i, p := range providers {
		cands[i] = llmCandidate{port: p, breaker: NewBreaker()}
	}
	return &LLM{candidates: cands, onActivate: onActivate}
}

func (w *LLM) Name() string { return "llm-fallback" }

// GenerateStream selects the first candidate whose breaker is not OPEN. If
// starting that candidate's stream fails, it records a breaker failure and
// tries the next eligible candidate. Once a stream has started, its chunks
// are relayed as they are: an error chunk ends the stream and no other
// candidate is tried, whether or not content was already yielded (an error
// before any content also counts as a breaker failure).
func (w *LLM) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	for i := range w.candidates {
		if !w.candidates[i].breaker.Allow() {
			continue
		}

		upstream, err := w.candidates[i].port.GenerateStream(ctx, req)
		if err != nil {
			w.candidates[i].breaker.RecordFailure()
			continue
		}

		if i > 0 && w.onActivate != nil {
			w.onActivate(0, i)
		}
		return w.relay(ctx, i, upstream), nil
	}
	return nil, &AllCandidatesExhaustedError{Kind: "llm"}
}

func (w *LLM) relay(ctx context.Context, idx int, upstream <-chan frame.LLMChunk) <-chan frame.LLMChunk {
	out := make(chan frame.LLMChunk, 32)
	go func() {
		defer close(out)
		yielded := false
		for chunk := range upstream {
			if chunk.FinishReason == frame.FinishError {
				if !yielded {
					w.candidates[idx].breaker.RecordFailure()
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Content != "" || chunk.FunctionCall != nil {
				yielded = true
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.FinishReason != "" {
				w.candidates[idx].breaker.RecordSuccess()
			}
		}
	}()
	return out
}

// AllCandidatesExhaustedError is returned when every candidate's breaker is
// OPEN or every attempted candidate failed to start a stream.
type AllCandidatesExhaustedError struct{ Kind string }

func (e *AllCandidatesExhaustedError) Error() string {
	return "fallback: all " + e.Kind + " candidates exhausted"
}
