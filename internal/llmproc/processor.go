// Package llmproc implements spec §4.8: the LLM processor. It turns an
// LLMRequest into a cancellable stream from ports.LLMPort, forwards chunks
// downstream unbatched, and exposes Cancel so the orchestrator's
// controlWatcher can abort a stream mid-flight in response to an
// INTERRUPT/CANCEL_TURN it alone is responsible for matching against the
// current turn.
package llmproc

import (
	"context"
	"sync"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

// inflight tracks one in-progress Generate call so Cancel can reach it by
// trace without the processor re-deriving trace-match logic of its own.
type inflight struct {
	cancel context.CancelFunc
	out    chan<- frame.LLMChunk
}

// Processor drives one LLMPort stream at a time on behalf of the context
// aggregator.
type Processor struct {
	llm ports.LLMPort

	mu     sync.Mutex
	active map[frame.TraceID]*inflight
}

// NewProcessor builds a Processor over llm.
func NewProcessor(llm ports.LLMPort) *Processor {
	return &Processor{llm: llm, active: make(map[frame.TraceID]*inflight)}
}

// Generate starts a stream for req and returns a channel of LLMChunk that
// closes once the stream reaches a terminal chunk, ctx is cancelled, or
// Cancel(trace) is called. A Cancel makes Generate emit a synthetic
// terminal chunk with finish_reason=interrupted before closing.
func (p *Processor) Generate(ctx context.Context, trace frame.TraceID, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	sctx, cancel := context.WithCancel(ctx)

	upstream, err := p.llm.GenerateStream(sctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan frame.LLMChunk, 32)
	p.mu.Lock()
	p.active[trace] = &inflight{cancel: cancel, out: out}
	p.mu.Unlock()

	go p.relay(sctx, cancel, trace, upstream, out)
	return out, nil
}

// Cancel aborts the in-flight Generate call for trace, if any, causing it to
// emit a terminal chunk with finish_reason=interrupted and close. A no-op if
// trace has no in-flight call (already finished, or never started).
func (p *Processor) Cancel(trace frame.TraceID) {
	p.mu.Lock()
	ig, ok := p.active[trace]
	p.mu.Unlock()
	if !ok {
		return
	}
	ig.cancel()
	select {
	case ig.out <- frame.NewLLMTerminalChunk(trace, frame.FinishInterrupted):
	default:
	}
}

func (p *Processor) relay(ctx context.Context, cancel context.CancelFunc, trace frame.TraceID, upstream <-chan frame.LLMChunk, out chan<- frame.LLMChunk) {
	defer close(out)
	defer cancel()
	defer func() {
		p.mu.Lock()
		delete(p.active, trace)
		p.mu.Unlock()
	}()

	for {
		select {
		case chunk, ok := <-upstream:
			if !ok {
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.FinishReason != "" {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
