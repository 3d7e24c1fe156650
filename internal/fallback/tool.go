package fallback

import (
	"context"

	"github.com/room4-2/voxcore/internal/ports"
)

type toolCandidate struct {
	port    ports.ToolPort
	breaker *Breaker
}

// Tool implements ports.ToolPort with the primary/fallback + breaker
// policy. Tool errors are never fatal (spec §7); this wrapper still tracks
// retryable failures for circuit-breaker accounting so a persistently down
// MCP server is skipped in favor of a local built-in fallback.
type Tool struct {
	candidates []toolCandidate
}

func NewTool(providers ...ports.ToolPort) *Tool {
	cands := make([]toolCandidate, len(providers))
	for i, p := range providers {
		cands[i] = toolCandidate{port: p, breaker: NewBreaker()}
	}
	return &Tool{candidates: cands}
}

func (w *Tool) Name() string { return "tool-fallback" }

func (w *Tool) Invoke(ctx context.Context, name string, argumentsJSON string) (ports.ToolResult, error) {
	var lastErr error
	for i := range w.candidates {
		if !w.candidates[i].breaker.Allow() {
			continue
		}
		res, err := w.candidates[i].port.Invoke(ctx, name, argumentsJSON)
		if err != nil {
			w.candidates[i].breaker.RecordFailure()
			lastErr = err
			continue
		}
		w.candidates[i].breaker.RecordSuccess()
		return res, nil
	}
	if lastErr == nil {
		lastErr = &AllCandidatesExhaustedError{Kind: "tool"}
	}
	return ports.ToolResult{Err: lastErr.Error()}, lastErr
}
