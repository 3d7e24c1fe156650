// Package server exposes voxcore's two wire-compatible HTTP entry points
// (browser WebSocket and Twilio Media Streams), grounded on the teacher's
// server.Server / server.WebsocketTwilio: an *http.Server plus a gorilla
// upgrader, one goroutine per accepted connection running the call to
// completion. Where the teacher owned a session.Manager, this package
// constructs one orchestrator.Call per connection directly, since the
// registry and provider fallback chains already own the per-call lifecycle
// the teacher's session package used to manage by hand.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/metrics"
	"github.com/room4-2/voxcore/internal/orchestrator"
	"github.com/room4-2/voxcore/internal/registry"
	"github.com/room4-2/voxcore/internal/storage/pgrecords"
	"github.com/room4-2/voxcore/internal/storage/redisreg"
	"github.com/room4-2/voxcore/internal/transport"
)

// Deps bundles the process-wide collaborators every accepted connection
// needs. Sink and Sessions may be nil; a nil Sessions registry means
// cross-process liveness tracking is unavailable but calls still run.
type Deps struct {
	Registry *registry.Registry
	Metrics  *metrics.Metrics
	Sink     *pgrecords.Sink
	Sessions *redisreg.Registry
	Process  *config.Process
}

// runCall builds a fresh ConfigSnapshot and orchestrator.Call for one
// accepted connection, registers it in the shared session directory, and
// blocks until the call ends. holder is bound to the new Call before
// Run starts, so the adapter's traceOf callback (already wired to
// holder.current at construction, ahead of the Call existing) starts
// reading the call's live current-turn trace from its very first read.
func runCall(ctx context.Context, deps Deps, adapter transport.Adapter, isTwilio bool, holder *traceHolder) {
	callID := uuid.NewString()
	snapshot := config.Default(callID)

	call, err := orchestrator.New(callID, snapshot, adapter, deps.Registry, deps.Metrics, deps.Sink)
	if err != nil {
		log.Printf("server: call %s: build failed: %v", callID, err)
		adapter.Close()
		return
	}
	holder.bind(call)

	if deps.Sessions != nil {
		if err := deps.Sessions.Register(ctx, callID, isTwilio, deps.Process.SessionTimeout); err != nil {
			log.Printf("server: call %s: session registry: %v", callID, err)
		}
		defer func() {
			removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = deps.Sessions.Remove(removeCtx, callID)
		}()
	}

	log.Printf("server: call %s started (twilio=%v)", callID, isTwilio)
	if err := call.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("server: call %s ended with error: %v", callID, err)
	} else {
		log.Printf("server: call %s ended", callID)
	}
}

// connWaiter tracks in-flight calls so Shutdown can wait for them to drain
// (bounded by the caller's shutdown context) before returning.
type connWaiter struct {
	wg sync.WaitGroup
}

func (w *connWaiter) track(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

func (w *connWaiter) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// traceHolder closes the construction-order gap between building a
// transport adapter (which needs a traceOf callback immediately) and
// building the orchestrator.Call that callback should actually read from
// (which needs the adapter first). The adapter is handed holder.current as
// its traceOf; runCall calls bind once the Call exists, before Run starts
// reading audio. Until bound, current returns the zero TraceID — there is
// no call yet for any inbound audio to belong to.
type traceHolder struct {
	mu   sync.Mutex
	call *orchestrator.Call
}

func (h *traceHolder) bind(call *orchestrator.Call) {
	h.mu.Lock()
	h.call = call
	h.mu.Unlock()
}

func (h *traceHolder) current() frame.TraceID {
	h.mu.Lock()
	call := h.call
	h.mu.Unlock()
	if call == nil {
		return ""
	}
	return call.CurrentTrace()
}
