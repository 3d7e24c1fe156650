package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Scope is one call's root cancellation tree: every goroutine the call
// spawns is joined here, and cancelling the scope tears down the whole
// call. The first goroutine to return a non-nil error cancels every other
// goroutine sharing the scope's context.
type Scope struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScope derives a cancellable scope from parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &Scope{group: group, ctx: gctx, cancel: cancel}
}

// Context is the scope's context: cancelled when Cancel is called or any
// goroutine in the scope returns an error.
func (s *Scope) Context() context.Context { return s.ctx }

// Go runs fn under the scope, joined by Wait.
func (s *Scope) Go(fn func() error) { s.group.Go(fn) }

// Cancel tears down the scope immediately, independent of any goroutine error.
func (s *Scope) Cancel() { s.cancel() }

// Wait blocks until every goroutine in the scope has returned, and reports
// the first non-nil error, if any.
func (s *Scope) Wait() error {
	defer s.cancel()
	return s.group.Wait()
}
