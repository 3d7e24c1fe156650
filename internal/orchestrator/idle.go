package orchestrator

import (
	"context"
	"time"
)

// idleWatcher fires after a period of user silence while the call is in
// LISTENING, implementing the idle-prompt escalation of SPEC_FULL.md §4.15:
// each of the first InactivityMaxRetries consecutive silent windows speaks
// the idle message, and the next silent window ends the call.
type idleWatcher struct {
	timeout time.Duration
	reset   chan struct{}
	fired   chan struct{}
}

func newIdleWatcher(timeout time.Duration) *idleWatcher {
	return &idleWatcher{
		timeout: timeout,
		reset:   make(chan struct{}, 1),
		fired:   make(chan struct{}),
	}
}

// Reset restarts the idle countdown, called on any user speech activity.
func (w *idleWatcher) Reset() {
	select {
	case w.reset <- struct{}{}:
	default:
	}
}

// Fired signals each time the idle timeout elapses without a Reset.
func (w *idleWatcher) Fired() <-chan struct{} { return w.fired }

// Run drives the countdown until ctx is cancelled. It is meant to be run
// under a Scope.
func (w *idleWatcher) Run(ctx context.Context) error {
	if w.timeout <= 0 {
		<-ctx.Done()
		return nil
	}
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.reset:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.timeout)
		case <-timer.C:
			select {
			case w.fired <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			timer.Reset(w.timeout)
		}
	}
}

// maxDurationWatcher fires once when a call has run longer than its
// configured cap, implementing the max_duration_s hard stop.
type maxDurationWatcher struct {
	deadline <-chan time.Time
}

func newMaxDurationWatcher(d time.Duration) *maxDurationWatcher {
	if d <= 0 {
		return &maxDurationWatcher{deadline: make(chan time.Time)}
	}
	return &maxDurationWatcher{deadline: time.After(d)}
}

func (w *maxDurationWatcher) Fired() <-chan time.Time { return w.deadline }
