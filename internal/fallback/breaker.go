// Package fallback implements spec §4.4: a decorator that delegates to an
// ordered list of underlying ports (primary, then fallbacks), each guarded
// by its own circuit breaker.
package fallback

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	failureThreshold = 3
	failureWindow    = 60 * time.Second
	openCooldown     = 60 * time.Second
)

// Breaker is a per-provider circuit breaker matching spec §4.4's exact
// quantified transitions: CLOSED->OPEN after 3 consecutive failures within
// 60s; OPEN->HALF_OPEN after 60s quiescence; HALF_OPEN->CLOSED on one
// success or HALF_OPEN->OPEN on one failure.
type Breaker struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	firstFailAt      time.Time
	openedAt         time.Time
	now              func() time.Time // overridable for tests
}

// NewBreaker returns a breaker starting CLOSED.
func NewBreaker() *Breaker {
	return &Breaker{state: Closed, now: time.Now}
}

// Allow reports whether a call should be attempted through this breaker,
// transitioning OPEN->HALF_OPEN if the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= openCooldown {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// CurrentState reports the current breaker state without mutating it.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess reports a successful call. In HALF_OPEN this closes the
// breaker; in CLOSED it resets the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
	b.state = Closed
}

// RecordFailure reports a retryable failure. Only errors marked retryable
// should reach this call — the caller (the wrapper) enforces that.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = now
		b.consecutiveFails = 0
		return
	}

	if b.consecutiveFails == 0 || now.Sub(b.firstFailAt) > failureWindow {
		b.firstFailAt = now
		b.consecutiveFails = 0
	}
	b.consecutiveFails++

	if b.consecutiveFails >= failureThreshold && now.Sub(b.firstFailAt) <= failureWindow {
		b.state = Open
		b.openedAt = now
		b.consecutiveFails = 0
	}
}
