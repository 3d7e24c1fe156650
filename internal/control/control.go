// Package control implements the out-of-band control channel of spec §4.11:
// a dedicated, non-blocking, single-slot signalling mechanism independent of
// the data queues, so an INTERRUPT never has to wait behind buffered audio.
package control

import (
	"sync"

	"github.com/room4-2/voxcore/internal/frame"
)

// Kind enumerates the three control messages spec §3 allows.
type Kind string

const (
	Interrupt      Kind = "INTERRUPT"
	CancelTurn     Kind = "CANCEL_TURN"
	EmergencyStop  Kind = "EMERGENCY_STOP"
)

// Message is a control-channel signal targeting one turn.
type Message struct {
	Kind    Kind
	TraceID frame.TraceID
}

// Channel is a single-slot, latest-wins, non-blocking control signal bus.
// Publish never blocks the producer: a new signal replaces an unread one of
// the same kind for every independent subscriber.
//
// A call wires several long-lived observers onto the same Channel — sttproc,
// the orchestrator's audio forwarding (streamTTS and the hold-audio loop),
// and the orchestrator's controlWatcher all need to react to the same
// INTERRUPT independently and in full, not race one another for a single
// wakeup. Subscribe gives sttproc and the audio forwarding their own
// single-slot mailbox, while controlWatcher reads the Channel's own; Publish
// fans the message out to every mailbox plus the Channel's own (so a direct
// Notify/Drain caller, e.g. a test publishing and inspecting its own
// channel, keeps working unchanged).
type Channel struct {
	mu      sync.Mutex
	pending map[Kind]Message
	notify  chan struct{}
	subs    []*Subscription
}

// New creates an empty control channel.
func New() *Channel {
	return &Channel{
		pending: make(map[Kind]Message),
		notify:  make(chan struct{}, 1),
	}
}

// Subscription is one observer's independent view of a Channel: its own
// pending set and its own single-slot notify signal, so it never misses a
// message because another subscriber happened to win the wakeup race.
type Subscription struct {
	mu      sync.Mutex
	pending map[Kind]Message
	notify  chan struct{}
}

// Subscribe registers a new independent observer of c. Every Publish after
// this call is delivered to the returned Subscription regardless of what
// any other subscriber does with it.
func (c *Channel) Subscribe() *Subscription {
	sub := &Subscription{
		pending: make(map[Kind]Message),
		notify:  make(chan struct{}, 1),
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (s *Subscription) deliver(msg Message) {
	s.mu.Lock()
	s.pending[msg.Kind] = msg
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that receives a value whenever new control state
// becomes pending for this subscription. Select on it alongside the data
// queue, preferring control, then call Drain to atomically read and clear.
func (s *Subscription) Notify() <-chan struct{} {
	return s.notify
}

// Drain returns and clears all currently pending messages for this
// subscription. Stale messages (whose TraceID does not match the caller's
// current turn) should be dropped by the caller — Drain itself does not
// filter, since only the state-machine owner knows the current trace.
func (s *Subscription) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	out := make([]Message, 0, len(s.pending))
	for _, m := range s.pending {
		out = append(out, m)
	}
	s.pending = make(map[Kind]Message)
	return out
}

// Publish posts msg to the Channel itself and to every Subscription created
// via Subscribe. It never blocks: if a message of the same kind is already
// pending and unread on a given mailbox, it is replaced. Posting the same
// signal for the same trace twice has the same effect as posting once
// (idempotent) on each mailbox independently.
func (c *Channel) Publish(msg Message) {
	c.mu.Lock()
	c.pending[msg.Kind] = msg
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}

	for _, sub := range subs {
		sub.deliver(msg)
	}
}

// Notify returns a channel that receives a value whenever new control state
// becomes pending on the Channel's own (unsubscribed) mailbox. Consumers
// that need an independent view should call Subscribe instead.
func (c *Channel) Notify() <-chan struct{} {
	return c.notify
}

// Drain returns and clears all currently pending messages on the Channel's
// own mailbox. See the Channel doc comment: long-lived concurrent observers
// should use Subscribe/Subscription.Drain instead, which cannot miss a
// message to a sibling observer's wakeup.
func (c *Channel) Drain() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	out := make([]Message, 0, len(c.pending))
	for _, m := range c.pending {
		out = append(out, m)
	}
	c.pending = make(map[Kind]Message)
	return out
}

// Peek reports whether a message of kind k targeting trace t is pending,
// without clearing it.
func (c *Channel) Peek(k Kind, t frame.TraceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.pending[k]
	return ok && m.TraceID == t
}
