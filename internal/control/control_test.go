package control

import (
	"testing"

	"github.com/room4-2/voxcore/internal/frame"
)

func TestPublishDeliversToEverySubscriptionIndependently(t *testing.T) {
	ch := New()
	a := ch.Subscribe()
	b := ch.Subscribe()

	trace := frame.TraceID("t-1")
	ch.Publish(Message{Kind: Interrupt, TraceID: trace})

	aMsgs := a.Drain()
	bMsgs := b.Drain()
	if len(aMsgs) != 1 || aMsgs[0].Kind != Interrupt || aMsgs[0].TraceID != trace {
		t.Fatalf("subscription a: got %v", aMsgs)
	}
	if len(bMsgs) != 1 || bMsgs[0].Kind != Interrupt || bMsgs[0].TraceID != trace {
		t.Fatalf("subscription b: got %v", bMsgs)
	}
}

func TestDrainOnOneSubscriptionDoesNotClearAnother(t *testing.T) {
	ch := New()
	a := ch.Subscribe()
	b := ch.Subscribe()

	ch.Publish(Message{Kind: EmergencyStop, TraceID: frame.TraceID("t-2")})

	if msgs := a.Drain(); len(msgs) != 1 {
		t.Fatalf("expected a to observe the message, got %v", msgs)
	}
	if msgs := b.Drain(); len(msgs) != 1 {
		t.Fatalf("expected b to still observe the message after a drained, got %v", msgs)
	}
	if msgs := b.Drain(); len(msgs) != 0 {
		t.Fatalf("expected b's second drain to be empty, got %v", msgs)
	}
}

func TestChannelOwnMailboxStillWorksWithoutSubscribers(t *testing.T) {
	ch := New()
	ch.Publish(Message{Kind: CancelTurn, TraceID: frame.TraceID("t-3")})

	msgs := ch.Drain()
	if len(msgs) != 1 || msgs[0].Kind != CancelTurn {
		t.Fatalf("expected the channel's own mailbox to carry the message, got %v", msgs)
	}
}
