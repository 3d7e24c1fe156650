package vad

import (
	"context"
	"testing"
	"time"

	"github.com/room4-2/voxcore/internal/control"
	"github.com/room4-2/voxcore/internal/frame"
)

func feedFrames(t *testing.T, p *Processor, ctx context.Context, out chan frame.Frame, voiced bool, n int) {
	t.Helper()
	amp := int16(0)
	if voiced {
		amp = 30000
	}
	pcm := toneFrame(amp, 160)
	trace := frame.NewTraceID()
	for i := 0; i < n; i++ {
		p.handle(ctx, frame.NewAudioFrame(trace, pcm, 16000, frame.ChannelInbound), out)
	}
}

func newTestProcessor(speaking bool) (*Processor, *control.Channel) {
	pool := NewPool(NewEnergyScorer())
	detector := NewDetector(Config{Threshold: 0.5, ConfirmationWindow: 40 * time.Millisecond, SilenceThreshold: 40 * time.Millisecond, FrameDuration: 10 * time.Millisecond})
	ctrl := control.New()
	state := StateListening
	if speaking {
		state = StateSpeaking
	}
	p := NewProcessor(pool, detector, ctrl, func() State { return state })
	return p, ctrl
}

func TestBargeInFiresImmediatelyWithDefaultMinWords(t *testing.T) {
	p, ctrl := newTestProcessor(true)
	ctx := context.Background()
	out := make(chan frame.Frame, 64)

	// 5 voiced frames of 10ms each clears the 40ms confirmation window;
	// default gate (min_words=1) fires the interrupt immediately.
	feedFrames(t, p, ctx, out, true, 5)

	msgs := ctrl.Drain()
	if len(msgs) != 1 || msgs[0].Kind != control.Interrupt {
		t.Fatalf("expected one immediate interrupt, got %v", msgs)
	}
}

func TestBargeInGatedByMinWordsRequiresSustainedSpeech(t *testing.T) {
	p, ctrl := newTestProcessor(true)
	p.WithBargeInGate(BargeInGate{Enabled: true, MinWords: 3, WordDuration: 20 * time.Millisecond, FrameDuration: 10 * time.Millisecond})
	ctx := context.Background()
	out := make(chan frame.Frame, 64)

	// Clear the 40ms confirmation window (5 frames), which starts gating
	// but must not yet publish (needs 3*20ms = 60ms of voiced audio).
	feedFrames(t, p, ctx, out, true, 5)
	if msgs := ctrl.Drain(); len(msgs) != 0 {
		t.Fatalf("expected no interrupt before min_words threshold, got %v", msgs)
	}

	// Feed enough additional voiced frames to cross 60ms total.
	feedFrames(t, p, ctx, out, true, 5)
	msgs := ctrl.Drain()
	if len(msgs) != 1 || msgs[0].Kind != control.Interrupt {
		t.Fatalf("expected exactly one interrupt once min_words threshold crossed, got %v", msgs)
	}
}

func TestBargeInAbandonedIfSpeechStopsBeforeThreshold(t *testing.T) {
	p, ctrl := newTestProcessor(true)
	p.WithBargeInGate(BargeInGate{Enabled: true, MinWords: 10, WordDuration: 100 * time.Millisecond, FrameDuration: 10 * time.Millisecond})
	ctx := context.Background()
	out := make(chan frame.Frame, 64)

	feedFrames(t, p, ctx, out, true, 5) // clears confirmation window, starts gating
	feedFrames(t, p, ctx, out, false, 5) // silence before min_words threshold is reached

	if msgs := ctrl.Drain(); len(msgs) != 0 {
		t.Fatalf("expected abandoned barge-in to publish no interrupt, got %v", msgs)
	}
}

func TestBargeInDisabledNeverPublishesInterrupt(t *testing.T) {
	p, ctrl := newTestProcessor(true)
	p.WithBargeInGate(BargeInGate{Enabled: false})
	ctx := context.Background()
	out := make(chan frame.Frame, 64)

	feedFrames(t, p, ctx, out, true, 20)

	if msgs := ctrl.Drain(); len(msgs) != 0 {
		t.Fatalf("expected no interrupt when interruption.enabled=false, got %v", msgs)
	}
}

func TestNoInterruptWhileListening(t *testing.T) {
	p, ctrl := newTestProcessor(false)
	ctx := context.Background()
	out := make(chan frame.Frame, 64)

	feedFrames(t, p, ctx, out, true, 5)

	if msgs := ctrl.Drain(); len(msgs) != 0 {
		t.Fatalf("expected no interrupt while LISTENING (not barge-in), got %v", msgs)
	}
}
