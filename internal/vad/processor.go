package vad

import (
	"context"
	"log"
	"time"

	"github.com/room4-2/voxcore/internal/control"
	"github.com/room4-2/voxcore/internal/frame"
)

// State is the minimal view of conversation state the processor needs to
// decide whether a SpeechStarted event is a barge-in.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

// BargeInGate implements spec §6's `interruption.enabled` /
// `interruption.min_words` config: whether barge-in is permitted at all,
// and how many recognized words of overlapping speech are required before
// the interrupt is actually posted. Word count isn't available this early
// in the pipeline (STT hasn't run yet), so it is approximated by continued
// voiced duration at an average speaking rate — see DESIGN.md.
type BargeInGate struct {
	Enabled       bool
	MinWords      int
	WordDuration  time.Duration // estimated audio duration of one spoken word
	FrameDuration time.Duration
}

// DefaultBargeInGate returns the spec's default: barge-in enabled, firing
// immediately once the VAD confirmation window elapses (min_words=1).
func DefaultBargeInGate() BargeInGate {
	return BargeInGate{Enabled: true, MinWords: 1, WordDuration: 375 * time.Millisecond, FrameDuration: 20 * time.Millisecond}
}

// Processor wires a Detector and a Pool onto the inbound audio stream,
// emitting UserStartedSpeaking / UserStoppedSpeaking frames and publishing
// control.Interrupt when speech starts while the assistant is speaking and
// the barge-in gate clears.
type Processor struct {
	pool     *Pool
	detector *Detector
	ctrl     *control.Channel
	state    func() State
	gate     BargeInGate

	gating      bool
	gatingTrace frame.TraceID
	gatedVoiced time.Duration
}

// NewProcessor builds a Processor. stateFn is polled on each SpeechStarted
// event to decide whether the event is a barge-in.
func NewProcessor(pool *Pool, detector *Detector, ctrl *control.Channel, stateFn func() State) *Processor {
	return &Processor{pool: pool, detector: detector, ctrl: ctrl, state: stateFn, gate: DefaultBargeInGate()}
}

// WithBargeInGate overrides the default barge-in gate, e.g. from a call's
// ConfigSnapshot (`interruption.enabled`, `interruption.min_words`).
func (p *Processor) WithBargeInGate(g BargeInGate) *Processor {
	if g.WordDuration <= 0 {
		g.WordDuration = 375 * time.Millisecond
	}
	if g.FrameDuration <= 0 {
		g.FrameDuration = p.detector.FrameDuration()
	}
	p.gate = g
	return p
}

// Run consumes audioIn until it closes or ctx is cancelled, emitting speech
// boundary frames on the returned channel.
func (p *Processor) Run(ctx context.Context, audioIn <-chan frame.AudioFrame) <-chan frame.Frame {
	out := make(chan frame.Frame, 16)
	go func() {
		defer close(out)
		for {
			select {
			case af, ok := <-audioIn:
				if !ok {
					return
				}
				p.handle(ctx, af, out)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (p *Processor) handle(ctx context.Context, af frame.AudioFrame, out chan<- frame.Frame) {
	score := p.pool.Score(af.Trace(), af.PCM)
	event := p.detector.Feed(score)

	switch event {
	case SpeechStarted:
		if p.state() == StateSpeaking && p.gate.Enabled {
			if p.gate.MinWords <= 1 {
				p.ctrl.Publish(control.Message{Kind: control.Interrupt, TraceID: af.Trace()})
			} else {
				p.gating = true
				p.gatingTrace = af.Trace()
				p.gatedVoiced = p.gate.FrameDuration
			}
		}
		select {
		case out <- frame.NewUserStartedSpeaking(af.Trace()):
		case <-ctx.Done():
		}
	case SpeechStopped:
		if p.gating {
			log.Printf("vad: barge-in abandoned before reaching interruption.min_words=%d", p.gate.MinWords)
			p.gating = false
		}
		select {
		case out <- frame.NewUserStoppedSpeaking(af.Trace()):
		case <-ctx.Done():
		}
	case NoEvent:
		if p.gating {
			if p.detector.IsVoiced(score) {
				p.gatedVoiced += p.gate.FrameDuration
				if p.gatedVoiced >= time.Duration(p.gate.MinWords)*p.gate.WordDuration {
					p.ctrl.Publish(control.Message{Kind: control.Interrupt, TraceID: p.gatingTrace})
					p.gating = false
				}
			}
		}
	}
}
