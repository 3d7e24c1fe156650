// Package sttproc implements spec §4.6: the STT processor. It owns the
// lifecycle of streaming STT sessions across a call's turns, routing inbound
// audio into the currently open session and forwarding finalized text
// downstream, filtered through the hallucination blacklist.
package sttproc

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/room4-2/voxcore/internal/control"
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

// finalWait bounds how long the processor waits for a trailing final
// transcript after the input side of a session is closed (spec §4.6: "1 s").
const finalWait = 1 * time.Second

// State is the subset of conversation state the processor needs to decide
// whether an INTERRUPT should trigger an eager session restart.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

// Processor drives one STTPort session lifecycle per call.
type Processor struct {
	stt           ports.STTPort
	ctrl          *control.Subscription
	blacklist     *Blacklist
	state         func() State
	suppressStale bool
}

// NewProcessor builds a Processor. stateFn reports current conversation
// state for barge-in detection; suppressStale implements the Open Question 1
// decision to drop stale-session finals by default. It subscribes to its own
// independent mailbox on ctrl so an INTERRUPT always reaches it even though
// the orchestrator's controlWatcher and its audio forwarding are watching
// the same Channel concurrently.
func NewProcessor(stt ports.STTPort, ctrl *control.Channel, blacklist *Blacklist, stateFn func() State, suppressStale bool) *Processor {
	return &Processor{stt: stt, ctrl: ctrl.Subscribe(), blacklist: blacklist, state: stateFn, suppressStale: suppressStale}
}

type sttSession struct {
	audioIn chan frame.AudioFrame
	cancel  context.CancelFunc
	stale   atomic.Bool
}

// Run consumes in (a mixed stream of frame.AudioFrame and speech-boundary
// frames), forwards audio into the currently open STT session, and returns a
// stream carrying every pass-through frame plus the finalized frame.TextFrame
// values the STT session produces.
func (p *Processor) Run(ctx context.Context, in <-chan frame.Frame) <-chan frame.Frame {
	out := make(chan frame.Frame, 32)
	go p.loop(ctx, in, out)
	return out
}

func (p *Processor) loop(ctx context.Context, in <-chan frame.Frame, out chan<- frame.Frame) {
	defer close(out)

	var session *sttSession

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.ctrl.Notify():
			for _, msg := range p.ctrl.Drain() {
				if msg.Kind != control.Interrupt {
					continue
				}
				st := p.state()
				if st != StateThinking && st != StateSpeaking {
					continue
				}
				if session != nil {
					session.stale.Store(true)
				}
				session = p.startSession(ctx, out, msg.TraceID)
			}

		case fr, ok := <-in:
			if !ok {
				if session != nil {
					session.cancel()
				}
				return
			}

			switch v := fr.(type) {
			case frame.AudioFrame:
				if session != nil {
					select {
					case session.audioIn <- v:
					default:
						log.Printf("sttproc: audio queue full for trace %s, dropping frame", v.Trace())
					}
				}

			case frame.UserStartedSpeaking:
				if session == nil {
					session = p.startSession(ctx, out, v.Trace())
				}
				p.forward(ctx, out, fr)

			case frame.UserStoppedSpeaking:
				if session != nil {
					p.endTurn(session)
					session = nil
				}
				p.forward(ctx, out, fr)

			default:
				p.forward(ctx, out, fr)
			}
		}
	}
}

func (p *Processor) forward(ctx context.Context, out chan<- frame.Frame, fr frame.Frame) {
	select {
	case out <- fr:
	case <-ctx.Done():
	}
}

func (p *Processor) startSession(ctx context.Context, out chan<- frame.Frame, trace frame.TraceID) *sttSession {
	sctx, cancel := context.WithCancel(ctx)
	audioIn := make(chan frame.AudioFrame, 64)
	s := &sttSession{audioIn: audioIn, cancel: cancel}

	text, errs := p.stt.TranscribeStream(sctx, audioIn)
	go p.relay(sctx, s, text, errs, out)

	return s
}

func (p *Processor) relay(ctx context.Context, s *sttSession, text <-chan frame.TextFrame, errs <-chan frame.ErrorFrame, out chan<- frame.Frame) {
	for {
		select {
		case t, ok := <-text:
			if !ok {
				text = nil
				if errs == nil {
					return
				}
				continue
			}
			if s.stale.Load() && p.suppressStale {
				continue
			}
			t.Text = p.blacklist.Filter(t.Text)
			p.forward(ctx, out, t)

		case e, ok := <-errs:
			if !ok {
				errs = nil
				if text == nil {
					return
				}
				continue
			}
			if s.stale.Load() && p.suppressStale {
				continue
			}
			p.forward(ctx, out, e)

		case <-ctx.Done():
			return
		}
	}
}

// endTurn closes the input side of the session's STT stream and forces
// teardown if no final transcript arrives within finalWait.
func (p *Processor) endTurn(s *sttSession) {
	close(s.audioIn)
	time.AfterFunc(finalWait, s.cancel)
}
