// Package ttsproc implements spec §4.9: the TTS processor. It accumulates
// streamed LLM content into sentence-sized chunks, synthesizes each through
// ports.TTSPort, tracks transport-outbound backpressure, and exposes Cancel
// for mid-utterance abort on INTERRUPT.
package ttsproc

import (
	"strings"
	"sync"
	"time"

	"context"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

const (
	sentenceMaxChars      = 250
	backpressureDepth     = 3
	backpressureSustain   = 200 * time.Millisecond
	backpressureRateBoost = 1.3
	holdAudioFrameBytes   = 3200 // ~200ms of 8kHz 16-bit mono PCM per hop
)

// Voice carries the synthesis parameters a call's ConfigSnapshot selects.
type Voice struct {
	Name   string
	Rate   int
	Pitch  float64
	Volume float64
}

// inflight tracks one in-progress Run call so Cancel can reach it by trace.
type inflight struct {
	cancel context.CancelFunc
	out    chan frame.Frame
}

// Processor drives one TTS synthesis pipeline for a call.
type Processor struct {
	tts             ports.TTSPort
	voice           Voice
	backgroundSound []byte

	mu     sync.Mutex
	active map[frame.TraceID]*inflight
}

// NewProcessor builds a Processor over tts. backgroundSound is the raw PCM
// hold-audio clip from ConfigSnapshot.BackgroundSound, may be nil.
func NewProcessor(tts ports.TTSPort, voice Voice, backgroundSound []byte) *Processor {
	return &Processor{tts: tts, voice: voice, backgroundSound: backgroundSound, active: make(map[frame.TraceID]*inflight)}
}

// Result reports how much of a turn's assistant text was actually spoken
// (fully streamed to the outbound queue) before any interruption, so the
// context aggregator can truncate assistant_partial at the right boundary.
type Result struct {
	sentences []string
}

// Spoken joins every sentence that finished streaming, in order.
func (r *Result) Spoken() string {
	return strings.Join(r.sentences, "")
}

func (r *Result) record(sentence string) {
	r.sentences = append(r.sentences, sentence)
}

// Run consumes content (LLMChunks carrying assistant text) and returns a
// frame stream of TTSStart, AudioFrame, and TTSEnd, plus the Result the
// caller should inspect once the returned channel closes.
func (p *Processor) Run(ctx context.Context, trace frame.TraceID, content <-chan frame.LLMChunk) (<-chan frame.Frame, *Result) {
	out := make(chan frame.Frame, 32)
	result := &Result{}

	sctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.active[trace] = &inflight{cancel: cancel, out: out}
	p.mu.Unlock()

	go p.loop(sctx, cancel, trace, content, out, result)
	return out, result
}

// Cancel aborts the in-flight Run call for trace, if any: it cancels
// synthesis, drains whatever audio is already queued for delivery, and emits
// a TTSEnd(interrupted). A no-op if trace has no in-flight call.
func (p *Processor) Cancel(trace frame.TraceID) {
	// p.mu stays held until the TTSEnd is queued: loop's cleanup deletes the
	// entry under p.mu before it closes out, so out cannot close under us.
	p.mu.Lock()
	defer p.mu.Unlock()
	ig, ok := p.active[trace]
	if !ok {
		return
	}
	ig.cancel()
	drainFrames(ig.out)
	select {
	case ig.out <- frame.NewTTSEnd(trace, frame.TTSEndInterrupted):
	default:
	}
}

func (p *Processor) loop(ctx context.Context, cancel context.CancelFunc, trace frame.TraceID, content <-chan frame.LLMChunk, out chan frame.Frame, result *Result) {
	defer close(out)
	defer cancel()
	defer func() {
		p.mu.Lock()
		delete(p.active, trace)
		p.mu.Unlock()
	}()

	var buf strings.Builder
	started := false
	bp := &backpressureMonitor{}

	for {
		select {
		case chunk, ok := <-content:
			if !ok {
				if buf.Len() > 0 {
					started = p.ensureStarted(out, trace, started)
					if !p.synthesizeSentence(ctx, out, trace, buf.String(), bp, result) {
						return
					}
					buf.Reset()
				}
				if started {
					select {
					case out <- frame.NewTTSEnd(trace, frame.TTSEndNatural):
					case <-ctx.Done():
					}
				}
				return
			}

			buf.WriteString(chunk.Content)
			for {
				sentence, rest, found := extractSentence(buf.String())
				if !found {
					break
				}
				buf.Reset()
				buf.WriteString(rest)
				started = p.ensureStarted(out, trace, started)
				if !p.synthesizeSentence(ctx, out, trace, sentence, bp, result) {
					return
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (p *Processor) ensureStarted(out chan<- frame.Frame, trace frame.TraceID, started bool) bool {
	if started {
		return true
	}
	select {
	case out <- frame.NewTTSStart(trace):
	default:
	}
	return true
}

// synthesizeSentence streams one sentence's audio to out. It returns false
// if synthesis was aborted mid-stream (context cancelled — an interrupt is
// already being handled by the caller), true otherwise.
func (p *Processor) synthesizeSentence(ctx context.Context, out chan<- frame.Frame, trace frame.TraceID, sentence string, bp *backpressureMonitor, result *Result) bool {
	req := ports.TTSRequest{
		Text:             sentence,
		Voice:            p.voice.Name,
		Rate:             p.voice.Rate,
		Pitch:            p.voice.Pitch,
		Volume:           p.voice.Volume,
		BackpressureHint: bp.active(len(out)),
	}

	audio, err := p.tts.SynthesizeStream(ctx, req)
	if err != nil {
		select {
		case out <- frame.NewErrorFrame(trace, "tts", frame.ErrProviderTransient, true, err.Error()):
		case <-ctx.Done():
			return false
		}
		return true
	}

	for af := range audio {
		select {
		case out <- af:
		case <-ctx.Done():
			return false
		}
	}
	result.record(sentence)
	return true
}

// PlayHoldAudio interleaves pre-recorded thinking audio while a tool
// invocation is expected to exceed 500ms (spec §4.9). Callers cancel ctx
// once the next content chunk arrives to stop the loop.
func (p *Processor) PlayHoldAudio(ctx context.Context, trace frame.TraceID, out chan<- frame.Frame) {
	if len(p.backgroundSound) == 0 {
		return
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			end := offset + holdAudioFrameBytes
			var chunk []byte
			if end >= len(p.backgroundSound) {
				chunk = p.backgroundSound[offset:]
				offset = 0
			} else {
				chunk = p.backgroundSound[offset:end]
				offset = end
			}
			if len(chunk) == 0 {
				continue
			}
			select {
			case out <- frame.NewAudioFrame(trace, chunk, 8000, frame.ChannelOutbound):
			case <-ctx.Done():
				return
			}
		}
	}
}

// extractSentence pulls the first complete sentence off the front of s,
// splitting on '.', '?', '!', or a hard 250-character cap, whichever comes
// first (spec §4.9).
func extractSentence(s string) (sentence, rest string, found bool) {
	if s == "" {
		return "", s, false
	}
	for i, r := range s {
		if r == '.' || r == '?' || r == '!' {
			return s[:i+1], s[i+1:], true
		}
	}
	if len(s) >= sentenceMaxChars {
		return s[:sentenceMaxChars], s[sentenceMaxChars:], true
	}
	return "", s, false
}

// drainFrames discards whatever is currently buffered in out without
// blocking, implementing the "drain and discard the transport-outbound
// queue for the current trace" cancellation step.
func drainFrames(out chan frame.Frame) {
	for {
		select {
		case <-out:
		default:
			return
		}
	}
}

// backpressureMonitor implements the "queue depth >= 3 for > 200ms" rule
// from spec §4.9, sampled once per outgoing TTS request.
type backpressureMonitor struct {
	aboveSince time.Time
	isActive   bool
}

func (m *backpressureMonitor) active(depth int) bool {
	if depth >= backpressureDepth {
		if m.aboveSince.IsZero() {
			m.aboveSince = time.Now()
		}
		if time.Since(m.aboveSince) > backpressureSustain {
			m.isActive = true
		}
	} else {
		m.aboveSince = time.Time{}
		m.isActive = false
	}
	return m.isActive
}
