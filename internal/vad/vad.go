// Package vad implements spec §4.5: dual-stage voice activity detection.
// A frame-level scorer classifies each AudioFrame as voiced or not; a
// confirmation-window state machine turns a run of voiced/non-voiced frames
// into UserStartedSpeaking/UserStoppedSpeaking events.
package vad

import (
	"math"
	"time"

	"github.com/room4-2/voxcore/internal/frame"
)

// Scorer scores one AudioFrame into a speech probability in [0,1].
// The default Scorer is a signal-energy heuristic; a learned model can be
// substituted by implementing the same interface.
type Scorer interface {
	Score(pcm []byte) float64
}

// EnergyScorer is a simple RMS-energy-based Scorer, grounded in the same
// energy-gating idea used by the pack's whisper.cpp adapter to segment
// utterances (glyphoxa/pkg/provider/stt/whisper) — here scoring individual
// frames rather than gating a batch.
type EnergyScorer struct {
	// Full is the 16-bit PCM magnitude that maps to speech score 1.0.
	Full float64
}

// NewEnergyScorer returns an EnergyScorer with a sensible saturation point.
func NewEnergyScorer() *EnergyScorer {
	return &EnergyScorer{Full: 6000}
}

func (s *EnergyScorer) Score(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sumSq float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(sample)
		sumSq += f * f
	}
	rms := math.Sqrt(sumSq / float64(n))
	score := rms / s.Full
	if score > 1 {
		score = 1
	}
	return score
}

// Config carries the tunable thresholds of spec §4.5.
type Config struct {
	Threshold          float64       // frame is voiced iff speech >= Threshold
	ConfirmationWindow time.Duration // min consecutive voiced duration
	SilenceThreshold   time.Duration // min consecutive non-voiced duration
	FrameDuration      time.Duration // duration represented by one AudioFrame
}

// Event is emitted by Detector.Feed.
type Event int

const (
	NoEvent Event = iota
	SpeechStarted
	SpeechStopped
)

// Detector implements the confirmation-window turn-end state machine. It is
// not safe for concurrent use; the VAD processor owns one Detector per call.
type Detector struct {
	cfg Config

	voicedRun   time.Duration
	silentRun   time.Duration
	speaking    bool
	turnStarted bool
}

// NewDetector builds a Detector from cfg, applying spec defaults for any
// zero-valued field.
func NewDetector(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.ConfirmationWindow <= 0 {
		cfg.ConfirmationWindow = 200 * time.Millisecond
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = 500 * time.Millisecond
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	return &Detector{cfg: cfg}
}

// Feed scores one frame and advances the confirmation-window state machine,
// returning any turn-boundary event it crosses.
func (d *Detector) Feed(score float64) Event {
	voiced := score >= d.cfg.Threshold

	if voiced {
		d.voicedRun += d.cfg.FrameDuration
		d.silentRun = 0
	} else {
		d.silentRun += d.cfg.FrameDuration
		d.voicedRun = 0
	}

	if !d.speaking && d.voicedRun >= d.cfg.ConfirmationWindow {
		d.speaking = true
		d.turnStarted = true
		return SpeechStarted
	}

	if d.speaking && d.silentRun >= d.cfg.SilenceThreshold {
		d.speaking = false
		return SpeechStopped
	}

	return NoEvent
}

// Speaking reports the detector's current voiced/silent state.
func (d *Detector) Speaking() bool { return d.speaking }

// IsVoiced reports whether score clears this detector's configured
// threshold, for callers that need the raw per-frame classification
// alongside Feed's confirmation-window events (e.g. the barge-in word-count
// gate in Processor).
func (d *Detector) IsVoiced(score float64) bool { return score >= d.cfg.Threshold }

// FrameDuration returns the per-frame duration this detector was configured
// with.
func (d *Detector) FrameDuration() time.Duration { return d.cfg.FrameDuration }

// Reset clears run counters and speaking state for a fresh turn. The
// orchestrator does not call it; its Detector runs across the whole call.
func (d *Detector) Reset() {
	d.voicedRun = 0
	d.silentRun = 0
	d.speaking = false
	d.turnStarted = false
}

// FrameEvent pairs a frame-boundary Event with the AudioFrame that produced
// it, for the VAD processor to translate into frame.UserStartedSpeaking /
// frame.UserStoppedSpeaking.
type FrameEvent struct {
	Event Event
	Trace frame.TraceID
}
