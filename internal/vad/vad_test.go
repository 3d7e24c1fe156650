package vad

import (
	"math"
	"testing"
	"time"
)

func toneFrame(amplitude int16, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		pcm[2*i] = byte(uint16(v))
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

func TestEnergyScorerSilenceIsZero(t *testing.T) {
	s := NewEnergyScorer()
	silence := make([]byte, 320)
	if got := s.Score(silence); got != 0 {
		t.Fatalf("expected 0 score for silence, got %v", got)
	}
}

func TestEnergyScorerLoudSaturates(t *testing.T) {
	s := &EnergyScorer{Full: 1000}
	loud := toneFrame(30000, 160)
	got := s.Score(loud)
	if got != 1 {
		t.Fatalf("expected saturated score of 1, got %v", got)
	}
}

func TestEnergyScorerMonotonic(t *testing.T) {
	s := NewEnergyScorer()
	quiet := s.Score(toneFrame(200, 160))
	loud := s.Score(toneFrame(4000, 160))
	if loud <= quiet {
		t.Fatalf("expected louder frame to score higher: quiet=%v loud=%v", quiet, loud)
	}
}

func TestDetectorRequiresConfirmationWindow(t *testing.T) {
	d := NewDetector(Config{
		Threshold:          0.5,
		ConfirmationWindow: 200 * time.Millisecond,
		SilenceThreshold:   500 * time.Millisecond,
		FrameDuration:      20 * time.Millisecond,
	})

	// 9 voiced frames = 180ms, below the 200ms confirmation window.
	for i := 0; i < 9; i++ {
		if ev := d.Feed(0.9); ev != NoEvent {
			t.Fatalf("frame %d: expected no event before confirmation window, got %v", i, ev)
		}
	}
	// 10th frame crosses 200ms.
	if ev := d.Feed(0.9); ev != SpeechStarted {
		t.Fatalf("expected SpeechStarted at confirmation window, got %v", ev)
	}
	if !d.Speaking() {
		t.Fatal("expected Speaking() true after SpeechStarted")
	}
}

func TestDetectorTurnEndAfterSilence(t *testing.T) {
	d := NewDetector(Config{
		Threshold:          0.5,
		ConfirmationWindow: 40 * time.Millisecond,
		SilenceThreshold:   100 * time.Millisecond,
		FrameDuration:      20 * time.Millisecond,
	})
	for i := 0; i < 2; i++ {
		d.Feed(0.9)
	}
	if !d.Speaking() {
		t.Fatal("expected speaking after confirmation window")
	}
	// 4 silent frames = 80ms, below 100ms silence threshold.
	for i := 0; i < 4; i++ {
		if ev := d.Feed(0.0); ev != NoEvent {
			t.Fatalf("silent frame %d: expected no event yet, got %v", i, ev)
		}
	}
	if ev := d.Feed(0.0); ev != SpeechStopped {
		t.Fatalf("expected SpeechStopped once silence threshold crossed, got %v", ev)
	}
	if d.Speaking() {
		t.Fatal("expected Speaking() false after SpeechStopped")
	}
}

func TestDetectorSilenceResetsOnResumedSpeech(t *testing.T) {
	d := NewDetector(Config{
		Threshold:          0.5,
		ConfirmationWindow: 20 * time.Millisecond,
		SilenceThreshold:   100 * time.Millisecond,
		FrameDuration:      20 * time.Millisecond,
	})
	d.Feed(0.9) // starts speaking
	if !d.Speaking() {
		t.Fatal("expected speaking to start")
	}
	d.Feed(0.0)
	d.Feed(0.0)
	d.Feed(0.9) // speech resumes before silence threshold, should reset silentRun
	for i := 0; i < 4; i++ {
		if ev := d.Feed(0.0); ev != NoEvent {
			t.Fatalf("frame %d after reset: expected no event, got %v", i, ev)
		}
	}
	if ev := d.Feed(0.0); ev != SpeechStopped {
		t.Fatalf("expected SpeechStopped after fresh silence run, got %v", ev)
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(Config{FrameDuration: 20 * time.Millisecond, ConfirmationWindow: 40 * time.Millisecond})
	d.Feed(0.9)
	d.Feed(0.9)
	if !d.Speaking() {
		t.Fatal("expected speaking before reset")
	}
	d.Reset()
	if d.Speaking() {
		t.Fatal("expected Speaking() false after Reset")
	}
	// Confirmation window must be re-earned from zero after reset.
	if ev := d.Feed(0.9); ev != NoEvent {
		t.Fatalf("expected single frame insufficient right after reset, got %v", ev)
	}
}

func TestPoolScoresConcurrently(t *testing.T) {
	pool := NewPool(NewEnergyScorer())
	defer pool.Close()

	loud := toneFrame(20000, 160)
	quiet := make([]byte, 320)

	results := make(chan float64, 20)
	for i := 0; i < 10; i++ {
		go func() { results <- pool.Score("trace", loud) }()
		go func() { results <- pool.Score("trace", quiet) }()
	}
	var sawLoud, sawQuiet bool
	for i := 0; i < 20; i++ {
		v := <-results
		if v > 0.5 {
			sawLoud = true
		}
		if math.Abs(v) < 1e-9 {
			sawQuiet = true
		}
	}
	if !sawLoud || !sawQuiet {
		t.Fatalf("expected both loud and quiet results, sawLoud=%v sawQuiet=%v", sawLoud, sawQuiet)
	}
}
