package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/room4-2/voxcore/internal/frame"
)

func TestTeeAudioDuplicatesEveryFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan frame.AudioFrame, 4)
	trace := frame.NewTraceID()
	in <- frame.NewAudioFrame(trace, []byte{1, 2}, 16000, frame.ChannelInbound)
	in <- frame.NewAudioFrame(trace, []byte{3, 4}, 16000, frame.ChannelInbound)
	close(in)

	a, b := teeAudio(ctx, in)

	var gotA, gotB int
	deadline := time.After(time.Second)
	for gotA < 2 || gotB < 2 {
		select {
		case _, ok := <-a:
			if !ok {
				a = nil
				continue
			}
			gotA++
		case _, ok := <-b:
			if !ok {
				b = nil
				continue
			}
			gotB++
		case <-deadline:
			t.Fatalf("timed out waiting for tee output: gotA=%d gotB=%d", gotA, gotB)
		}
	}
}

func TestMergeFramesCombinesBothInputsAndClosesWhenBothDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audio := make(chan frame.AudioFrame, 2)
	boundary := make(chan frame.Frame, 2)
	trace := frame.NewTraceID()
	audio <- frame.NewAudioFrame(trace, []byte{1}, 16000, frame.ChannelInbound)
	boundary <- frame.NewUserStartedSpeaking(trace)
	close(audio)
	close(boundary)

	out := mergeFrames(ctx, audio, boundary)

	var got []frame.Frame
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case fr, ok := <-out:
			if !ok {
				break loop
			}
			got = append(got, fr)
		case <-deadline:
			t.Fatal("timed out waiting for merge to close")
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 merged frames, got %d", len(got))
	}
}

func TestTeeChunksRoutesSpeechOnlyToSpeechLeg(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan frame.LLMChunk, 2)
	trace := frame.NewTraceID()
	in <- frame.NewLLMContentChunk(trace, "hello")
	in <- frame.NewLLMTerminalChunk(trace, frame.FinishStop)
	close(in)

	speech, all := teeChunks(ctx, in)

	var speechCount, allCount int
	deadline := time.After(time.Second)
	for speech != nil || all != nil {
		select {
		case _, ok := <-speech:
			if !ok {
				speech = nil
				continue
			}
			speechCount++
		case _, ok := <-all:
			if !ok {
				all = nil
				continue
			}
			allCount++
		case <-deadline:
			t.Fatalf("timed out: speechCount=%d allCount=%d", speechCount, allCount)
		}
	}
	if speechCount != 1 {
		t.Errorf("expected 1 speech chunk (content only), got %d", speechCount)
	}
	if allCount != 2 {
		t.Errorf("expected 2 total chunks, got %d", allCount)
	}
}
