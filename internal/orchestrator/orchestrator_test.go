package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
	"github.com/room4-2/voxcore/internal/transport"
)

// fakeAdapter is an in-memory transport.Adapter double: the test feeds
// synthetic audio on in, and inspects what the orchestrator wrote back on
// written/sent instead of touching a real socket.
type fakeAdapter struct {
	in chan frame.AudioFrame

	mu      sync.Mutex
	written []frame.AudioFrame
	sent    []transport.ServerEnvelope
	closed  bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{in: make(chan frame.AudioFrame, 256)}
}

func (a *fakeAdapter) ReadAudio(ctx context.Context) (<-chan frame.AudioFrame, error) {
	return a.in, nil
}

func (a *fakeAdapter) WriteAudio(ctx context.Context, audio <-chan frame.AudioFrame) error {
	for {
		select {
		case af, ok := <-audio:
			if !ok {
				return nil
			}
			a.mu.Lock()
			a.written = append(a.written, af)
			a.mu.Unlock()
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *fakeAdapter) SendText(env transport.ServerEnvelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, env)
	return nil
}

func (a *fakeAdapter) ClearPlayout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, transport.ServerEnvelope{Type: transport.TypeClear})
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) sentEnvelopes() []transport.ServerEnvelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]transport.ServerEnvelope, len(a.sent))
	copy(out, a.sent)
	return out
}

func (a *fakeAdapter) writtenFrames() []frame.AudioFrame {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]frame.AudioFrame, len(a.written))
	copy(out, a.written)
	return out
}

// fakeTranscriber is an STTPort whose session finalizes to a fixed transcript
// once its inbound audio channel closes, mirroring a real provider's final
// event on end-of-utterance.
type fakeTranscriber struct{ transcript string }

func (f fakeTranscriber) Name() string { return "fake-stt" }

func (f fakeTranscriber) TranscribeStream(ctx context.Context, audioIn <-chan frame.AudioFrame) (<-chan frame.TextFrame, <-chan frame.ErrorFrame) {
	text := make(chan frame.TextFrame, 1)
	errs := make(chan frame.ErrorFrame)
	go func() {
		defer close(text)
		defer close(errs)
		var trace frame.TraceID
		for af := range audioIn {
			trace = af.Trace()
		}
		if f.transcript != "" {
			text <- frame.NewTextFrame(trace, f.transcript, false)
		}
	}()
	return text, errs
}

// fakeChatModel is an LLMPort that answers with one fixed reply, optionally
// preceded by a tool call. With alwaysToolCall set it calls a tool on every
// request that does not carry ForceStop, to exercise the bounded loop's cap.
type fakeChatModel struct {
	reply          string
	toolCallOnce   string // tool name to call before replying, empty to skip
	alwaysToolCall bool
	calls          int32
	mu             sync.Mutex
	forceStopSeen  []bool
}

func (f *fakeChatModel) Name() string { return "fake-llm" }

func (f *fakeChatModel) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.forceStopSeen = append(f.forceStopSeen, req.ForceStop)
	f.mu.Unlock()

	out := make(chan frame.LLMChunk, 4)
	trace := frame.NewTraceID()
	go func() {
		defer close(out)
		wantToolCall := (n == 0 && f.toolCallOnce != "") || (f.alwaysToolCall && !req.ForceStop)
		if wantToolCall {
			out <- frame.NewLLMTerminalChunk(trace, frame.FinishToolCalls)
			return
		}
		out <- frame.NewLLMContentChunk(trace, f.reply)
		out <- frame.NewLLMTerminalChunk(trace, frame.FinishStop)
	}()
	return out, nil
}

func (f *fakeChatModel) forceStopCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.forceStopSeen))
	copy(out, f.forceStopSeen)
	return out
}

// fakeVoice is a TTSPort that emits one short audio frame per call.
type fakeVoice struct{}

func (fakeVoice) Name() string { return "fake-tts" }

func (fakeVoice) SynthesizeStream(ctx context.Context, req ports.TTSRequest) (<-chan frame.AudioFrame, error) {
	out := make(chan frame.AudioFrame, 1)
	trace := frame.NewTraceID()
	go func() {
		defer close(out)
		out <- frame.NewAudioFrame(trace, []byte{0, 1, 2, 3}, 16000, frame.ChannelOutbound)
	}()
	return out, nil
}

// slowVoice emits several short audio frames with a delay between each,
// giving a test room to barge in mid-utterance before synthesis finishes.
type slowVoice struct{ frames int }

func (slowVoice) Name() string { return "fake-tts-slow" }

func (v slowVoice) SynthesizeStream(ctx context.Context, req ports.TTSRequest) (<-chan frame.AudioFrame, error) {
	out := make(chan frame.AudioFrame, 1)
	trace := frame.NewTraceID()
	n := v.frames
	if n == 0 {
		n = 20
	}
	go func() {
		defer close(out)
		for i := 0; i < n; i++ {
			select {
			case out <- frame.NewAudioFrame(trace, []byte{0, 1, 2, 3}, 16000, frame.ChannelOutbound):
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(20 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// fakeToolPort answers every invocation with a fixed JSON result.
type fakeToolPort struct{ resultJSON string }

func (f fakeToolPort) Name() string { return "fake-tool" }

func (f fakeToolPort) Invoke(ctx context.Context, name, argumentsJSON string) (ports.ToolResult, error) {
	return ports.ToolResult{ResultJSON: f.resultJSON}, nil
}

func testConfig() *config.ConfigSnapshot {
	cfg := config.Default("test-call")
	cfg.STTProvider = "test"
	cfg.LLMProvider = "test"
	cfg.TTSProvider = "test"
	cfg.IdleTimeoutMs = 0
	cfg.MaxDurationS = 0
	cfg.SuppressStaleFinals = true
	return cfg
}

// feedUtterance pushes enough loud frames to cross the VAD's confirmation
// window and enough silent frames to cross its silence threshold, driving
// one full UserStartedSpeaking/UserStoppedSpeaking cycle.
func feedUtterance(t *testing.T, in chan<- frame.AudioFrame, trace frame.TraceID) {
	t.Helper()
	loud := make([]byte, 320)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0xff
		loud[i+1] = 0x7f // int16 max, little-endian
	}
	silent := make([]byte, 320)

	for i := 0; i < 15; i++ {
		in <- frame.NewAudioFrame(trace, loud, 16000, frame.ChannelInbound)
	}
	for i := 0; i < 30; i++ {
		in <- frame.NewAudioFrame(trace, silent, 16000, frame.ChannelInbound)
	}
}

func TestCallRunHappyPathTurnProducesSpokenAudio(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindSTT, "test", func(registry.ProviderConfig) (any, error) {
		return fakeTranscriber{transcript: "hello there"}, nil
	})
	reg.Register(registry.KindLLM, "test", func(registry.ProviderConfig) (any, error) {
		return &fakeChatModel{reply: "hi yourself"}, nil
	})
	reg.Register(registry.KindTTS, "test", func(registry.ProviderConfig) (any, error) {
		return fakeVoice{}, nil
	})

	adapter := newFakeAdapter()
	call, err := New("test-call", testConfig(), adapter, reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	trace := frame.NewTraceID()
	feedUtterance(t, adapter.in, trace)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(adapter.writtenFrames()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(adapter.writtenFrames()) == 0 {
		t.Fatal("expected the orchestrator to write at least one synthesized audio frame")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Call.Run did not return after cancellation")
	}
}

func TestCallRunBoundedToolLoopRunsToolThenAnswers(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindSTT, "test", func(registry.ProviderConfig) (any, error) {
		return fakeTranscriber{transcript: "what's the weather"}, nil
	})
	reg.Register(registry.KindLLM, "test", func(registry.ProviderConfig) (any, error) {
		return &fakeChatModel{reply: "it's sunny", toolCallOnce: "get_weather"}, nil
	})
	reg.Register(registry.KindTTS, "test", func(registry.ProviderConfig) (any, error) {
		return fakeVoice{}, nil
	})
	reg.Register(registry.KindTool, "mcp", func(registry.ProviderConfig) (any, error) {
		return fakeToolPort{resultJSON: `{"tempF":72}`}, nil
	})

	cfg := testConfig()
	cfg.ToolsSchema = []config.ToolSchema{{Name: "get_weather", Description: "current weather"}}

	adapter := newFakeAdapter()
	call, err := New("tool-call", cfg, adapter, reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	trace := frame.NewTraceID()
	feedUtterance(t, adapter.in, trace)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(adapter.writtenFrames()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(adapter.writtenFrames()) == 0 {
		t.Fatal("expected a spoken reply after the tool call completed")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Call.Run did not return after cancellation")
	}
}

func TestCallRunEmergencyStopEndsCallPromptly(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindSTT, "test", func(registry.ProviderConfig) (any, error) {
		return fakeTranscriber{}, nil
	})
	reg.Register(registry.KindLLM, "test", func(registry.ProviderConfig) (any, error) {
		return &fakeChatModel{reply: "unused"}, nil
	})
	reg.Register(registry.KindTTS, "test", func(registry.ProviderConfig) (any, error) {
		return fakeVoice{}, nil
	})

	adapter := newFakeAdapter()
	cfg := testConfig()
	cfg.InactivityMaxRetries = 0
	cfg.IdleTimeoutMs = 20
	call, err := New("idle-call", cfg, adapter, reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Call.Run did not end after exhausting idle retries")
	}
}

// TestCallRunBargeInSignalsClearPlayout exercises spec §6/§8: on barge-in
// mid-utterance, the orchestrator must drain its transport-outbound queue
// and tell the transport to clear whatever it already buffered. With
// interruption.enabled/min_words at their defaults (true, 1), a second
// utterance on the same trace the pipeline is currently speaking on — which
// is how a real adapter stamps genuine barge-in audio — fires INTERRUPT
// immediately, and the orchestrator must answer with a ClearPlayout call
// (observed here as a TypeClear envelope on the fake adapter).
func TestCallRunBargeInSignalsClearPlayout(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindSTT, "test", func(registry.ProviderConfig) (any, error) {
		return fakeTranscriber{transcript: "tell me a long story"}, nil
	})
	reg.Register(registry.KindLLM, "test", func(registry.ProviderConfig) (any, error) {
		return &fakeChatModel{reply: "a very long reply that keeps going on and on"}, nil
	})
	reg.Register(registry.KindTTS, "test", func(registry.ProviderConfig) (any, error) {
		return slowVoice{frames: 40}, nil
	})

	adapter := newFakeAdapter()
	call, err := New("interrupt-call", testConfig(), adapter, reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	trace := frame.NewTraceID()
	feedUtterance(t, adapter.in, trace)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(adapter.writtenFrames()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(adapter.writtenFrames()) == 0 {
		t.Fatal("expected the orchestrator to start speaking before the barge-in")
	}

	// Barge in on the same trace the pipeline is currently speaking on.
	feedUtterance(t, adapter.in, trace)

	deadline = time.Now().Add(3 * time.Second)
	var sawClear bool
	for time.Now().Before(deadline) {
		for _, env := range adapter.sentEnvelopes() {
			if env.Type == transport.TypeClear {
				sawClear = true
			}
		}
		if sawClear {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !sawClear {
		t.Fatal("expected the orchestrator to clear the transport's playout buffer on barge-in")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Call.Run did not return after cancellation")
	}
}

// TestCallRunToolLoopForcesStopAtDepthCap exercises spec §4.7/§8's bounded
// tool-calling loop: an LLM that would call a tool forever is re-invoked with
// ForceStop once the loop hits convo.MaxToolCallDepth(), and the turn ends by
// speaking that forced reply rather than looping indefinitely or committing
// an empty turn.
func TestCallRunToolLoopForcesStopAtDepthCap(t *testing.T) {
	reg := registry.New()
	reg.Register(registry.KindSTT, "test", func(registry.ProviderConfig) (any, error) {
		return fakeTranscriber{transcript: "keep calling tools"}, nil
	})
	model := &fakeChatModel{reply: "done now", alwaysToolCall: true}
	reg.Register(registry.KindLLM, "test", func(registry.ProviderConfig) (any, error) {
		return model, nil
	})
	reg.Register(registry.KindTTS, "test", func(registry.ProviderConfig) (any, error) {
		return fakeVoice{}, nil
	})
	reg.Register(registry.KindTool, "mcp", func(registry.ProviderConfig) (any, error) {
		return fakeToolPort{resultJSON: `{"ok":true}`}, nil
	})

	cfg := testConfig()
	cfg.ToolsSchema = []config.ToolSchema{{Name: "loop_tool", Description: "always loops"}}

	adapter := newFakeAdapter()
	call, err := New("tool-loop-call", cfg, adapter, reg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	trace := frame.NewTraceID()
	feedUtterance(t, adapter.in, trace)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(adapter.writtenFrames()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(adapter.writtenFrames()) == 0 {
		t.Fatal("expected the orchestrator to speak the forced-stop reply instead of looping forever")
	}

	seen := model.forceStopCalls()
	if len(seen) == 0 {
		t.Fatal("expected at least one LLM call")
	}
	if seen[len(seen)-1] != true {
		t.Fatalf("expected the final LLM call to carry ForceStop=true once the depth cap was hit, got %v", seen)
	}
	for _, fs := range seen[:len(seen)-1] {
		if fs {
			t.Fatalf("expected ForceStop=false before the depth cap, got %v", seen)
		}
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Call.Run did not return after cancellation")
	}
}
