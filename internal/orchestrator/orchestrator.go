// Package orchestrator implements spec §4.12 (component C12): the per-call
// engine that wires transport, VAD, STT, the context aggregator, the LLM and
// TTS processors, and the conversation state machine into one running call,
// and owns that call's cancellation scope from connect to teardown.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/control"
	"github.com/room4-2/voxcore/internal/convo"
	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/llmproc"
	"github.com/room4-2/voxcore/internal/metrics"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
	"github.com/room4-2/voxcore/internal/statemachine"
	"github.com/room4-2/voxcore/internal/storage/pgrecords"
	"github.com/room4-2/voxcore/internal/sttproc"
	"github.com/room4-2/voxcore/internal/transport"
	"github.com/room4-2/voxcore/internal/ttsproc"
	"github.com/room4-2/voxcore/internal/vad"
)

// Call is one running conversation. It is constructed fresh per connection
// and discarded at teardown; nothing here is reused across calls (spec §3,
// Ownership).
type Call struct {
	id      string
	cfg     *config.ConfigSnapshot
	adapter transport.Adapter

	tool ports.ToolPort

	ctrl    *control.Channel
	machine *statemachine.Machine
	convo   *convo.Context
	metrics *metrics.Metrics
	sink    *pgrecords.Sink

	sttProc *sttproc.Processor
	llmProc *llmproc.Processor
	ttsProc *ttsproc.Processor
	vadProc *vad.Processor

	turnStartedAt time.Time
	idle          *idleWatcher
	retries       int
	audioOut      chan frame.AudioFrame
	audioCtrl     *control.Subscription
}

// New builds a Call from a registered provider set. reg supplies the
// STT/LLM/TTS/Tool candidates for cfg's provider chain; m and sink may be
// nil, in which case metrics and turn persistence are skipped.
func New(callID string, cfg *config.ConfigSnapshot, adapter transport.Adapter, reg *registry.Registry, m *metrics.Metrics, sink *pgrecords.Sink) (*Call, error) {
	onActivate := func(kind string) func(int, int) {
		return func(from, to int) {
			if m != nil {
				m.RecordFallbackActivation(context.Background(), kind, to)
			}
		}
	}

	sttPort, llmPort, ttsPort, toolPort, err := buildPorts(reg, cfg, onActivate)
	if err != nil {
		return nil, err
	}

	c := &Call{
		id:       callID,
		cfg:      cfg,
		adapter:  adapter,
		tool:     toolPort,
		ctrl:     control.New(),
		machine:  statemachine.New(),
		convo:    convo.New(cfg.EffectiveSystemPrompt()),
		metrics:  m,
		sink:     sink,
		idle:     newIdleWatcher(time.Duration(cfg.IdleTimeoutMs) * time.Millisecond),
		audioOut: make(chan frame.AudioFrame, 32),
	}
	// Its own mailbox on the shared control channel, so streamTTS reliably
	// observes every INTERRUPT regardless of whether sttProc or controlWatcher
	// also wake on the same Publish (spec §4.9(b): "drain and discard the
	// transport-outbound queue for the current trace").
	c.audioCtrl = c.ctrl.Subscribe()

	blacklist := sttproc.NewBlacklist(cfg.HallucinationBlacklist)
	c.sttProc = sttproc.NewProcessor(sttPort, c.ctrl, blacklist, c.sttState, cfg.SuppressStaleFinals)
	c.llmProc = llmproc.NewProcessor(llmPort)
	c.ttsProc = ttsproc.NewProcessor(ttsPort, ttsproc.Voice{
		Name: cfg.TTSVoice, Rate: int(cfg.TTSSpeed * 100), Pitch: cfg.TTSPitch, Volume: cfg.TTSVolume,
	}, cfg.BackgroundSound)

	detector := vad.NewDetector(vad.Config{
		Threshold:        cfg.VADThreshold,
		SilenceThreshold: cfg.EffectiveSilenceThresholdMs(),
	})
	c.vadProc = vad.NewProcessor(vad.NewPool(vad.NewEnergyScorer()), detector, c.ctrl, c.vadState).
		WithBargeInGate(vad.BargeInGate{
			Enabled:       cfg.InterruptionEnabled,
			MinWords:      cfg.InterruptionMinWords,
			FrameDuration: detector.FrameDuration(),
		})

	return c, nil
}

func (c *Call) sttState() sttproc.State { return sttproc.State(c.machine.State()) }
func (c *Call) vadState() vad.State     { return vad.State(c.machine.State()) }

// CurrentTrace returns the trace_id of the call's current turn as tracked by
// the state machine (spec §4.1's trace-id inheritance rule): the trace any
// newly-observed inbound audio should inherit until the next state
// transition establishes a new one. Safe to call before Run starts; the
// machine seeds it with a fresh trace at construction.
func (c *Call) CurrentTrace() frame.TraceID { return c.machine.CurrentTrace() }

// Run drives the call end to end until the transport closes, EMERGENCY_STOP
// fires, or max_duration_s elapses. It never returns until the call is over.
func (c *Call) Run(ctx context.Context) error {
	scope := NewScope(ctx)
	sctx := scope.Context()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(sctx, 1)
		defer c.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	audioIn, err := c.adapter.ReadAudio(sctx)
	if err != nil {
		return err
	}
	vadAudio, sttAudio := teeAudio(sctx, audioIn)

	vadOut := c.vadProc.Run(sctx, vadAudio)
	merged := mergeFrames(sctx, sttAudio, vadOut)
	sttOut := c.sttProc.Run(sctx, merged)

	c.machine.Fire(statemachine.EventSessionStart, c.machine.CurrentTrace())

	if c.cfg.FirstMessageMode == config.FirstMessageSpeakFirst && c.cfg.FirstMessage != "" {
		greetTrace := frame.NewTraceID()
		scope.Go(func() error { return c.speak(sctx, greetTrace, c.cfg.FirstMessage) })
	}

	maxDur := newMaxDurationWatcher(time.Duration(c.cfg.MaxDurationS) * time.Second)

	scope.Go(func() error { return c.adapter.WriteAudio(sctx, c.audioOut) })
	scope.Go(func() error { return c.idle.Run(sctx) })
	scope.Go(func() error { return c.controlWatcher(sctx, scope) })
	scope.Go(func() error { return c.frameLoop(sctx, scope, sttOut) })
	scope.Go(func() error {
		for {
			select {
			case <-sctx.Done():
				return nil
			case <-c.idle.Fired():
				c.handleIdleFire(sctx, scope)
			case <-maxDur.Fired():
				log.Printf("orchestrator: call %s hit max_duration_s, ending", c.id)
				c.ctrl.Publish(control.Message{Kind: control.EmergencyStop, TraceID: c.convo.CurrentTrace()})
				return nil
			}
		}
	})

	err = scope.Wait()
	c.adapter.Close()
	return err
}

// frameLoop consumes the merged sttproc output stream: speech-boundary
// frames drive state-machine transitions, final text frames start a turn.
func (c *Call) frameLoop(ctx context.Context, scope *Scope, in <-chan frame.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case fr, ok := <-in:
			if !ok {
				// The inbound stream ended (transport closed): end the call.
				scope.Cancel()
				return nil
			}
			switch v := fr.(type) {
			case frame.UserStartedSpeaking:
				c.idle.Reset()
				c.machine.Fire(statemachine.EventUserStartedSpeaking, v.Trace())

			case frame.TextFrame:
				if v.IsPartial {
					c.adapter.SendText(transport.NewTextMessage(c.id, v.Text, true))
					continue
				}
				c.idle.Reset()
				c.retries = 0
				if v.Text == "" {
					c.machine.Fire(statemachine.EventUserStoppedSpeakingEmpty, v.Trace())
					continue
				}
				c.machine.Fire(statemachine.EventUserStoppedSpeakingNonEmpty, v.Trace())
				c.turnStartedAt = time.Now()
				scope.Go(func() error { return c.runTurn(ctx, scope, v.Trace(), v.Text) })

			case frame.ErrorFrame:
				log.Printf("orchestrator: call %s error port=%s kind=%s retryable=%v msg=%s", c.id, v.Port, v.Kind, v.Retryable, v.Message)
				c.adapter.SendText(transport.NewErrorMessage(c.id, transport.ErrCodeProviderError, v.Message))
				if !v.Retryable {
					// spec §7: any unhandled non-retryable port error escalates
					// to EMERGENCY_STOP; retryable errors are already absorbed
					// by the fallback wrapper's circuit breaker.
					c.ctrl.Publish(control.Message{Kind: control.EmergencyStop, TraceID: v.Trace()})
				}
			}
		}
	}
}

// controlWatcher observes the out-of-band control channel and is the single
// authority for applying the state machine's cancellation effects (spec
// §4.10, §4.11): it fires the transition, then drives llmProc/ttsProc
// cancellation directly off the Effect the transition returns, rather than
// leaving each processor to independently rediscover whether it should
// cancel.
func (c *Call) controlWatcher(ctx context.Context, scope *Scope) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctrl.Notify():
			for _, msg := range c.ctrl.Drain() {
				switch msg.Kind {
				case control.Interrupt:
					_, effect, ok := c.machine.Fire(statemachine.EventInterrupt, msg.TraceID)
					if !ok {
						continue
					}
					c.applyCancelEffect(effect, msg.TraceID)
				case control.CancelTurn:
					c.llmProc.Cancel(msg.TraceID)
					c.ttsProc.Cancel(msg.TraceID)
				case control.EmergencyStop:
					c.machine.Fire(statemachine.EventEmergencyStop, msg.TraceID)
					c.llmProc.Cancel(msg.TraceID)
					c.ttsProc.Cancel(msg.TraceID)
					scope.Cancel()
					return nil
				}
			}
		}
	}
}

// applyCancelEffect carries out the side effect statemachine.Fire reported
// for an INTERRUPT transition: THINKING cancels only the LLM stream (no TTS
// has started yet), SPEAKING cancels both.
func (c *Call) applyCancelEffect(effect statemachine.Effect, trace frame.TraceID) {
	switch effect {
	case statemachine.EffectCancelLLM:
		c.llmProc.Cancel(trace)
	case statemachine.EffectCancelLLMAndTTS:
		c.llmProc.Cancel(trace)
		c.ttsProc.Cancel(trace)
	}
}

func (c *Call) handleIdleFire(ctx context.Context, scope *Scope) {
	if statemachine.State(c.machine.State()) != statemachine.Listening {
		return
	}
	c.retries++
	if c.retries > c.cfg.InactivityMaxRetries {
		log.Printf("orchestrator: call %s exceeded idle retries, ending", c.id)
		c.ctrl.Publish(control.Message{Kind: control.EmergencyStop, TraceID: c.convo.CurrentTrace()})
		return
	}
	trace := frame.NewTraceID()
	scope.Go(func() error { return c.speak(ctx, trace, c.cfg.IdleMessage) })
}

// speak synthesizes a fixed string outside the LLM loop (used for the idle
// prompt and for the speak-first greeting).
func (c *Call) speak(ctx context.Context, trace frame.TraceID, text string) error {
	content := make(chan frame.LLMChunk, 1)
	content <- frame.NewLLMContentChunk(trace, text)
	close(content)

	ttsOut, _ := c.ttsProc.Run(ctx, trace, content)
	c.streamTTS(ctx, trace, ttsOut)
	return nil
}

// runTurn drives one user turn: LLM generation, streamed speech, and the
// bounded tool-calling loop, per spec §4.7's aggregator and §4.8's LLM
// processor.
func (c *Call) runTurn(ctx context.Context, scope *Scope, trace frame.TraceID, userText string) error {
	c.convo.AppendUser(trace, userText)

	tools := make([]ports.ToolDefinition, len(c.cfg.ToolsSchema))
	for i, t := range c.cfg.ToolsSchema {
		tools[i] = ports.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	params := ports.GenerateParams{Temperature: c.cfg.LLMTemperature, MaxTokens: c.cfg.LLMMaxTokens}

	for depth := 0; ; depth++ {
		req := c.convo.Request(tools, params)
		req.ForceStop = depth >= convo.MaxToolCallDepth()

		chunks, err := c.llmProc.Generate(ctx, trace, req)
		if err != nil {
			c.adapter.SendText(transport.NewErrorMessage(c.id, transport.ErrCodeProviderError, err.Error()))
			c.machine.Fire(statemachine.EventLLMFinishStopNoContent, trace)
			return nil
		}

		speechChunks, toolChunks := teeChunks(ctx, chunks)
		ttsOut, ttsResult := c.ttsProc.Run(ctx, trace, speechChunks)

		ttsDone := make(chan struct{})
		go func() {
			defer close(ttsDone)
			c.streamTTS(ctx, trace, ttsOut)
		}()

		finish := frame.FinishStop
		for chunk := range toolChunks {
			c.convo.AppendChunk(chunk)
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
		}

		<-ttsDone

		if c.sink != nil {
			c.recordTurn(ctx, trace, userText, ttsResult, finish)
		}

		switch finish {
		case frame.FinishToolCalls:
			if req.ForceStop {
				// The depth cap's forced no-tools request still came back
				// with tool calls (a non-conforming adapter); commit
				// whatever text accompanied them and end the turn rather
				// than loop forever.
				c.convo.CommitStop()
				return nil
			}
			calls := c.convo.CommitToolCalls()
			c.runWithHoldAudio(ctx, trace, func() {
				c.convo.RunToolCalls(ctx, toolInvoker{c}, calls)
			})
			continue
		case frame.FinishInterrupted:
			c.convo.TruncateSpoken(ttsResult.Spoken())
			return nil
		default:
			if c.convo.AssistantPartial() == "" {
				c.machine.Fire(statemachine.EventLLMFinishStopNoContent, trace)
			}
			c.convo.CommitStop()
			return nil
		}
	}
}

// streamTTS forwards a TTS processor's frame stream to the transport,
// firing EventFirstTTSAudio on the first audio frame and EventTTSEndNatural
// when the utterance ends without interruption. It also watches the control
// channel directly: on an INTERRUPT for trace it stops forwarding and drains
// whatever this turn already pushed into c.audioOut, so no stale audio for
// the interrupted trace reaches the transport after the observation point
// (spec §4.9(b), §8: "no outbound AudioFrame for the current trace is
// emitted after the interrupt observation time plus 100 ms"). ttsproc
// already drains its own internal queue on the same signal; this drains the
// orchestrator's transport-outbound queue, which ttsproc has no access to.
func (c *Call) streamTTS(ctx context.Context, trace frame.TraceID, in <-chan frame.Frame) {
	first := true
	for {
		select {
		case fr, ok := <-in:
			if !ok {
				return
			}
			switch v := fr.(type) {
			case frame.AudioFrame:
				if first {
					first = false
					c.machine.Fire(statemachine.EventFirstTTSAudio, trace)
				}
				select {
				case c.audioOut <- v:
				case <-ctx.Done():
					return
				}
			case frame.TTSEnd:
				if v.Cause == frame.TTSEndNatural {
					c.machine.Fire(statemachine.EventTTSEndNatural, trace)
					if c.metrics != nil && !c.turnStartedAt.IsZero() {
						c.metrics.TurnTotalMs.Record(ctx, float64(time.Since(c.turnStartedAt).Milliseconds()))
					}
				}
			}

		case <-c.audioCtrl.Notify():
			for _, msg := range c.audioCtrl.Drain() {
				if msg.Kind != control.Interrupt || msg.TraceID != trace {
					continue
				}
				drainAudioOut(c.audioOut)
				c.adapter.ClearPlayout(ctx)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// drainAudioOut discards whatever is currently buffered in out without
// blocking.
func drainAudioOut(out chan frame.AudioFrame) {
	for {
		select {
		case <-out:
		default:
			return
		}
	}
}

func (c *Call) recordTurn(ctx context.Context, trace frame.TraceID, userText string, ttsResult *ttsproc.Result, finish frame.FinishReason) {
	rec := pgrecords.TurnRecord{
		CallID:        c.id,
		TraceID:       string(trace),
		StartedAt:     c.turnStartedAt,
		CompletedAt:   time.Now(),
		UserText:      userText,
		AssistantText: ttsResult.Spoken(),
		Interrupted:   finish == frame.FinishInterrupted,
	}
	if err := c.sink.Append(ctx, rec); err != nil {
		log.Printf("orchestrator: call %s failed to persist turn record: %v", c.id, err)
	}
}

// runWithHoldAudio runs work, interleaving the config snapshot's
// background_sound hold audio on the outbound transport if work is still
// running past 500ms (spec §4.9). Hold audio stops as soon as work returns.
func (c *Call) runWithHoldAudio(ctx context.Context, trace frame.TraceID, work func()) {
	if len(c.cfg.BackgroundSound) == 0 {
		work()
		return
	}

	holdCtx, cancel := context.WithCancel(ctx)
	frames := make(chan frame.Frame, 8)

	go func() {
		select {
		case <-time.After(500 * time.Millisecond):
			c.ttsProc.PlayHoldAudio(holdCtx, trace, frames)
		case <-holdCtx.Done():
		}
	}()
	go func() {
		for {
			select {
			case fr, ok := <-frames:
				if !ok {
					return
				}
				if af, ok := fr.(frame.AudioFrame); ok {
					select {
					case c.audioOut <- af:
					case <-holdCtx.Done():
						return
					}
				}
			case <-c.audioCtrl.Notify():
				for _, msg := range c.audioCtrl.Drain() {
					if msg.Kind != control.Interrupt || msg.TraceID != trace {
						continue
					}
					drainAudioOut(c.audioOut)
					c.adapter.ClearPlayout(ctx)
					return
				}
			case <-holdCtx.Done():
				return
			}
		}
	}()

	work()
	cancel()
}

// toolInvoker adapts *Call to convo's invoker interface, recording tool
// call outcomes to metrics.
type toolInvoker struct{ c *Call }

func (t toolInvoker) Invoke(ctx context.Context, name, argumentsJSON string) (ports.ToolResult, error) {
	if t.c.tool == nil {
		return ports.ToolResult{Err: "no tool provider configured"}, nil
	}

	timeoutMs := t.c.cfg.ToolsTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	tctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	res, err := t.c.tool.Invoke(tctx, name, argumentsJSON)
	if tctx.Err() == context.DeadlineExceeded && err == nil && res.Err == "" {
		res.Err = "tool invocation timed out"
	}
	if t.c.metrics != nil {
		t.c.metrics.RecordToolCall(ctx, name, err != nil || res.Err != "")
	}
	return res, err
}
