// Package statemachine implements spec §4.10: the conversation state
// machine. It is the single owner of ConversationState and serializes every
// transition so no two transitions ever observe an overlapping state.
package statemachine

import (
	"log"
	"sync"

	"github.com/room4-2/voxcore/internal/frame"
)

// State is one of the four conversation states.
type State int

const (
	Idle State = iota
	Listening
	Thinking
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Listening:
		return "LISTENING"
	case Thinking:
		return "THINKING"
	case Speaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Event is one of the inputs the transition table names.
type Event int

const (
	EventSessionStart Event = iota
	EventUserStartedSpeaking
	EventUserStoppedSpeakingNonEmpty
	EventUserStoppedSpeakingEmpty
	EventFirstTTSAudio
	EventLLMFinishStopNoContent
	EventInterrupt
	EventTTSEndNatural
	EventEmergencyStop
)

func (e Event) String() string {
	switch e {
	case EventSessionStart:
		return "session_start"
	case EventUserStartedSpeaking:
		return "UserStartedSpeaking"
	case EventUserStoppedSpeakingNonEmpty:
		return "UserStoppedSpeaking(non-empty STT)"
	case EventUserStoppedSpeakingEmpty:
		return "UserStoppedSpeaking(empty STT)"
	case EventFirstTTSAudio:
		return "first TTS audio frame"
	case EventLLMFinishStopNoContent:
		return "LLM finish_reason=stop, no content"
	case EventInterrupt:
		return "INTERRUPT"
	case EventTTSEndNatural:
		return "TTSEnd(natural)"
	case EventEmergencyStop:
		return "EMERGENCY_STOP"
	default:
		return "unknown"
	}
}

// Effect is a side-effecting action the machine's owner should carry out as
// part of a transition, returned so the machine itself stays free of
// component dependencies.
type Effect int

const (
	EffectNone Effect = iota
	EffectCancelLLM
	EffectCancelLLMAndTTS
	EffectVoicedFlagSet
)

// transitions encodes the exhaustive table from spec §4.10. A (from, event)
// pair absent from this map is an illegal transition: dropped with a logged
// warning, never a crash.
var transitions = map[State]map[Event]struct {
	to     State
	effect Effect
}{
	Idle: {
		EventSessionStart: {to: Listening, effect: EffectNone},
	},
	Listening: {
		EventUserStartedSpeaking:         {to: Listening, effect: EffectVoicedFlagSet},
		EventUserStoppedSpeakingNonEmpty: {to: Thinking, effect: EffectNone},
		EventUserStoppedSpeakingEmpty:    {to: Listening, effect: EffectNone},
	},
	Thinking: {
		EventFirstTTSAudio:          {to: Speaking, effect: EffectNone},
		EventLLMFinishStopNoContent: {to: Listening, effect: EffectNone},
		EventInterrupt:              {to: Listening, effect: EffectCancelLLM},
	},
	Speaking: {
		EventTTSEndNatural: {to: Listening, effect: EffectNone},
		EventInterrupt:     {to: Listening, effect: EffectCancelLLMAndTTS},
	},
}

// Machine owns ConversationState for one call. All methods serialize through
// an internal mutex so transitions never overlap.
type Machine struct {
	mu    sync.Mutex
	state State
	trace frame.TraceID
}

// New starts a Machine in IDLE, seeded with a fresh trace_id so an accessor
// reading CurrentTrace before the first Fire call (e.g. a transport adapter
// tagging inbound audio ahead of EventSessionStart) never observes the zero
// value.
func New() *Machine {
	return &Machine{state: Idle, trace: frame.NewTraceID()}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event to the machine. It returns the resulting state and any
// Effect the caller must carry out; ok is false if the transition was
// illegal for the current state, in which case the state is left unchanged.
// EMERGENCY_STOP is legal from any state and is terminal.
func (m *Machine) Fire(event Event, trace frame.TraceID) (State, Effect, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event == EventEmergencyStop {
		from := m.state
		m.state = Idle
		m.trace = trace
		log.Printf("statemachine: %s -> IDLE (EMERGENCY_STOP)", from)
		return Idle, EffectNone, true
	}

	row, ok := transitions[m.state]
	if !ok {
		log.Printf("statemachine: illegal transition %s on %s (no transitions defined for state)", event, m.state)
		return m.state, EffectNone, false
	}
	t, ok := row[event]
	if !ok {
		log.Printf("statemachine: illegal transition %s on %s, dropped", event, m.state)
		return m.state, EffectNone, false
	}

	from := m.state
	m.state = t.to
	m.trace = trace
	if from != t.to {
		log.Printf("statemachine: %s -> %s (%s)", from, t.to, event)
	}
	return t.to, t.effect, true
}

// CurrentTrace returns the trace_id associated with the most recent
// transition.
func (m *Machine) CurrentTrace() frame.TraceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trace
}
