// Package convo implements spec §4.7: the context aggregator. It owns the
// ConversationContext for one call, translates final user transcripts into
// LLM requests, accumulates streamed LLM output into committed messages, and
// drives the bounded tool-calling loop.
package convo

import (
	"context"
	"fmt"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

// maxToolCallDepth bounds the tool-calling loop (spec §4.7: "max depth 5,
// then force stop").
const maxToolCallDepth = 5

// Role enumerates the four message roles ConversationContext tracks.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one committed turn of conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ports.ToolCallSpec
	ToolCallID string
}

func (m Message) toPort() ports.Message {
	return ports.Message{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// pendingToolCall accumulates one function-call's streamed argument deltas
// until the terminal LLMChunk arrives.
type pendingToolCall struct {
	id, name string
	args     string
}

// Context is the aggregator's owned conversation state. It must only be
// mutated by the goroutine running Processor.Run; other components receive
// value-copied Snapshots.
type Context struct {
	messages         []Message
	assistantPartial string
	pendingCalls     map[int]*pendingToolCall
	turnCounter      int
	currentTrace     frame.TraceID
}

// New builds a Context seeded with an optional system prompt.
func New(systemPrompt string) *Context {
	c := &Context{pendingCalls: make(map[int]*pendingToolCall)}
	if systemPrompt != "" {
		c.messages = append(c.messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// Snapshot is an immutable value copy of the committed message history, for
// consumers that must not observe or mutate the aggregator's live state.
type Snapshot struct {
	Messages    []Message
	TurnCounter int
}

func (c *Context) Snapshot() Snapshot {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{Messages: msgs, TurnCounter: c.turnCounter}
}

func (c *Context) portMessages() []ports.Message {
	out := make([]ports.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.toPort()
	}
	return out
}

// AppendUser commits a {role:user} message and bumps the turn counter,
// per spec §4.7 ("on arrival of a final user TextFrame: appends a
// {role:user} message").
func (c *Context) AppendUser(trace frame.TraceID, text string) {
	c.currentTrace = trace
	c.turnCounter++
	c.messages = append(c.messages, Message{Role: RoleUser, Content: text})
}

// AppendChunk folds one streamed LLMChunk into the pending assistant turn.
func (c *Context) AppendChunk(chunk frame.LLMChunk) {
	if chunk.Content != "" {
		c.assistantPartial += chunk.Content
	}
	if chunk.FunctionCall != nil {
		fc := chunk.FunctionCall
		p, ok := c.pendingCalls[fc.Index]
		if !ok {
			p = &pendingToolCall{id: fc.CallID, name: fc.Name}
			c.pendingCalls[fc.Index] = p
		}
		if fc.Name != "" {
			p.name = fc.Name
		}
		if fc.CallID != "" {
			p.id = fc.CallID
		}
		p.args += fc.ArgumentsPartial
	}
}

// CommitStop finalizes the pending turn on finish_reason=stop: the
// accumulated assistant_partial becomes a committed assistant message (or is
// dropped silently if empty — e.g. THINKING -> LISTENING with no content).
func (c *Context) CommitStop() {
	if c.assistantPartial != "" {
		c.messages = append(c.messages, Message{Role: RoleAssistant, Content: c.assistantPartial})
	}
	c.resetPending()
}

// CommitToolCalls finalizes the pending turn on finish_reason=tool_calls:
// the assistant message carrying the accumulated tool calls is committed,
// and the caller-ordered ToolCallSpec list is returned so the processor can
// invoke each one.
func (c *Context) CommitToolCalls() []ports.ToolCallSpec {
	calls := make([]ports.ToolCallSpec, 0, len(c.pendingCalls))
	for i := 0; i < len(c.pendingCalls); i++ {
		p, ok := c.pendingCalls[i]
		if !ok {
			continue
		}
		calls = append(calls, ports.ToolCallSpec{ID: p.id, Name: p.name, Arguments: p.args})
	}
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Content:   c.assistantPartial,
		ToolCalls: calls,
	})
	c.resetPending()
	return calls
}

// AppendToolResult appends one {role:tool} message per spec §4.7, keyed to
// the originating tool_call_id so the LLM can correlate results with calls.
func (c *Context) AppendToolResult(callID, resultJSON string) {
	c.messages = append(c.messages, Message{Role: RoleTool, Content: resultJSON, ToolCallID: callID})
}

// TruncateSpoken replaces the pending assistant_partial with only the prefix
// that was actually spoken (per §4.10, driven by the TTS processor's spoken
// sentence count) and commits it, discarding the unspoken remainder. Used on
// INTERRUPT mid-generation.
func (c *Context) TruncateSpoken(spoken string) {
	if spoken != "" {
		c.messages = append(c.messages, Message{Role: RoleAssistant, Content: spoken})
	}
	c.resetPending()
}

func (c *Context) resetPending() {
	c.assistantPartial = ""
	c.pendingCalls = make(map[int]*pendingToolCall)
}

// AssistantPartial exposes the in-flight assistant buffer, e.g. so the TTS
// processor's spoken-sentence tracking can be checked against it.
func (c *Context) AssistantPartial() string { return c.assistantPartial }

// CurrentTrace returns the trace_id of the turn currently in flight.
func (c *Context) CurrentTrace() frame.TraceID { return c.currentTrace }

// Request builds an LLM request from the current committed history.
func (c *Context) Request(tools []ports.ToolDefinition, params ports.GenerateParams) ports.GenerateRequest {
	return ports.GenerateRequest{Messages: c.portMessages(), Tools: tools, Params: params}
}

// MaxToolCallDepth exposes the loop bound for the orchestrator to check
// before re-entering the LLM after a tool_calls turn: on reaching it, the
// caller must set ports.GenerateRequest.ForceStop on the next request
// instead of looping further (spec §4.7: "max depth 5, then force stop").
func MaxToolCallDepth() int { return maxToolCallDepth }

// invoker abstracts ports.ToolPort for the RunToolCalls helper.
type invoker interface {
	Invoke(ctx context.Context, name, argumentsJSON string) (ports.ToolResult, error)
}

// RunToolCalls invokes every pending call in order against tool and appends
// one {role:tool} message per result. It is a convenience wrapper the
// orchestrator calls after CommitToolCalls; the orchestrator's runTurn does
// the actual loop-depth bookkeeping across re-entries.
func (c *Context) RunToolCalls(ctx context.Context, tool invoker, calls []ports.ToolCallSpec) {
	for _, call := range calls {
		res, err := tool.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			c.AppendToolResult(call.ID, fmt.Sprintf(`{"error":%q}`, err.Error()))
			continue
		}
		if res.Err != "" {
			c.AppendToolResult(call.ID, fmt.Sprintf(`{"error":%q}`, res.Err))
			continue
		}
		c.AppendToolResult(call.ID, res.ResultJSON)
	}
}
