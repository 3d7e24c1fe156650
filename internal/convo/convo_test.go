package convo

import (
	"context"
	"testing"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
)

func TestAppendUserThenStopCommitsOnePair(t *testing.T) {
	c := New("you are a helpful assistant")
	c.AppendUser(frame.NewTraceID(), "what's the weather")
	c.AppendChunk(frame.NewLLMContentChunk("t", "it is sunny"))
	c.CommitStop()

	snap := c.Snapshot()
	if len(snap.Messages) != 3 { // system, user, assistant
		t.Fatalf("expected 3 messages, got %d: %#v", len(snap.Messages), snap.Messages)
	}
	if snap.Messages[1].Role != RoleUser || snap.Messages[1].Content != "what's the weather" {
		t.Fatalf("unexpected user message: %#v", snap.Messages[1])
	}
	if snap.Messages[2].Role != RoleAssistant || snap.Messages[2].Content != "it is sunny" {
		t.Fatalf("unexpected assistant message: %#v", snap.Messages[2])
	}
}

func TestCommitStopWithEmptyPartialAppendsNothing(t *testing.T) {
	c := New("")
	c.AppendUser(frame.NewTraceID(), "hello")
	c.CommitStop()
	snap := c.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("expected only the user message, got %#v", snap.Messages)
	}
}

func TestToolCallLoopCommitsAssistantThenToolMessages(t *testing.T) {
	c := New("")
	c.AppendUser(frame.NewTraceID(), "what's the company address")

	c.AppendChunk(frame.NewLLMFunctionCallChunk("t", frame.FunctionCallDelta{
		Name: "get_address", ArgumentsPartial: "{}", CallID: "call_1", Index: 0,
	}))
	calls := c.CommitToolCalls()
	if len(calls) != 1 || calls[0].Name != "get_address" {
		t.Fatalf("expected one tool call, got %#v", calls)
	}

	c.AppendToolResult("call_1", `{"address":"1 Main St"}`)

	snap := c.Snapshot()
	if len(snap.Messages) != 3 { // user, assistant-with-calls, tool
		t.Fatalf("expected 3 messages, got %#v", snap.Messages)
	}
	if snap.Messages[1].Role != RoleAssistant || len(snap.Messages[1].ToolCalls) != 1 {
		t.Fatalf("expected assistant message carrying tool calls, got %#v", snap.Messages[1])
	}
	if snap.Messages[2].Role != RoleTool || snap.Messages[2].ToolCallID != "call_1" {
		t.Fatalf("expected tool result message, got %#v", snap.Messages[2])
	}
}

func TestTruncateSpokenDiscardsUnspokenRemainder(t *testing.T) {
	c := New("")
	c.AppendUser(frame.NewTraceID(), "tell me a long story")
	c.AppendChunk(frame.NewLLMContentChunk("t", "Once upon a time, there was a dragon who loved gold."))
	c.TruncateSpoken("Once upon a time,")

	snap := c.Snapshot()
	last := snap.Messages[len(snap.Messages)-1]
	if last.Content != "Once upon a time," {
		t.Fatalf("expected only spoken prefix committed, got %q", last.Content)
	}
	if c.AssistantPartial() != "" {
		t.Fatalf("expected pending buffer cleared after truncation, got %q", c.AssistantPartial())
	}
}

type fakeTool struct{ called []string }

func (f *fakeTool) Invoke(ctx context.Context, name, argumentsJSON string) (ports.ToolResult, error) {
	f.called = append(f.called, name)
	return ports.ToolResult{ResultJSON: `{"ok":true}`}, nil
}

func TestRunToolCallsAppendsOneResultPerCall(t *testing.T) {
	c := New("")
	tool := &fakeTool{}
	calls := []ports.ToolCallSpec{
		{ID: "1", Name: "a", Arguments: "{}"},
		{ID: "2", Name: "b", Arguments: "{}"},
	}
	c.RunToolCalls(context.Background(), tool, calls)

	snap := c.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("expected 2 tool result messages, got %#v", snap.Messages)
	}
	if len(tool.called) != 2 {
		t.Fatalf("expected both tools invoked, got %#v", tool.called)
	}
}

func TestMaxToolCallDepthMatchesSpecBound(t *testing.T) {
	if MaxToolCallDepth() != 5 {
		t.Fatalf("expected max tool call depth of 5, got %d", MaxToolCallDepth())
	}
}
