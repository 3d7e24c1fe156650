package openai

import (
	"testing"

	"github.com/room4-2/voxcore/internal/ports"
)

func TestConvertMessageSystem(t *testing.T) {
	param, err := convertMessage(ports.Message{Role: "system", Content: "You are helpful."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestConvertMessageUser(t *testing.T) {
	param, err := convertMessage(ports.Message{Role: "user", Content: "Hello!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestConvertMessageAssistantWithToolCalls(t *testing.T) {
	msg := ports.Message{
		Role: "assistant",
		ToolCalls: []ports.ToolCallSpec{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
		},
	}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(param.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(param.OfAssistant.ToolCalls))
	}
	tc := param.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
}

func TestConvertMessageTool(t *testing.T) {
	param, err := convertMessage(ports.Message{Role: "tool", Content: "sunny", ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if param.OfTool.ToolCallID != "call_1" {
		t.Errorf("expected ToolCallID call_1, got %s", param.OfTool.ToolCallID)
	}
}

func TestConvertMessageUnknownRole(t *testing.T) {
	if _, err := convertMessage(ports.Message{Role: "narrator", Content: "test"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBuildParamsIncludesToolsAndSampling(t *testing.T) {
	l := &LLM{model: "gpt-4o-mini"}
	req := ports.GenerateRequest{
		Messages: []ports.Message{{Role: "user", Content: "hi"}},
		Tools: []ports.ToolDefinition{
			{Name: "get_weather", Description: "current weather", Parameters: map[string]any{"type": "object"}},
		},
		Params: ports.GenerateParams{Temperature: 0.4, MaxTokens: 200},
	}
	params, err := l.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "get_weather" {
		t.Fatalf("expected get_weather tool, got %+v", params.Tools)
	}
}

func TestNewLLMMissingAPIKey(t *testing.T) {
	if _, err := NewLLM(nil); err == nil {
		t.Fatal("expected error for empty api_key")
	}
}

func TestNewLLMDefaultsModel(t *testing.T) {
	inst, err := NewLLM(map[string]any{"api_key": "sk-test"})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	l := inst.(*LLM)
	if l.model != defaultChatModel {
		t.Errorf("expected default model %q, got %q", defaultChatModel, l.model)
	}
}
