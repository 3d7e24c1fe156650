package ollama

import (
	"testing"

	"github.com/ollama/ollama/api"
)

func TestNewLLMDefaultsModel(t *testing.T) {
	inst, err := NewLLM(map[string]any{"base_url": "http://127.0.0.1:11434"})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	l := inst.(*LLM)
	if l.model != defaultModel {
		t.Errorf("expected default model %q, got %q", defaultModel, l.model)
	}
}

func TestNewLLMRejectsBadBaseURL(t *testing.T) {
	if _, err := NewLLM(map[string]any{"base_url": "://not-a-url"}); err == nil {
		t.Fatal("expected error for malformed base_url")
	}
}

func TestArgsToJSON(t *testing.T) {
	args := api.NewToolCallFunctionArguments()
	args.Set("city", "Berlin")
	got := argsToJSON(args)
	if got != `{"city":"Berlin"}` {
		t.Errorf("unexpected JSON: %s", got)
	}
}
