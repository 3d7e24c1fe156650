// Package ollama adapts a local Ollama daemon to ports.LLMPort via the
// project's own client library, github.com/ollama/ollama/api. It exists to
// give the LLM fallback chain a provider that needs no external API key: if
// the daemon is reachable at OLLAMA_HOST (or cfg["base_url"]), it serves as
// the last-resort tier behind openai.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/ollama/ollama/api"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

const defaultModel = "llama3.1"

// LLM adapts an api.Client's streaming chat endpoint to ports.LLMPort.
type LLM struct {
	client *api.Client
	model  string
}

// NewLLM builds an Ollama chat adapter from its provider config. With no
// base_url set it falls back to the client's environment discovery
// (OLLAMA_HOST, defaulting to http://127.0.0.1:11434).
func NewLLM(cfg registry.ProviderConfig) (any, error) {
	model := stringField(cfg, "model")
	if model == "" {
		model = defaultModel
	}

	var client *api.Client
	if base := stringField(cfg, "base_url"); base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("ollama: parse base_url: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
		client = c
	}

	return &LLM{client: client, model: model}, nil
}

func (l *LLM) Name() string { return "ollama" }

func (l *LLM) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	if req.ForceStop {
		req.Tools = nil
	}

	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	var tools api.Tools
	for _, td := range req.Tools {
		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        td.Name,
				Description: td.Description,
			},
		})
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    l.model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
	}

	out := make(chan frame.LLMChunk, 32)
	trace := frame.NewTraceID()

	go func() {
		defer close(out)

		err := l.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				out <- frame.NewLLMContentChunk(trace, resp.Message.Content)
			}
			for i, tc := range resp.Message.ToolCalls {
				out <- frame.NewLLMFunctionCallChunk(trace, frame.FunctionCallDelta{
					Name:             tc.Function.Name,
					ArgumentsPartial: argsToJSON(tc.Function.Arguments),
					Index:            i,
				})
			}
			if resp.Done {
				reason := frame.FinishStop
				if len(resp.Message.ToolCalls) > 0 {
					reason = frame.FinishToolCalls
				}
				out <- frame.NewLLMTerminalChunk(trace, reason)
			}
			return nil
		})
		if err != nil {
			select {
			case out <- frame.NewLLMTerminalChunk(trace, frame.FinishError):
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func argsToJSON(args api.ToolCallFunctionArguments) string {
	b, err := sonic.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func stringField(cfg registry.ProviderConfig, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
