// Package openai adapts the OpenAI API to the STT, LLM, and TTS ports via
// github.com/openai/openai-go: streaming chat completions for LLMPort,
// Whisper transcription for STTPort, and the speech endpoint for TTSPort.
package openai

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

const defaultChatModel = "gpt-4o-mini"

// LLM adapts oai.Client's streaming chat completions to ports.LLMPort.
type LLM struct {
	client oai.Client
	model  string
}

// NewLLM builds an OpenAI chat-completion adapter from its provider config.
func NewLLM(cfg registry.ProviderConfig) (any, error) {
	apiKey := stringField(cfg, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}
	model := stringField(cfg, "model")
	if model == "" {
		model = defaultChatModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := stringField(cfg, "base_url"); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if org := stringField(cfg, "organization"); org != "" {
		opts = append(opts, option.WithOrganization(org))
	}

	return &LLM{client: oai.NewClient(opts...), model: model}, nil
}

func (l *LLM) Name() string { return "openai" }

func (l *LLM) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	params, err := l.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	stream := l.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan frame.LLMChunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()

		trace := frame.NewTraceID()
		type accum struct {
			id, name, args string
		}
		toolCalls := map[int]*accum{}
		var order []int

		emit := func(reason frame.FinishReason) {
			for _, idx := range order {
				tc := toolCalls[idx]
				out <- frame.NewLLMFunctionCallChunk(trace, frame.FunctionCallDelta{
					Name:             tc.name,
					ArgumentsPartial: tc.args,
					CallID:           tc.id,
					Index:            idx,
				})
			}
			out <- frame.NewLLMTerminalChunk(trace, reason)
		}

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				out <- frame.NewLLMContentChunk(trace, delta.Content)
			}

			for _, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				existing, ok := toolCalls[idx]
				if !ok {
					existing = &accum{}
					toolCalls[idx] = existing
					order = append(order, idx)
				}
				if tc.ID != "" {
					existing.id = tc.ID
				}
				if tc.Function.Name != "" {
					existing.name = tc.Function.Name
				}
				existing.args += tc.Function.Arguments
			}

			switch choice.FinishReason {
			case "tool_calls":
				emit(frame.FinishToolCalls)
				return
			case "length":
				emit(frame.FinishLength)
				return
			case "stop":
				emit(frame.FinishStop)
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- frame.NewLLMTerminalChunk(trace, frame.FinishError):
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func (l *LLM) buildParams(req ports.GenerateRequest) (oai.ChatCompletionNewParams, error) {
	if req.ForceStop {
		req.Tools = nil
	}

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(l.model),
		Messages: messages,
	}
	if req.Params.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Params.Temperature)
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Params.MaxTokens))
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}
	return params, nil
}

func convertMessage(m ports.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
