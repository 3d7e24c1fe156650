package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"github.com/room4-2/voxcore/internal/frame"
	"github.com/room4-2/voxcore/internal/ports"
	"github.com/room4-2/voxcore/internal/registry"
)

// LLM adapts a Gemini Live session, restricted to a TEXT-only response
// modality, to ports.LLMPort. Every GenerateStream call opens its own Live
// session: the Live API models one long-lived turn-taking conversation, not
// a stateless completion, so the whole message history is replayed as a
// sequence of turns before the final user turn triggers a reply.
type LLM struct {
	apiKey string
	model  string
}

// NewLLM builds a Gemini chat-completion adapter from its provider config.
func NewLLM(cfg registry.ProviderConfig) (any, error) {
	return &LLM{apiKey: stringField(cfg, "api_key"), model: stringField(cfg, "model")}, nil
}

func (l *LLM) Name() string { return "gemini" }

func (l *LLM) GenerateStream(ctx context.Context, req ports.GenerateRequest) (<-chan frame.LLMChunk, error) {
	out := make(chan frame.LLMChunk, 8)

	if req.ForceStop {
		req.Tools = nil
	}

	systemInstruction, turns := splitMessages(req.Messages)
	tools := buildTools(req.Tools)

	sess, err := connectLive(ctx, l.apiKey, liveOptions{
		model:             l.model,
		systemInstruction: systemInstruction,
		modalities:        []genai.Modality{"TEXT"},
		tools:             tools,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini-llm: connect: %w", err)
	}

	for i, t := range turns {
		last := i == len(turns)-1
		if err := sess.session.SendClientContent(genai.LiveSendClientContentParameters{
			Turns:        []*genai.Content{t},
			TurnComplete: &last,
		}); err != nil {
			sess.close()
			return nil, fmt.Errorf("gemini-llm: send turn %d: %w", i, err)
		}
	}

	go func() {
		defer close(out)
		defer sess.close()

		trace := frame.NewTraceID()
		var sawToolCall bool

		for {
			resp, err := sess.receive()
			if err != nil {
				out <- frame.NewLLMTerminalChunk(trace, frame.FinishError)
				return
			}

			if resp.ToolCall != nil {
				for i, fc := range resp.ToolCall.FunctionCalls {
					sawToolCall = true
					out <- frame.NewLLMFunctionCallChunk(trace, frame.FunctionCallDelta{
						Name:             fc.Name,
						ArgumentsPartial: argsToJSON(fc.Args),
						CallID:           fc.ID,
						Index:            i,
					})
				}
			}

			if resp.ServerContent != nil && resp.ServerContent.ModelTurn != nil {
				for _, part := range resp.ServerContent.ModelTurn.Parts {
					if part.Text != "" {
						out <- frame.NewLLMContentChunk(trace, part.Text)
					}
				}
			}

			if resp.ServerContent != nil && resp.ServerContent.TurnComplete {
				reason := frame.FinishStop
				if sawToolCall {
					reason = frame.FinishToolCalls
				}
				out <- frame.NewLLMTerminalChunk(trace, reason)
				return
			}
		}
	}()

	return out, nil
}

// splitMessages pulls system messages out into a single instruction string
// (Live's config takes one SystemInstruction, not an interleaved message)
// and converts the remainder into genai turns in order.
func splitMessages(msgs []ports.Message) (string, []*genai.Content) {
	var sys strings.Builder
	var turns []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case "system":
			if sys.Len() > 0 {
				sys.WriteString("\n")
			}
			sys.WriteString(m.Content)
		case "assistant":
			turns = append(turns, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		case "tool":
			// Tool messages are dropped. This adapter never sends tool
			// results back (sendToolResponses in live.go has no caller),
			// so they do not reach the model on any later call either.
			continue
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return sys.String(), turns
}

func buildTools(defs []ports.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schemaFromJSON(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// schemaFromJSON converts a JSON-Schema-shaped map (ConfigSnapshot's
// tools.schema[].parameters) into the subset of genai.Schema the Live API
// understands: object/string/number/integer/boolean/array, with nested
// properties and a required list.
func schemaFromJSON(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{Type: schemaType(m["type"])}
	if desc, ok := m["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaFromJSON(sub)
			}
		}
	}
	if req, ok := m["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromJSON(items)
	}
	return s
}

func schemaType(v any) genai.Type {
	t, _ := v.(string)
	switch strings.ToLower(t) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeObject
	}
}

func argsToJSON(args map[string]any) string {
	b, err := sonic.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
