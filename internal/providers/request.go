package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
)

const defaultMaxTokens = 4096

// ToolDefinition describes one callable tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the tool arguments.
	Parameters map[string]any
}

// Request is the dialect-independent description of one completion request.
type Request struct {
	Model     string
	Messages  []chat.Message
	Tools     []ToolDefinition
	MaxTokens int
	Stream    bool
}

// BuildRequestBody serializes a request into the wire shape of the target
// dialect. Returned warnings are pre-submission validation messages (for
// example an oversized document that was downgraded to a placeholder).
func BuildRequestBody(req Request, dialect Dialect) ([]byte, []string, error) {
	switch dialect {
	case AnthropicNative:
		return buildAnthropicBody(req)
	case LocalGenerate:
		return buildLocalBody(req)
	default:
		return buildOpenAIBody(req)
	}
}

func buildOpenAIBody(req Request) ([]byte, []string, error) {
	var warnings []string
	messages := make([]map[string]any, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleTool:
			messages = append(messages, map[string]any{
				"role":         "tool",
				"tool_call_id": openAIToolCallID(msg.ToolCallID),
				"name":         msg.ToolName,
				"content":      msg.Text(),
			})
		case chat.RoleAssistant:
			enc := EncodeMessage(msg, OpenAICompatible)
			warnings = append(warnings, enc.Warnings...)
			m := map[string]any{"role": "assistant", "content": enc.Content}
			if len(msg.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					calls = append(calls, map[string]any{
						"id":   openAIToolCallID(tc.ID),
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": tc.Arguments,
						},
					})
				}
				m["tool_calls"] = calls
			}
			messages = append(messages, m)
		default:
			enc := EncodeMessage(msg, OpenAICompatible)
			warnings = append(warnings, enc.Warnings...)
			messages = append(messages, map[string]any{"role": msg.Role, "content": enc.Content})
		}
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if req.Stream {
		body["stream"] = true
	}
	if req.MaxTokens > 0 {
		body["max_completion_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		body["tools"] = tools
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, warnings, fmt.Errorf("marshal openai request: %w", err)
	}
	return data, warnings, nil
}

func buildAnthropicBody(req Request) ([]byte, []string, error) {
	var warnings []string
	var systemParts []string
	messages := make([]map[string]any, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			// Anthropic takes system text as a top-level parameter.
			systemParts = append(systemParts, msg.Text())
		case chat.RoleTool:
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": anthropicToolCallID(msg.ToolCallID),
					"content":     msg.Text(),
				}},
			})
		case chat.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				enc := EncodeMessage(msg, AnthropicNative)
				warnings = append(warnings, enc.Warnings...)
				messages = append(messages, map[string]any{"role": "assistant", "content": enc.Content})
				continue
			}
			blocks := make([]map[string]any, 0, len(msg.ToolCalls)+1)
			if text := msg.Text(); text != "" {
				blocks = append(blocks, textBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil || input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    anthropicToolCallID(tc.ID),
					"name":  tc.Name,
					"input": input,
				})
			}
			messages = append(messages, map[string]any{"role": "assistant", "content": blocks})
		default:
			enc := EncodeMessage(msg, AnthropicNative)
			warnings = append(warnings, enc.Warnings...)
			messages = append(messages, map[string]any{"role": msg.Role, "content": enc.Content})
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if len(systemParts) > 0 {
		body["system"] = strings.Join(systemParts, "\n\n")
	}
	if req.Stream {
		body["stream"] = true
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.Parameters,
			})
		}
		body["tools"] = tools
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, warnings, fmt.Errorf("marshal anthropic request: %w", err)
	}
	return data, warnings, nil
}

func buildLocalBody(req Request) ([]byte, []string, error) {
	var warnings []string
	if len(req.Tools) > 0 {
		warnings = append(warnings, "tool use is not supported for local models; tools were omitted from the request")
	}

	messages := make([]map[string]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == chat.RoleTool {
			// The local chat API has no tool role; feed results back as user text.
			messages = append(messages, map[string]any{
				"role":    "user",
				"content": fmt.Sprintf("Tool %s returned: %s", msg.ToolName, msg.Text()),
			})
			continue
		}
		enc := EncodeMessage(msg, LocalGenerate)
		warnings = append(warnings, enc.Warnings...)
		m := map[string]any{"role": msg.Role}
		if s, ok := enc.Content.(string); ok {
			m["content"] = s
		} else {
			m["content"] = msg.Text()
		}
		if len(enc.Images) > 0 {
			m["images"] = enc.Images
		}
		messages = append(messages, m)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"stream":   req.Stream,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, warnings, fmt.Errorf("marshal local request: %w", err)
	}
	return data, warnings, nil
}

// openAIToolCallID normalizes a tool call id to the call_ form used by
// OpenAI-compatible providers.
func openAIToolCallID(id string) string {
	if strings.HasPrefix(id, "toolu_") {
		return "call_" + strings.TrimPrefix(id, "toolu_")
	}
	return id
}

// anthropicToolCallID normalizes a tool call id to the toolu_ form used by
// the native vendor.
func anthropicToolCallID(id string) string {
	if strings.HasPrefix(id, "toolu_") {
		return id
	}
	if strings.HasPrefix(id, "call_") {
		return "toolu_" + strings.TrimPrefix(id, "call_")
	}
	return "toolu_" + id
}
