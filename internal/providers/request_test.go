package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
)

func decodeBody(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestBuildRequestBody_OpenAI(t *testing.T) {
	req := Request{
		Model: "gpt-4o",
		Messages: []chat.Message{
			chat.TextMessage(chat.RoleSystem, "be brief"),
			chat.TextMessage(chat.RoleUser, "hi"),
		},
		MaxTokens: 1024,
		Stream:    true,
		Tools: []ToolDefinition{{
			Name:        "web_search",
			Description: "search the web",
			Parameters:  map[string]any{"type": "object"},
		}},
	}

	data, warnings, err := BuildRequestBody(req, OpenAICompatible)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	body := decodeBody(t, data)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, float64(1024), body["max_completion_tokens"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "be brief", messages[0].(map[string]any)["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "web_search", fn["name"])
	assert.Contains(t, fn, "parameters")
}

func TestBuildRequestBody_OpenAI_ToolExchange(t *testing.T) {
	req := Request{
		Model: "gpt-4o",
		Messages: []chat.Message{
			chat.TextMessage(chat.RoleUser, "search for gophers"),
			{
				Role:      chat.RoleAssistant,
				Parts:     []chat.ContentPart{chat.TextPart("")},
				ToolCalls: []chat.ToolCall{{ID: "toolu_abc", Name: "web_search", Arguments: `{"query":"gophers"}`}},
			},
			{
				Role:       chat.RoleTool,
				Parts:      []chat.ContentPart{chat.TextPart(`{"results":[]}`)},
				ToolCallID: "toolu_abc",
				ToolName:   "web_search",
			},
		},
	}

	data, _, err := BuildRequestBody(req, OpenAICompatible)
	require.NoError(t, err)
	body := decodeBody(t, data)

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)

	assistant := messages[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	call := calls[0].(map[string]any)
	assert.Equal(t, "call_abc", call["id"], "tool call ids are normalized to the call_ form")
	assert.Equal(t, "function", call["type"])

	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_abc", toolMsg["tool_call_id"])
	assert.Equal(t, "web_search", toolMsg["name"])
}

func TestBuildRequestBody_Anthropic(t *testing.T) {
	req := Request{
		Model: "claude-sonnet-4-20250514",
		Messages: []chat.Message{
			chat.TextMessage(chat.RoleSystem, "be brief"),
			chat.TextMessage(chat.RoleUser, "hi"),
			{
				Role:      chat.RoleAssistant,
				Parts:     []chat.ContentPart{chat.TextPart("let me check")},
				ToolCalls: []chat.ToolCall{{ID: "call_xyz", Name: "web_search", Arguments: `{"query":"go"}`}},
			},
			{
				Role:       chat.RoleTool,
				Parts:      []chat.ContentPart{chat.TextPart("[1] result")},
				ToolCallID: "call_xyz",
				ToolName:   "web_search",
			},
		},
		Tools: []ToolDefinition{{Name: "web_search", Parameters: map[string]any{"type": "object"}}},
	}

	data, _, err := BuildRequestBody(req, AnthropicNative)
	require.NoError(t, err)
	body := decodeBody(t, data)

	assert.Equal(t, "be brief", body["system"], "system messages lift to the top-level parameter")
	assert.Equal(t, float64(defaultMaxTokens), body["max_tokens"], "max_tokens is mandatory")

	messages := body["messages"].([]any)
	require.Len(t, messages, 3, "system message is not part of the messages array")

	assistant := messages[1].(map[string]any)
	blocks := assistant["content"].([]any)
	require.Len(t, blocks, 2)
	toolUse := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "toolu_xyz", toolUse["id"])
	assert.Equal(t, map[string]any{"query": "go"}, toolUse["input"])

	result := messages[2].(map[string]any)
	assert.Equal(t, "user", result["role"], "tool results ride in a user turn")
	resultBlock := result["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", resultBlock["type"])
	assert.Equal(t, "toolu_xyz", resultBlock["tool_use_id"])

	tools := body["tools"].([]any)
	assert.Contains(t, tools[0].(map[string]any), "input_schema")
}

func TestBuildRequestBody_Local(t *testing.T) {
	req := Request{
		Model: "llama3.2",
		Messages: []chat.Message{
			chat.TextMessage(chat.RoleUser, "hi"),
		},
		Stream: true,
		Tools:  []ToolDefinition{{Name: "web_search"}},
	}

	data, warnings, err := BuildRequestBody(req, LocalGenerate)
	require.NoError(t, err)
	require.Len(t, warnings, 1, "tools are not supported locally and must warn")
	assert.Contains(t, warnings[0], "not supported")

	body := decodeBody(t, data)
	assert.Equal(t, "llama3.2", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.NotContains(t, body, "tools")
}

func TestToolCallIDNormalization(t *testing.T) {
	assert.Equal(t, "call_1", openAIToolCallID("toolu_1"))
	assert.Equal(t, "call_1", openAIToolCallID("call_1"))
	assert.Equal(t, "toolu_1", anthropicToolCallID("call_1"))
	assert.Equal(t, "toolu_1", anthropicToolCallID("toolu_1"))
	assert.Equal(t, "toolu_raw", anthropicToolCallID("raw"))
}
