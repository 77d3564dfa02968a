package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseBody_OpenAI(t *testing.T) {
	body := []byte(`{
		"choices": [{
			"message": {
				"content": "hello",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "web_search", "arguments": "{\"query\":\"go\"}"}}]
			},
			"finish_reason": "tool_calls"
		}],
		"usage": {
			"prompt_tokens": 12,
			"completion_tokens": 7,
			"prompt_tokens_details": {"cached_tokens": 4},
			"completion_tokens_details": {"reasoning_tokens": 2}
		}
	}`)

	resp, err := ParseResponseBody(body, OpenAICompatible)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, `{"query":"go"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.Equal(t, 4, resp.Usage.CachedTokens)
	assert.Equal(t, 2, resp.Usage.ReasoningTokens)
}

func TestParseResponseBody_Anthropic(t *testing.T) {
	body := []byte(`{
		"content": [
			{"type": "text", "text": "checking "},
			{"type": "tool_use", "id": "toolu_9", "name": "web_search", "input": {"query": "go"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 30, "output_tokens": 11, "cache_read_input_tokens": 5}
	}`)

	resp, err := ParseResponseBody(body, AnthropicNative)
	require.NoError(t, err)
	assert.Equal(t, "checking ", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_9", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"go"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 30, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.CachedTokens)
}

func TestParseResponseBody_Local(t *testing.T) {
	body := []byte(`{"message": {"role": "assistant", "content": "hi"}, "done": true, "prompt_eval_count": 9, "eval_count": 3}`)

	resp, err := ParseResponseBody(body, LocalGenerate)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestNormalizeStopReason(t *testing.T) {
	testCases := map[string]string{
		"stop":           "end_turn",
		"":               "end_turn",
		"length":         "max_tokens",
		"tool_calls":     "tool_use",
		"function_call":  "tool_use",
		"content_filter": "stop_sequence",
		"weird":          "end_turn",
	}
	for in, want := range testCases {
		assert.Equal(t, want, NormalizeStopReason(in), "reason %q", in)
	}
}

func TestNewTransportError(t *testing.T) {
	t.Run("nested json error message", func(t *testing.T) {
		err := NewTransportError(http.StatusBadRequest, "400 Bad Request", []byte(`{"error":{"type":"invalid_request_error","message":"model not found"}}`))
		assert.Equal(t, http.StatusBadRequest, err.StatusCode)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("raw body fallback", func(t *testing.T) {
		err := NewTransportError(http.StatusBadGateway, "502 Bad Gateway", []byte("upstream unavailable"))
		assert.Contains(t, err.Message, "upstream unavailable")
	})

	t.Run("status line fallback", func(t *testing.T) {
		err := NewTransportError(http.StatusInternalServerError, "500 Internal Server Error", nil)
		assert.Equal(t, "500 Internal Server Error", err.Message)
	})

	t.Run("known failure modes are reworded", func(t *testing.T) {
		err := NewTransportError(http.StatusBadRequest, "400 Bad Request", []byte(`{"error":{"message":"prompt is too long: 250000 tokens > 200000 maximum"}}`))
		assert.Contains(t, err.Message, "Start a new chat")
		assert.Contains(t, err.Message, "prompt is too long", "original wording is preserved for reference")
	})
}
