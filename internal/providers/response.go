package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
)

// Response is the dialect-independent view of one non-streamed completion.
type Response struct {
	Text       string
	ToolCalls  []chat.ToolCall
	StopReason string
	Usage      ResponseUsage
}

// ResponseUsage carries the provider-reported token counts, when present.
type ResponseUsage struct {
	InputTokens     int
	OutputTokens    int
	CachedTokens    int
	ReasoningTokens int
}

// ParseResponseBody decodes a non-streamed completion body for a dialect.
func ParseResponseBody(body []byte, dialect Dialect) (*Response, error) {
	switch dialect {
	case AnthropicNative:
		return parseAnthropicResponse(body)
	case LocalGenerate:
		return parseLocalResponse(body)
	default:
		return parseOpenAIResponse(body)
	}
}

func parseOpenAIResponse(body []byte) (*Response, error) {
	var raw struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens        int `json:"prompt_tokens"`
			CompletionTokens    int `json:"completion_tokens"`
			PromptTokensDetails struct {
				CachedTokens int `json:"cached_tokens"`
			} `json:"prompt_tokens_details"`
			CompletionTokensDetails struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"completion_tokens_details"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	choice := raw.Choices[0]
	resp := &Response{
		Text:       choice.Message.Content,
		StopReason: NormalizeStopReason(choice.FinishReason),
		Usage: ResponseUsage{
			InputTokens:     raw.Usage.PromptTokens,
			OutputTokens:    raw.Usage.CompletionTokens,
			CachedTokens:    raw.Usage.PromptTokensDetails.CachedTokens,
			ReasoningTokens: raw.Usage.CompletionTokensDetails.ReasoningTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, chat.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func parseAnthropicResponse(body []byte) (*Response, error) {
	var raw struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens          int `json:"input_tokens"`
			OutputTokens         int `json:"output_tokens"`
			CacheReadInputTokens int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	resp := &Response{
		StopReason: NormalizeStopReason(raw.StopReason),
		Usage: ResponseUsage{
			InputTokens:  raw.Usage.InputTokens,
			OutputTokens: raw.Usage.OutputTokens,
			CachedTokens: raw.Usage.CacheReadInputTokens,
		},
	}
	var text strings.Builder
	for _, block := range raw.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := "{}"
			if len(block.Input) > 0 {
				args = string(block.Input)
			}
			resp.ToolCalls = append(resp.ToolCalls, chat.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	resp.Text = text.String()
	return resp, nil
}

func parseLocalResponse(body []byte) (*Response, error) {
	var raw struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Response        string `json:"response"`
		Done            bool   `json:"done"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal local response: %w", err)
	}

	text := raw.Message.Content
	if text == "" {
		// /api/generate puts the text in a top-level field.
		text = raw.Response
	}
	return &Response{
		Text:       text,
		StopReason: "end_turn",
		Usage: ResponseUsage{
			InputTokens:  raw.PromptEvalCount,
			OutputTokens: raw.EvalCount,
		},
	}, nil
}

// NormalizeStopReason maps the various provider finish reasons onto one
// vocabulary.
func NormalizeStopReason(reason string) string {
	switch reason {
	case "stop", "null", "", "end_turn":
		return "end_turn"
	case "length", "max_tokens":
		return "max_tokens"
	case "tool_calls", "function_call", "tool_use":
		return "tool_use"
	case "content_filter", "stop_sequence":
		return "stop_sequence"
	}
	return "end_turn"
}
