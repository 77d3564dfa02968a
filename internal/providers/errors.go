package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransportError is a non-2xx HTTP outcome from a provider. Message is the
// most specific description available: the nested error-message field of a
// JSON body, falling back to the raw body text, falling back to the status
// line.
type TransportError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider request failed (%s): %s", e.Status, e.Message)
}

// NewTransportError builds a TransportError from an HTTP failure, rewording
// recognized failure modes into actionable guidance.
func NewTransportError(statusCode int, status string, body []byte) *TransportError {
	msg := extractErrorMessage(body)
	if msg == "" {
		msg = status
	}
	return &TransportError{
		StatusCode: statusCode,
		Status:     status,
		Message:    improveErrorMessage(msg),
	}
}

func extractErrorMessage(body []byte) string {
	var raw struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err == nil {
		if raw.Error.Message != "" {
			return raw.Error.Message
		}
		if raw.Message != "" {
			return raw.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// improveErrorMessage rewrites known vendor failure modes into guidance a
// chat user can act on, instead of surfacing the raw API wording.
func improveErrorMessage(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "prompt is too long"),
		strings.Contains(lower, "context_length_exceeded"),
		strings.Contains(lower, "maximum context length"):
		return "The conversation is too long for this model. Start a new chat, remove large attachments, or switch to a model with a bigger context window. (" + msg + ")"
	case strings.Contains(lower, "pdf") && (strings.Contains(lower, "page") || strings.Contains(lower, "too large")):
		return "The attached document is too large for this model. Split the PDF into smaller files and try again. (" + msg + ")"
	case strings.Contains(lower, "invalid api key"),
		strings.Contains(lower, "invalid x-api-key"),
		strings.Contains(lower, "incorrect api key"):
		return "The API key for this provider was rejected. Check the key in your provider settings. (" + msg + ")"
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "overloaded"):
		return "The provider is rate limiting requests. Wait a moment and try again. (" + msg + ")"
	}
	return msg
}

// ValidationError is a pre-submission rejection: the request as composed
// cannot be sent to the target dialect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
