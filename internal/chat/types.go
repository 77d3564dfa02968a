package chat

import (
	"fmt"
)

// Message roles shared by every dialect.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PartKind discriminates the content part union.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
	PartAudio
	PartDocument
)

func (k PartKind) String() string {
	switch k {
	case PartText:
		return "text"
	case PartImage:
		return "image"
	case PartAudio:
		return "audio"
	case PartDocument:
		return "document"
	}
	return "unknown"
}

// ContentPart is one element of a message. Exactly one payload is set,
// selected by Kind. Part order inside a message is significant and must
// survive every codec boundary.
type ContentPart struct {
	Kind PartKind

	// PartText
	Text string

	// PartImage, PartAudio, PartDocument
	Data        []byte
	MIMEType    string
	DisplayName string
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

// ImagePart builds an inline image content part.
func ImagePart(data []byte, mimeType string) ContentPart {
	return ContentPart{Kind: PartImage, Data: data, MIMEType: mimeType}
}

// AudioPart builds an audio attachment part.
func AudioPart(data []byte, mimeType, name string) ContentPart {
	return ContentPart{Kind: PartAudio, Data: data, MIMEType: mimeType, DisplayName: name}
}

// DocumentPart builds a document attachment part.
func DocumentPart(data []byte, mimeType, name string) ContentPart {
	return ContentPart{Kind: PartDocument, Data: data, MIMEType: mimeType, DisplayName: name}
}

// Message is one turn of a conversation in normalized form.
type Message struct {
	Role      string
	Parts     []ContentPart
	ToolCalls []ToolCall
	// ToolCallID and ToolName are set only on role "tool" messages.
	ToolCallID string
	ToolName   string
}

// TextMessage builds a single-text-part message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{TextPart(text)}}
}

// IsBareText reports whether the message collapses to a bare string when
// serialized: exactly one text part and nothing else.
func (m Message) IsBareText() bool {
	return len(m.Parts) == 1 && m.Parts[0].Kind == PartText
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a model-issued request to invoke an external function.
// Arguments is a JSON-encoded string, possibly assembled from several
// stream fragments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Usage is the token and cost accounting for one completed exchange.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CachedTokens    int
	ReasoningTokens int
	Cost            float64
}

// FinalMessage is the terminal outcome of a send: the assistant message,
// its accounting, and any pre-submission validation warnings.
type FinalMessage struct {
	Message    Message
	Usage      Usage
	Warnings   []string
	StopReason string
	// Interrupted marks a cancelled stream whose partial text was kept.
	Interrupted bool
}

// ValidateToolResults checks that every result correlates with a call issued
// in the immediately preceding assistant turn. Unmatched results are a
// contract violation and must be rejected before being sent to the model.
func ValidateToolResults(calls []ToolCall, results []ToolResult) error {
	issued := make(map[string]bool, len(calls))
	for _, c := range calls {
		issued[c.ID] = true
	}
	for _, r := range results {
		if !issued[r.CallID] {
			return fmt.Errorf("tool result %q does not match any issued tool call", r.CallID)
		}
	}
	return nil
}
