package providers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/MikaelWeiss/open-chat-core/internal/chat"
)

// Anthropic rejects document uploads past this size; larger documents are
// downgraded to a placeholder with a validation warning instead of failing
// the whole request after the fact.
const maxDocumentBytes = 32 << 20

// EncodedMessage is the provider-specific content representation of one
// normalized message.
type EncodedMessage struct {
	// Content is a bare string for single-text-part messages, otherwise an
	// ordered []map[string]any of dialect-specific blocks.
	Content any
	// Images carries inline base64 payloads separately for the local dialect,
	// whose chat API takes them outside the content string.
	Images []string
	// Warnings are user-facing validation messages produced before submission.
	Warnings []string
}

// EncodeMessage converts a normalized message into the wire content for one
// dialect. It is a pure function of (message, dialect): part order is
// preserved and each input part maps to exactly one output block.
func EncodeMessage(msg chat.Message, dialect Dialect) EncodedMessage {
	if msg.IsBareText() {
		return EncodedMessage{Content: msg.Parts[0].Text}
	}

	var enc EncodedMessage
	blocks := make([]map[string]any, 0, len(msg.Parts))

	for _, part := range msg.Parts {
		switch part.Kind {
		case chat.PartText:
			blocks = append(blocks, textBlock(part.Text))

		case chat.PartImage:
			if dialect == LocalGenerate {
				enc.Images = append(enc.Images, base64.StdEncoding.EncodeToString(part.Data))
				continue
			}
			blocks = append(blocks, imageBlock(part, dialect))

		case chat.PartAudio:
			// No target dialect takes raw audio in a chat message; degrade to
			// a placeholder the model can at least acknowledge.
			blocks = append(blocks, textBlock(audioPlaceholder(part)))

		case chat.PartDocument:
			block, warning := documentBlock(part, dialect)
			blocks = append(blocks, block)
			if warning != "" {
				enc.Warnings = append(enc.Warnings, warning)
			}
		}
	}

	if dialect == LocalGenerate {
		enc.Content = joinTextBlocks(blocks)
	} else {
		enc.Content = blocks
	}
	return enc
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func imageBlock(part chat.ContentPart, dialect Dialect) map[string]any {
	data := base64.StdEncoding.EncodeToString(part.Data)

	if dialect == AnthropicNative {
		return map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": part.MIMEType,
				"data":       data,
			},
		}
	}
	return map[string]any{
		"type": "image_url",
		"image_url": map[string]any{
			"url": fmt.Sprintf("data:%s;base64,%s", part.MIMEType, data),
		},
	}
}

func documentBlock(part chat.ContentPart, dialect Dialect) (map[string]any, string) {
	if isTextDecodable(part.MIMEType) {
		return textBlock(inlineFile(part)), ""
	}

	if part.MIMEType == "application/pdf" {
		if dialect == AnthropicNative {
			if len(part.Data) > maxDocumentBytes {
				warning := fmt.Sprintf(
					"%s is %.1f MB, above the %d MB document limit; it was replaced with a placeholder. Try splitting the PDF into smaller files.",
					part.DisplayName, float64(len(part.Data))/(1<<20), maxDocumentBytes>>20)
				return textBlock(documentPlaceholder(part)), warning
			}
			return map[string]any{
				"type": "document",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "application/pdf",
					"data":       base64.StdEncoding.EncodeToString(part.Data),
				},
			}, ""
		}
		return textBlock(documentPlaceholder(part)), ""
	}

	return textBlock(fmt.Sprintf("[Attachment: %s (%s)]", part.DisplayName, part.MIMEType)), ""
}

func audioPlaceholder(part chat.ContentPart) string {
	return fmt.Sprintf("[Audio attachment: %s (%s)]", part.DisplayName, part.MIMEType)
}

func documentPlaceholder(part chat.ContentPart) string {
	return fmt.Sprintf("[PDF document: %s, %d bytes]", part.DisplayName, len(part.Data))
}

func inlineFile(part chat.ContentPart) string {
	return fmt.Sprintf("File: %s\n```\n%s\n```", part.DisplayName, string(part.Data))
}

// isTextDecodable reports whether a document of this MIME type can be decoded
// and inlined as fenced text instead of being sent as binary.
func isTextDecodable(mimeType string) bool {
	mt := strings.ToLower(mimeType)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/yaml", "application/csv":
		return true
	}
	return strings.HasSuffix(mt, "+json") || strings.HasSuffix(mt, "+xml")
}

func joinTextBlocks(blocks []map[string]any) string {
	var b strings.Builder
	for _, block := range blocks {
		if block["type"] != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok && text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return b.String()
}
