// Package usage aggregates token counts across the supported model families
// and derives a monetary cost from per-million-token rates.
package usage

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// The sub-word tokenizer falls back to this encoding when the model id is
// unknown to tiktoken. cl100k_base is close enough for accounting purposes
// across the non-OpenAI hosted families.
const fallbackEncoding = "cl100k_base"

// Accountant counts tokens and prices completed exchanges.
type Accountant struct {
	logger *slog.Logger
}

func NewAccountant(logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{logger: logger}
}

// Count returns the token count of text for a model. OpenAI-family models use
// their native tiktoken encoding; other hosted families use the cl100k_base
// fallback; local models are free, so they count as zero.
func (a *Accountant) Count(text, modelID string) int {
	if text == "" {
		return 0
	}
	if IsLocalModel(modelID) {
		return 0
	}

	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			a.logger.Error("failed to load fallback tokenizer encoding", "error", err)
			return 0
		}
	}
	return len(enc.Encode(text, nil, nil))
}

// IsLocalModel reports whether a model id denotes a locally run model. Local
// model ids carry an ollama-style tag suffix ("llama3.2:8b") or an explicit
// namespace; hosted ids never do.
func IsLocalModel(modelID string) bool {
	if strings.HasPrefix(modelID, "ollama/") || strings.HasPrefix(modelID, "local/") {
		return true
	}
	return strings.Contains(modelID, ":") && !strings.Contains(modelID, "/")
}
