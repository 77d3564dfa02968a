// Package catalog resolves model identifiers to capability sets and pricing
// against an external model catalog, with fuzzy matching for the loosely
// structured identifiers providers actually use.
package catalog

import (
	"strconv"
	"strings"
)

// CapabilitySet is the derived feature surface of one model. It is recomputed
// from the catalog on each resolution, never stored authoritatively.
type CapabilitySet struct {
	Vision      bool
	Audio       bool
	Files       bool
	Multimodal  bool
	ImageOutput bool
	Thinking    bool
	Tools       bool
	WebSearch   bool
}

// Entry is one catalog record in the OpenRouter model-list shape.
type Entry struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Architecture Architecture `json:"architecture"`
	Pricing      EntryPricing `json:"pricing"`
	// SupportedParameters lists feature flags like "tools" and "reasoning".
	SupportedParameters []string `json:"supported_parameters"`
}

type Architecture struct {
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
}

// EntryPricing carries per-token dollar rates as decimal strings, the way the
// catalog publishes them.
type EntryPricing struct {
	Prompt         string `json:"prompt"`
	Completion     string `json:"completion"`
	InputCacheRead string `json:"input_cache_read"`
	InternalReason string `json:"internal_reasoning"`
}

// perMillion converts a catalog per-token rate string to dollars per million
// tokens. Unparseable or absent rates come back as zero.
func perMillion(rate string) float64 {
	if rate == "" {
		return 0
	}
	v, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return 0
	}
	return v * 1e6
}

// Capabilities derives the capability set from an entry's declared
// modalities and parameters, plus name heuristics for reasoning models.
func (e Entry) Capabilities() CapabilitySet {
	caps := CapabilitySet{}
	for _, m := range e.Architecture.InputModalities {
		switch m {
		case "image":
			caps.Vision = true
		case "audio":
			caps.Audio = true
		case "file", "pdf":
			caps.Files = true
		}
	}
	for _, m := range e.Architecture.OutputModalities {
		if m == "image" {
			caps.ImageOutput = true
		}
	}
	for _, p := range e.SupportedParameters {
		switch p {
		case "tools", "tool_choice":
			caps.Tools = true
		case "reasoning", "include_reasoning":
			caps.Thinking = true
		case "web_search_options":
			caps.WebSearch = true
		}
	}
	if !caps.Thinking {
		caps.Thinking = looksLikeReasoningModel(e.ID) || looksLikeReasoningModel(e.Name)
	}
	caps.Multimodal = caps.Vision || caps.Audio || caps.Files
	return caps
}

// reasoningPatterns is the ordered list of identifier substrings that mark a
// reasoning-style model family.
var reasoningPatterns = []string{"o1", "o3-", "o4-", "-r1", "think", "reason"}

func looksLikeReasoningModel(id string) bool {
	lower := strings.ToLower(id)
	for _, p := range reasoningPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// DefaultCapabilities is the conservative fallback when no catalog entry
// matches: file input is assumed supported, vision/audio/thinking only when
// the identifier literally says so, and tool use is assumed for hosted models.
func DefaultCapabilities(modelID string) CapabilitySet {
	lower := strings.ToLower(modelID)
	caps := CapabilitySet{
		Files:    true,
		Tools:    true,
		Vision:   strings.Contains(lower, "vision"),
		Audio:    strings.Contains(lower, "audio"),
		Thinking: looksLikeReasoningModel(lower),
	}
	caps.Multimodal = caps.Vision || caps.Audio || caps.Files
	return caps
}
