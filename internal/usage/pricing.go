package usage

import (
	"strings"
)

// PricingEntry holds cost-per-million-token rates for one model. Optional
// rates are zero when the provider does not bill that category separately.
type PricingEntry struct {
	InputPerMillion       float64
	OutputPerMillion      float64
	CachedInputPerMillion float64
	ReasoningPerMillion   float64
}

// offlinePricing is the built-in table used when the external catalog has no
// rate for a model. Keys are bare model identifiers; dated or suffixed
// variants resolve through the prefix pass.
var offlinePricing = map[string]PricingEntry{
	"claude-opus-4":     {InputPerMillion: 15.00, OutputPerMillion: 75.00, CachedInputPerMillion: 1.50},
	"claude-sonnet-4":   {InputPerMillion: 3.00, OutputPerMillion: 15.00, CachedInputPerMillion: 0.30},
	"claude-3-7-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00, CachedInputPerMillion: 0.30},
	"claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00, CachedInputPerMillion: 0.30},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00, CachedInputPerMillion: 0.08},
	"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10.00, CachedInputPerMillion: 1.25},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60, CachedInputPerMillion: 0.075},
	"gpt-4.1":           {InputPerMillion: 2.00, OutputPerMillion: 8.00, CachedInputPerMillion: 0.50},
	"gpt-4.1-mini":      {InputPerMillion: 0.40, OutputPerMillion: 1.60, CachedInputPerMillion: 0.10},
	"o1":                {InputPerMillion: 15.00, OutputPerMillion: 60.00, CachedInputPerMillion: 7.50, ReasoningPerMillion: 60.00},
	"o3-mini":           {InputPerMillion: 1.10, OutputPerMillion: 4.40, CachedInputPerMillion: 0.55, ReasoningPerMillion: 4.40},
	"gemini-2.0-flash":  {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-1.5-pro":    {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"deepseek-chat":     {InputPerMillion: 0.27, OutputPerMillion: 1.10, CachedInputPerMillion: 0.07},
	"deepseek-reasoner": {InputPerMillion: 0.55, OutputPerMillion: 2.19, ReasoningPerMillion: 2.19},
}

// LookupPricing resolves a model id against the offline table: exact key
// first, then case-insensitive prefix match for dated or suffixed variants,
// then best-effort substring containment. Pricing-unknown is not an error;
// the second return is false when nothing matched.
func LookupPricing(modelID string) (PricingEntry, bool) {
	if entry, ok := offlinePricing[modelID]; ok {
		return entry, true
	}

	// Longest key wins so "gpt-4.1-mini-..." resolves to gpt-4.1-mini, not gpt-4.1.
	lower := strings.ToLower(stripNamespace(modelID))
	var best string
	var bestEntry PricingEntry
	for key, entry := range offlinePricing {
		if strings.HasPrefix(lower, strings.ToLower(key)) && len(key) > len(best) {
			best, bestEntry = key, entry
		}
	}
	if best != "" {
		return bestEntry, true
	}
	for key, entry := range offlinePricing {
		lk := strings.ToLower(key)
		if (strings.Contains(lower, lk) || strings.Contains(lk, lower)) && len(key) > len(best) {
			best, bestEntry = key, entry
		}
	}
	if best != "" {
		return bestEntry, true
	}
	return PricingEntry{}, false
}

func stripNamespace(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// Cost prices one exchange in dollars. Cached input tokens are billed at the
// cached rate when one exists; they are subtracted from the uncached input.
// Unknown pricing yields zero.
func (a *Accountant) Cost(inputTokens, outputTokens, cachedTokens, reasoningTokens int, modelID string) float64 {
	entry, ok := LookupPricing(modelID)
	if !ok {
		return 0
	}
	return CostWithEntry(entry, inputTokens, outputTokens, cachedTokens, reasoningTokens)
}

// CostWithEntry applies the cost formula against an explicit pricing entry,
// used when the external catalog supplied the rates.
func CostWithEntry(entry PricingEntry, inputTokens, outputTokens, cachedTokens, reasoningTokens int) float64 {
	uncachedInput := inputTokens - cachedTokens
	if uncachedInput < 0 {
		uncachedInput = 0
	}

	cost := float64(uncachedInput) / 1e6 * entry.InputPerMillion
	if entry.CachedInputPerMillion > 0 {
		cost += float64(cachedTokens) / 1e6 * entry.CachedInputPerMillion
	}
	cost += float64(outputTokens) / 1e6 * entry.OutputPerMillion
	if entry.ReasoningPerMillion > 0 {
		cost += float64(reasoningTokens) / 1e6 * entry.ReasoningPerMillion
	}
	return cost
}
