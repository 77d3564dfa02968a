package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountant_Count(t *testing.T) {
	a := NewAccountant(nil)

	t.Run("openai model uses its native encoding", func(t *testing.T) {
		count := a.Count("Hello, world! This is a tokenizer test.", "gpt-4o")
		assert.Greater(t, count, 0)
	})

	t.Run("non-openai hosted model falls back to cl100k_base", func(t *testing.T) {
		count := a.Count("Hello, world! This is a tokenizer test.", "claude-sonnet-4-20250514")
		assert.Greater(t, count, 0)
	})

	t.Run("local models count zero", func(t *testing.T) {
		assert.Equal(t, 0, a.Count("some long prompt text", "llama3.2:8b"))
		assert.Equal(t, 0, a.Count("some long prompt text", "ollama/mistral"))
	})

	t.Run("empty text counts zero", func(t *testing.T) {
		assert.Equal(t, 0, a.Count("", "gpt-4o"))
	})
}

func TestIsLocalModel(t *testing.T) {
	testCases := []struct {
		modelID  string
		expected bool
	}{
		{"llama3.2:8b", true},
		{"ollama/mistral", true},
		{"local/phi-3", true},
		{"gpt-4o", false},
		{"claude-sonnet-4-20250514", false},
		{"anthropic/claude-3-5-sonnet:beta", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, IsLocalModel(tc.modelID), "model %q", tc.modelID)
	}
}

func TestLookupPricing(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		entry, ok := LookupPricing("gpt-4o")
		require.True(t, ok)
		assert.Equal(t, 2.50, entry.InputPerMillion)
	})

	t.Run("prefix match for dated variant", func(t *testing.T) {
		entry, ok := LookupPricing("claude-sonnet-4-20250514")
		require.True(t, ok)
		assert.Equal(t, 3.00, entry.InputPerMillion)
		assert.Equal(t, 15.00, entry.OutputPerMillion)
	})

	t.Run("namespaced id matches", func(t *testing.T) {
		_, ok := LookupPricing("anthropic/claude-3-5-haiku-latest")
		assert.True(t, ok)
	})

	t.Run("unknown model has no pricing", func(t *testing.T) {
		_, ok := LookupPricing("totally-unknown-model-xyz")
		assert.False(t, ok)
	})
}

func TestAccountant_Cost(t *testing.T) {
	a := NewAccountant(nil)

	t.Run("documented example", func(t *testing.T) {
		// inputPerMillion=3.00, outputPerMillion=15.00:
		// 1000/1e6*3.00 + 500/1e6*15.00 = 0.003 + 0.0075 = 0.0105
		cost := a.Cost(1000, 500, 0, 0, "claude-sonnet-4")
		assert.InDelta(t, 0.0105, cost, 1e-9)
	})

	t.Run("cached tokens billed at cached rate", func(t *testing.T) {
		// 600 uncached * 3.00 + 400 cached * 0.30 + 500 out * 15.00, per million.
		cost := a.Cost(1000, 500, 400, 0, "claude-sonnet-4")
		expected := 600.0/1e6*3.00 + 400.0/1e6*0.30 + 500.0/1e6*15.00
		assert.InDelta(t, expected, cost, 1e-9)
	})

	t.Run("pricing-unknown is zero, not an error", func(t *testing.T) {
		assert.Zero(t, a.Cost(1000, 500, 0, 0, "mystery-model"))
	})

	t.Run("never negative and monotonic", func(t *testing.T) {
		base := a.Cost(1000, 500, 1000, 0, "claude-sonnet-4")
		assert.GreaterOrEqual(t, base, 0.0)

		moreOutput := a.Cost(1000, 600, 1000, 0, "claude-sonnet-4")
		assert.GreaterOrEqual(t, moreOutput, base)

		moreInput := a.Cost(2000, 500, 1000, 0, "claude-sonnet-4")
		assert.GreaterOrEqual(t, moreInput, base)
	})

	t.Run("cached tokens exceeding input clamp to zero uncached", func(t *testing.T) {
		cost := CostWithEntry(PricingEntry{InputPerMillion: 3, OutputPerMillion: 15, CachedInputPerMillion: 0.3}, 100, 0, 500, 0)
		expected := 500.0 / 1e6 * 0.3
		assert.InDelta(t, expected, cost, 1e-9)
	})

	t.Run("reasoning tokens billed when rate present", func(t *testing.T) {
		entry := PricingEntry{InputPerMillion: 1, OutputPerMillion: 2, ReasoningPerMillion: 4}
		cost := CostWithEntry(entry, 0, 0, 0, 1_000_000)
		assert.InDelta(t, 4.0, cost, 1e-9)
	})
}
