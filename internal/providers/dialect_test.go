package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDialect(t *testing.T) {
	testCases := []struct {
		endpoint string
		expected Dialect
	}{
		{"https://api.anthropic.com", AnthropicNative},
		{"https://api.anthropic.com/v1", AnthropicNative},
		{"http://localhost:11434", LocalGenerate},
		{"http://127.0.0.1:11434/v1", LocalGenerate},
		{"https://api.openai.com/v1", OpenAICompatible},
		{"https://openrouter.ai/api/v1", OpenAICompatible},
		{"https://integrate.api.nvidia.com/v1", OpenAICompatible},
		{"", OpenAICompatible},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, DetectDialect(tc.endpoint), "endpoint %q", tc.endpoint)
	}
}

func TestResolveEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		base     string
		dialect  Dialect
		expected string
	}{
		{"anthropic bare host", "https://api.anthropic.com", AnthropicNative, "https://api.anthropic.com/v1/messages"},
		{"anthropic versioned", "https://api.anthropic.com/v1", AnthropicNative, "https://api.anthropic.com/v1/messages"},
		{"local strips version prefix", "http://localhost:11434/v1", LocalGenerate, "http://localhost:11434/api/chat"},
		{"local bare host", "http://localhost:11434", LocalGenerate, "http://localhost:11434/api/chat"},
		{"openai appends suffix", "https://api.openai.com/v1", OpenAICompatible, "https://api.openai.com/v1/chat/completions"},
		{"openai suffix already present", "https://api.openai.com/v1/chat/completions", OpenAICompatible, "https://api.openai.com/v1/chat/completions"},
		{"openrouter", "https://openrouter.ai/api/v1", OpenAICompatible, "https://openrouter.ai/api/v1/chat/completions"},
		{"trailing slash", "https://api.openai.com/v1/", OpenAICompatible, "https://api.openai.com/v1/chat/completions"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tc.base, tc.dialect)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)

			// Resolution must be idempotent.
			again, err := ResolveEndpoint(got, tc.dialect)
			require.NoError(t, err)
			assert.Equal(t, got, again, "resolving a resolved URL should be a no-op")
		})
	}
}

func TestAuthHeaders(t *testing.T) {
	t.Run("local gets no auth", func(t *testing.T) {
		headers := AuthHeaders(LocalGenerate, "secret")
		assert.NotContains(t, headers, "Authorization")
		assert.NotContains(t, headers, "x-api-key")
	})

	t.Run("anthropic uses key and version headers", func(t *testing.T) {
		headers := AuthHeaders(AnthropicNative, "sk-ant-test")
		assert.Equal(t, "sk-ant-test", headers["x-api-key"])
		assert.Equal(t, anthropicVersion, headers["anthropic-version"])
		assert.NotContains(t, headers, "Authorization")
	})

	t.Run("openai compatible uses bearer", func(t *testing.T) {
		headers := AuthHeaders(OpenAICompatible, "sk-test")
		assert.Equal(t, "Bearer sk-test", headers["Authorization"])
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, AuthHeaders(AnthropicNative, "k"), AuthHeaders(AnthropicNative, "k"))
	})
}
