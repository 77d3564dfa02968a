package providers

import (
	"fmt"
	"net/url"
	"strings"
)

// Dialect identifies one provider wire-format variant. It is selected once
// per request from the configured base endpoint and carries the request
// field names, auth scheme, streaming frame format, and endpoint-suffix rule.
type Dialect int

const (
	OpenAICompatible Dialect = iota
	AnthropicNative
	LocalGenerate
)

func (d Dialect) String() string {
	switch d {
	case AnthropicNative:
		return "anthropic"
	case LocalGenerate:
		return "local"
	}
	return "openai-compatible"
}

const (
	anthropicVersion = "2023-06-01"

	openAIChatSuffix    = "/chat/completions"
	anthropicChatSuffix = "/messages"
	localChatSuffix     = "/api/chat"
	localGenerateSuffix = "/api/generate"
)

// Hostnames served by the native Anthropic API.
var anthropicHosts = map[string]bool{
	"api.anthropic.com": true,
	"anthropic.com":     true,
}

// Hostnames that denote a locally running inference server.
var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"[::1]":     true,
}

// DetectDialect inspects a base endpoint and picks the wire dialect.
// Unparseable or unknown endpoints fall back to OpenAI-compatible, which is
// the lingua franca of hosted providers.
func DetectDialect(baseEndpoint string) Dialect {
	u, err := url.Parse(baseEndpoint)
	if err != nil {
		return OpenAICompatible
	}

	host := strings.ToLower(u.Hostname())
	if anthropicHosts[host] {
		return AnthropicNative
	}
	if localHosts[host] || strings.HasSuffix(host, ".local") {
		return LocalGenerate
	}
	return OpenAICompatible
}

// ResolveEndpoint derives the concrete chat-completion URL for a dialect from
// its base endpoint. The resolution is idempotent: feeding the result back in
// yields the same URL.
func ResolveEndpoint(baseEndpoint string, dialect Dialect) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseEndpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base endpoint %q: %w", baseEndpoint, err)
	}

	switch dialect {
	case AnthropicNative:
		if !strings.HasSuffix(u.Path, anthropicChatSuffix) {
			if strings.HasSuffix(u.Path, "/v1") {
				u.Path += anthropicChatSuffix
			} else {
				u.Path += "/v1" + anthropicChatSuffix
			}
		}
	case LocalGenerate:
		if !strings.HasSuffix(u.Path, localChatSuffix) && !strings.HasSuffix(u.Path, localGenerateSuffix) {
			u.Path = stripVersionSegment(u.Path) + localChatSuffix
		}
	default:
		if !strings.HasSuffix(u.Path, openAIChatSuffix) {
			u.Path += openAIChatSuffix
		}
	}
	return u.String(), nil
}

// stripVersionSegment drops a trailing versioned path segment such as /v1 or
// /v1beta. Local servers expose their chat path at the root, not under the
// OpenAI-style version prefix.
func stripVersionSegment(path string) string {
	trimmed := strings.TrimRight(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return trimmed
	}
	last := trimmed[i+1:]
	if len(last) >= 2 && last[0] == 'v' && last[1] >= '0' && last[1] <= '9' {
		return trimmed[:i]
	}
	return trimmed
}

// AuthHeaders builds the authentication headers for a dialect. Local servers
// receive none; the native vendor uses its custom key header plus a version
// header; everything else is bearer auth.
func AuthHeaders(dialect Dialect, credential string) map[string]string {
	headers := map[string]string{"Content-Type": "application/json"}

	switch dialect {
	case LocalGenerate:
		// No auth for local inference servers.
	case AnthropicNative:
		headers["x-api-key"] = credential
		headers["anthropic-version"] = anthropicVersion
	default:
		if credential != "" {
			headers["Authorization"] = "Bearer " + credential
		}
	}
	return headers
}
