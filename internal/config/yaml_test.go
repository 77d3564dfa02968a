package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_YAML_Support(t *testing.T) {
	tempDir := t.TempDir()
	mgr := NewManager(tempDir)

	yamlConfig := `
default_provider: "openrouter"
max_tool_iterations: 5
catalog_url: "https://openrouter.ai/api/v1/models"
providers:
  - name: "openrouter"
    endpoint: "https://openrouter.ai/api/v1"
    api_key: "test-openrouter-key"
    models: ["anthropic/claude-sonnet-4", "openai/gpt-4o"]
    model: "anthropic/claude-sonnet-4"
  - name: "ollama"
    endpoint: "http://localhost:11434"
    model: "llama3:8b"
search:
  engine: "tavily"
  api_keys:
    tavily: "tvly-test"
`

	yamlPath := filepath.Join(tempDir, DefaultYAMLFilename)
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlConfig), 0644))

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.DefaultProvider)
	assert.Equal(t, 5, cfg.MaxToolIterations)
	assert.Equal(t, "https://openrouter.ai/api/v1/models", cfg.CatalogURL)

	require.Len(t, cfg.Providers, 2)
	openrouter := cfg.Providers[0]
	assert.Equal(t, "openrouter", openrouter.Name)
	assert.Equal(t, "test-openrouter-key", openrouter.APIKey)
	assert.Equal(t, []string{"anthropic/claude-sonnet-4", "openai/gpt-4o"}, openrouter.Models)

	ollama := cfg.Providers[1]
	assert.Empty(t, ollama.APIKey)
	assert.Equal(t, "llama3:8b", ollama.Model)

	assert.Equal(t, "tavily", cfg.Search.Engine)
	assert.Equal(t, "tvly-test", cfg.Search.APIKeys["tavily"])
}

func TestManager_YAMLPreferredOverJSON(t *testing.T) {
	tempDir := t.TempDir()

	jsonConfig := `{"default_provider":"from-json","providers":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, DefaultConfigFilename), []byte(jsonConfig), 0644))
	yamlConfig := "default_provider: from-yaml\nproviders: []\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, DefaultYAMLFilename), []byte(yamlConfig), 0644))

	cfg, err := NewManager(tempDir).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.DefaultProvider)
}

func TestManager_YAMLInvalid(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, DefaultYAMLFilename), []byte("providers: [unclosed"), 0644))

	_, err := NewManager(tempDir).Load()
	assert.Error(t, err)
}
