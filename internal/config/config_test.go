package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_LoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := &Config{
		DefaultProvider: "anthropic",
		Providers: []Provider{
			{
				Name:     "anthropic",
				Endpoint: "https://api.anthropic.com",
				APIKey:   "sk-ant-test",
				Model:    "claude-sonnet-4",
			},
			{
				Name:     "local",
				Endpoint: "http://localhost:11434",
				Model:    "llama3:8b",
			},
		},
	}

	require.NoError(t, manager.Save(cfg))
	assert.True(t, manager.Exists())

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", loaded.DefaultProvider)
	require.Len(t, loaded.Providers, 2)
	assert.Equal(t, "https://api.anthropic.com", loaded.Providers[0].Endpoint)
	assert.Equal(t, "llama3:8b", loaded.Providers[1].Model)
	assert.Equal(t, DefaultMaxToolIterations, loaded.MaxToolIterations)
}

func TestConfig_ProviderLookup(t *testing.T) {
	cfg := &Config{
		DefaultProvider: "openai",
		Providers: []Provider{
			{Name: "openai", Endpoint: "https://api.openai.com/v1"},
			{Name: "anthropic", Endpoint: "https://api.anthropic.com"},
		},
	}

	p, err := cfg.Provider("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "https://api.anthropic.com", p.Endpoint)

	p, err = cfg.Provider("")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name)

	_, err = cfg.Provider("missing")
	assert.Error(t, err)
}

func TestConfig_ProviderLookupFirstFallback(t *testing.T) {
	cfg := &Config{Providers: []Provider{{Name: "only", Endpoint: "http://localhost:11434"}}}

	p, err := cfg.Provider("")
	require.NoError(t, err)
	assert.Equal(t, "only", p.Name)
}

func TestConfig_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PROVIDER_KEY", "sk-from-env")

	tmpDir := t.TempDir()
	configJSON := `{"providers":[{"name":"openai","endpoint":"https://api.openai.com/v1","api_key":"${TEST_PROVIDER_KEY}"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultConfigFilename), []byte(configJSON), 0644))

	cfg, err := NewManager(tmpDir).Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers[0].APIKey)
}

func TestManager_GetWithMissingFile(t *testing.T) {
	manager := NewManager(t.TempDir())

	cfg := manager.Get()
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Providers)
	assert.Equal(t, DefaultMaxToolIterations, cfg.MaxToolIterations)
}

func TestCredentials(t *testing.T) {
	cfg := &Config{Search: SearchConfig{APIKeys: map[string]string{"tavily": "tvly-configured"}}}
	creds := NewCredentials(cfg)

	key, err := creds.Get("search-tavily")
	require.NoError(t, err)
	assert.Equal(t, "tvly-configured", key)

	t.Setenv("SEARCH_BRAVE", "brave-from-env")
	key, err = creds.Get("search-brave")
	require.NoError(t, err)
	assert.Equal(t, "brave-from-env", key)

	_, err = creds.Get("search-bing")
	assert.Error(t, err)
}
