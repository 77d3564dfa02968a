// Package config holds the persisted client settings: provider endpoints,
// credentials, tool options, and the model catalog source.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"

	DefaultMaxToolIterations = 3
)

// Provider is one configured upstream endpoint. The dialect is inferred
// from the endpoint URL, never stored.
type Provider struct {
	Name      string   `json:"name" yaml:"name"`
	Endpoint  string   `json:"endpoint" yaml:"endpoint"`
	APIKey    string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Models    []string `json:"models,omitempty" yaml:"models,omitempty"`
	Model     string   `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// SearchConfig selects the web search engine and its credentials.
type SearchConfig struct {
	Engine  string            `json:"engine,omitempty" yaml:"engine,omitempty"`
	APIKeys map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
}

type Config struct {
	DefaultProvider   string       `json:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	MaxToolIterations int          `json:"max_tool_iterations,omitempty" yaml:"max_tool_iterations,omitempty"`
	CatalogURL        string       `json:"catalog_url,omitempty" yaml:"catalog_url,omitempty"`
	Providers         []Provider   `json:"providers" yaml:"providers"`
	Search            SearchConfig `json:"search,omitempty" yaml:"search,omitempty"`
}

// Provider finds a configured provider by name. An empty name returns the
// default provider, falling back to the first configured one.
func (c *Config) Provider(name string) (*Provider, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	if name == "" && len(c.Providers) > 0 {
		return &c.Providers[0], nil
	}
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("provider %q not found in configuration", name)
}

// Manager loads and persists the configuration. The current config is held
// in an atomic value so concurrent readers never block a reload.
type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Load reads the config from disk, preferring YAML when both formats are
// present. API keys support ${VAR} environment expansion.
func (m *Manager) Load() (*Config, error) {
	path := m.GetPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	m.configValue.Store(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxToolIterations == 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
	for engine, key := range cfg.Search.APIKeys {
		cfg.Search.APIKeys[engine] = os.ExpandEnv(key)
	}
}

// Get returns the current config, loading it on first use. A missing file
// yields an empty config with defaults rather than an error.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{}
		applyDefaults(cfg)
	}
	return cfg
}

// Save writes the config as JSON and makes it the current one.
func (m *Manager) Save(cfg *Config) error {
	path := filepath.Join(m.baseDir, DefaultConfigFilename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

// GetPath returns the config path that Load will use: the YAML file when it
// exists, the JSON file otherwise.
func (m *Manager) GetPath() string {
	yamlPath := filepath.Join(m.baseDir, DefaultYAMLFilename)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetPath())
	return err == nil
}

// Credentials resolves secrets for tools: configured search keys first,
// then the environment (id "search-tavily" maps to SEARCH_TAVILY).
type Credentials struct {
	cfg *Config
}

func NewCredentials(cfg *Config) *Credentials {
	return &Credentials{cfg: cfg}
}

func (c *Credentials) Get(id string) (string, error) {
	if c.cfg != nil {
		if engine, ok := strings.CutPrefix(id, "search-"); ok {
			if key := c.cfg.Search.APIKeys[engine]; key != "" {
				return key, nil
			}
		}
	}
	env := strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no credential for %s", id)
}
