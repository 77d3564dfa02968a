package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MikaelWeiss/open-chat-core/internal/config"
	"github.com/MikaelWeiss/open-chat-core/internal/providers"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage provider endpoints, credentials and tool settings.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("%s configuration setup", AppName)

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label string) string {
		fmt.Printf("%s: ", label)
		line, _ := reader.ReadString('\n')
		return strings.TrimSpace(line)
	}

	name := prompt("Provider name (e.g. anthropic, openai, ollama)")
	endpoint := prompt("Endpoint URL (e.g. https://api.anthropic.com)")
	apiKey := prompt("API key (empty for local endpoints)")
	model := prompt("Default model id")

	if name == "" || endpoint == "" {
		return fmt.Errorf("provider name and endpoint are required")
	}

	cfg := cfgMgr.Get()
	cfg.Providers = append(cfg.Providers, config.Provider{
		Name:     name,
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
	})
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = name
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return err
	}

	dialect := providers.DetectDialect(endpoint)
	color.Green("Saved provider %q (%s dialect) to %s", name, dialect, cfgMgr.GetPath())
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found at %s", cfgMgr.GetPath())
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	shown := *cfg
	shown.Providers = make([]config.Provider, len(cfg.Providers))
	copy(shown.Providers, cfg.Providers)
	for i := range shown.Providers {
		shown.Providers[i].APIKey = maskKey(shown.Providers[i].APIKey)
	}

	data, err := json.MarshalIndent(&shown, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("no providers configured")
	}

	var problems []string
	for _, p := range cfg.Providers {
		if p.Name == "" {
			problems = append(problems, "provider with empty name")
			continue
		}
		if p.Endpoint == "" {
			problems = append(problems, fmt.Sprintf("provider %q has no endpoint", p.Name))
			continue
		}
		dialect := providers.DetectDialect(p.Endpoint)
		if _, err := providers.ResolveEndpoint(p.Endpoint, dialect); err != nil {
			problems = append(problems, fmt.Sprintf("provider %q: %v", p.Name, err))
		}
		if dialect != providers.LocalGenerate && p.APIKey == "" {
			problems = append(problems, fmt.Sprintf("provider %q has no API key", p.Name))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			color.Red("  %s", p)
		}
		return fmt.Errorf("%d configuration problem(s)", len(problems))
	}

	color.Green("Configuration valid: %d provider(s)", len(cfg.Providers))
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
