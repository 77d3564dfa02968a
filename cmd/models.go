package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MikaelWeiss/open-chat-core/internal/catalog"
	"github.com/MikaelWeiss/open-chat-core/internal/usage"
)

var modelsCmd = &cobra.Command{
	Use:   "models [model-id...]",
	Short: "Show model capabilities and pricing",
	Long:  `Show capabilities and per-million-token pricing for the given model ids, or for every model configured on the selected provider.`,
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().StringP("provider", "p", "", "configured provider whose models to list")
}

func runModels(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	cfg := cfgMgr.Get()

	models := args
	if len(models) == 0 {
		providerName, _ := cmd.Flags().GetString("provider")
		provider, err := cfg.Provider(providerName)
		if err != nil {
			return err
		}
		models = provider.Models
		if len(models) == 0 && provider.Model != "" {
			models = []string{provider.Model}
		}
	}
	if len(models) == 0 {
		return fmt.Errorf("no models configured, pass model ids as arguments")
	}

	resolver := newCatalogResolver(cfg)
	for _, model := range models {
		printModel(resolver, model)
	}
	return nil
}

func printModel(resolver *catalog.Resolver, model string) {
	color.New(color.Bold).Println(model)

	caps := resolver.Resolve(model)
	fmt.Printf("  capabilities: %s\n", formatCapabilities(caps))

	if entry, ok := resolver.Pricing(model); ok {
		fmt.Printf("  pricing: $%.2f in / $%.2f out per 1M tokens\n", entry.InputPerMillion, entry.OutputPerMillion)
		if entry.CachedInputPerMillion > 0 {
			fmt.Printf("  cached input: $%.2f per 1M tokens\n", entry.CachedInputPerMillion)
		}
	} else if entry, ok := usage.LookupPricing(model); ok {
		fmt.Printf("  pricing (offline table): $%.2f in / $%.2f out per 1M tokens\n", entry.InputPerMillion, entry.OutputPerMillion)
	} else {
		fmt.Println("  pricing: unknown, costs will show as zero")
	}
}

func formatCapabilities(caps catalog.CapabilitySet) string {
	var names []string
	add := func(on bool, name string) {
		if on {
			names = append(names, name)
		}
	}
	add(caps.Tools, "tools")
	add(caps.Files, "files")
	add(caps.Vision, "vision")
	add(caps.Audio, "audio")
	add(caps.ImageOutput, "image-output")
	add(caps.Thinking, "thinking")
	add(caps.WebSearch, "web-search")
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
