package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MikaelWeiss/open-chat-core/internal/catalog"
	"github.com/MikaelWeiss/open-chat-core/internal/chat"
	"github.com/MikaelWeiss/open-chat-core/internal/config"
	"github.com/MikaelWeiss/open-chat-core/internal/orchestrator"
	"github.com/MikaelWeiss/open-chat-core/internal/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send a message and stream the reply",
	Long:  `Send one message to the configured provider and stream the assistant's reply to stdout. Ctrl-C keeps the partial reply.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringP("provider", "p", "", "configured provider to use")
	chatCmd.Flags().StringP("model", "m", "", "model id, overrides the provider default")
	chatCmd.Flags().Bool("no-stream", false, "wait for the full reply instead of streaming")
	chatCmd.Flags().Bool("search", false, "enable the web search tool")
	chatCmd.Flags().String("system", "", "system prompt")
}

func runChat(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	cfg := cfgMgr.Get()

	providerName, _ := cmd.Flags().GetString("provider")
	provider, err := cfg.Provider(providerName)
	if err != nil {
		return err
	}

	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = provider.Model
	}
	if model == "" {
		return fmt.Errorf("no model configured for provider %q, pass --model", provider.Name)
	}

	opts := []orchestrator.Option{
		orchestrator.WithCatalog(newCatalogResolver(cfg)),
	}
	if cfg.MaxToolIterations > 0 {
		opts = append(opts, orchestrator.WithMaxToolIterations(cfg.MaxToolIterations))
	}
	if enableSearch, _ := cmd.Flags().GetBool("search"); enableSearch {
		registry := tools.NewRegistry()
		search := tools.NewWebSearch(nil, config.NewCredentials(cfg), cfg.Search.Engine)
		if err := registry.Register(search.Definition(), search.Handler); err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithTools(registry))
	}

	client := orchestrator.NewClient(logger, opts...)

	history := []chat.Message{}
	if system, _ := cmd.Flags().GetString("system"); system != "" {
		history = append(history, chat.TextMessage(chat.RoleSystem, system))
	}
	history = append(history, chat.TextMessage(chat.RoleUser, strings.Join(args, " ")))

	// Ctrl-C cancels the stream but keeps the partial reply.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var onDelta func(string)
	if noStream, _ := cmd.Flags().GetBool("no-stream"); !noStream {
		onDelta = func(delta string) { fmt.Print(delta) }
	}

	final, err := client.SendMessage(ctx, orchestrator.Target{
		Endpoint:   provider.Endpoint,
		Credential: provider.APIKey,
		Model:      model,
		MaxTokens:  provider.MaxTokens,
	}, history, onDelta)
	if err != nil {
		return err
	}

	if onDelta == nil {
		fmt.Print(final.Message.Text())
	}
	fmt.Println()

	if final.Interrupted {
		color.Yellow("(interrupted)")
	}
	for _, warning := range final.Warnings {
		color.Yellow("warning: %s", warning)
	}

	usageLine := fmt.Sprintf("%d in / %d out tokens", final.Usage.InputTokens, final.Usage.OutputTokens)
	if final.Usage.Cost > 0 {
		usageLine += fmt.Sprintf(", $%.6f", final.Usage.Cost)
	}
	color.New(color.Faint).Fprintln(os.Stderr, usageLine)

	return nil
}

func newCatalogResolver(cfg *config.Config) *catalog.Resolver {
	var opts []catalog.Option
	if cfg.CatalogURL != "" {
		opts = append(opts, catalog.WithURL(cfg.CatalogURL))
	}
	return catalog.NewResolver(logger, opts...)
}
