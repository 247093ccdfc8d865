package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/scribe/internal/activity"
	"github.com/dativo-io/scribe/internal/config"
	"github.com/dativo-io/scribe/internal/crm"
	"github.com/dativo-io/scribe/internal/llm"
	"github.com/dativo-io/scribe/internal/prompt"
	"github.com/dativo-io/scribe/internal/relay"
	"github.com/dativo-io/scribe/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook relay server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides SCRIBE_PORT)")
	rootCmd.AddCommand(serveCmd)
}

// buildProvider selects and wraps the configured text-generation provider.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	var provider llm.Provider
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%s required when %s=openai", "SCRIBE_OPENAI_API_KEY", config.KeyLLMProvider)
		}
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	default:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("SCRIBE_GEMINI_API_KEY is required")
		}
		provider = llm.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiAPIURL)
	}
	return llm.NewRateLimited(provider, cfg.LLMRPM), nil
}

// loadPrompts returns the prompt library, honoring an override file when set.
func loadPrompts(cfg *config.Config) (*prompt.Library, error) {
	if cfg.PromptFile == "" {
		return prompt.Default(), nil
	}
	lib, err := prompt.LoadFile(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("loading prompt file: %w", err)
	}
	log.Info().Str("path", cfg.PromptFile).Msg("prompt_overrides_loaded")
	return lib, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if !cfg.HasHubSpotToken() {
		return fmt.Errorf("SCRIBE_HUBSPOT_TOKEN is required")
	}
	if !cfg.HasWebhookSecret() {
		log.Warn().Msg("SCRIBE_WEBHOOK_SECRET not set — inbound webhooks are unauthenticated")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	prompts, err := loadPrompts(cfg)
	if err != nil {
		return err
	}

	activityLog := activity.NewLog()
	crmClient := crm.NewClient(cfg.HubSpotToken, cfg.HubSpotAPIURL)

	pipeline := relay.New(relay.Config{
		CRM:      crmClient,
		Provider: provider,
		Prompts:  prompts,
		Activity: activityLog,
		Model:    cfg.Model(),
		Workers:  cfg.FanoutWorkers,
	})

	srv := server.NewServer(cfg, pipeline, activityLog)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("provider", provider.Name()).
		Str("model", cfg.Model()).
		Msg("scribe_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
