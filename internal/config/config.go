// Package config holds operator-level configuration for a scribe installation.
//
// Everything is set via env vars (SCRIBE_*) or a scribe.config.yaml file.
// Credentials (HubSpot token, LLM API keys) are never logged; the /test
// endpoint exposes presence booleans only.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SCRIBE_ prefix
// (e.g. "hubspot_token" → SCRIBE_HUBSPOT_TOKEN) and to a YAML field
// in scribe.config.yaml.
const (
	KeyHubSpotToken  = "hubspot_token"
	KeyGeminiAPIKey  = "gemini_api_key"
	KeyOpenAIAPIKey  = "openai_api_key"
	KeyWebhookSecret = "webhook_secret"
	KeyPort          = "port"
	KeyLLMProvider   = "llm_provider"
	KeyLLMModel      = "llm_model"
	KeyLLMRPM        = "llm_rpm"
	KeyFanoutWorkers = "fanout_workers"
	KeyPromptFile    = "prompt_file"
	KeyHubSpotAPIURL = "hubspot_api_url"
	KeyGeminiAPIURL  = "gemini_api_url"
)

// Defaults.
const (
	DefaultPort          = 3000
	DefaultLLMProvider   = "gemini"
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultLLMRPM        = 30
	DefaultFanoutWorkers = 4
	DefaultHubSpotAPIURL = "https://api.hubapi.com"
)

// Config holds resolved configuration for a scribe process.
type Config struct {
	HubSpotToken  string // CRM bearer token
	GeminiAPIKey  string // generation API key (default provider)
	OpenAIAPIKey  string // generation API key (alternate provider)
	WebhookSecret string // optional; surfaced as a presence boolean only
	Port          int    // HTTP listen port
	LLMProvider   string // "gemini" or "openai"
	LLMModel      string // model override; provider default when empty
	LLMRPM        int    // generation calls per minute (token bucket)
	FanoutWorkers int    // bound on per-deal fan-out in the reply pipeline
	PromptFile    string // optional YAML file overriding the prompt templates
	HubSpotAPIURL string // CRM base URL (overridable for tests)
	GeminiAPIURL  string // generation base URL (overridable for tests)
}

// HasHubSpotToken reports whether a CRM token is configured.
func (c *Config) HasHubSpotToken() bool { return c.HubSpotToken != "" }

// HasGeminiKey reports whether a Gemini API key is configured.
func (c *Config) HasGeminiKey() bool { return c.GeminiAPIKey != "" }

// HasWebhookSecret reports whether a webhook secret is configured.
func (c *Config) HasWebhookSecret() bool { return c.WebhookSecret != "" }

// Load resolves configuration from viper (env + optional config file).
// Callers are expected to have initialized viper (env prefix, config paths)
// via the root command.
func Load() (*Config, error) {
	viper.SetDefault(KeyPort, DefaultPort)
	viper.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	viper.SetDefault(KeyLLMRPM, DefaultLLMRPM)
	viper.SetDefault(KeyFanoutWorkers, DefaultFanoutWorkers)
	viper.SetDefault(KeyHubSpotAPIURL, DefaultHubSpotAPIURL)

	cfg := &Config{
		HubSpotToken:  viper.GetString(KeyHubSpotToken),
		GeminiAPIKey:  viper.GetString(KeyGeminiAPIKey),
		OpenAIAPIKey:  viper.GetString(KeyOpenAIAPIKey),
		WebhookSecret: viper.GetString(KeyWebhookSecret),
		Port:          viper.GetInt(KeyPort),
		LLMProvider:   viper.GetString(KeyLLMProvider),
		LLMModel:      viper.GetString(KeyLLMModel),
		LLMRPM:        viper.GetInt(KeyLLMRPM),
		FanoutWorkers: viper.GetInt(KeyFanoutWorkers),
		PromptFile:    viper.GetString(KeyPromptFile),
		HubSpotAPIURL: viper.GetString(KeyHubSpotAPIURL),
		GeminiAPIURL:  viper.GetString(KeyGeminiAPIURL),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid %s %q: must be gemini or openai", KeyLLMProvider, c.LLMProvider)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid %s %d: must be 1-65535", KeyPort, c.Port)
	}
	if c.LLMRPM < 1 {
		return fmt.Errorf("invalid %s %d: must be >= 1", KeyLLMRPM, c.LLMRPM)
	}
	if c.FanoutWorkers < 1 {
		return fmt.Errorf("invalid %s %d: must be >= 1", KeyFanoutWorkers, c.FanoutWorkers)
	}
	return nil
}

// Model returns the configured model, falling back to the provider default.
func (c *Config) Model() string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	if c.LLMProvider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}
