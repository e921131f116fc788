package llm

import (
	"fmt"
	"strings"

	"match-chatter/internal/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderYandex    = "yandex"
	ProviderAnthropic = "anthropic"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey       string
	OpenaiBaseURL      string
	OpenaiAssistantID  string
	OpenRouterReferrer string
	OpenRouterTitle    string
	YandexOAuthToken   string
	YandexFolderID     string
	AnthropicAPIKey    string
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		OpenaiAPIKey:       cfg.OpenAIAPIKey,
		OpenaiBaseURL:      cfg.OpenAIBaseURL,
		OpenaiAssistantID:  cfg.OpenAIAssistantID,
		OpenRouterReferrer: cfg.OpenRouterReferrer,
		OpenRouterTitle:    cfg.OpenRouterTitle,
		YandexOAuthToken:   cfg.YandexOAuthToken,
		YandexFolderID:     cfg.YandexFolderID,
		AnthropicAPIKey:    cfg.AnthropicAPIKey,
	}
}

// CreateClient returns a request/response client for provider.
func (f *Factory) CreateClient(provider, model string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewOpenAI(f.OpenaiAPIKey, f.OpenaiBaseURL, model, f.OpenRouterReferrer, f.OpenRouterTitle), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID)
	case ProviderAnthropic:
		return NewAnthropic(f.AnthropicAPIKey, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

// CreateThreadClient returns the job-style Assistants client.
func (f *Factory) CreateThreadClient() (ThreadClient, error) {
	if f.OpenaiAssistantID == "" {
		return nil, fmt.Errorf("assistant id is not configured")
	}
	return NewAssistant(f.OpenaiAPIKey, f.OpenaiBaseURL, f.OpenaiAssistantID, f.OpenRouterReferrer, f.OpenRouterTitle), nil
}
