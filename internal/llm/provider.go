package llm

import (
	"fmt"

	"github.com/meneportal/veritas/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGroq      = "groq"
	ProviderMock      = "mock"
)

// NewClient creates a model client for the given backend selector.
// Returns an error if the provider is unknown or the API key is empty
// (except for mock).
func NewClient(provider, apiKey string) (domain.ModelClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIClient(apiKey), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicClient(apiKey), nil

	case ProviderGroq:
		if apiKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is required for Groq provider")
		}
		return NewGroqClient(apiKey), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown model provider: %s (valid options: openai, anthropic, groq, mock)", provider)
	}
}

// ValidProvider reports whether the selector names a known backend.
func ValidProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGroq, ProviderMock:
		return true
	}
	return false
}
