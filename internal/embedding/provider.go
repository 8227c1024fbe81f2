package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/meneportal/veritas/internal/domain"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// NewClient creates an embedding client based on the provider name.
// Options apply to the OpenAI client only; the mock ignores them.
func NewClient(provider, apiKey string, opts ...Option) (domain.EmbeddingClient, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI embeddings")
		}
		return NewOpenAIClient(apiKey, opts...), nil
	case ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (valid options: openai, mock)", provider)
	}
}

// MockClient produces deterministic pseudo-embeddings so vector plumbing
// can be exercised without a real provider.
type MockClient struct {
	Dimensions int
}

func NewMockClient() *MockClient {
	return &MockClient{Dimensions: 1536}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	emb := make([]float32, c.Dimensions)
	for i := range emb {
		seed = seed*6364136223846793005 + 1442695040888963407
		emb[i] = float32(int64(seed>>33)) / float32(1<<31)
	}
	return emb, nil
}
