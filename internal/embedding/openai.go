package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "text-embedding-3-small"

	// The documents table stores vector(1536); a model with a different
	// width would silently corrupt cosine ranking, so every response is
	// checked against this.
	expectedDimensions = 1536
)

// OpenAIClient embeds knowledge-base chunks and search queries. The
// model and base URL are overridable so the knowledge base can run
// against any embeddings-compatible gateway, but the vector width must
// match the documents schema.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option tunes an OpenAIClient at construction.
type Option func(*OpenAIClient)

// WithModel overrides the embedding model. Empty values are ignored.
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL points the client at an alternate embeddings-compatible
// endpoint. Empty values are ignored.
func WithBaseURL(baseURL string) Option {
	return func(c *OpenAIClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", result.Error.Message)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	vec := result.Data[0].Embedding
	if len(vec) != expectedDimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, documents schema expects %d", c.model, len(vec), expectedDimensions)
	}
	return vec, nil
}
