package domain

import (
	"context"
	"fmt"
)

// GenOptions carries the per-agent tunables for one completion call.
type GenOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// ModelClient is one backend's completion contract. A client is selected
// once at agent creation and bound to the agent, never re-dispatched by
// provider string on the query path.
type ModelClient interface {
	Send(ctx context.Context, systemPrompt, userMessage string, opts GenOptions) (string, error)
}

// UpstreamError wraps a provider failure so callers can distinguish
// transport/auth problems from structural misuse.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeHit is one knowledge-base search result.
type KnowledgeHit struct {
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Relevance float32 `json:"relevance"`
}

// KnowledgeSearcher is the knowledge-base collaborator. Implementations
// must fail fast when the backend is unavailable rather than hang.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]KnowledgeHit, error)
}

// AutomationResult is the payload-level outcome of a browser command.
// Executors report failures here and never through a Go error.
type AutomationResult struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (r AutomationResult) OK() bool { return r.Status == "ok" }

// AutomationExecutor drives a browser session scoped to a session
// identifier (one session per agent).
type AutomationExecutor interface {
	Navigate(ctx context.Context, session, url string) AutomationResult
	Click(ctx context.Context, session, selector string) AutomationResult
	Extract(ctx context.Context, session, selector string) AutomationResult
	Screenshot(ctx context.Context, session string) AutomationResult
}
