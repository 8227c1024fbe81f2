package llm

import (
	"context"

	"github.com/meneportal/veritas/internal/domain"
)

// MockClient is a configurable model client for testing.
// Set the response fields to control what Send returns.
type MockClient struct {
	SendResponse string
	SendError    error

	// SendFunc overrides the canned response when set.
	SendFunc func(ctx context.Context, systemPrompt, userMessage string, opts domain.GenOptions) (string, error)

	// Call tracking for assertions
	SendCalls []MockSendCall
}

type MockSendCall struct {
	SystemPrompt string
	UserMessage  string
	Opts         domain.GenOptions
}

func NewMockClient() *MockClient {
	return &MockClient{
		SendResponse: "Mock response",
	}
}

func (c *MockClient) Send(ctx context.Context, systemPrompt, userMessage string, opts domain.GenOptions) (string, error) {
	c.SendCalls = append(c.SendCalls, MockSendCall{SystemPrompt: systemPrompt, UserMessage: userMessage, Opts: opts})
	if c.SendFunc != nil {
		return c.SendFunc(ctx, systemPrompt, userMessage, opts)
	}
	if c.SendError != nil {
		return "", c.SendError
	}
	return c.SendResponse, nil
}

// Reset clears recorded calls and restores defaults.
func (c *MockClient) Reset() {
	c.SendResponse = "Mock response"
	c.SendError = nil
	c.SendFunc = nil
	c.SendCalls = nil
}
