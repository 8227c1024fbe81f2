package automation

import (
	"context"

	"github.com/meneportal/veritas/internal/domain"
)

// MockExecutor is a configurable automation executor for testing.
type MockExecutor struct {
	NavigateResult   domain.AutomationResult
	ClickResult      domain.AutomationResult
	ExtractResult    domain.AutomationResult
	ScreenshotResult domain.AutomationResult

	// Call tracking for assertions
	NavigateCalls   []string
	ClickCalls      []string
	ExtractCalls    []string
	ScreenshotCalls []string
}

func NewMockExecutor() *MockExecutor {
	ok := domain.AutomationResult{Status: "ok", Data: map[string]any{}}
	return &MockExecutor{
		NavigateResult:   ok,
		ClickResult:      ok,
		ExtractResult:    ok,
		ScreenshotResult: ok,
	}
}

func (m *MockExecutor) Navigate(ctx context.Context, session, url string) domain.AutomationResult {
	m.NavigateCalls = append(m.NavigateCalls, url)
	return m.NavigateResult
}

func (m *MockExecutor) Click(ctx context.Context, session, selector string) domain.AutomationResult {
	m.ClickCalls = append(m.ClickCalls, selector)
	return m.ClickResult
}

func (m *MockExecutor) Extract(ctx context.Context, session, selector string) domain.AutomationResult {
	m.ExtractCalls = append(m.ExtractCalls, selector)
	return m.ExtractResult
}

func (m *MockExecutor) Screenshot(ctx context.Context, session string) domain.AutomationResult {
	m.ScreenshotCalls = append(m.ScreenshotCalls, session)
	return m.ScreenshotResult
}
