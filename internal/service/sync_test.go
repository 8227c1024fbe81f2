package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/meneportal/veritas/internal/domain"
	"go.uber.org/zap"
)

// mockPusher implements APIPusher for testing.
type mockPusher struct {
	err   error
	calls []string
}

func (m *mockPusher) Push(ctx context.Context, url string, payload []byte) error {
	m.calls = append(m.calls, url)
	return m.err
}

// mockAutomation implements domain.AutomationExecutor for testing.
type mockAutomation struct {
	navigateResult domain.AutomationResult
	navigated      []string
}

func (m *mockAutomation) Navigate(ctx context.Context, session, url string) domain.AutomationResult {
	m.navigated = append(m.navigated, url)
	return m.navigateResult
}

func (m *mockAutomation) Click(ctx context.Context, session, selector string) domain.AutomationResult {
	return domain.AutomationResult{Status: "ok"}
}

func (m *mockAutomation) Extract(ctx context.Context, session, selector string) domain.AutomationResult {
	return domain.AutomationResult{Status: "ok"}
}

func (m *mockAutomation) Screenshot(ctx context.Context, session string) domain.AutomationResult {
	return domain.AutomationResult{Status: "ok"}
}

func newTestSyncService(pusher APIPusher, executor domain.AutomationExecutor, platforms []Platform) *SyncService {
	branches := newMockBranchStore()
	shared := newMockSharedStore()
	memory := NewMemoryService(branches, shared, 100, zap.NewNop())
	return NewSyncService(memory, newMockLedgerStore(), newMockAgentStore(), pusher, executor, platforms, zap.NewNop())
}

func TestSyncPrepare_WithinBudgetUntouched(t *testing.T) {
	svc := newTestSyncService(nil, nil, nil)

	snapshot := domain.MemorySnapshot{
		VerifiedFacts: []string{"fact one", "fact two"},
		KeyInsights:   []string{"insight"},
	}
	trimmed, err := svc.Prepare(snapshot, 10_000)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(trimmed.VerifiedFacts) != 2 || len(trimmed.KeyInsights) != 1 {
		t.Fatalf("expected snapshot untouched, got %+v", trimmed)
	}
}

func TestSyncPrepare_DropsLowerPriorityCategoriesFirst(t *testing.T) {
	svc := newTestSyncService(nil, nil, nil)

	snapshot := domain.MemorySnapshot{
		AgentPreferences: map[string]string{"mira": "openai/gpt-4o-mini"},
	}
	for i := 0; i < 10; i++ {
		snapshot.VerifiedFacts = append(snapshot.VerifiedFacts, fmt.Sprintf("verified fact number %d with some detail attached", i))
		snapshot.ConversationSummaries = append(snapshot.ConversationSummaries, fmt.Sprintf("summary %d of a long conversation", i))
		snapshot.KeyInsights = append(snapshot.KeyInsights, fmt.Sprintf("insight %d", i))
	}

	// Budget that fits the 5 capped facts but nothing else.
	factsOnly := domain.MemorySnapshot{VerifiedFacts: snapshot.VerifiedFacts[:5]}
	budget, err := snapshotSize(factsOnly)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	trimmed, err := svc.Prepare(snapshot, budget)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(trimmed.VerifiedFacts) != 5 {
		t.Fatalf("expected top-5 facts preserved, got %d", len(trimmed.VerifiedFacts))
	}
	if trimmed.AgentPreferences != nil || trimmed.KeyInsights != nil || trimmed.ConversationSummaries != nil {
		t.Fatalf("expected lower-priority categories dropped, got %+v", trimmed)
	}

	size, _ := snapshotSize(trimmed)
	if size > budget {
		t.Fatalf("expected trimmed snapshot within budget, got %d > %d", size, budget)
	}
}

func TestSyncPrepare_FactsShrinkAsLastResort(t *testing.T) {
	svc := newTestSyncService(nil, nil, nil)

	snapshot := domain.MemorySnapshot{}
	for i := 0; i < 5; i++ {
		snapshot.VerifiedFacts = append(snapshot.VerifiedFacts, fmt.Sprintf("a fairly long verified fact number %d", i))
	}

	trimmed, err := svc.Prepare(snapshot, 80)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	size, _ := snapshotSize(trimmed)
	if size > 80 && len(trimmed.VerifiedFacts) > 0 {
		t.Fatalf("expected facts trimmed to budget, got %d bytes with %d facts", size, len(trimmed.VerifiedFacts))
	}
	if len(trimmed.VerifiedFacts) >= 5 {
		t.Fatalf("expected fewer than 5 facts, got %d", len(trimmed.VerifiedFacts))
	}
}

func TestSyncDispatch_UnknownPlatform(t *testing.T) {
	svc := newTestSyncService(nil, nil, nil)

	result := svc.Dispatch(context.Background(), "nowhere", domain.MemorySnapshot{})
	if result.Status != domain.SyncStatusError {
		t.Fatalf("expected error status, got %q", result.Status)
	}
	if result.Error == "" {
		t.Fatal("expected error detail")
	}
}

func TestSyncDispatch_APIMethodUsesPusher(t *testing.T) {
	pusher := &mockPusher{}
	svc := newTestSyncService(pusher, nil, []Platform{
		{Name: "notion", Method: domain.SyncMethodAPI, URL: "https://hooks.example.com/notion"},
	})

	snapshot := domain.MemorySnapshot{VerifiedFacts: []string{"fact"}}
	result := svc.Dispatch(context.Background(), "notion", snapshot)

	if result.Status != domain.SyncStatusOK {
		t.Fatalf("expected ok, got %+v", result)
	}
	if result.Method != domain.SyncMethodAPI {
		t.Fatalf("expected api method, got %q", result.Method)
	}
	if len(pusher.calls) != 1 || pusher.calls[0] != "https://hooks.example.com/notion" {
		t.Fatalf("expected one push to the platform URL, got %v", pusher.calls)
	}

	payload, _ := json.Marshal(snapshot)
	if result.Bytes != len(payload) {
		t.Fatalf("expected byte count %d, got %d", len(payload), result.Bytes)
	}
}

func TestSyncDispatch_BrowserMethodNavigates(t *testing.T) {
	executor := &mockAutomation{navigateResult: domain.AutomationResult{Status: "ok"}}
	svc := newTestSyncService(nil, executor, []Platform{
		{Name: "workspace", Method: domain.SyncMethodBrowser, URL: "https://workspace.example.com"},
	})

	result := svc.Dispatch(context.Background(), "workspace", domain.MemorySnapshot{})
	if result.Status != domain.SyncStatusOK {
		t.Fatalf("expected ok, got %+v", result)
	}
	if len(executor.navigated) != 1 {
		t.Fatalf("expected one navigation, got %v", executor.navigated)
	}
}

func TestSyncDispatch_TransportFailureIsolated(t *testing.T) {
	pusher := &mockPusher{err: errors.New("connection refused")}
	svc := newTestSyncService(pusher, nil, []Platform{
		{Name: "notion", Method: domain.SyncMethodAPI, URL: "https://hooks.example.com/notion"},
	})

	result := svc.Dispatch(context.Background(), "notion", domain.MemorySnapshot{})
	if result.Status != domain.SyncStatusError {
		t.Fatalf("expected error status, got %+v", result)
	}
	if result.Error == "" {
		t.Fatal("expected transport error captured in result")
	}
	if result.Timestamp.IsZero() {
		t.Fatal("expected timestamp set")
	}
}

func TestSyncService_LastResultsTracked(t *testing.T) {
	pusher := &mockPusher{}
	svc := newTestSyncService(pusher, nil, []Platform{
		{Name: "notion", Method: domain.SyncMethodAPI, URL: "https://hooks.example.com/notion"},
	})

	before := time.Now()
	_ = svc.Dispatch(context.Background(), "notion", domain.MemorySnapshot{})

	results := svc.LastResults()
	if len(results) != 1 {
		t.Fatalf("expected 1 tracked result, got %d", len(results))
	}
	if results[0].Timestamp.Before(before) {
		t.Fatal("expected fresh timestamp")
	}
}
