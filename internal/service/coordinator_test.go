package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/llm"
	"go.uber.org/zap"
)

func newTestCoordinator(client domain.ModelClient) (*CoordinatorService, *mockAgentStore, *MemoryService, *mockSharedStore) {
	agents := newMockAgentStore()
	branches := newMockBranchStore()
	shared := newMockSharedStore()
	memory := NewMemoryService(branches, shared, 100, zap.NewNop())
	assembler := NewContextService(memory, nil, zap.NewNop())

	factory := func(provider string) (domain.ModelClient, error) {
		if provider == "mock" {
			if client != nil {
				return client, nil
			}
			return llm.NewMockClient(), nil
		}
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	svc := NewCoordinatorService(agents, memory, assembler, factory, time.Second, zap.NewNop())
	return svc, agents, memory, shared
}

func TestCoordinator_CreateAgentCreatesBranch(t *testing.T) {
	svc, _, memory, _ := newTestCoordinator(nil)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	if err := svc.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agent.ID == uuid.Nil {
		t.Fatal("expected agent ID to be set")
	}

	branch, err := memory.GetBranch(ctx, agent.ID)
	if err != nil {
		t.Fatalf("expected branch to exist, got %v", err)
	}
	if branch.AgentName != "mira" {
		t.Fatalf("expected branch named after agent, got %q", branch.AgentName)
	}
}

func TestCoordinator_CreateAgentDuplicateName(t *testing.T) {
	svc, _, _, _ := newTestCoordinator(nil)
	ctx := context.Background()

	if err := svc.CreateAgent(ctx, &domain.Agent{Name: "mira", Provider: "mock"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	err := svc.CreateAgent(ctx, &domain.Agent{Name: "mira", Provider: "mock"})
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("expected ErrDuplicateAgent, got %v", err)
	}
}

func TestCoordinator_CreateAgentUnknownProvider(t *testing.T) {
	svc, agents, _, _ := newTestCoordinator(nil)

	err := svc.CreateAgent(context.Background(), &domain.Agent{Name: "mira", Provider: "nope"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if n, _ := agents.Count(context.Background()); n != 0 {
		t.Fatal("expected no agent to be persisted")
	}
}

func TestCoordinator_QueryRecordsConversationAndCounters(t *testing.T) {
	client := llm.NewMockClient()
	client.SendResponse = "the release ships tuesday"
	svc, agents, memory, _ := newTestCoordinator(client)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock", SystemPrompt: "you are mira"}
	if err := svc.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	result, err := svc.Query(ctx, agent.ID, "when is the release", QueryOpts{IncludeContext: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Response != "the release ships tuesday" {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.AgentName != "mira" {
		t.Fatalf("expected agent name in result, got %q", result.AgentName)
	}

	records, err := memory.Recent(ctx, agent.ID, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 conversation record, got %d", len(records))
	}
	if records[0].Request != "when is the release" {
		t.Fatalf("expected request recorded, got %q", records[0].Request)
	}

	updated, _ := agents.GetByID(ctx, agent.ID)
	if updated.QueryCount != 1 {
		t.Fatalf("expected query count 1, got %d", updated.QueryCount)
	}
	if updated.TotalTokens == 0 {
		t.Fatal("expected token estimate to advance")
	}

	if len(client.SendCalls) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(client.SendCalls))
	}
	if client.SendCalls[0].SystemPrompt != "you are mira" {
		t.Fatalf("expected agent system prompt, got %q", client.SendCalls[0].SystemPrompt)
	}
}

func TestCoordinator_QueryInjectsContextFromMemory(t *testing.T) {
	client := llm.NewMockClient()
	svc, _, memory, _ := newTestCoordinator(client)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	_ = svc.CreateAgent(ctx, agent)
	_ = memory.Append(ctx, &domain.MemoryRecord{
		AgentID: agent.ID, Kind: domain.RecordConversation,
		Request: "my name is Alex", Response: "nice to meet you Alex",
	})

	result, err := svc.Query(ctx, agent.ID, "what is my name", QueryOpts{IncludeContext: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(result.Context, "my name is Alex") {
		t.Fatalf("expected prior exchange in context, got %q", result.Context)
	}
	if !strings.Contains(client.SendCalls[len(client.SendCalls)-1].UserMessage, "my name is Alex") {
		t.Fatal("expected context to be injected into the upstream message")
	}
}

func TestCoordinator_QueryUnknownAgent(t *testing.T) {
	svc, _, _, _ := newTestCoordinator(nil)

	_, err := svc.Query(context.Background(), uuid.New(), "hello", QueryOpts{})
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestCoordinator_QueryUpstreamFailure(t *testing.T) {
	client := llm.NewMockClient()
	client.SendError = errors.New("rate limited")
	svc, _, memory, _ := newTestCoordinator(client)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	_ = svc.CreateAgent(ctx, agent)

	_, err := svc.Query(ctx, agent.ID, "hello", QueryOpts{})
	var upstream *domain.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Provider != "mock" {
		t.Fatalf("expected provider in error, got %q", upstream.Provider)
	}

	// Failed queries leave no trace in memory.
	records, _ := memory.Recent(ctx, agent.ID, 10)
	if len(records) != 0 {
		t.Fatalf("expected no records after failure, got %d", len(records))
	}
}

func TestCoordinator_VerificationModeSkipsMemory(t *testing.T) {
	client := llm.NewMockClient()
	svc, agents, memory, _ := newTestCoordinator(client)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	_ = svc.CreateAgent(ctx, agent)

	_, err := svc.Query(ctx, agent.ID, "is the sky blue", QueryOpts{VerificationMode: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	records, _ := memory.Recent(ctx, agent.ID, 10)
	if len(records) != 0 {
		t.Fatalf("expected review exchange to stay out of memory, got %d records", len(records))
	}
	updated, _ := agents.GetByID(ctx, agent.ID)
	if updated.QueryCount != 0 {
		t.Fatal("expected counters untouched in verification mode")
	}
	if !strings.Contains(client.SendCalls[0].SystemPrompt, "reviewer") {
		t.Fatal("expected reviewer instruction in system prompt")
	}
}

func TestCoordinator_AvgLatencyIsIncremental(t *testing.T) {
	client := llm.NewMockClient()
	svc, agents, _, _ := newTestCoordinator(client)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	_ = svc.CreateAgent(ctx, agent)

	for i := 0; i < 3; i++ {
		if _, err := svc.Query(ctx, agent.ID, "ping", QueryOpts{}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	updated, _ := agents.GetByID(ctx, agent.ID)
	if updated.QueryCount != 3 {
		t.Fatalf("expected query count 3, got %d", updated.QueryCount)
	}
	if updated.AvgLatencyMs < 0 {
		t.Fatalf("expected non-negative average latency, got %f", updated.AvgLatencyMs)
	}
}

func TestCoordinator_BroadcastIsolatesFailures(t *testing.T) {
	failing := llm.NewMockClient()
	failing.SendFunc = func(ctx context.Context, systemPrompt, userMessage string, opts domain.GenOptions) (string, error) {
		if strings.Contains(systemPrompt, "broken") {
			return "", errors.New("backend down")
		}
		return "fine", nil
	}
	svc, _, _, _ := newTestCoordinator(failing)
	ctx := context.Background()

	_ = svc.CreateAgent(ctx, &domain.Agent{Name: "healthy", Provider: "mock", SystemPrompt: "healthy persona"})
	_ = svc.CreateAgent(ctx, &domain.Agent{Name: "sick", Provider: "mock", SystemPrompt: "broken persona"})

	results, err := svc.Broadcast(ctx, "status check", QueryOpts{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byName := make(map[string]BroadcastResult)
	for _, r := range results {
		byName[r.AgentName] = r
	}
	if byName["healthy"].Response != "fine" || byName["healthy"].Error != "" {
		t.Fatalf("expected healthy agent to answer, got %+v", byName["healthy"])
	}
	if byName["sick"].Error == "" {
		t.Fatal("expected sick agent's failure to be captured")
	}
}

func TestCoordinator_BroadcastNoAgents(t *testing.T) {
	svc, _, _, _ := newTestCoordinator(nil)

	_, err := svc.Broadcast(context.Background(), "anyone there", QueryOpts{})
	if !errors.Is(err, ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestCoordinator_ConsultAssignsReviewerRoles(t *testing.T) {
	client := llm.NewMockClient()
	client.SendResponse = "the claim holds up"
	svc, _, _, _ := newTestCoordinator(client)
	ctx := context.Background()

	_ = svc.CreateAgent(ctx, &domain.Agent{Name: "mira", Provider: "mock"})
	_ = svc.CreateAgent(ctx, &domain.Agent{Name: "sage", Provider: "mock"})
	_ = svc.CreateAgent(ctx, &domain.Agent{Name: "juno", Provider: "mock"})

	items, err := svc.Consult(ctx, "the deployment finished on friday")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 peer opinions, got %d", len(items))
	}

	types := map[domain.EvidenceType]float64{}
	for _, item := range items {
		types[item.Type] = item.Confidence
	}
	if types[domain.EvidenceAgentResearch] != 0.7 {
		t.Fatalf("expected research reviewer at 0.7, got %v", types)
	}
	if types[domain.EvidenceAgentCritical] != 0.6 {
		t.Fatalf("expected critical reviewer at 0.6, got %v", types)
	}
}

func TestCoordinator_DeleteAgentRemovesBranch(t *testing.T) {
	svc, _, memory, shared := newTestCoordinator(nil)
	ctx := context.Background()

	agent := &domain.Agent{Name: "mira", Provider: "mock"}
	_ = svc.CreateAgent(ctx, agent)
	_ = memory.Append(ctx, &domain.MemoryRecord{
		AgentID: agent.ID, Kind: domain.RecordConversation,
		Request: "q", Response: strings.Repeat("long answer ", 12),
	})

	if err := svc.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := svc.GetAgent(ctx, agent.ID); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected agent gone, got %v", err)
	}
	if _, err := memory.GetBranch(ctx, agent.ID); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("expected branch gone, got %v", err)
	}
	if n, _ := shared.Count(ctx); n != 0 {
		t.Fatalf("expected shared entries purged, got %d", n)
	}
}
