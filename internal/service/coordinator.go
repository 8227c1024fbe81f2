package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidAgent    = errors.New("agent name and provider are required")
	ErrUnknownProvider = errors.New("unknown model provider")
	ErrDuplicateAgent  = errors.New("agent name already in use")
	ErrNoAgents        = errors.New("no agents registered")
)

// ClientFactory builds a ModelClient for a provider selector. Bound once
// per agent at creation time; never re-dispatched per query.
type ClientFactory func(provider string) (domain.ModelClient, error)

// QueryOpts tunes a single routed query.
type QueryOpts struct {
	// IncludeContext injects assembled memory/knowledge context ahead of
	// the user message.
	IncludeContext bool
	// VerificationMode marks the query as a peer-review consultation:
	// the reply is not recorded in the agent's memory branch and the
	// system prompt gains a reviewer instruction.
	VerificationMode bool
}

// QueryResult is the outcome of one routed query.
type QueryResult struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Response  string    `json:"response"`
	Context   string    `json:"context,omitempty"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

// BroadcastResult is one agent's answer (or failure) in a fan-out query.
type BroadcastResult struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// CoordinatorService routes queries to persona agents. Each agent is
// bound to exactly one backend client; query traffic is recorded on the
// agent's memory branch and reflected in its usage counters.
type CoordinatorService struct {
	agents      domain.AgentStore
	memory      *MemoryService
	assembler   *ContextService
	newClient   ClientFactory
	peerTimeout time.Duration
	logger      *zap.Logger

	mu    sync.RWMutex
	bound map[uuid.UUID]domain.ModelClient
}

func NewCoordinatorService(agents domain.AgentStore, memory *MemoryService, assembler *ContextService, newClient ClientFactory, peerTimeout time.Duration, logger *zap.Logger) *CoordinatorService {
	if peerTimeout <= 0 {
		peerTimeout = 20 * time.Second
	}
	return &CoordinatorService{
		agents:      agents,
		memory:      memory,
		assembler:   assembler,
		newClient:   newClient,
		peerTimeout: peerTimeout,
		logger:      logger,
		bound:       make(map[uuid.UUID]domain.ModelClient),
	}
}

// CreateAgent registers an agent and its memory branch atomically from
// the caller's point of view: a branch failure rolls the agent back.
func (s *CoordinatorService) CreateAgent(ctx context.Context, a *domain.Agent) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Provider) == "" {
		return ErrInvalidAgent
	}

	client, err := s.newClient(a.Provider)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, a.Provider)
	}

	if err := s.agents.Create(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: %q", ErrDuplicateAgent, a.Name)
		}
		return err
	}

	if _, err := s.memory.CreateBranch(ctx, a.ID, a.Name); err != nil && !errors.Is(err, ErrDuplicateBranch) {
		if delErr := s.agents.Delete(ctx, a.ID); delErr != nil {
			s.logger.Error("failed to roll back agent after branch failure",
				zap.String("agent_id", a.ID.String()),
				zap.Error(delErr))
		}
		return fmt.Errorf("create memory branch: %w", err)
	}

	s.mu.Lock()
	s.bound[a.ID] = client
	s.mu.Unlock()

	s.logger.Info("agent created",
		zap.String("agent_id", a.ID.String()),
		zap.String("name", a.Name),
		zap.String("provider", a.Provider))
	return nil
}

func (s *CoordinatorService) GetAgent(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownAgent
		}
		return nil, err
	}
	return a, nil
}

func (s *CoordinatorService) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.agents.List(ctx)
}

// DeleteAgent removes the agent, its memory branch, and the shared-pool
// entries it promoted.
func (s *CoordinatorService) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	if err := s.agents.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownAgent
		}
		return err
	}
	if err := s.memory.DeleteBranch(ctx, id); err != nil {
		s.logger.Warn("failed to delete memory branch",
			zap.String("agent_id", id.String()),
			zap.Error(err))
	}

	s.mu.Lock()
	delete(s.bound, id)
	s.mu.Unlock()
	return nil
}

// clientFor returns the agent's bound client, binding one lazily for
// agents loaded from storage after a restart.
func (s *CoordinatorService) clientFor(a *domain.Agent) (domain.ModelClient, error) {
	s.mu.RLock()
	client, ok := s.bound[a.ID]
	s.mu.RUnlock()
	if ok {
		return client, nil
	}

	client, err := s.newClient(a.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, a.Provider)
	}

	s.mu.Lock()
	s.bound[a.ID] = client
	s.mu.Unlock()
	return client, nil
}

// Query routes one message to an agent. On success the exchange is
// appended to the agent's branch and the usage counters advance; in
// verification mode the exchange stays out of memory so peer reviews
// cannot feed back into future evidence.
func (s *CoordinatorService) Query(ctx context.Context, agentID uuid.UUID, message string, opts QueryOpts) (*QueryResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrQueryEmpty
	}

	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor(agent)
	if err != nil {
		return nil, err
	}

	contextStr := ""
	if opts.IncludeContext && !opts.VerificationMode {
		contextStr, err = s.assembler.Assemble(ctx, agentID, message)
		if err != nil {
			s.logger.Warn("context assembly failed, continuing without",
				zap.String("agent_id", agentID.String()),
				zap.Error(err))
			contextStr = ""
		}
	}

	systemPrompt := agent.SystemPrompt
	if opts.VerificationMode {
		systemPrompt += "\n\nYou are acting as a reviewer. Assess the statement you are given factually and concisely; do not role-play."
	}

	userMessage := message
	if contextStr != "" {
		userMessage = contextStr + "\n\n" + message
	}

	start := time.Now()
	response, err := client.Send(ctx, systemPrompt, userMessage, domain.GenOptions{
		Model:       agent.Model,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		return nil, &domain.UpstreamError{Provider: agent.Provider, Err: err}
	}
	elapsed := float64(time.Since(start).Milliseconds())

	if !opts.VerificationMode {
		record := &domain.MemoryRecord{
			AgentID:  agentID,
			Kind:     domain.RecordConversation,
			Request:  message,
			Response: response,
			Context:  contextStr,
		}
		if err := s.memory.Append(ctx, record); err != nil {
			s.logger.Warn("failed to record conversation",
				zap.String("agent_id", agentID.String()),
				zap.Error(err))
		}
		s.advanceCounters(ctx, agent, message, response, elapsed)
	}

	return &QueryResult{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		Response:  response,
		Context:   contextStr,
		ElapsedMs: elapsed,
	}, nil
}

// advanceCounters updates the agent's usage stats, folding the new
// latency into the running average incrementally.
func (s *CoordinatorService) advanceCounters(ctx context.Context, agent *domain.Agent, request, response string, elapsedMs float64) {
	queryCount := agent.QueryCount + 1
	avg := agent.AvgLatencyMs + (elapsedMs-agent.AvgLatencyMs)/float64(queryCount)

	// Providers in this contract return text only, so token usage is a
	// rough 4-chars-per-token estimate.
	tokens := int64((len(request) + len(response)) / 4)
	totalTokens := agent.TotalTokens + tokens

	if err := s.agents.UpdateCounters(ctx, agent.ID, queryCount, totalTokens, avg); err != nil {
		s.logger.Warn("failed to update agent counters",
			zap.String("agent_id", agent.ID.String()),
			zap.Error(err))
	}
}

// Broadcast fans one message out to every agent concurrently. Each
// agent's failure is isolated into its own result slot.
func (s *CoordinatorService) Broadcast(ctx context.Context, message string, opts QueryOpts) ([]BroadcastResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrQueryEmpty
	}

	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}

	results := make([]BroadcastResult, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			results[i] = BroadcastResult{AgentID: agent.ID, AgentName: agent.Name}
			res, err := s.Query(gctx, agent.ID, message, opts)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Response = res.Response
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Consult gathers peer opinions on a claim for the verification engine.
// The first responding agent acts as the research reviewer, the second
// as the critical reviewer; each call is bounded by the peer timeout and
// failures are skipped rather than propagated.
func (s *CoordinatorService) Consult(ctx context.Context, claim string) ([]domain.EvidenceItem, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, nil
	}
	if len(agents) > 2 {
		agents = agents[:2]
	}

	roles := []struct {
		evType     domain.EvidenceType
		confidence float64
		prompt     string
	}{
		{domain.EvidenceAgentResearch, 0.7, "Research this claim and summarize what supports or contradicts it: %s"},
		{domain.EvidenceAgentCritical, 0.6, "Critically examine this claim for flaws, missing context, or overreach: %s"},
	}

	var (
		mu    sync.Mutex
		items []domain.EvidenceItem
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range agents {
		agent := agent
		role := roles[i%len(roles)]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.peerTimeout)
			defer cancel()

			res, err := s.Query(callCtx, agent.ID, fmt.Sprintf(role.prompt, claim), QueryOpts{VerificationMode: true})
			if err != nil {
				s.logger.Debug("peer consultation failed",
					zap.String("agent", agent.Name),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			items = append(items, domain.EvidenceItem{
				Source:     agent.Name,
				Type:       role.evType,
				Summary:    truncate(res.Response, 500),
				Confidence: role.confidence,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

// AgentCount returns the registered agent total for the stats snapshot.
func (s *CoordinatorService) AgentCount(ctx context.Context) (int, error) {
	return s.agents.Count(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
