package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"go.uber.org/zap"
)

const (
	contextConversationLimit = 5
	contextSharedLimit       = 3
	contextKnowledgeLimit    = 3
)

// ContextService assembles the augmentation string injected ahead of a
// user query: recent conversation history, then relevant shared memory,
// then knowledge-base passages. Empty sections are omitted entirely; a
// failing knowledge base degrades the context instead of failing the
// query.
type ContextService struct {
	memory    *MemoryService
	knowledge domain.KnowledgeSearcher
	logger    *zap.Logger
}

func NewContextService(memory *MemoryService, knowledge domain.KnowledgeSearcher, logger *zap.Logger) *ContextService {
	return &ContextService{memory: memory, knowledge: knowledge, logger: logger}
}

// Assemble builds the context block for one query. The returned string
// is empty when no source has anything to contribute.
func (s *ContextService) Assemble(ctx context.Context, agentID uuid.UUID, query string) (string, error) {
	var sections []string

	if sec := s.conversationSection(ctx, agentID); sec != "" {
		sections = append(sections, sec)
	}
	if sec := s.sharedSection(ctx, query); sec != "" {
		sections = append(sections, sec)
	}
	if sec := s.knowledgeSection(ctx, query); sec != "" {
		sections = append(sections, sec)
	}

	return strings.Join(sections, "\n\n"), nil
}

func (s *ContextService) conversationSection(ctx context.Context, agentID uuid.UUID) string {
	records, err := s.memory.Recent(ctx, agentID, 25)
	if err != nil {
		s.logger.Warn("context: branch read failed", zap.String("agent_id", agentID.String()), zap.Error(err))
		return ""
	}

	var convos []domain.MemoryRecord
	for _, r := range records {
		if r.Kind == domain.RecordConversation {
			convos = append(convos, r)
		}
	}
	if len(convos) == 0 {
		return ""
	}
	if len(convos) > contextConversationLimit {
		convos = convos[len(convos)-contextConversationLimit:]
	}

	var sb strings.Builder
	sb.WriteString("Recent conversation history:")
	for _, r := range convos {
		fmt.Fprintf(&sb, "\nUser: %s\nAssistant: %s", r.Request, r.Response)
	}
	return sb.String()
}

func (s *ContextService) sharedSection(ctx context.Context, query string) string {
	hits, err := s.memory.SearchShared(ctx, query, contextSharedLimit)
	if err != nil || len(hits) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Shared knowledge from other agents:")
	for _, h := range hits {
		name := h.SourceAgentName
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(&sb, "\n- [%s] %s", name, h.Content)
	}
	return sb.String()
}

func (s *ContextService) knowledgeSection(ctx context.Context, query string) string {
	if s.knowledge == nil {
		return ""
	}

	hits, err := s.knowledge.Search(ctx, query, contextKnowledgeLimit)
	if err != nil {
		s.logger.Debug("context: knowledge base unavailable", zap.Error(err))
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant knowledge base entries:")
	for _, h := range hits {
		fmt.Fprintf(&sb, "\n- %s: %s", h.Title, h.Content)
	}
	return sb.String()
}
