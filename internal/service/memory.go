package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/store"
	"go.uber.org/zap"
)

var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrDuplicateBranch = errors.New("memory branch already exists for agent")
	ErrInvalidKind     = errors.New("invalid record kind")
	ErrEmptyRecord     = errors.New("record content is required")
	ErrQueryEmpty      = errors.New("query is required")
)

const (
	// DefaultShareThreshold is the combined request+response length a
	// conversation record must exceed to be promoted to shared memory.
	DefaultShareThreshold = 100
	// minSearchTokenLen is the shortest query token that participates in
	// shared-memory and ledger scoring.
	minSearchTokenLen = 4
)

// MemoryService owns per-agent memory branches and the cross-agent
// shared pool. Writes are strict (typed errors on structural misuse),
// reads are lenient (absence of memory is a normal condition).
type MemoryService struct {
	branches       domain.BranchStore
	shared         domain.SharedMemoryStore
	shareThreshold int
	logger         *zap.Logger
}

func NewMemoryService(branches domain.BranchStore, shared domain.SharedMemoryStore, shareThreshold int, logger *zap.Logger) *MemoryService {
	if shareThreshold <= 0 {
		shareThreshold = DefaultShareThreshold
	}
	return &MemoryService{
		branches:       branches,
		shared:         shared,
		shareThreshold: shareThreshold,
		logger:         logger,
	}
}

func (s *MemoryService) CreateBranch(ctx context.Context, agentID uuid.UUID, agentName string) (*domain.MemoryBranch, error) {
	if agentID == uuid.Nil {
		return nil, ErrUnknownAgent
	}
	b := &domain.MemoryBranch{AgentID: agentID, AgentName: agentName}
	if err := s.branches.Create(ctx, b); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDuplicateBranch
		}
		return nil, err
	}
	return b, nil
}

// DeleteBranch removes the branch, its records, and every shared-pool
// entry promoted from it. Absent branch is a no-op.
func (s *MemoryService) DeleteBranch(ctx context.Context, agentID uuid.UUID) error {
	if err := s.branches.Delete(ctx, agentID); err != nil {
		return err
	}
	return s.shared.DeleteBySourceAgent(ctx, agentID)
}

func (s *MemoryService) GetBranch(ctx context.Context, agentID uuid.UUID) (*domain.MemoryBranch, error) {
	b, err := s.branches.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownAgent
		}
		return nil, err
	}
	return b, nil
}

// Append stores a record on the owning branch and evaluates the
// significance predicate. Promotion copies the record into the shared
// pool; the original stays put.
func (s *MemoryService) Append(ctx context.Context, r *domain.MemoryRecord) error {
	if r.AgentID == uuid.Nil {
		return ErrUnknownAgent
	}
	if r.Kind == "" {
		r.Kind = domain.RecordConversation
	}
	if !domain.ValidRecordKind(string(r.Kind)) {
		return ErrInvalidKind
	}
	if r.Request == "" && r.Response == "" {
		return ErrEmptyRecord
	}

	if err := s.branches.Append(ctx, r); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownAgent
		}
		return err
	}

	if tag, ok := s.significance(r); ok {
		s.promote(ctx, r, tag)
	}
	return nil
}

// significance decides whether a record enters the shared pool and with
// which importance tag. Length is counted in runes so multibyte text
// promotes at the same point as ASCII; the threshold is exclusive:
// exactly threshold characters does not promote.
func (s *MemoryService) significance(r *domain.MemoryRecord) (string, bool) {
	if r.Important {
		return domain.ImportanceFlagged, true
	}
	if r.Kind != domain.RecordConversation {
		return "", false
	}
	if utf8.RuneCountInString(r.Request)+utf8.RuneCountInString(r.Response) > s.shareThreshold {
		return domain.ImportanceSignificant, true
	}
	return "", false
}

func (s *MemoryService) promote(ctx context.Context, r *domain.MemoryRecord, tag string) {
	agentName := ""
	if b, err := s.branches.Get(ctx, r.AgentID); err == nil {
		agentName = b.AgentName
	}

	entry := &domain.SharedMemoryEntry{
		SourceAgentID:   r.AgentID,
		SourceAgentName: agentName,
		SourceRecordID:  r.ID,
		Content:         renderRecord(r),
		Importance:      tag,
	}
	if err := s.shared.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to promote record to shared memory",
			zap.String("record_id", r.ID.String()),
			zap.Error(err))
	}
}

// Recent returns the last n records in insertion order. A missing branch
// yields an empty result, not an error.
func (s *MemoryService) Recent(ctx context.Context, agentID uuid.UUID, n int) ([]domain.MemoryRecord, error) {
	records, err := s.branches.Recent(ctx, agentID, n)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// SearchShared scores every pool entry by counting case-insensitive
// occurrences of each query token (tokens shorter than 4 characters are
// ignored). Zero-score entries are excluded; ties break by recency.
func (s *MemoryService) SearchShared(ctx context.Context, query string, limit int) ([]domain.SharedMemoryHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryEmpty
	}
	if limit <= 0 {
		limit = 5
	}

	tokens := searchTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	entries, err := s.shared.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	var hits []domain.SharedMemoryHit
	for _, e := range entries {
		haystack := strings.ToLower(e.Content + " " + e.SourceAgentName + " " + e.Importance)
		score := 0
		for _, tok := range tokens {
			score += strings.Count(haystack, tok)
		}
		if score == 0 {
			continue
		}
		hits = append(hits, domain.SharedMemoryHit{SharedMemoryEntry: e, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// BranchExport is one branch with its full record log.
type BranchExport struct {
	AgentID   uuid.UUID             `json:"agent_id"`
	AgentName string                `json:"agent_name"`
	Records   []domain.MemoryRecord `json:"records"`
}

// MemoryExport is a bulk dump of every branch.
type MemoryExport struct {
	Branches []BranchExport `json:"branches"`
}

func (s *MemoryService) ExportAll(ctx context.Context) (*MemoryExport, error) {
	branches, err := s.branches.List(ctx)
	if err != nil {
		return nil, err
	}

	export := &MemoryExport{}
	for _, b := range branches {
		records, err := s.branches.ListRecords(ctx, b.AgentID)
		if err != nil {
			return nil, err
		}
		export.Branches = append(export.Branches, BranchExport{
			AgentID:   b.AgentID,
			AgentName: b.AgentName,
			Records:   records,
		})
	}
	return export, nil
}

// ImportResult reports what a bulk restore did.
type ImportResult struct {
	BranchesCreated int `json:"branches_created"`
	RecordsImported int `json:"records_imported"`
	RecordsSkipped  int `json:"records_skipped"`
}

// ImportConversations restores an export, creating missing branches on
// demand. Records keep their kind and payload; ids and timestamps are
// reassigned on append.
func (s *MemoryService) ImportConversations(ctx context.Context, export *MemoryExport) (*ImportResult, error) {
	result := &ImportResult{}
	for _, be := range export.Branches {
		if _, err := s.CreateBranch(ctx, be.AgentID, be.AgentName); err == nil {
			result.BranchesCreated++
		} else if !errors.Is(err, ErrDuplicateBranch) {
			return result, err
		}

		for _, r := range be.Records {
			record := &domain.MemoryRecord{
				AgentID:   be.AgentID,
				Kind:      r.Kind,
				Request:   r.Request,
				Response:  r.Response,
				Context:   r.Context,
				Important: r.Important,
			}
			if err := s.Append(ctx, record); err != nil {
				s.logger.Warn("skipped record during import",
					zap.String("agent_id", be.AgentID.String()),
					zap.Error(err))
				result.RecordsSkipped++
				continue
			}
			result.RecordsImported++
		}
	}
	return result, nil
}

// Counts returns branch and shared-pool sizes for the stats snapshot.
func (s *MemoryService) Counts(ctx context.Context) (branches, sharedEntries int, err error) {
	branches, err = s.branches.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	sharedEntries, err = s.shared.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return branches, sharedEntries, nil
}

func renderRecord(r *domain.MemoryRecord) string {
	switch r.Kind {
	case domain.RecordConversation:
		return fmt.Sprintf("Q: %s\nA: %s", r.Request, r.Response)
	default:
		if r.Response != "" {
			return r.Response
		}
		return r.Request
	}
}

// searchTokens lowercases and splits a query, dropping tokens shorter
// than the minimum scoring length.
func searchTokens(query string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if len(tok) >= minSearchTokenLen {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
