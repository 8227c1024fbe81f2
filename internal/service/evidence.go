package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/meneportal/veritas/internal/domain"
)

// EvidenceSource is one contributor to a claim verification. A source
// may decline (nil item, nil error) when it has nothing relevant to say.
type EvidenceSource interface {
	Name() string
	Gather(ctx context.Context, claim string) (*domain.EvidenceItem, error)
}

const (
	historicalConfidenceCap = 0.8
	memoryConfidenceCap     = 0.9
	historicalScanLimit     = 100
	memoryScanLimit         = 200
)

// overlapFraction is the share of claim tokens that appear in the
// corpus text. Both sides are lowercased; short tokens are ignored.
func overlapFraction(claim, corpus string) float64 {
	tokens := searchTokens(claim)
	if len(tokens) == 0 {
		return 0
	}
	corpus = strings.ToLower(corpus)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(corpus, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// historicalSource checks the claim against recent conversation records
// across every agent branch.
type historicalSource struct {
	branches domain.BranchStore
}

func NewHistoricalSource(branches domain.BranchStore) EvidenceSource {
	return &historicalSource{branches: branches}
}

func (s *historicalSource) Name() string { return "conversation_history" }

func (s *historicalSource) Gather(ctx context.Context, claim string) (*domain.EvidenceItem, error) {
	records, err := s.branches.RecentConversations(ctx, historicalScanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan conversation history: %w", err)
	}

	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(r.Request)
		sb.WriteString(" ")
		sb.WriteString(r.Response)
		sb.WriteString(" ")
	}

	fraction := overlapFraction(claim, sb.String())
	if fraction == 0 {
		return nil, nil
	}

	confidence := fraction
	if confidence > historicalConfidenceCap {
		confidence = historicalConfidenceCap
	}
	return &domain.EvidenceItem{
		Source:     s.Name(),
		Type:       domain.EvidenceHistoricalReference,
		Summary:    fmt.Sprintf("claim terms found in recent conversations (overlap %.2f)", fraction),
		Confidence: confidence,
	}, nil
}

// memorySource checks the claim against the shared memory pool.
type memorySource struct {
	shared domain.SharedMemoryStore
}

func NewMemorySource(shared domain.SharedMemoryStore) EvidenceSource {
	return &memorySource{shared: shared}
}

func (s *memorySource) Name() string { return "shared_memory" }

func (s *memorySource) Gather(ctx context.Context, claim string) (*domain.EvidenceItem, error) {
	entries, err := s.shared.List(ctx, memoryScanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan shared memory: %w", err)
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Content)
		sb.WriteString(" ")
	}

	fraction := overlapFraction(claim, sb.String())
	if fraction == 0 {
		return nil, nil
	}

	confidence := fraction
	if confidence > memoryConfidenceCap {
		confidence = memoryConfidenceCap
	}
	return &domain.EvidenceItem{
		Source:     s.Name(),
		Type:       domain.EvidenceMemoryReference,
		Summary:    fmt.Sprintf("claim terms found in shared memory (overlap %.2f)", fraction),
		Confidence: confidence,
	}, nil
}

// browserSource fact-checks a claim against live web search results. It
// is the expensive last resort and only consulted when the cheaper
// sources leave the running confidence below the medium threshold.
type browserSource struct {
	executor domain.AutomationExecutor
}

func NewBrowserSource(executor domain.AutomationExecutor) EvidenceSource {
	return &browserSource{executor: executor}
}

func (s *browserSource) Name() string { return "browser_factcheck" }

func (s *browserSource) Gather(ctx context.Context, claim string) (*domain.EvidenceItem, error) {
	const session = "verification"

	searchURL := "https://duckduckgo.com/html/?q=" + url.QueryEscape(claim)
	if res := s.executor.Navigate(ctx, session, searchURL); !res.OK() {
		return nil, fmt.Errorf("navigate search: %s", res.Error)
	}

	res := s.executor.Extract(ctx, session, ".result__snippet")
	if !res.OK() {
		return nil, fmt.Errorf("extract snippets: %s", res.Error)
	}

	var snippets []string
	switch v := res.Data["data"].(type) {
	case []string:
		snippets = v
	case []any:
		for _, item := range v {
			if t, ok := item.(string); ok {
				snippets = append(snippets, t)
			}
		}
	}
	if len(snippets) == 0 {
		return nil, nil
	}
	if len(snippets) > 5 {
		snippets = snippets[:5]
	}

	corpus := strings.Join(snippets, " ")
	fraction := overlapFraction(claim, corpus)
	if fraction == 0 {
		return nil, nil
	}

	return &domain.EvidenceItem{
		Source:     s.Name(),
		Type:       domain.EvidenceBrowserVerification,
		Summary:    fmt.Sprintf("web search snippets mention claim terms (overlap %.2f)", fraction),
		Confidence: fraction,
	}, nil
}
