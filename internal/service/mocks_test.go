package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/store"
)

// mockAgentStore implements domain.AgentStore for testing.
type mockAgentStore struct {
	agents map[uuid.UUID]*domain.Agent
	order  []uuid.UUID
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: make(map[uuid.UUID]*domain.Agent)}
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	for _, existing := range m.agents {
		if existing.Name == a.Name {
			return store.ErrConflict
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.agents[a.ID] = a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockAgentStore) List(ctx context.Context) ([]domain.Agent, error) {
	out := make([]domain.Agent, 0, len(m.order))
	for _, id := range m.order {
		if a, ok := m.agents[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.agents[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

func (m *mockAgentStore) UpdateCounters(ctx context.Context, id uuid.UUID, queryCount, totalTokens int64, avgLatencyMs float64) error {
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.QueryCount = queryCount
	a.TotalTokens = totalTokens
	a.AvgLatencyMs = avgLatencyMs
	return nil
}

func (m *mockAgentStore) Count(ctx context.Context) (int, error) {
	return len(m.agents), nil
}

// mockBranchStore implements domain.BranchStore for testing.
type mockBranchStore struct {
	branches map[uuid.UUID]*domain.MemoryBranch
	records  map[uuid.UUID][]domain.MemoryRecord
}

func newMockBranchStore() *mockBranchStore {
	return &mockBranchStore{
		branches: make(map[uuid.UUID]*domain.MemoryBranch),
		records:  make(map[uuid.UUID][]domain.MemoryRecord),
	}
}

func (m *mockBranchStore) Create(ctx context.Context, b *domain.MemoryBranch) error {
	if _, ok := m.branches[b.AgentID]; ok {
		return store.ErrConflict
	}
	b.CreatedAt = time.Now()
	b.LastAccessedAt = b.CreatedAt
	m.branches[b.AgentID] = b
	return nil
}

func (m *mockBranchStore) Get(ctx context.Context, agentID uuid.UUID) (*domain.MemoryBranch, error) {
	b, ok := m.branches[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *mockBranchStore) List(ctx context.Context) ([]domain.MemoryBranch, error) {
	out := make([]domain.MemoryBranch, 0, len(m.branches))
	for _, b := range m.branches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockBranchStore) Delete(ctx context.Context, agentID uuid.UUID) error {
	delete(m.branches, agentID)
	delete(m.records, agentID)
	return nil
}

func (m *mockBranchStore) Append(ctx context.Context, r *domain.MemoryRecord) error {
	b, ok := m.branches[r.AgentID]
	if !ok {
		return store.ErrNotFound
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	m.records[r.AgentID] = append(m.records[r.AgentID], *r)
	b.RecordCount++
	if r.Kind == domain.RecordConversation {
		b.ConversationCount++
	}
	b.LastAccessedAt = time.Now()
	return nil
}

func (m *mockBranchStore) Recent(ctx context.Context, agentID uuid.UUID, n int) ([]domain.MemoryRecord, error) {
	if _, ok := m.branches[agentID]; !ok {
		return nil, store.ErrNotFound
	}
	records := m.records[agentID]
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	out := make([]domain.MemoryRecord, len(records))
	copy(out, records)
	return out, nil
}

func (m *mockBranchStore) ListRecords(ctx context.Context, agentID uuid.UUID) ([]domain.MemoryRecord, error) {
	out := make([]domain.MemoryRecord, len(m.records[agentID]))
	copy(out, m.records[agentID])
	return out, nil
}

func (m *mockBranchStore) RecentConversations(ctx context.Context, limit int) ([]domain.MemoryRecord, error) {
	var all []domain.MemoryRecord
	for _, records := range m.records {
		for _, r := range records {
			if r.Kind == domain.RecordConversation {
				all = append(all, r)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *mockBranchStore) Count(ctx context.Context) (int, error) {
	return len(m.branches), nil
}

// mockSharedStore implements domain.SharedMemoryStore for testing.
type mockSharedStore struct {
	entries []domain.SharedMemoryEntry
}

func newMockSharedStore() *mockSharedStore {
	return &mockSharedStore{}
}

func (m *mockSharedStore) Append(ctx context.Context, e *domain.SharedMemoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockSharedStore) List(ctx context.Context, limit int) ([]domain.SharedMemoryEntry, error) {
	out := make([]domain.SharedMemoryEntry, len(m.entries))
	copy(out, m.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSharedStore) DeleteBySourceAgent(ctx context.Context, agentID uuid.UUID) error {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.SourceAgentID != agentID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *mockSharedStore) Count(ctx context.Context) (int, error) {
	return len(m.entries), nil
}

// mockLedgerStore implements domain.LedgerStore for testing. Guarded by
// a mutex so concurrent verification tests are race-clean.
type mockLedgerStore struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
	puts    int
}

func newMockLedgerStore() *mockLedgerStore {
	return &mockLedgerStore{records: make(map[string]*domain.VerificationRecord)}
}

func (m *mockLedgerStore) Get(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockLedgerStore) Put(ctx context.Context, r *domain.VerificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	copied := *r
	m.records[r.ID] = &copied
	return nil
}

func (m *mockLedgerStore) List(ctx context.Context, limit int) ([]domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.VerificationRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockLedgerStore) ListStale(ctx context.Context, before time.Time) ([]domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VerificationRecord
	for _, r := range m.records {
		if !r.Status.Terminal() && r.StartedAt.Before(before) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockLedgerStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// mockKnowledge implements domain.KnowledgeSearcher for testing.
type mockKnowledge struct {
	hits []domain.KnowledgeHit
	err  error
}

func (m *mockKnowledge) Search(ctx context.Context, query string, limit int) ([]domain.KnowledgeHit, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.hits) > limit {
		return m.hits[:limit], nil
	}
	return m.hits, nil
}

// mockPeers implements PeerOpinionSource for testing.
type mockPeers struct {
	items []domain.EvidenceItem
	err   error
	calls int
}

func (m *mockPeers) Consult(ctx context.Context, claim string) ([]domain.EvidenceItem, error) {
	m.calls++
	return m.items, m.err
}

// stubSource is a fixed-output evidence source for testing.
type stubSource struct {
	name string
	item *domain.EvidenceItem
	err  error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Gather(ctx context.Context, claim string) (*domain.EvidenceItem, error) {
	return s.item, s.err
}
