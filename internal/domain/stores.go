package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	List(ctx context.Context) ([]Agent, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateCounters(ctx context.Context, id uuid.UUID, queryCount, totalTokens int64, avgLatencyMs float64) error
	Count(ctx context.Context) (int, error)
}

type BranchStore interface {
	Create(ctx context.Context, b *MemoryBranch) error
	Get(ctx context.Context, agentID uuid.UUID) (*MemoryBranch, error)
	List(ctx context.Context) ([]MemoryBranch, error)
	// Delete removes the branch and all its records. Absent branch is not
	// an error.
	Delete(ctx context.Context, agentID uuid.UUID) error
	// Append stores the record and updates branch counters and the
	// last-accessed timestamp in one statement batch.
	Append(ctx context.Context, r *MemoryRecord) error
	// Recent returns the last n records in insertion order.
	Recent(ctx context.Context, agentID uuid.UUID, n int) ([]MemoryRecord, error)
	ListRecords(ctx context.Context, agentID uuid.UUID) ([]MemoryRecord, error)
	// RecentConversations returns the newest conversation records across
	// all branches, newest first.
	RecentConversations(ctx context.Context, limit int) ([]MemoryRecord, error)
	Count(ctx context.Context) (int, error)
}

type SharedMemoryStore interface {
	Append(ctx context.Context, e *SharedMemoryEntry) error
	// List returns entries newest first, capped at limit (0 = all).
	List(ctx context.Context, limit int) ([]SharedMemoryEntry, error)
	DeleteBySourceAgent(ctx context.Context, agentID uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type LedgerStore interface {
	Get(ctx context.Context, id string) (*VerificationRecord, error)
	// Put upserts the record; it is the only write path for the ledger.
	Put(ctx context.Context, r *VerificationRecord) error
	List(ctx context.Context, limit int) ([]VerificationRecord, error)
	// ListStale returns non-terminal records started before the cutoff.
	ListStale(ctx context.Context, before time.Time) ([]VerificationRecord, error)
	Count(ctx context.Context) (int, error)
}
