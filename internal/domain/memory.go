package domain

import (
	"time"

	"github.com/google/uuid"
)

type RecordKind string

const (
	RecordConversation RecordKind = "conversation"
	RecordNote         RecordKind = "note"
	RecordImported     RecordKind = "imported"
)

func ValidRecordKind(k string) bool {
	switch RecordKind(k) {
	case RecordConversation, RecordNote, RecordImported:
		return true
	}
	return false
}

// MemoryRecord is one timestamped fact in an agent's branch. Records are
// append-only and never edited after creation.
type MemoryRecord struct {
	ID        uuid.UUID  `json:"id"`
	AgentID   uuid.UUID  `json:"agent_id"`
	Kind      RecordKind `json:"kind"`
	Request   string     `json:"request,omitempty"`
	Response  string     `json:"response,omitempty"`
	Context   string     `json:"context,omitempty"`
	Important bool       `json:"important,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// MemoryBranch is the per-agent log header. Exactly one branch exists per
// live agent; it is created and destroyed with the agent.
type MemoryBranch struct {
	AgentID           uuid.UUID `json:"agent_id"`
	AgentName         string    `json:"agent_name"`
	RecordCount       int       `json:"record_count"`
	ConversationCount int       `json:"conversation_count"`
	CreatedAt         time.Time `json:"created_at"`
	LastAccessedAt    time.Time `json:"last_accessed_at"`
}

// Importance tags for shared-pool entries, recording why a record was
// promoted.
const (
	ImportanceSignificant = "significant"
	ImportanceFlagged     = "important"
)

// SharedMemoryEntry is a promoted copy of a branch record, visible to
// every agent. The original stays in the owning branch.
type SharedMemoryEntry struct {
	ID              uuid.UUID `json:"id"`
	SourceAgentID   uuid.UUID `json:"source_agent_id"`
	SourceAgentName string    `json:"source_agent_name"`
	SourceRecordID  uuid.UUID `json:"source_record_id"`
	Content         string    `json:"content"`
	Importance      string    `json:"importance"`
	CreatedAt       time.Time `json:"created_at"`
}

// SharedMemoryHit pairs an entry with its relevance score for a query.
type SharedMemoryHit struct {
	SharedMemoryEntry
	Score int `json:"score"`
}
