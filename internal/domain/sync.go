package domain

import "time"

// MemorySnapshot is a consolidated view of the system's memory, prepared
// for export to an external platform.
type MemorySnapshot struct {
	VerifiedFacts         []string          `json:"verified_facts,omitempty"`
	ConversationSummaries []string          `json:"conversation_summaries,omitempty"`
	KeyInsights           []string          `json:"key_insights,omitempty"`
	AgentPreferences      map[string]string `json:"agent_preferences,omitempty"`
}

type SyncMethod string

const (
	SyncMethodBrowser SyncMethod = "browser"
	SyncMethodAPI     SyncMethod = "api"
)

type SyncStatus string

const (
	SyncStatusOK    SyncStatus = "ok"
	SyncStatusError SyncStatus = "error"
)

// SyncResult records the outcome of one platform dispatch. Dispatch never
// fails hard; transport errors land in Status/Error.
type SyncResult struct {
	Platform  string     `json:"platform"`
	Status    SyncStatus `json:"status"`
	Method    SyncMethod `json:"method"`
	Bytes     int        `json:"bytes"`
	Timestamp time.Time  `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
}
