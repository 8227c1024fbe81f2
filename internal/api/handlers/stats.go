package handlers

import (
	"net/http"

	"github.com/meneportal/veritas/internal/service"
	"go.uber.org/zap"
)

type StatsHandler struct {
	coordinator *service.CoordinatorService
	memory      *service.MemoryService
	verifier    *service.VerificationService
	syncSvc     *service.SyncService
	logger      *zap.Logger
}

func NewStatsHandler(coordinator *service.CoordinatorService, memory *service.MemoryService, verifier *service.VerificationService, syncSvc *service.SyncService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		coordinator: coordinator,
		memory:      memory,
		verifier:    verifier,
		syncSvc:     syncSvc,
		logger:      logger,
	}
}

// Stats reports top-level system counts plus per-agent usage counters.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentCount, err := h.coordinator.AgentCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	branches, sharedEntries, err := h.memory.Counts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	ledgerCount, err := h.verifier.LedgerCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	agents, err := h.coordinator.ListAgents(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	usage := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		usage = append(usage, map[string]any{
			"agent_id":       a.ID,
			"name":           a.Name,
			"query_count":    a.QueryCount,
			"total_tokens":   a.TotalTokens,
			"avg_latency_ms": a.AvgLatencyMs,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents":         agentCount,
		"branches":       branches,
		"shared_entries": sharedEntries,
		"ledger_records": ledgerCount,
		"sync":           h.syncSvc.LastResults(),
		"usage":          usage,
	})
}
