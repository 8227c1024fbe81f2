package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/service"
)

type SyncHandler struct {
	svc *service.SyncService
}

func NewSyncHandler(svc *service.SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

type syncRequest struct {
	Platforms []string `json:"platforms"`
	Budget    int      `json:"budget"`
}

func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.svc.SyncAll(r.Context(), req.Platforms, req.Budget)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	if results == nil {
		results = []domain.SyncResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": h.svc.Platforms(),
		"last":      h.svc.LastResults(),
	})
}
