package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/service"
)

type MemoryHandler struct {
	svc *service.MemoryService
}

func NewMemoryHandler(svc *service.MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

func (h *MemoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.svc.Recent(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read memory")
		return
	}
	if records == nil {
		records = []domain.MemoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type appendRecordRequest struct {
	Kind      string `json:"kind"`
	Request   string `json:"request"`
	Response  string `json:"response"`
	Context   string `json:"context"`
	Important bool   `json:"important"`
}

func (h *MemoryHandler) Append(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req appendRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record := &domain.MemoryRecord{
		AgentID:   id,
		Kind:      domain.RecordKind(req.Kind),
		Request:   req.Request,
		Response:  req.Response,
		Context:   req.Context,
		Important: req.Important,
	}

	if err := h.svc.Append(r.Context(), record); err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownAgent):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrEmptyRecord):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to append record")
		}
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *MemoryHandler) SearchShared(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	hits, err := h.svc.SearchShared(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, service.ErrQueryEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []domain.SharedMemoryHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *MemoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.svc.ExportAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *MemoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	var export service.MemoryExport
	if err := json.NewDecoder(r.Body).Decode(&export); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.ImportConversations(r.Context(), &export)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
