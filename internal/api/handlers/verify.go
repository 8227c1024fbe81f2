package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/meneportal/veritas/internal/service"
)

type VerifyHandler struct {
	svc *service.VerificationService
}

func NewVerifyHandler(svc *service.VerificationService) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

type verifyRequest struct {
	Claim   string            `json:"claim"`
	Context map[string]string `json:"context"`
}

func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.svc.Verify(r.Context(), req.Claim, req.Context)
	if err != nil {
		if errors.Is(err, service.ErrEmptyClaim) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *VerifyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrVerificationUnknown) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *VerifyHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	hits, err := h.svc.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, service.ErrQueryEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []service.LedgerSearchHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}
