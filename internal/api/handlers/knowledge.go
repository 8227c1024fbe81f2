package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/knowledge"
)

type KnowledgeHandler struct {
	searcher *knowledge.Searcher
}

func NewKnowledgeHandler(searcher *knowledge.Searcher) *KnowledgeHandler {
	return &KnowledgeHandler{searcher: searcher}
}

type addDocumentRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *KnowledgeHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	chunks, err := h.searcher.AddDocument(r.Context(), req.Type, req.Title, req.Content)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to add document")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"chunks": chunks})
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	hits, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, knowledge.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []domain.KnowledgeHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}
