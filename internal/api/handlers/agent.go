package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meneportal/veritas/internal/domain"
	"github.com/meneportal/veritas/internal/service"
)

type AgentHandler struct {
	svc *service.CoordinatorService
}

func NewAgentHandler(svc *service.CoordinatorService) *AgentHandler {
	return &AgentHandler{svc: svc}
}

type createAgentRequest struct {
	Name         string  `json:"name"`
	Provider     string  `json:"provider"`
	SystemPrompt string  `json:"system_prompt"`
	Model        string  `json:"model"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent := &domain.Agent{
		Name:         req.Name,
		Provider:     req.Provider,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}

	if err := h.svc.CreateAgent(r.Context(), agent); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAgent), errors.Is(err, service.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrDuplicateAgent), errors.Is(err, service.ErrDuplicateBranch):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create agent")
		}
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := h.svc.GetAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.ListAgents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	if err := h.svc.DeleteAgent(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Message        string `json:"message"`
	IncludeContext *bool  `json:"include_context"`
}

func (h *AgentHandler) Query(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Context injection defaults on; callers opt out explicitly.
	includeContext := req.IncludeContext == nil || *req.IncludeContext

	result, err := h.svc.Query(r.Context(), id, req.Message, service.QueryOpts{IncludeContext: includeContext})
	if err != nil {
		var upstream *domain.UpstreamError
		switch {
		case errors.Is(err, service.ErrUnknownAgent):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrQueryEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &upstream):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "query failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type broadcastRequest struct {
	Message        string `json:"message"`
	IncludeContext *bool  `json:"include_context"`
}

func (h *AgentHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	includeContext := req.IncludeContext == nil || *req.IncludeContext

	results, err := h.svc.Broadcast(r.Context(), req.Message, service.QueryOpts{IncludeContext: includeContext})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQueryEmpty):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNoAgents):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "broadcast failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
