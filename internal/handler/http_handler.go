package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lumenchat/chatd/internal/history"
	"github.com/lumenchat/chatd/internal/presence"
	"github.com/lumenchat/chatd/internal/store"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HTTPHandler exposes a small REST surface next to the websocket endpoint:
// health, live stats and read-only history pagination.
type HTTPHandler struct {
	registry *presence.Registry
	store    *store.Store
	history  *history.Service
}

func NewHTTPHandler(registry *presence.Registry, msgStore *store.Store, historySvc *history.Service) *HTTPHandler {
	return &HTTPHandler{
		registry: registry,
		store:    msgStore,
		history:  historySvc,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/history", h.handleHistory).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data: map[string]interface{}{
			"online":   h.registry.Count(),
			"messages": h.store.Len(),
		},
	})
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "invalid limit"})
			return
		}
		limit = n
	}

	if raw := q.Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "invalid before cursor"})
			return
		}
		msgs, hasMore := h.history.Before(before, limit)
		writeJSON(w, http.StatusOK, apiResponse{
			Success: true,
			Data:    map[string]interface{}{"messages": msgs, "has_more": hasMore},
		})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]interface{}{"messages": h.history.Initial()},
	})
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
