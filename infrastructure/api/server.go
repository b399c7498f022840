package api

import (
	"collab-realtime/errors"
	"collab-realtime/observability"
	"collab-realtime/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// NewMux exposes the socket endpoint next to the operational routes.
func NewMux(log *slog.Logger, socket http.Handler, presence services.IPresenceService,
	monitoring *observability.MonitoringManager) *http.ServeMux {
	h := handlers{log: log, presence: presence, monitoring: monitoring}
	mux := http.NewServeMux()
	mux.Handle("/ws", socket)
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /debug/stats", h.stats)
	mux.HandleFunc("GET /api/v1/presence/{userId}", h.presenceOf)
	return mux
}

type handlers struct {
	log        *slog.Logger
	presence   services.IPresenceService
	monitoring *observability.MonitoringManager
}

func (h handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.monitoring.GetLatest())
}

func (h handlers) presenceOf(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId is required"})
		return
	}
	presence, err := h.presence.Lookup(userID)
	switch {
	case errors.Is(err, errors.ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.log.Error("Presence lookup failed", "user_id", userID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		h.writeJSON(w, http.StatusOK, presence)
	}
}

func (h handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Unable to write response", "error", err)
	}
}
