package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/oagw/gateway/ports"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	repo ports.Repository
}

// NewHealthHandler builds a HealthHandler backed by repo for readiness checks.
func NewHealthHandler(repo ports.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Liveness reports whether the process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness reports whether the backing repository is reachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, _, err := h.repo.ListUpstreams(ctx, "__health__", ports.ListOptions{Top: 1}); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
