package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tracetrip/pkg/model"
	"tracetrip/pkg/position"
	"tracetrip/pkg/tracking"
)

// TrackingHandler exposes the tracking orchestrator over HTTP.
type TrackingHandler struct {
	orch   *tracking.Orchestrator
	source position.Source
}

func NewTrackingHandler(orch *tracking.Orchestrator, source position.Source) *TrackingHandler {
	return &TrackingHandler{orch: orch, source: source}
}

// TrackingStatus is the status/start/stop response body.
type TrackingStatus struct {
	Enabled bool               `json:"enabled"`
	Queue   model.OfflineStats `json:"queue"`
}

// HandleStart enables tracking.
// POST /api/tracking/start
func (h *TrackingHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Start(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, position.ErrPermissionDenied) {
			status = http.StatusForbidden
		} else if errors.Is(err, position.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	h.writeStatus(w, r)
}

// HandleStop disables tracking. Buffered samples survive.
// POST /api/tracking/stop
func (h *TrackingHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.orch.Stop(r.Context())
	h.writeStatus(w, r)
}

// HandleStatus returns the tracking state and queue counters.
// GET /api/tracking/status
func (h *TrackingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, r)
}

func (h *TrackingHandler) writeStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.OfflineStats(r.Context())
	if err != nil {
		slog.Warn("Queue counters unavailable", "error", err)
	}
	writeJSON(w, TrackingStatus{
		Enabled: h.orch.Enabled(),
		Queue:   stats,
	})
}

// HandleStats returns the queue counters on their own. Counter reads
// never fail the request; a broken queue reports zeros.
// GET /api/tracking/stats
func (h *TrackingHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.OfflineStats(r.Context())
	if err != nil {
		slog.Warn("Queue counters unavailable", "error", err)
	}
	writeJSON(w, stats)
}

// HandlePosition returns the last known fix.
// GET /api/position
func (h *TrackingHandler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	fix, ok := h.source.LastKnown()
	if !ok {
		writeError(w, http.StatusNotFound, position.ErrUnavailable)
		return
	}
	writeJSON(w, fix)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
