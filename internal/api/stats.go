package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"tracetrip/pkg/model"
	"tracetrip/pkg/store"
	"tracetrip/pkg/tracker"
)

// StatsHandler serves runtime counters for the diagnostics view.
type StatsHandler struct {
	tracker *tracker.Tracker
	queue   *store.Queue
	started time.Time
}

func NewStatsHandler(t *tracker.Tracker, queue *store.Queue) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		queue:   queue,
		started: time.Now(),
	}
}

type StatsResponse struct {
	UptimeSeconds int64              `json:"uptime_seconds"`
	Counters      tracker.Snapshot   `json:"counters"`
	Queue         model.OfflineStats `json:"queue"`
	MemoryMB      uint64             `json:"memory_mb"`
	Goroutines    int                `json:"goroutines"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Counters:      h.tracker.Snapshot(),
		MemoryMB:      mem.Alloc / 1024 / 1024,
		Goroutines:    runtime.NumGoroutine(),
	}
	if h.queue != nil {
		if stats, err := h.queue.Counts(r.Context()); err == nil {
			resp.Queue = stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
