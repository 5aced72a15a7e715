package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tracetrip/pkg/version"
)

// NewServer creates and configures the HTTP server.
// Handlers for optional subsystems may be nil; their routes are then not registered.
func NewServer(addr string, trackingH *TrackingHandler, geofenceH *GeofenceHandler, navH *NavHandler, stats *StatsHandler, stream *StreamHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	mux.HandleFunc("POST /api/tracking/start", trackingH.HandleStart)
	mux.HandleFunc("POST /api/tracking/stop", trackingH.HandleStop)
	mux.HandleFunc("GET /api/tracking/status", trackingH.HandleStatus)
	mux.HandleFunc("GET /api/tracking/stats", trackingH.HandleStats)
	mux.HandleFunc("GET /api/position", trackingH.HandlePosition)

	if geofenceH != nil {
		mux.HandleFunc("GET /api/geofence/regions", geofenceH.HandleList)
		mux.HandleFunc("POST /api/geofence/regions", geofenceH.HandleAdd)
		mux.HandleFunc("DELETE /api/geofence/regions/{id}", geofenceH.HandleRemove)
		mux.HandleFunc("GET /api/arrivals", geofenceH.HandleArrivals)
	}

	if navH != nil {
		mux.HandleFunc("POST /api/nav/start", navH.HandleStart)
		mux.HandleFunc("POST /api/nav/stop", navH.HandleStop)
		mux.HandleFunc("POST /api/nav/advance", navH.HandleAdvance)
		mux.HandleFunc("GET /api/nav/status", navH.HandleStatus)
	}

	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	if stream != nil {
		mux.HandleFunc("GET /api/stream", stream.HandleStream)
	}

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Shut down from a goroutine so the response can flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
