package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tracetrip/pkg/geofence"
	"tracetrip/pkg/model"
	"tracetrip/pkg/store"
)

// GeofenceHandler exposes region management and arrival history.
type GeofenceHandler struct {
	monitor  *geofence.Monitor
	arrivals store.ArrivalStore
}

// NewGeofenceHandler creates the handler. Returns nil without a monitor.
func NewGeofenceHandler(monitor *geofence.Monitor, arrivals store.ArrivalStore) *GeofenceHandler {
	if monitor == nil {
		return nil
	}
	return &GeofenceHandler{monitor: monitor, arrivals: arrivals}
}

// HandleList returns the registered regions.
// GET /api/geofence/regions
func (h *GeofenceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	regions := h.monitor.Regions()
	if regions == nil {
		regions = []model.Region{}
	}
	writeJSON(w, regions)
}

// HandleAdd registers one region.
// POST /api/geofence/regions
func (h *GeofenceHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var region model.Region
	if err := json.NewDecoder(r.Body).Decode(&region); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stored, err := h.monitor.AddRegion(region)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, stored)
}

// HandleRemove unregisters a region.
// DELETE /api/geofence/regions/{id}
func (h *GeofenceHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.monitor.RemoveRegion(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// HandleArrivals returns recent arrival records, newest first.
// GET /api/arrivals?limit=N
func (h *GeofenceHandler) HandleArrivals(w http.ResponseWriter, r *http.Request) {
	if h.arrivals == nil {
		writeJSON(w, []model.Arrival{})
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	arrivals, err := h.arrivals.RecentArrivals(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if arrivals == nil {
		arrivals = []model.Arrival{}
	}
	writeJSON(w, arrivals)
}
