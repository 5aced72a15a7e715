package api

import (
	"encoding/json"
	"net/http"

	"tracetrip/pkg/model"
	"tracetrip/pkg/nav"
)

// NavHandler exposes route navigation over HTTP.
type NavHandler struct {
	nav *nav.Navigator
}

// NewNavHandler creates the handler. Returns nil without a navigator.
func NewNavHandler(n *nav.Navigator) *NavHandler {
	if n == nil {
		return nil
	}
	return &NavHandler{nav: n}
}

// NavStatus is the nav status/advance response body.
type NavStatus struct {
	Active   bool            `json:"active"`
	Waypoint *model.Waypoint `json:"waypoint,omitempty"`
}

// HandleStart begins navigating the posted waypoints.
// POST /api/nav/start
func (h *NavHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Waypoints []model.Waypoint `json:"waypoints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.nav.Start(body.Waypoints); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeStatus(w)
}

// HandleStop ends navigation.
// POST /api/nav/stop
func (h *NavHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.nav.Stop()
	h.writeStatus(w)
}

// HandleAdvance moves to the next waypoint. Advancing past the last one
// ends the route, mirrored by active=false in the response.
// POST /api/nav/advance
func (h *NavHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	h.nav.Advance()
	h.writeStatus(w)
}

// HandleStatus returns the active waypoint.
// GET /api/nav/status
func (h *NavHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

func (h *NavHandler) writeStatus(w http.ResponseWriter) {
	status := NavStatus{Active: h.nav.Active()}
	if wp, ok := h.nav.Current(); ok {
		status.Waypoint = &wp
	}
	writeJSON(w, status)
}
