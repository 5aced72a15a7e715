package model

import (
	"time"
)

// Sample represents one captured GPS fix, the atomic unit of the
// telemetry stream.
type Sample struct {
	ID        int64 `json:"id"` // Assigned by the store, stable once set

	// Coordinates
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Capture time, epoch milliseconds
	Timestamp int64 `json:"timestamp"`

	// Optional fix metadata
	Accuracy *float64 `json:"accuracy,omitempty"` // meters
	Altitude *float64 `json:"altitude,omitempty"` // meters
	Speed    *float64 `json:"speed,omitempty"`    // m/s
	Heading  *float64 `json:"heading,omitempty"`  // degrees true

	// Delivery state. Transitions false -> true only.
	Synced    bool      `json:"synced"`
	CreatedAt time.Time `json:"created_at"`
}

// Region is a named circular area monitored for enter/exit events.
type Region struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"` // meters, must be > 0
	Name      string  `json:"name"`

	// Non-owning back-references to the feature that registered the region.
	RouteID   string `json:"route_id,omitempty"`
	AddressID string `json:"address_id,omitempty"`
}

// Waypoint is one stop in an ordered navigation sequence.
type Waypoint struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Order     int     `json:"order"`
}

// OfflineStats summarizes the durable sample queue for the UI badge.
type OfflineStats struct {
	Total    int `json:"total"`
	Unsynced int `json:"unsynced"`
}

// Arrival is a durable record of a geofence enter event.
type Arrival struct {
	ID        int64     `json:"id"`
	RegionID  string    `json:"region_id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// Float64 returns a pointer to v, for the optional Sample fields.
func Float64(v float64) *float64 {
	return &v
}
