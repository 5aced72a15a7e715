// Package position abstracts the device's position source.
// Implementations wrap platform hardware (an NMEA serial GPS) or a
// simulated feed; consumers depend only on the Source interface so tests
// can substitute fakes.
package position

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrUnavailable is returned when no position can be produced right
	// now. This is an expected condition (tunnels, cold start, airplane
	// mode) and must not be surfaced to the user.
	ErrUnavailable = errors.New("position unavailable")

	// ErrPermissionDenied is returned when the user refused location
	// permission.
	ErrPermissionDenied = errors.New("location permission denied")
)

// Profile selects the accuracy/power trade-off for a capture.
type Profile int

const (
	// AccuracyBalanced is the default capture profile.
	AccuracyBalanced Profile = iota
	// AccuracyLow trades precision for a faster, cheaper fix. Used as the
	// first fallback when a balanced capture fails.
	AccuracyLow
)

// Fix is one position reading.
type Fix struct {
	Lat      float64
	Lon      float64
	Time     time.Time
	Accuracy *float64 // meters
	Altitude *float64 // meters
	Speed    *float64 // m/s
	Heading  *float64 // degrees true
}

// Source produces position fixes.
type Source interface {
	// Capture returns the current position at the given profile, or
	// ErrUnavailable.
	Capture(ctx context.Context, p Profile) (Fix, error)
	// LastKnown returns the most recent successful fix, if any.
	LastKnown() (Fix, bool)
	// ServiceEnabled reports whether the device location service is on.
	ServiceEnabled() bool
	// Close releases the underlying hardware.
	Close() error
}

// Authorizer models the platform permission dialog.
type Authorizer interface {
	// RequestForeground asks for foreground location permission. It
	// returns ErrPermissionDenied if the user refused.
	RequestForeground(ctx context.Context) error
	// RequestBackground asks for background permission, best-effort.
	// Absence degrades background wake but never blocks foreground use.
	RequestBackground(ctx context.Context) error
	// ForegroundGranted reports the current foreground grant without
	// prompting.
	ForegroundGranted() bool
}

// lastKnownCache is embedded by Source implementations to satisfy LastKnown.
type lastKnownCache struct {
	mu   sync.RWMutex
	fix  Fix
	seen bool
}

func (c *lastKnownCache) remember(f Fix) {
	c.mu.Lock()
	c.fix = f
	c.seen = true
	c.mu.Unlock()
}

// LastKnown returns the most recent successful fix, if any.
func (c *lastKnownCache) LastKnown() (Fix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fix, c.seen
}
