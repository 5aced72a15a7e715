// Package netcheck provides a point-in-time connectivity determination.
// Callers must re-check before each delivery batch rather than caching the
// result, since connectivity can flap between ticks.
package netcheck

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"time"
)

// Oracle answers whether the device is believed to be online right now.
type Oracle interface {
	Online(ctx context.Context) bool
}

// Checker is the default Oracle. It requires both a usable network
// interface and a successful dial to the probe address.
type Checker struct {
	probeAddr string // host:port of the ingestion endpoint
	timeout   time.Duration
}

// New creates a Checker probing the given host:port address.
func New(probeAddr string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{probeAddr: probeAddr, timeout: timeout}
}

// Online reports whether a non-loopback interface is up and the probe
// address is reachable. Without a probe address it always reports false;
// the subsystem then runs purely as a local buffer.
func (c *Checker) Online(ctx context.Context) bool {
	if c.probeAddr == "" {
		return false
	}
	if !hasInterface() {
		return false
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.probeAddr)
	if err != nil {
		slog.Debug("Connectivity probe failed", "addr", c.probeAddr, "error", err)
		return false
	}
	conn.Close()
	return true
}

// ProbeAddr derives a host:port probe target from the ingestion base URL.
// Returns "" when the URL is empty or unparseable.
func ProbeAddr(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return u.Host + ":443"
	default:
		return u.Host + ":80"
	}
}

// hasInterface reports whether any non-loopback interface is up with an address.
func hasInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}
