// Package delivery ships location samples to the remote ingestion endpoint.
// Failure is a routine outcome here, not an exception: every failure path
// reports false so the caller can fall back to local buffering.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracetrip/pkg/model"
	"tracetrip/pkg/tracker"
)

// ingestPath is the endpoint path relative to the configured base URL.
const ingestPath = "/rastreamento/location"

// Client sends single samples to the ingestion endpoint.
// It never retries; retry policy belongs to the reconciler.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	tracker    *tracker.Tracker
	log        *slog.Logger
}

// payload is the wire format of one sample.
type payload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

// New creates a delivery client. An empty baseURL or token is valid; the
// client then reports failure on every send and the subsystem runs as a
// pure local buffer.
func New(baseURL, token string, timeout time.Duration, tr *tracker.Tracker) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		tracker:    tr,
		log:        slog.With("component", "delivery"),
	}
}

// Send attempts to deliver one sample. True means the server accepted it
// (any 2xx status). Timeouts, transport errors, non-2xx statuses and
// missing configuration all report false.
func (c *Client) Send(ctx context.Context, s *model.Sample) bool {
	if c.baseURL == "" || c.token == "" {
		c.log.Debug("Delivery skipped, endpoint not configured")
		return false
	}

	body, err := json.Marshal(payload{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Timestamp: s.Timestamp,
		Accuracy:  s.Accuracy,
		Altitude:  s.Altitude,
		Speed:     s.Speed,
		Heading:   s.Heading,
	})
	if err != nil {
		c.log.Error("Failed to marshal sample", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+ingestPath, bytes.NewReader(body))
	if err != nil {
		c.log.Error("Failed to create request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", strings.ReplaceAll(uuid.New().String(), "-", ""))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("Delivery failed", "error", err)
		if c.tracker != nil {
			c.tracker.TrackDeliveryFailure()
		}
		return false
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("Delivery rejected", "status", resp.StatusCode)
		if c.tracker != nil {
			c.tracker.TrackDeliveryFailure()
		}
		return false
	}

	return true
}

// Endpoint returns the full ingestion URL, or an empty string when not
// configured. Used by startup probes.
func (c *Client) Endpoint() string {
	if c.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s%s", c.baseURL, ingestPath)
}
