package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tracetrip/pkg/position"
	"tracetrip/pkg/store"
)

// Storage verifies the durable sample queue opens and answers a query.
// The queue itself tolerates a missing store at runtime, so this is a
// non-critical early warning.
func Storage(queue *store.Queue) Probe {
	return Probe{
		Name: "storage",
		Check: func(ctx context.Context) error {
			if err := queue.Initialize(); err != nil {
				return err
			}
			_, err := queue.Counts(ctx)
			return err
		},
	}
}

// Position verifies the location service is enabled. No fix is required
// yet; receivers cold-start slowly.
func Position(src position.Source) Probe {
	return Probe{
		Name: "position",
		Check: func(ctx context.Context) error {
			if !src.ServiceEnabled() {
				return position.ErrUnavailable
			}
			return nil
		},
		Critical: true,
	}
}

// Ingestion verifies the delivery endpoint is reachable. Any HTTP
// response counts; the server may well reject a bodyless request.
func Ingestion(endpoint string) Probe {
	return Probe{
		Name: "ingestion",
		Check: func(ctx context.Context) error {
			if endpoint == "" {
				return errors.New("no endpoint configured")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
			if err != nil {
				return fmt.Errorf("building probe request: %w", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("endpoint unreachable: %w", err)
			}
			resp.Body.Close()
			return nil
		},
	}
}
