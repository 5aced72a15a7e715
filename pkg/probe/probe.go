package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// checkTimeout bounds each individual check so one hung dependency does
// not stall startup.
const checkTimeout = 5 * time.Second

// CheckFunc performs one health check. nil means the check passed.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check. Critical failures abort startup,
// non-critical ones only degrade features.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order and collects their results. Each
// check gets its own timeout derived from ctx.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		start := time.Now()

		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{
			Probe:    p,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	return results
}

// AnalyzeResults logs a summary and returns the joined errors of all
// failed critical probes, or nil when startup may proceed.
func AnalyzeResults(results []Result) error {
	var critical []error

	slog.Info("Startup checks")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-16s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	if len(critical) > 0 {
		return errors.Join(critical...)
	}
	return nil
}
