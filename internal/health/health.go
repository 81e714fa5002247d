// Package health probes the dependencies a docqa command relies on: the
// local SQLite library, the embedding provider and the optional Qdrant
// mirror. It backs `docqa doctor`.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// ProbeTimeout is the maximum time allowed for each individual probe.
const ProbeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe to call from multiple
// goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is healthy and a descriptive
	// error otherwise.
	Ping(ctx context.Context) error

	// Name returns a short label used in reports (e.g. "sqlite", "qdrant").
	Name() string
}

// Check is the result of probing one dependency.
type Check struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Optional marks dependencies whose failure does not make the report
	// unhealthy.
	Optional bool `json:"optional,omitempty"`
	// Error contains the failure reason when OK is false.
	Error string `json:"error,omitempty"`
	// Latency is how long the probe took.
	Latency time.Duration `json:"latencyNs"`
}

// Report is the combined result of a health run.
type Report struct {
	// Healthy is true when every required probe succeeded.
	Healthy bool `json:"healthy"`
	// Checks holds the per-dependency results in probe order.
	Checks []Check `json:"checks"`
}

// Probe pairs a Pinger with whether it is required.
type Probe struct {
	Pinger   Pinger
	Optional bool
}

// Required wraps p as a required probe.
func Required(p Pinger) Probe { return Probe{Pinger: p} }

// Optional wraps p as an optional probe.
func Optional(p Pinger) Probe { return Probe{Pinger: p, Optional: true} }

// Run probes each dependency sequentially, each under ProbeTimeout.
func Run(ctx context.Context, probes ...Probe) Report {
	log := logging.FromContext(ctx)
	report := Report{Healthy: true, Checks: make([]Check, 0, len(probes))}

	for _, pr := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, ProbeTimeout)
		start := time.Now()
		err := pr.Pinger.Ping(probeCtx)
		cancel()

		check := Check{
			Name:     pr.Pinger.Name(),
			OK:       err == nil,
			Optional: pr.Optional,
			Latency:  time.Since(start),
		}
		if err != nil {
			check.Error = err.Error()
			if !pr.Optional {
				report.Healthy = false
			}
			log.Warn("health: probe failed",
				slog.String("dependency", check.Name),
				slog.Bool("optional", pr.Optional),
				slog.Any("error", err),
			)
		}
		report.Checks = append(report.Checks, check)
	}
	return report
}

// Func adapts a function into a Pinger.
type Func struct {
	Label string
	Fn    func(ctx context.Context) error
}

// Name implements Pinger.
func (f Func) Name() string { return f.Label }

// Ping implements Pinger.
func (f Func) Ping(ctx context.Context) error {
	if err := f.Fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", f.Label, err)
	}
	return nil
}
