package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pinger is the subset of the connection pool used by the readiness gate.
// Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitConfig controls the startup readiness probe loop.
type WaitConfig struct {
	// Attempts is the probe ceiling. The loop gives up after this many
	// failed probes.
	Attempts int

	// Interval is the flat delay between probes. No backoff or jitter:
	// this is a bounded wait for a local dependency, not a remote retry.
	Interval time.Duration

	// Sleep is the delay function. Defaults to time.Sleep; tests inject
	// a recording fake.
	Sleep func(time.Duration)
}

// WaitReady blocks until the database answers a ping, one probe per
// interval, up to the configured attempt ceiling. It returns the last probe
// error once attempts are exhausted or the context error if the context is
// cancelled first. The caller decides whether exhaustion is fatal; for this
// service it is.
func WaitReady(ctx context.Context, p Pinger, cfg WaitConfig) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.Ping(ctx)
		if lastErr == nil {
			slog.Info("database ready", "attempt", attempt)
			return nil
		}

		slog.Warn("database not ready",
			"attempt", attempt,
			"max_attempts", cfg.Attempts,
			"error", lastErr,
		)

		if attempt < cfg.Attempts {
			sleep(cfg.Interval)
		}
	}

	return fmt.Errorf("database unreachable after %d attempts: %w", cfg.Attempts, lastErr)
}
