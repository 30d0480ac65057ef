package core

import (
	"context"
	"time"
)

// DefaultProbeTimeout bounds a single connectivity probe.
const DefaultProbeTimeout = time.Second

// Prober is the connectivity check exposed by the durable store.
type Prober interface {
	Ping(ctx context.Context) error
}

// Guard answers whether the store is reachable right now.
// It never retries or caches; each call probes again.
type Guard struct {
	probe   Prober
	timeout time.Duration
}

// NewGuard builds a guard around probe. A nil probe is always unavailable.
func NewGuard(probe Prober, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Guard{probe: probe, timeout: timeout}
}

// Available reports current connectivity.
func (g *Guard) Available(ctx context.Context) bool {
	if g == nil || g.probe == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.probe.Ping(ctx) == nil
}
