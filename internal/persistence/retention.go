// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import (
	"context"
	"time"
)

// Pruner periodically deletes events older than MaxAge. It implements
// suture.Service.
type Pruner struct {
	adapter  *Adapter
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewPruner creates a pruner. interval defaults to one hour.
func NewPruner(adapter *Adapter, interval, maxAge time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{adapter: adapter, interval: interval, maxAge: maxAge, now: time.Now}
}

// RunOnce prunes immediately and returns the number of removed records.
func (p *Pruner) RunOnce(ctx context.Context) int {
	if p.maxAge <= 0 {
		return 0
	}
	n := p.adapter.Prune(ctx, p.now().Add(-p.maxAge))
	if n > 0 {
		p.adapter.log.Info().Int("removed", n).Dur("max_age", p.maxAge).Msg("Pruned expired events")
	}
	return n
}

// Serve runs until ctx is canceled.
func (p *Pruner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Pruner) String() string {
	return "event-pruner"
}
