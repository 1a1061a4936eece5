// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/agentstream/internal/api"
	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/websocket"
)

const healthCheckTimeout = 2 * time.Second

// Stats is the /stats response body.
type Stats struct {
	UptimeSeconds float64                 `json:"uptime_seconds"`
	Emitter       emitter.Stats           `json:"emitter"`
	Connections   websocket.RegistryStats `json:"connections"`
	Bus           BusStats                `json:"bus"`
	Store         StoreStats              `json:"store"`
}

// BusStats describes the bus bridge.
type BusStats struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Received  int64  `json:"received"`
	Breaker   string `json:"breaker"`
	Embedded  bool   `json:"embedded"`
}

// StoreStats describes the persistence adapter.
type StoreStats struct {
	Enabled   bool   `json:"enabled"`
	Backend   string `json:"backend,omitempty"`
	Retention string `json:"retention,omitempty"`
}

// Stats implements api.StatusReporter.
func (a *App) Stats() interface{} {
	st := Stats{
		UptimeSeconds: time.Since(a.started).Seconds(),
		Emitter:       a.emitter.Stats(),
		Connections:   a.registry.Stats(),
		Bus: BusStats{
			Backend:   a.pubBus.Backend(),
			Connected: a.subscriber.Connected(),
			Received:  a.subscriber.Received(),
			Breaker:   a.publisher.State(),
			Embedded:  a.embedded != nil,
		},
	}
	if a.store != nil {
		st.Store = StoreStats{Enabled: true, Backend: a.store.Store().Backend()}
		if a.cfg.Store.Retention > 0 {
			st.Store.Retention = a.cfg.Store.Retention.String()
		}
	}
	return st
}

// Health implements api.StatusReporter. A bus outage or an unreachable
// store degrades the service since local delivery and the buffer still
// work; a shutting down emitter makes it unhealthy.
func (a *App) Health(ctx context.Context) api.Health {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	components := map[string]api.ComponentHealth{
		"emitter":   a.emitterHealth(),
		"bus":       a.busHealth(ctx),
		"store":     a.storeHealth(ctx),
		"websocket": {Status: api.StatusHealthy, Detail: fmt.Sprintf("%d connections", a.registry.Count())},
	}
	if a.embedded != nil {
		c := api.ComponentHealth{Status: api.StatusHealthy, Detail: a.embedded.ClientURL()}
		if !a.embedded.Running() {
			c = api.ComponentHealth{Status: api.StatusUnhealthy, Detail: "embedded server stopped"}
		}
		components["nats"] = c
	}

	status := api.StatusHealthy
	for _, c := range components {
		status = worse(status, c.Status)
	}
	return api.Health{
		Status:        status,
		UptimeSeconds: time.Since(a.started).Seconds(),
		Components:    components,
	}
}

func (a *App) emitterHealth() api.ComponentHealth {
	st := a.emitter.Stats()
	if st.ShuttingDown {
		return api.ComponentHealth{Status: api.StatusUnhealthy, Detail: "shutting down"}
	}
	return api.ComponentHealth{Status: api.StatusHealthy}
}

func (a *App) busHealth(ctx context.Context) api.ComponentHealth {
	if a.publisher.State() == gobreaker.StateOpen.String() {
		return api.ComponentHealth{Status: api.StatusDegraded, Detail: "publish circuit open"}
	}
	if err := a.pubBus.Ping(ctx); err != nil {
		return api.ComponentHealth{Status: api.StatusDegraded, Detail: err.Error()}
	}
	if !a.subscriber.Connected() {
		return api.ComponentHealth{Status: api.StatusDegraded, Detail: "subscriber not connected"}
	}
	return api.ComponentHealth{Status: api.StatusHealthy, Detail: a.pubBus.Backend()}
}

func (a *App) storeHealth(ctx context.Context) api.ComponentHealth {
	if a.store == nil {
		return api.ComponentHealth{Status: api.StatusHealthy, Detail: "disabled"}
	}
	if err := a.store.Ping(ctx); err != nil {
		return api.ComponentHealth{Status: api.StatusDegraded, Detail: err.Error()}
	}
	return api.ComponentHealth{Status: api.StatusHealthy, Detail: a.store.Store().Backend()}
}

func rank(status string) int {
	switch status {
	case api.StatusUnhealthy:
		return 2
	case api.StatusDegraded:
		return 1
	default:
		return 0
	}
}

func worse(a, b string) string {
	if rank(b) > rank(a) {
		return b
	}
	return a
}
