// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package app wires agentstream together at process start and tears it down at
exit.

New builds exactly one of each component from a config.Config:

	embedded NATS (optional) -> bus clients -> publisher
	store -> persistence.Adapter -> pruner (retention > 0)
	emitter(WithPublisher, WithStore)
	websocket.Registry -> websocket.Server -> bus.Subscriber
	api router -> http.Server
	supervisor tree: pruner | subscriber, heartbeat | http-server

Start runs the supervisor tree. Shutdown stops everything in a fixed order
and keeps going when a step fails:

 1. websocket server: refuse upgrades, stop heartbeat, disconnect clients
 2. supervisor tree: HTTP listener, bus subscriber, pruner
 3. emitter: drain queues within the grace period, close the publish bus
 4. subscribe bus, store, embedded NATS

App also implements api.StatusReporter for /health and /stats.
*/
package app
