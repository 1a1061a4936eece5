// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package api serves the agentstream HTTP surface with the chi router.

Routes:

	GET    /ws                                   WebSocket upgrade
	GET    /health                               component health (503 when unhealthy)
	GET    /health/live                          liveness
	GET    /stats                                emitter, registry and bus counters
	GET    /metrics                              Prometheus metrics
	GET    /api/v1/executions/{id}/events        ?type=<event type>&source=buffer|store
	GET    /api/v1/executions/{id}/events/latest ?n=1..1000 (default 10)
	GET    /api/v1/executions/{id}/stats         ?source=buffer|store
	DELETE /api/v1/executions/{id}/events        clear buffer and stored history

JSON responses use the APIResponse envelope:

	{"success": true, "data": [...], "meta": {"request_id": "...", "count": 3, "source": "store"}}

The /api/v1 group is rate limited per client IP with go-chi/httprate and
gzip compressed for clients that accept it. CORS
is handled by go-chi/cors for every route. Query parameters are validated
with the shared go-playground/validator instance in internal/validation.
*/
package api
