// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package main is the agentstream server.

It streams agent execution events to browser clients over WebSocket, relays
them between instances through a pub/sub bus, and keeps an append-only event
history for late joiners.

# Process Layout

	agentstream
	├── data-layer       event-pruner (store.retention > 0)
	├── messaging-layer  bus-subscriber, websocket-heartbeat
	└── api-layer        http-server (/ws, /health, /stats, /metrics, /api/v1)

# Configuration

Defaults run with no file and no environment: redis on localhost:6379, an
in-memory badger store and port 3001. Common overrides:

	WS_PORT=3001
	BUS_BACKEND=redis|nats|memory
	REDIS_URL=redis://localhost:6379
	NATS_URL=nats://127.0.0.1:4222
	NATS_EMBEDDED=true             # run a NATS server in-process
	WS_HEARTBEAT_INTERVAL=30000    # milliseconds
	WS_CLIENT_TIMEOUT=60000        # milliseconds
	WS_VERBOSE=true                # debug logging
	STORE_BACKEND=badger|sqlite|memory
	STORE_PATH=/var/lib/agentstream/events
	LOG_LEVEL=info
	LOG_FORMAT=json|console

A YAML file is read from CONFIG_PATH or ./config.yaml; see internal/config.

# Running Several Instances

Point every instance at the same redis or NATS. Each instance publishes
the events it emits and delivers every bus message to its own websocket
clients, so a client may connect to any instance.

# Signals

SIGINT and SIGTERM trigger the ordered shutdown in internal/app, bounded
by server.shutdown_timeout.
*/
package main
