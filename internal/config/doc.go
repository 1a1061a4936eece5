// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package config loads agentstream configuration with koanf v2.

Sources are layered, later ones winning: struct defaults, an optional YAML
file, then environment variables. Every setting has a default, so the
server runs with no configuration at all in development.

# Environment Variables

Listener:
  - WS_PORT: HTTP and WebSocket listen port (default: 3001)
  - HTTP_HOST: bind address (default: 0.0.0.0)
  - CORS_ORIGINS: comma-separated origins for the REST API (default: *)
  - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT

WebSocket:
  - WS_HEARTBEAT_INTERVAL: sweep interval in milliseconds (default: 30000)
  - WS_CLIENT_TIMEOUT: heartbeat timeout in milliseconds (default: 60000)
  - WS_VERBOSE: log connection activity at info level and enable debug logs
  - WS_ALLOWED_ORIGINS: comma-separated origins allowed to upgrade (default: any)

Bus:
  - BUS_BACKEND: redis, nats or memory (default: redis)
  - REDIS_URL: redis connection URL (default: redis://localhost:6379)
  - NATS_URL: NATS server URL (default: nats://127.0.0.1:4222)
  - NATS_EMBEDDED: run a NATS server in process
  - BUS_BREAKER_THRESHOLD, BUS_BREAKER_TIMEOUT, BUS_RECONNECT_MAX

Store:
  - STORE_ENABLED: persist events (default: true)
  - STORE_BACKEND: badger, sqlite or memory (default: badger)
  - STORE_PATH: badger directory or sqlite file; empty runs badger in memory
  - STORE_RETENTION: drop stored events older than this duration

Logging:
  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json or console (default: json)

CONFIG_PATH points at a YAML file whose keys mirror the koanf tags:

	server:
	  port: 3001
	bus:
	  backend: nats
	  embedded:
	    enabled: true
	websocket:
	  heartbeat_interval: 30s
*/
package config
