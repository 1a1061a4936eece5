// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

// Package metrics exposes Prometheus instrumentation for the event emitter,
// the distributed bus bridge, the event store and WebSocket connections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Emitter Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_events_emitted_total",
			Help: "Total number of events accepted by the emitter",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_events_dropped_total",
			Help: "Total number of events or background jobs dropped",
		},
		[]string{"reason"}, // "shutdown", "persist_queue_full", "publish_queue_full", "invalid"
	)

	ListenerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentstream_listener_panics_total",
			Help: "Total number of panics recovered from local listeners",
		},
	)

	EmitterQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentstream_emitter_queue_depth",
			Help: "Pending background jobs per emitter queue",
		},
		[]string{"queue"}, // "persist", "publish"
	)

	BufferedExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentstream_buffered_executions",
			Help: "Number of executions with an in-memory event buffer",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstream_store_operation_duration_seconds",
			Help:    "Duration of event store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_store_errors_total",
			Help: "Total number of event store errors",
		},
		[]string{"backend", "operation"},
	)

	// Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_bus_published_total",
			Help: "Total number of messages published to the bus",
		},
		[]string{"scope", "status"}, // status: "ok", "error", "circuit_open"
	)

	BusDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_bus_delivered_total",
			Help: "Total number of bus messages received by the subscriber",
		},
		[]string{"scope"},
	)

	BusReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentstream_bus_reconnects_total",
			Help: "Total number of bus subscription attempts after a failure",
		},
	)

	BusConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentstream_bus_subscriber_connected",
			Help: "Whether the bus subscriber currently holds a subscription (1) or not (0)",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentstream_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WSSubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentstream_websocket_subscriptions_active",
			Help: "Number of active subscriptions",
		},
		[]string{"kind"}, // "execution", "conversation"
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_websocket_messages_sent_total",
			Help: "Total number of messages queued to WebSocket clients",
		},
		[]string{"type"},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_websocket_messages_received_total",
			Help: "Total number of control messages received from clients",
		},
		[]string{"type"}, // "subscribe", "unsubscribe", "ping", "unknown", "malformed", "rate_limited"
	)

	WSEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentstream_websocket_evictions_total",
			Help: "Total number of connections removed by the server",
		},
		[]string{"reason"}, // "timeout", "not_open", "slow_consumer"
	)

	// API Metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentstream_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordEmit records an accepted event.
func RecordEmit(eventType string) {
	EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordDrop records a dropped event or job.
func RecordDrop(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordStoreOperation records the duration and outcome of a store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordBusPublish records one publish attempt.
func RecordBusPublish(scope, status string) {
	BusPublished.WithLabelValues(scope, status).Inc()
}

// RecordBusDelivery records one message received from the bus.
func RecordBusDelivery(scope string) {
	BusDelivered.WithLabelValues(scope).Inc()
}

// SetBusConnected updates the subscriber connection gauge.
func SetBusConnected(connected bool) {
	if connected {
		BusConnected.Set(1)
		return
	}
	BusConnected.Set(0)
}

// RecordWSMessageReceived records an inbound client frame by type.
func RecordWSMessageReceived(msgType string) {
	WSMessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordWSMessageSent records an outbound message by type.
func RecordWSMessageSent(msgType string) {
	WSMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordWSEviction records a server initiated removal.
func RecordWSEviction(reason string) {
	WSEvictions.WithLabelValues(reason).Inc()
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
