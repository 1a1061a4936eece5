// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/persistence"
	"github.com/tomtom215/agentstream/internal/validation"
)

// EventBuffer is the emitter's in-memory history.
type EventBuffer interface {
	BufferedEvents(executionID string, tags ...events.Type) []events.Event
	ClearBuffer(executionID string)
}

// EventStore is the persisted history. persistence.Adapter implements it.
type EventStore interface {
	GetExecutionEvents(ctx context.Context, executionID string) []events.Event
	GetExecutionEventsByType(ctx context.Context, executionID string, typ events.Type) []events.Event
	GetLatestEvents(ctx context.Context, executionID string, n int) []events.Event
	ClearExecutionEvents(ctx context.Context, executionID string) int
	GetEventStatistics(ctx context.Context, executionID string) persistence.Statistics
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentHealth is the state of one dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health is the /health response body.
type Health struct {
	Status        string                     `json:"status"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Components    map[string]ComponentHealth `json:"components"`
}

// StatusReporter supplies health and runtime statistics.
type StatusReporter interface {
	Health(ctx context.Context) Health
	Stats() interface{}
}

// Handler serves the REST endpoints.
type Handler struct {
	buffer EventBuffer
	store  EventStore
	status StatusReporter
}

// NewHandler creates a handler. store may be nil when persistence is off.
func NewHandler(buffer EventBuffer, store EventStore, status StatusReporter) *Handler {
	return &Handler{buffer: buffer, store: store, status: status}
}

// Event sources.
const (
	sourceBuffer = "buffer"
	sourceStore  = "store"
)

// EventsRequest holds the validated parameters of the events endpoints.
type EventsRequest struct {
	ExecutionID string `validate:"identifier"`
	Type        string `validate:"omitempty,eventtype"`
	Source      string `validate:"omitempty,oneof=buffer store"`
}

// LatestRequest holds the validated parameters of the latest endpoint.
type LatestRequest struct {
	ExecutionID string `validate:"identifier"`
	N           int    `validate:"min=1,max=1000"`
}

const defaultLatest = 10

func (h *Handler) validate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if verr := validation.ValidateStruct(req); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

// source resolves the requested source, defaulting to the store when one
// is configured.
func (h *Handler) source(requested string) string {
	if requested != "" {
		return requested
	}
	if h.store != nil {
		return sourceStore
	}
	return sourceBuffer
}

// Health reports component health. Unhealthy answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.status.Health(r.Context())
	code := http.StatusOK
	if health.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).Status(code, health)
}

// Live answers 200 while the process serves HTTP.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// Stats returns runtime statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.status.Stats())
}

// ExecutionEvents returns an execution's events, optionally filtered by type.
func (h *Handler) ExecutionEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := EventsRequest{
		ExecutionID: chi.URLParam(r, "id"),
		Type:        q.Get("type"),
		Source:      q.Get("source"),
	}
	if !h.validate(w, r, &req) {
		return
	}

	src := h.source(req.Source)
	rw := NewResponseWriter(w, r)
	if src == sourceStore && h.store == nil {
		rw.ServiceUnavailable("Event persistence is disabled")
		return
	}

	var evs []events.Event
	switch {
	case src == sourceBuffer && req.Type != "":
		evs = h.buffer.BufferedEvents(req.ExecutionID, events.Type(req.Type))
	case src == sourceBuffer:
		evs = h.buffer.BufferedEvents(req.ExecutionID)
	case req.Type != "":
		evs = h.store.GetExecutionEventsByType(r.Context(), req.ExecutionID, events.Type(req.Type))
	default:
		evs = h.store.GetExecutionEvents(r.Context(), req.ExecutionID)
	}
	n := len(evs)
	rw.SuccessWithMeta(evs, &APIMeta{Count: &n, Source: src})
}

// LatestEvents returns the n most recent events, oldest first.
func (h *Handler) LatestEvents(w http.ResponseWriter, r *http.Request) {
	req := LatestRequest{ExecutionID: chi.URLParam(r, "id"), N: defaultLatest}
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			NewResponseWriter(w, r).BadRequest("n must be an integer")
			return
		}
		req.N = n
	}
	if !h.validate(w, r, &req) {
		return
	}

	var evs []events.Event
	src := h.source("")
	if src == sourceStore {
		evs = h.store.GetLatestEvents(r.Context(), req.ExecutionID, req.N)
	} else {
		evs = h.buffer.BufferedEvents(req.ExecutionID)
		if len(evs) > req.N {
			evs = evs[len(evs)-req.N:]
		}
	}
	n := len(evs)
	NewResponseWriter(w, r).SuccessWithMeta(evs, &APIMeta{Count: &n, Source: src})
}

// ExecutionStats aggregates an execution's history.
func (h *Handler) ExecutionStats(w http.ResponseWriter, r *http.Request) {
	req := EventsRequest{ExecutionID: chi.URLParam(r, "id"), Source: r.URL.Query().Get("source")}
	if !h.validate(w, r, &req) {
		return
	}

	src := h.source(req.Source)
	rw := NewResponseWriter(w, r)
	switch {
	case src == sourceStore && h.store == nil:
		rw.ServiceUnavailable("Event persistence is disabled")
	case src == sourceStore:
		rw.SuccessWithMeta(h.store.GetEventStatistics(r.Context(), req.ExecutionID), &APIMeta{Source: src})
	default:
		stats := persistence.ComputeStatistics(req.ExecutionID, h.buffer.BufferedEvents(req.ExecutionID))
		rw.SuccessWithMeta(stats, &APIMeta{Source: src})
	}
}

// ClearResult is the DELETE events response body.
type ClearResult struct {
	ExecutionID   string    `json:"executionId"`
	BufferCleared bool      `json:"bufferCleared"`
	StoreRemoved  int       `json:"storeRemoved"`
	ClearedAt     time.Time `json:"clearedAt"`
}

// ClearExecution drops an execution's buffer and persisted history.
func (h *Handler) ClearExecution(w http.ResponseWriter, r *http.Request) {
	req := EventsRequest{ExecutionID: chi.URLParam(r, "id")}
	if !h.validate(w, r, &req) {
		return
	}

	h.buffer.ClearBuffer(req.ExecutionID)
	res := ClearResult{ExecutionID: req.ExecutionID, BufferCleared: true, ClearedAt: time.Now().UTC()}
	if h.store != nil {
		res.StoreRemoved = h.store.ClearExecutionEvents(r.Context(), req.ExecutionID)
	}
	ctx := logging.ContextWithExecutionID(r.Context(), req.ExecutionID)
	logging.Ctx(ctx).Info().Int("store_removed", res.StoreRemoved).Msg("Execution history cleared")
	WriteSuccess(w, r, res)
}
