// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
	websocket  http.Handler
}

// NewRouter creates a router. ws serves WebSocket upgrades on /ws.
func NewRouter(handler *Handler, mw *Middleware, ws http.Handler) *Router {
	return &Router{handler: handler, middleware: mw, websocket: ws}
}

// Handler builds the chi route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	// Upgrades bypass the JSON middleware; the connection server rate
	// limits inbound frames itself.
	r.Get("/ws", router.websocket.ServeHTTP)

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(RequestMetrics())

		r.Get("/health", router.handler.Health)
		r.Get("/health/live", router.handler.Live)
		r.Get("/stats", router.handler.Stats)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(RequestMetrics())
		// Full execution histories run to hundreds of events.
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Route("/executions/{id}", func(r chi.Router) {
			r.Get("/events", router.handler.ExecutionEvents)
			r.Delete("/events", router.handler.ClearExecution)
			r.Get("/events/latest", router.handler.LatestEvents)
			r.Get("/stats", router.handler.ExecutionStats)
		})
	})

	return r
}
