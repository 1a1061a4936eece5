// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/agentstream/internal/metrics"
)

func TestRouter_WebSocketRoute(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})
	rec, _ := do(t, env.handler, http.MethodGet, "/ws")
	if rec.Code != http.StatusTeapot {
		t.Errorf("/ws status = %d, want the websocket handler's 418", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "" {
		t.Error("/ws should not get JSON security headers")
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})

	rec, body := do(t, env.handler, http.MethodGet, "/api/v1/nothing")
	if rec.Code != http.StatusNotFound || body.Error == nil || body.Error.Code != ErrCodeNotFound {
		t.Errorf("not found: %d %+v", rec.Code, body.Error)
	}

	rec, body = do(t, env.handler, http.MethodPost, "/api/v1/executions/exec-1/events")
	if rec.Code != http.StatusMethodNotAllowed || body.Error == nil || body.Error.Code != ErrCodeMethodNotAllowed {
		t.Errorf("method not allowed: %d %+v", rec.Code, body.Error)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})
	rec, _ := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events")

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be set for https requests")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing behind https proxy")
	}
}

func TestRouter_RequestID(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
	if !strings.Contains(rec.Body.String(), `"request_id":"req-123"`) {
		t.Errorf("body missing request id: %s", rec.Body.String())
	}

	rec, _ = do(t, env.handler, http.MethodGet, "/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("generated request id missing")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{CORSAllowedOrigins: []string{"https://dash.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/executions/exec-1/events", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin got Allow-Origin %q", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if rec, _ := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec, body := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events")
	if rec.Code != http.StatusTooManyRequests || body.Error == nil || body.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("third request: %d %+v", rec.Code, body.Error)
	}

	// Health is outside the limited group.
	if rec, _ := do(t, env.handler, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Errorf("health limited: %d", rec.Code)
	}
}

func TestRouter_RateLimitDisabled(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{RateLimitRequests: 1, RateLimitDisabled: true})
	for i := 0; i < 5; i++ {
		if rec, _ := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})
	do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/stats")

	if n := testutil.CollectAndCount(metrics.APIRequestDuration); n == 0 {
		t.Fatal("no API request observations recorded")
	}

	rec, _ := do(t, env.handler, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/v1/executions/{id}/stats"`) {
		t.Error("route pattern label missing from metrics output")
	}
}

func TestRouter_CompressesHistory(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/exec-1/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), `"agent-start"`) {
		t.Errorf("decompressed body missing events: %s", body)
	}

	// Health endpoints stay uncompressed.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("/health Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
}
