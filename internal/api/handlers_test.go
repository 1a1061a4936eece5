// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/persistence"
)

//nolint:gochecknoinits // silence logging in tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type stubStatus struct {
	health Health
}

func (s stubStatus) Health(context.Context) Health { return s.health }
func (s stubStatus) Stats() interface{}            { return map[string]int{"connections": 3} }

type testEnv struct {
	emitter *emitter.Emitter
	store   *persistence.Adapter
	handler http.Handler
}

// newTestEnv builds a router over a real emitter buffer and, when withStore
// is set, an in-memory persistence adapter.
func newTestEnv(t *testing.T, withStore bool, mwCfg MiddlewareConfig) *testEnv {
	t.Helper()
	em := emitter.New(emitter.Config{})
	t.Cleanup(func() { _ = em.Shutdown(context.Background()) })

	env := &testEnv{emitter: em}
	var store EventStore
	if withStore {
		env.store = persistence.NewAdapter(persistence.NewMemoryStore())
		store = env.store
	}
	status := stubStatus{health: Health{Status: StatusHealthy, Components: map[string]ComponentHealth{"bus": {Status: StatusHealthy}}}}
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	env.handler = NewRouter(NewHandler(em, store, status), NewMiddleware(mwCfg), ws).Handler()
	return env
}

func (e *testEnv) seed(t *testing.T, evs ...events.Event) {
	t.Helper()
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
	if e.store != nil {
		if err := e.store.AppendEvents(context.Background(), evs); err != nil {
			t.Fatalf("AppendEvents: %v", err)
		}
	}
}

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body decoded
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %s: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func eventTypes(t *testing.T, raw json.RawMessage) []string {
	t.Helper()
	var list []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode events %s: %v", raw, err)
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Type
	}
	return out
}

func sampleEvents(execID string) []events.Event {
	ref := events.Ref{ExecutionID: execID}
	return []events.Event{
		events.NewOrchestrationStart(ref, "proj", "write a story", []string{"story"}),
		events.NewAgentStart(ref, "story-head", "Story Head", "story"),
		events.NewAgentComplete(ref, "story-head", "done", 2*time.Second, &events.TokenUsage{TotalTokens: 42}, true),
		events.NewError(ref, "story-head", "story", io.ErrUnexpectedEOF, true),
	}
}

func TestExecutionEvents(t *testing.T) {
	env := newTestEnv(t, true, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)
	env.seed(t, sampleEvents("exec-2")[:1]...)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantTypes  []string
		wantSource string
	}{
		{"store by default", "/api/v1/executions/exec-1/events", 200,
			[]string{"orchestration-start", "agent-start", "agent-complete", "error"}, "store"},
		{"buffer source", "/api/v1/executions/exec-1/events?source=buffer", 200,
			[]string{"orchestration-start", "agent-start", "agent-complete", "error"}, "buffer"},
		{"type filter store", "/api/v1/executions/exec-1/events?type=agent-start", 200, []string{"agent-start"}, "store"},
		{"type filter buffer", "/api/v1/executions/exec-1/events?type=error&source=buffer", 200, []string{"error"}, "buffer"},
		{"other execution", "/api/v1/executions/exec-2/events", 200, []string{"orchestration-start"}, "store"},
		{"unknown execution", "/api/v1/executions/nope/events", 200, []string{}, "store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, env.handler, http.MethodGet, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := eventTypes(t, body.Data)
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("types = %v, want %v", got, tt.wantTypes)
			}
			for i := range got {
				if got[i] != tt.wantTypes[i] {
					t.Errorf("types[%d] = %s, want %s", i, got[i], tt.wantTypes[i])
				}
			}
			if body.Meta == nil || body.Meta.Source != tt.wantSource || body.Meta.Count == nil || *body.Meta.Count != len(tt.wantTypes) {
				t.Errorf("meta = %+v", body.Meta)
			}
		})
	}
}

func TestExecutionEvents_Validation(t *testing.T) {
	env := newTestEnv(t, true, MiddlewareConfig{})

	for _, target := range []string{
		"/api/v1/executions/exec-1/events?type=agent-dance",
		"/api/v1/executions/exec-1/events?source=disk",
		"/api/v1/executions/exec%201/events",
	} {
		rec, body := do(t, env.handler, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
			continue
		}
		if body.Success || body.Error == nil || body.Error.Code != ErrCodeValidationFailed {
			t.Errorf("%s: body = %+v", target, body)
		}
	}
}

func TestExecutionEvents_NoStore(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)

	rec, body := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events")
	if rec.Code != http.StatusOK || body.Meta.Source != "buffer" {
		t.Fatalf("status = %d, meta = %+v", rec.Code, body.Meta)
	}
	if got := eventTypes(t, body.Data); len(got) != 4 {
		t.Errorf("events = %v", got)
	}

	rec, body = do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events?source=store")
	if rec.Code != http.StatusServiceUnavailable || body.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("store source without store: %d %+v", rec.Code, body.Error)
	}
}

func TestLatestEvents(t *testing.T) {
	for _, withStore := range []bool{true, false} {
		env := newTestEnv(t, withStore, MiddlewareConfig{})
		env.seed(t, sampleEvents("exec-1")...)

		_, body := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events/latest?n=2")
		got := eventTypes(t, body.Data)
		if len(got) != 2 || got[0] != "agent-complete" || got[1] != "error" {
			t.Errorf("store=%v: latest = %v", withStore, got)
		}

		_, body = do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/events/latest")
		if got := eventTypes(t, body.Data); len(got) != 4 {
			t.Errorf("store=%v: default latest = %v", withStore, got)
		}
	}

	env := newTestEnv(t, true, MiddlewareConfig{})
	for _, target := range []string{
		"/api/v1/executions/exec-1/events/latest?n=abc",
		"/api/v1/executions/exec-1/events/latest?n=0",
		"/api/v1/executions/exec-1/events/latest?n=1001",
	} {
		if rec, _ := do(t, env.handler, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestExecutionStats(t *testing.T) {
	env := newTestEnv(t, true, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)

	for _, source := range []string{"store", "buffer"} {
		rec, body := do(t, env.handler, http.MethodGet, "/api/v1/executions/exec-1/stats?source="+source)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", source, rec.Code)
		}
		var st persistence.Statistics
		if err := json.Unmarshal(body.Data, &st); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		if st.Total != 4 || st.Errors != 1 || st.AgentsCompleted != 1 || st.TotalTokens != 42 {
			t.Errorf("%s: stats = %+v", source, st)
		}
		if body.Meta.Source != source {
			t.Errorf("meta.source = %q, want %q", body.Meta.Source, source)
		}
	}
}

func TestClearExecution(t *testing.T) {
	env := newTestEnv(t, true, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)
	env.seed(t, sampleEvents("exec-2")...)

	rec, body := do(t, env.handler, http.MethodDelete, "/api/v1/executions/exec-1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res ClearResult
	if err := json.Unmarshal(body.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.BufferCleared || res.StoreRemoved != 4 || res.ExecutionID != "exec-1" {
		t.Errorf("result = %+v", res)
	}

	if n := len(env.emitter.BufferedEvents("exec-1")); n != 0 {
		t.Errorf("buffer still holds %d events", n)
	}
	if n := len(env.store.GetExecutionEvents(context.Background(), "exec-1")); n != 0 {
		t.Errorf("store still holds %d events", n)
	}
	if n := len(env.store.GetExecutionEvents(context.Background(), "exec-2")); n != 4 {
		t.Errorf("other execution lost events: %d", n)
	}
}

func TestClearExecution_LogsRequestContext(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "info", Format: "json", Output: &buf})
	defer logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})

	env := newTestEnv(t, true, MiddlewareConfig{})
	env.seed(t, sampleEvents("exec-1")...)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/executions/exec-1/events", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	out := buf.String()
	for _, want := range []string{"Execution history cleared", `"execution_id":"exec-1"`, `"correlation_id":"req-42"`, `"store_removed":4`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t, false, MiddlewareConfig{})

	rec, body := do(t, env.handler, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !body.Success {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	var h Health
	if err := json.Unmarshal(body.Data, &h); err != nil || h.Status != StatusHealthy {
		t.Errorf("health body = %+v, %v", h, err)
	}

	if rec, _ := do(t, env.handler, http.MethodGet, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("live: %d", rec.Code)
	}

	rec, body = do(t, env.handler, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK || string(body.Data) != `{"connections":3}` {
		t.Errorf("stats: %d %s", rec.Code, body.Data)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	status := stubStatus{health: Health{Status: StatusUnhealthy}}
	ws := http.NotFoundHandler()
	h := NewRouter(NewHandler(emitter.New(emitter.Config{}), nil, status), NewMiddleware(MiddlewareConfig{}), ws).Handler()

	rec, body := do(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body.Success {
		t.Error("unhealthy response should not report success")
	}
}
