// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/agentstream/internal/bus"
	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/events"
)

// setupServer starts a Server behind httptest and returns a dial URL.
func setupServer(t *testing.T, cfg ServerConfig) (*Server, string) {
	t.Helper()
	srv := NewServer(NewRegistry(time.Minute), cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// wireMessage mirrors the outbound envelope for decoding in tests.
type wireMessage struct {
	Type           events.MessageType `json:"type"`
	ExecutionID    string             `json:"executionId"`
	ConversationID string             `json:"conversationId"`
	Event          json.RawMessage    `json:"event"`
	Timestamp      time.Time          `json:"timestamp"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn := dialWebSocket(t, url)
	if m := readMessage(t, conn); m.Type != events.MessagePing {
		t.Fatalf("greeting type = %q, want ping", m.Type)
	}
	return conn
}

func TestServer_ControlFrames(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	conn := connect(t, url)

	if srv.Registry().Count() != 1 {
		t.Fatalf("Count() = %d, want 1", srv.Registry().Count())
	}
	id := srv.Registry().GetAllClients()[0].ID()

	writeJSON(t, conn, map[string]string{"type": "subscribe", "executionId": "exec-1", "conversationId": "conv-1"})
	if m := readMessage(t, conn); m.Type != events.MessagePong {
		t.Fatalf("subscribe ack type = %q, want pong", m.Type)
	}
	execs, convs := srv.Registry().Subscriptions(id)
	if len(execs) != 1 || execs[0] != "exec-1" || len(convs) != 1 || convs[0] != "conv-1" {
		t.Fatalf("Subscriptions() = %v %v", execs, convs)
	}

	writeJSON(t, conn, map[string]string{"type": "unsubscribe", "executionId": "exec-1"})
	writeJSON(t, conn, map[string]string{"type": "ping"})
	if m := readMessage(t, conn); m.Type != events.MessagePong {
		t.Fatalf("ping reply type = %q, want pong", m.Type)
	}
	execs, convs = srv.Registry().Subscriptions(id)
	if len(execs) != 0 || len(convs) != 1 {
		t.Errorf("after unsubscribe: %v %v", execs, convs)
	}
}

func TestServer_BadFramesKeepConnection(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	conn := connect(t, url)

	for _, frame := range []string{`{not json`, `{"executionId":"x"}`, `{"type":"teleport"}`, `42`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write %s: %v", frame, err)
		}
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	writeJSON(t, conn, map[string]string{"type": "ping"})
	if m := readMessage(t, conn); m.Type != events.MessagePong {
		t.Fatalf("reply type = %q, want pong", m.Type)
	}
	if srv.Registry().Count() != 1 {
		t.Error("connection dropped after bad frames")
	}
}

func TestServer_ClientCloseRemovesConnection(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	conn := connect(t, url)
	waitFor(t, func() bool { return srv.Registry().Count() == 1 }, "connection not registered")

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, func() bool { return srv.Registry().Count() == 0 }, "connection not removed after client close")
}

func TestServer_OriginCheck(t *testing.T) {
	_, url := setupServer(t, ServerConfig{AllowedOrigins: []string{"https://app.example.com"}})

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("dial from unauthorized origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v, want 403", resp)
	}
	_ = resp.Body.Close()

	header = http.Header{"Origin": {"https://app.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	_ = resp.Body.Close()
	_ = conn.Close()
}

func TestServer_InboundRateLimit(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{InboundRate: 0.001, InboundBurst: 1})
	conn := connect(t, url)
	id := srv.Registry().GetAllClients()[0].ID()

	writeJSON(t, conn, map[string]string{"type": "subscribe", "executionId": "first"})
	if m := readMessage(t, conn); m.Type != events.MessagePong {
		t.Fatalf("first subscribe ack = %q", m.Type)
	}
	writeJSON(t, conn, map[string]string{"type": "subscribe", "executionId": "second"})
	expectNoMessage(t, conn, 200*time.Millisecond)

	execs, _ := srv.Registry().Subscriptions(id)
	if len(execs) != 1 || execs[0] != "first" {
		t.Errorf("Subscriptions() = %v, want [first]", execs)
	}
}

func TestServer_Shutdown(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	conn := connect(t, url)

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if srv.Registry().Count() != 0 {
		t.Error("registry not cleared")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client connection should be closed after shutdown")
	}

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial after shutdown should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("response = %v, want 503", resp)
	}
	_ = resp.Body.Close()

	if err := srv.RunHeartbeat(context.Background()); err != nil {
		t.Errorf("RunHeartbeat after shutdown = %v, want nil", err)
	}
}

func TestServer_ShutdownDuringUpgrade(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	// Shut down after the first closed check but before registration.
	srv.upgrader.CheckOrigin = func(*http.Request) bool {
		_ = srv.Shutdown(context.Background())
		return true
	}

	conn := dialWebSocket(t, url)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read = %v, want normal close", err)
	}
	if n := srv.Registry().Count(); n != 0 {
		t.Errorf("registry holds %d connections after shutdown", n)
	}
}

func TestServer_DispatchBusMessage(t *testing.T) {
	reg := NewRegistry(time.Minute)
	srv := NewServer(reg, ServerConfig{})

	convSub, execSub, other, monitor := newFakeTransport(), newFakeTransport(), newFakeTransport(), newFakeTransport()
	reg.SubscribeToConversation(reg.AddConnection(convSub), "conv-42")
	reg.Subscribe(reg.AddConnection(execSub), "exec-7")
	reg.Subscribe(reg.AddConnection(other), "exec-unrelated")
	reg.AddConnection(monitor)

	ev := events.NewAgentStart(events.Ref{ExecutionID: "exec-7", ConversationID: "conv-42"}, "a", "A", "")
	payload, err := events.Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	srv.DispatchBusMessage("conversation:conv-42", payload)
	if convSub.received() != 1 {
		t.Errorf("conversation subscriber received %d", convSub.received())
	}
	if other.received() != 0 || execSub.received() != 0 || monitor.received() != 0 {
		t.Error("conversation message leaked to other connections")
	}
	var m wireMessage
	if err := json.Unmarshal(convSub.last(), &m); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if m.Type != events.MessageEvent || m.ConversationID != "conv-42" || m.ExecutionID != "exec-7" {
		t.Errorf("frame = %+v", m)
	}
	if decoded, err := events.Decode(m.Event); err != nil || decoded.Kind() != events.TypeAgentStart {
		t.Errorf("embedded event = %v, %v", decoded, err)
	}

	srv.DispatchBusMessage("execution:exec-7", payload)
	if execSub.received() != 1 || other.received() != 0 {
		t.Error("execution message not routed to its subscriber only")
	}

	srv.DispatchBusMessage("execution:all", payload)
	for i, tr := range []*fakeTransport{convSub, other, monitor} {
		if tr.received() != 1 {
			t.Errorf("transport %d received %d after global message, want 1", i, tr.received())
		}
	}
	if execSub.received() != 2 {
		t.Errorf("execution subscriber received %d, want 2", execSub.received())
	}

	srv.DispatchBusMessage("automated-gather:nightly", []byte("batch done"))
	for i, tr := range []*fakeTransport{convSub, execSub, other, monitor} {
		if err := json.Unmarshal(tr.last(), &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(m.Event) != `"batch done"` {
			t.Errorf("transport %d pass-through event = %s", i, m.Event)
		}
	}

	before := monitor.received()
	srv.DispatchBusMessage("bogus", payload)
	srv.DispatchBusMessage("session:1", payload)
	if monitor.received() != before {
		t.Error("unparseable channel should be ignored")
	}
}

// A producer that only publishes on the global channel still reaches the
// execution's own subscribers.
func TestServer_GlobalOnlyReachesExecutionSubscribers(t *testing.T) {
	reg := NewRegistry(time.Minute)
	srv := NewServer(reg, ServerConfig{})

	execSub, convSub, monitor := newFakeTransport(), newFakeTransport(), newFakeTransport()
	id := reg.AddConnection(execSub)
	reg.Subscribe(id, "exec-1")
	reg.SubscribeToConversation(id, "conv-1")
	reg.SubscribeToConversation(reg.AddConnection(convSub), "conv-1")
	reg.AddConnection(monitor)

	payload, err := events.Encode(events.NewAgentStart(events.Ref{ExecutionID: "exec-1", ConversationID: "conv-1"}, "a", "A", ""))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	srv.DispatchBusMessage(bus.AllExecutions().String(), payload)

	for i, tr := range []*fakeTransport{execSub, convSub, monitor} {
		if tr.received() != 1 {
			t.Errorf("transport %d received %d, want 1", i, tr.received())
		}
	}
	var m wireMessage
	if err := json.Unmarshal(execSub.last(), &m); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if m.ExecutionID != "exec-1" || m.ConversationID != "conv-1" {
		t.Errorf("frame ids = %q/%q", m.ExecutionID, m.ConversationID)
	}
}

func TestServer_Sweep(t *testing.T) {
	reg, clock := newClockedRegistry(time.Minute)
	srv := NewServer(reg, ServerConfig{})

	open, closed, silent := newFakeTransport(), newFakeTransport(), newFakeTransport()
	openID := reg.AddConnection(open)
	reg.AddConnection(closed)
	reg.AddConnection(silent)
	_ = closed.Close()

	clock.Advance(90 * time.Second)
	reg.UpdateLastPing(openID)

	pinged, removed, evicted := srv.Sweep()
	if pinged != 2 || removed != 1 || evicted != 1 {
		t.Errorf("Sweep() = %d pinged, %d removed, %d evicted; want 2, 1, 1", pinged, removed, evicted)
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
	if open.pings.Load() != 1 {
		t.Errorf("open transport pinged %d times", open.pings.Load())
	}
}

func TestServer_RunHeartbeat(t *testing.T) {
	reg := NewRegistry(time.Minute)
	srv := NewServer(reg, ServerConfig{HeartbeatInterval: 5 * time.Millisecond})
	tr := newFakeTransport()
	reg.AddConnection(tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunHeartbeat(ctx) }()

	waitFor(t, func() bool { return tr.pings.Load() >= 2 }, "heartbeat never pinged")
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunHeartbeat returned %v", err)
	}
}

func TestServer_HeartbeatPingReachesClient(t *testing.T) {
	srv, url := setupServer(t, ServerConfig{})
	conn := connect(t, url)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		pinged <- struct{}{}
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conns := srv.Registry().GetAllClients()
	before := conns[0].LastPing()
	time.Sleep(5 * time.Millisecond)
	srv.Sweep()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("client never received a transport ping")
	}
	waitFor(t, func() bool { return conns[0].LastPing().After(before) }, "pong did not refresh heartbeat")
}

// Emit through the full pipeline: emitter, memory bus, subscriber, server.
func TestServer_EndToEnd(t *testing.T) {
	mb := bus.NewMemory(bus.Config{})
	t.Cleanup(func() { _ = mb.Close() })

	srv, url := setupServer(t, ServerConfig{})
	sub := bus.NewSubscriber(mb, srv, bus.SubscriberConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = sub.Serve(ctx) }()
	waitFor(t, sub.Connected, "bus subscriber never connected")

	em := emitter.New(emitter.Config{}, emitter.WithPublisher(bus.NewPublisher(mb, bus.DefaultBreakerConfig(), time.Second)))
	t.Cleanup(func() { _ = em.Shutdown(context.Background()) })

	conn := connect(t, url)
	writeJSON(t, conn, map[string]string{"type": "subscribe", "executionId": "exec-1"})
	if m := readMessage(t, conn); m.Type != events.MessagePong {
		t.Fatalf("subscribe ack = %q", m.Type)
	}

	em.AgentStarted(events.Ref{ExecutionID: "exec-1"}, "story-head", "Story Head", "content")

	m := readMessage(t, conn)
	if m.Type != events.MessageEvent || m.ExecutionID != "exec-1" {
		t.Fatalf("message = %+v", m)
	}
	var body struct {
		Type    string `json:"type"`
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(m.Event, &body); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if body.Type != "agent-start" || body.AgentID != "story-head" {
		t.Errorf("event = %+v", body)
	}

	// The same event also arrives on the global channel.
	if again := readMessage(t, conn); string(again.Event) != string(m.Event) {
		t.Errorf("global copy = %s, want %s", again.Event, m.Event)
	}
	expectNoMessage(t, conn, 200*time.Millisecond)
}
