// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package websocket

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/bus"
	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// ServerConfig holds connection server settings.
type ServerConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	ClientTimeout     time.Duration `koanf:"client_timeout" validate:"gt=0"`
	SendQueueSize     int           `koanf:"send_queue_size" validate:"min=1"`
	InboundRate       float64       `koanf:"inbound_rate" validate:"min=0"`
	InboundBurst      int           `koanf:"inbound_burst" validate:"min=0"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	Verbose           bool          `koanf:"verbose"`
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HeartbeatInterval: 30 * time.Second,
		ClientTimeout:     60 * time.Second,
		SendQueueSize:     256,
		InboundRate:       20,
		InboundBurst:      40,
	}
}

// Server accepts WebSocket connections and routes events to them.
type Server struct {
	registry *Registry
	cfg      ServerConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	closed       atomic.Bool
	stopOnce     sync.Once
	stop         chan struct{}
	shutdownOnce sync.Once
}

// NewServer creates a server over reg.
func NewServer(reg *Registry, cfg ServerConfig) *Server {
	def := DefaultServerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = def.ClientTimeout
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}

	s := &Server{
		registry: reg,
		cfg:      cfg,
		logger:   logging.WithComponent("ws-server"),
		stop:     make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

// Registry returns the server's registry.
func (s *Server) Registry() *Registry { return s.registry }

// checkOrigin allows any origin when no list is configured. Otherwise the
// Origin header must match an entry or the list must contain "*".
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		s.logger.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	s.logger.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and caps length.
func sanitizeLogValue(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// ServeHTTP upgrades the request and registers the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := newClient(conn, s.cfg, s.logger)
	id := s.registry.AddConnection(client)
	if s.closed.Load() {
		// Shutdown cleared the registry while this upgrade was in flight.
		s.registry.RemoveConnection(id)
		_ = client.Close()
		return
	}

	client.start(clientHooks{
		onMessage: func(data []byte) { s.handleFrame(id, client, data) },
		onPong:    func() { s.registry.UpdateLastPing(id) },
		onClose:   func() { s.registry.RemoveConnection(id) },
	})

	s.sendMessage(client, events.NewPing())
	s.logger.Info().Str("conn_id", id).Str("remote", r.RemoteAddr).Int("total_clients", s.registry.Count()).
		Msg("WebSocket client connected")
}

func (s *Server) sendMessage(t Transport, msg events.Message) bool {
	data, err := msg.Marshal()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode message")
		return false
	}
	if !t.Send(data) {
		return false
	}
	metrics.RecordWSMessageSent(string(msg.Type))
	return true
}

// handleFrame applies one client control frame. Bad frames are logged and
// the connection stays open.
func (s *Server) handleFrame(id string, client Transport, data []byte) {
	msg, err := events.DecodeMessage(data)
	if err != nil {
		metrics.RecordWSMessageReceived("invalid")
		s.logger.Warn().Err(err).Str("conn_id", id).Msg("Ignoring malformed client message")
		return
	}
	metrics.RecordWSMessageReceived(string(msg.Type))

	switch msg.Type {
	case events.MessageSubscribe:
		if msg.ExecutionID != "" {
			s.registry.Subscribe(id, msg.ExecutionID)
		}
		if msg.ConversationID != "" {
			s.registry.SubscribeToConversation(id, msg.ConversationID)
		}
		s.debug().Str("conn_id", id).Str("execution_id", msg.ExecutionID).
			Str("conversation_id", msg.ConversationID).Msg("Client subscribed")
		s.sendMessage(client, events.NewPong())
	case events.MessageUnsubscribe:
		if msg.ExecutionID != "" {
			s.registry.Unsubscribe(id, msg.ExecutionID)
		}
		if msg.ConversationID != "" {
			s.registry.UnsubscribeFromConversation(id, msg.ConversationID)
		}
		s.debug().Str("conn_id", id).Str("execution_id", msg.ExecutionID).
			Str("conversation_id", msg.ConversationID).Msg("Client unsubscribed")
	case events.MessagePing:
		s.registry.UpdateLastPing(id)
		s.sendMessage(client, events.NewPong())
	case events.MessagePong:
		s.registry.UpdateLastPing(id)
	default:
		s.logger.Warn().Str("conn_id", id).Str("type", sanitizeLogValue(string(msg.Type))).
			Msg("Ignoring unknown client message type")
	}
}

// debug logs at info when the server runs verbose, at debug otherwise.
func (s *Server) debug() *zerolog.Event {
	if s.cfg.Verbose {
		return s.logger.Info()
	}
	return s.logger.Debug()
}

// Sweep pings open connections, removes closed ones and evicts connections
// past the heartbeat timeout.
func (s *Server) Sweep() (pinged, removed, evicted int) {
	for _, c := range s.registry.GetAllClients() {
		t := c.Transport()
		if !t.Open() {
			if s.registry.RemoveConnection(c.ID()) {
				metrics.RecordWSEviction("closed")
				removed++
			}
			continue
		}
		if err := t.Ping(); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("Heartbeat ping failed")
			continue
		}
		pinged++
	}
	evicted = s.registry.CleanupTimedOutClients()
	if removed > 0 || evicted > 0 {
		s.logger.Info().Int("removed", removed).Int("evicted", evicted).Int("remaining", s.registry.Count()).
			Msg("Heartbeat sweep removed connections")
	}
	return pinged, removed, evicted
}

// RunHeartbeat sweeps every heartbeat interval until ctx is done or the
// server shuts down.
func (s *Server) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// DispatchBusMessage routes a bus delivery to subscribed connections by
// channel scope. It implements bus.Dispatcher.
func (s *Server) DispatchBusMessage(channel string, payload []byte) {
	ch, err := bus.ParseChannel(channel)
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", sanitizeLogValue(channel)).Msg("Ignoring bus message on unknown channel")
		return
	}

	msg := events.WrapPayload(payload)
	switch ch.Scope {
	case bus.ScopeExecution:
		if msg.ExecutionID == "" {
			msg.ExecutionID = ch.ID
		}
	case bus.ScopeConversation:
		if msg.ConversationID == "" {
			msg.ConversationID = ch.ID
		}
	}
	data, err := msg.Marshal()
	if err != nil {
		s.logger.Error().Err(err).Str("channel", channel).Msg("Failed to wrap bus message")
		return
	}

	var n int
	switch ch.Scope {
	case bus.ScopeExecution:
		n = s.registry.Broadcast(ch.ID, data)
	case bus.ScopeConversation:
		n = s.registry.BroadcastToConversation(ch.ID, data)
	case bus.ScopeAllExecutions, bus.ScopeAutomatedGather:
		n = s.registry.BroadcastAll(data)
	}
	if n > 0 {
		metrics.WSMessagesSent.WithLabelValues(string(events.MessageEvent)).Add(float64(n))
	}
	s.debug().Str("channel", channel).Int("recipients", n).Msg("Dispatched bus message")
}

// StopHeartbeat ends RunHeartbeat.
func (s *Server) StopHeartbeat() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Shutdown stops the heartbeat, refuses new connections and disconnects
// every client. The HTTP listener and the bus subscriber are owned and
// stopped by their supervised services.
func (s *Server) Shutdown(_ context.Context) error {
	s.shutdownOnce.Do(func() {
		start := time.Now()
		s.closed.Store(true)
		s.StopHeartbeat()
		s.logger.Info().Msg("Heartbeat stopped")

		n := s.registry.DisconnectAll()
		s.logger.Info().Int("clients_closed", n).Dur("duration", time.Since(start)).Msg("WebSocket server stopped")
	})
	return nil
}
