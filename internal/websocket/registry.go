// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package websocket

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// Transport is the registry's handle on one client connection.
type Transport interface {
	// Send queues a text frame. It returns false when the frame was not accepted.
	Send(data []byte) bool
	// Ping sends a transport level ping.
	Ping() error
	// Open reports whether the transport can still carry frames.
	Open() bool
	Close() error
}

// connSeq orders connections so fan-out and shutdown visit them in
// connection order rather than map order.
var connSeq atomic.Uint64

// Connection is a registered transport and its heartbeat state.
type Connection struct {
	id          string
	seq         uint64
	transport   Transport
	connectedAt time.Time
	lastPing    atomic.Int64

	// Guarded by Registry.mu.
	executions    map[string]struct{}
	conversations map[string]struct{}
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// Transport returns the underlying transport.
func (c *Connection) Transport() Transport { return c.transport }

// ConnectedAt returns the registration time.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// LastPing returns the last heartbeat time.
func (c *Connection) LastPing() time.Time { return time.Unix(0, c.lastPing.Load()) }

// Send forwards data when the transport is open.
func (c *Connection) Send(data []byte) bool {
	if !c.transport.Open() {
		return false
	}
	return c.transport.Send(data)
}

// RegistryStats is a snapshot of registry size.
type RegistryStats struct {
	Connections               int `json:"connections"`
	Executions                int `json:"executions"`
	Conversations             int `json:"conversations"`
	ExecutionSubscriptions    int `json:"execution_subscriptions"`
	ConversationSubscriptions int `json:"conversation_subscriptions"`
}

// Registry tracks live connections and their subscriptions. Every
// subscription index entry refers to a registered connection.
type Registry struct {
	mu             sync.RWMutex
	conns          map[string]*Connection
	byExecution    map[string]map[string]*Connection
	byConversation map[string]map[string]*Connection

	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRegistry creates a registry that evicts connections silent for longer
// than timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Registry{
		conns:          make(map[string]*Connection),
		byExecution:    make(map[string]map[string]*Connection),
		byConversation: make(map[string]map[string]*Connection),
		timeout:        timeout,
		now:            time.Now,
		logger:         logging.WithComponent("ws-registry"),
	}
}

// Timeout returns the heartbeat timeout.
func (r *Registry) Timeout() time.Duration { return r.timeout }

// AddConnection registers t under a fresh id.
func (r *Registry) AddConnection(t Transport) string {
	c := &Connection{
		id:            uuid.NewString(),
		seq:           connSeq.Add(1),
		transport:     t,
		connectedAt:   r.now(),
		executions:    make(map[string]struct{}),
		conversations: make(map[string]struct{}),
	}
	c.lastPing.Store(c.connectedAt.UnixNano())

	r.mu.Lock()
	r.conns[c.id] = c
	n := len(r.conns)
	r.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(n))
	r.logger.Debug().Str("conn_id", c.id).Int("total_clients", n).Msg("Connection registered")
	return c.id
}

// RemoveConnection drops the connection and its subscriptions. It reports
// whether anything was removed; removing twice is harmless.
func (r *Registry) RemoveConnection(id string) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		r.removeLocked(c)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		metrics.WSConnectionsActive.Set(float64(n))
		r.updateSubscriptionGauges()
		r.logger.Debug().Str("conn_id", id).Int("total_clients", n).Msg("Connection removed")
	}
	return ok
}

func (r *Registry) removeLocked(c *Connection) {
	for execID := range c.executions {
		unindex(r.byExecution, execID, c.id)
	}
	for convID := range c.conversations {
		unindex(r.byConversation, convID, c.id)
	}
	delete(r.conns, c.id)
}

func index(idx map[string]map[string]*Connection, key string, c *Connection) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]*Connection)
		idx[key] = set
	}
	set[c.id] = c
}

func unindex(idx map[string]map[string]*Connection, key, connID string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// Subscribe adds an execution subscription. Unknown connections are ignored.
func (r *Registry) Subscribe(id, executionID string) bool {
	return r.subscribe(id, executionID, false)
}

// SubscribeToConversation adds a conversation subscription. Unknown
// connections are ignored.
func (r *Registry) SubscribeToConversation(id, conversationID string) bool {
	return r.subscribe(id, conversationID, true)
}

func (r *Registry) subscribe(id, key string, conversation bool) bool {
	if key == "" {
		return false
	}
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		if conversation {
			c.conversations[key] = struct{}{}
			index(r.byConversation, key, c)
		} else {
			c.executions[key] = struct{}{}
			index(r.byExecution, key, c)
		}
	}
	r.mu.Unlock()
	if ok {
		r.updateSubscriptionGauges()
	}
	return ok
}

// Unsubscribe removes an execution subscription.
func (r *Registry) Unsubscribe(id, executionID string) {
	r.unsubscribe(id, executionID, false)
}

// UnsubscribeFromConversation removes a conversation subscription.
func (r *Registry) UnsubscribeFromConversation(id, conversationID string) {
	r.unsubscribe(id, conversationID, true)
}

func (r *Registry) unsubscribe(id, key string, conversation bool) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		if conversation {
			delete(c.conversations, key)
			unindex(r.byConversation, key, id)
		} else {
			delete(c.executions, key)
			unindex(r.byExecution, key, id)
		}
	}
	r.mu.Unlock()
	if ok {
		r.updateSubscriptionGauges()
	}
}

// Subscriptions returns the connection's execution and conversation ids, sorted.
func (r *Registry) Subscriptions(id string) (executions, conversations []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, nil
	}
	for k := range c.executions {
		executions = append(executions, k)
	}
	for k := range c.conversations {
		conversations = append(conversations, k)
	}
	slices.Sort(executions)
	slices.Sort(conversations)
	return executions, conversations
}

// UpdateLastPing refreshes the connection's heartbeat.
func (r *Registry) UpdateLastPing(id string) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if ok {
		c.lastPing.Store(r.now().UnixNano())
	}
}

// Get looks up a connection.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func sorted(set map[string]*Connection) []*Connection {
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// GetClientsByExecution returns connections subscribed to the execution.
func (r *Registry) GetClientsByExecution(executionID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.byExecution[executionID])
}

// GetClientsByConversation returns connections subscribed to the conversation.
func (r *Registry) GetClientsByConversation(conversationID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.byConversation[conversationID])
}

// GetAllClients returns every registered connection.
func (r *Registry) GetAllClients() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.conns)
}

// send delivers data to each open connection and returns how many accepted it.
// Closed transports are skipped; removing them is the heartbeat sweep's job.
func send(conns []*Connection, data []byte) int {
	n := 0
	for _, c := range conns {
		if c.Send(data) {
			n++
		}
	}
	return n
}

// Broadcast sends data to connections subscribed to the execution.
func (r *Registry) Broadcast(executionID string, data []byte) int {
	return send(r.GetClientsByExecution(executionID), data)
}

// BroadcastToConversation sends data to connections subscribed to the conversation.
func (r *Registry) BroadcastToConversation(conversationID string, data []byte) int {
	return send(r.GetClientsByConversation(conversationID), data)
}

// BroadcastAll sends data to every connection.
func (r *Registry) BroadcastAll(data []byte) int {
	return send(r.GetAllClients(), data)
}

// CleanupTimedOutClients removes connections whose last heartbeat is older
// than the timeout and closes their transports.
func (r *Registry) CleanupTimedOutClients() int {
	cutoff := r.now().Add(-r.timeout).UnixNano()

	r.mu.Lock()
	var expired []*Connection
	for _, c := range r.conns {
		if c.lastPing.Load() < cutoff {
			expired = append(expired, c)
			r.removeLocked(c)
		}
	}
	n := len(r.conns)
	r.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	metrics.WSConnectionsActive.Set(float64(n))
	r.updateSubscriptionGauges()
	for _, c := range expired {
		metrics.RecordWSEviction("timeout")
		if err := c.transport.Close(); err != nil {
			r.logger.Debug().Err(err).Str("conn_id", c.id).Msg("Closing timed out transport")
		}
		r.logger.Info().
			Str("conn_id", c.id).
			Time("last_ping", c.LastPing()).
			Msg("Evicted connection after heartbeat timeout")
	}
	return len(expired)
}

// RemoveClosed removes connections whose transport is no longer open.
func (r *Registry) RemoveClosed() int {
	removed := 0
	for _, c := range r.GetAllClients() {
		if !c.transport.Open() && r.RemoveConnection(c.id) {
			metrics.RecordWSEviction("closed")
			removed++
		}
	}
	return removed
}

// DisconnectAll closes every transport and clears all state.
func (r *Registry) DisconnectAll() int {
	r.mu.Lock()
	conns := sorted(r.conns)
	r.conns = make(map[string]*Connection)
	r.byExecution = make(map[string]map[string]*Connection)
	r.byConversation = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.transport.Close()
	}
	metrics.WSConnectionsActive.Set(0)
	r.updateSubscriptionGauges()
	r.logger.Info().Int("clients_closed", len(conns)).Msg("Closed all websocket clients")
	return len(conns)
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns a snapshot of registry size.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := RegistryStats{
		Connections:   len(r.conns),
		Executions:    len(r.byExecution),
		Conversations: len(r.byConversation),
	}
	for _, set := range r.byExecution {
		s.ExecutionSubscriptions += len(set)
	}
	for _, set := range r.byConversation {
		s.ConversationSubscriptions += len(set)
	}
	return s
}

func (r *Registry) updateSubscriptionGauges() {
	s := r.Stats()
	metrics.WSSubscriptionsActive.WithLabelValues("execution").Set(float64(s.ExecutionSubscriptions))
	metrics.WSSubscriptionsActive.WithLabelValues("conversation").Set(float64(s.ConversationSubscriptions))
}
