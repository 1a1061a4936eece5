// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/agentstream/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// clientHooks connect a Client to the server that owns it.
type clientHooks struct {
	onMessage func(data []byte)
	onPong    func()
	onClose   func()
}

// Client is a Transport over a gorilla websocket connection. Frames are
// written by a single writePump goroutine from a bounded queue.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	limiter  *rate.Limiter
	readWait time.Duration
	logger   zerolog.Logger

	open      atomic.Bool
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, cfg ServerConfig, logger zerolog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.InboundRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.InboundRate), max(cfg.InboundBurst, 1))
	}
	c := &Client{
		conn:     conn,
		send:     make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
		limiter:  limiter,
		readWait: cfg.ClientTimeout + cfg.HeartbeatInterval,
		logger:   logger,
	}
	c.open.Store(true)
	return c
}

// Open implements Transport.
func (c *Client) Open() bool { return c.open.Load() }

// Send implements Transport. A client that cannot keep up is disconnected.
func (c *Client) Send(data []byte) bool {
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		metrics.RecordWSEviction("slow_consumer")
		c.logger.Warn().Int("queue", cap(c.send)).Msg("Send queue full, disconnecting slow client")
		// Close waits on the write lock; keep it off the broadcasting goroutine.
		c.open.Store(false)
		go func() { _ = c.Close() }()
		return false
	}
}

// Ping implements Transport.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close implements Transport. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *Client) start(h clientHooks) {
	go c.writePump()
	go c.readPump(h)
}

// readPump reads control frames until the connection fails.
func (c *Client) readPump(h clientHooks) {
	defer func() {
		_ = c.Close()
		h.onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		h.onPong()
		return c.conn.SetReadDeadline(time.Now().Add(c.readWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait))

		if msgType != websocket.TextMessage {
			metrics.RecordWSMessageReceived("binary")
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RecordWSMessageReceived("rate_limited")
			c.logger.Debug().Msg("Inbound frame dropped by rate limit")
			continue
		}
		h.onMessage(data)
	}
}

// writePump writes queued frames until the client is closed.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing client")
				_ = c.Close()
				return
			}
		}
	}
}
