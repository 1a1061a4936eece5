// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/logging"
)

// NATSBus is a Bus on core NATS subjects. Channel "execution:42" maps to
// subject "<prefix>.execution.42" and pattern "execution:*" to
// "<prefix>.execution.*".
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	buffer int
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewNATS connects to cfg.NATSURL. The connection is retried in the
// background when the server is not reachable yet.
func NewNATS(cfg Config) (*NATSBus, error) {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "agentstream"
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	buffer := cfg.DeliveryBuffer
	if buffer <= 0 {
		buffer = 256
	}

	logger := logging.WithComponent("bus").With().Str("backend", BackendNATS).Logger()

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("agentstream"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logger.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSBus{
		conn:   conn,
		prefix: prefix,
		buffer: buffer,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// validToken reports whether id can be used as a single subject token.
func validToken(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r == '.' || r == '*' || r == '>' || unicode.IsSpace(r)
	})
}

// subject maps a channel to its NATS subject.
func (b *NATSBus) subject(ch Channel) (string, error) {
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %+v", ErrInvalidChannel, ch)
	}
	prefix, id, _ := strings.Cut(ch.String(), separator)
	if !validToken(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, id)
	}
	return b.prefix + "." + prefix + "." + id, nil
}

// patternSubject maps a pattern such as "execution:*" to a wildcard subject.
func (b *NATSBus) patternSubject(p Pattern) string {
	prefix, rest, _ := strings.Cut(string(p), separator)
	return b.prefix + "." + prefix + "." + rest
}

// channelName maps a received subject back to a channel name.
func (b *NATSBus) channelName(subject string) string {
	rest := strings.TrimPrefix(subject, b.prefix+".")
	prefix, id, ok := strings.Cut(rest, ".")
	if !ok {
		return rest
	}
	return prefix + separator + id
}

// Backend implements Bus.
func (b *NATSBus) Backend() string { return BackendNATS }

func (b *NATSBus) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Publish implements Bus. While disconnected, nats.go buffers publishes up to
// its reconnect buffer size.
func (b *NATSBus) Publish(_ context.Context, ch Channel, payload []byte) error {
	if b.closed() {
		return ErrClosed
	}
	subj, err := b.subject(ch)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(subj, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subj, err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *NATSBus) Subscribe(ctx context.Context, patterns ...Pattern) (<-chan Delivery, error) {
	if b.closed() {
		return nil, ErrClosed
	}

	msgs := make(chan *nats.Msg, b.buffer)
	subs := make([]*nats.Subscription, 0, len(patterns))
	unsubscribe := func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}

	for _, p := range patterns {
		sub, err := b.conn.ChanSubscribe(b.patternSubject(p), msgs)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("nats subscribe %s: %w", p, err)
		}
		subs = append(subs, sub)
	}
	if b.conn.IsConnected() {
		if err := b.conn.FlushWithContext(ctx); err != nil {
			unsubscribe()
			return nil, fmt.Errorf("nats flush subscriptions: %w", err)
		}
	}

	out := make(chan Delivery, b.buffer)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case m := <-msgs:
				d := Delivery{Channel: b.channelName(m.Subject), Payload: m.Data}
				if !forward(ctx, b.done, out, d) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping implements Bus.
func (b *NATSBus) Ping(ctx context.Context) error {
	if b.closed() {
		return ErrClosed
	}
	if !b.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close flushes pending publishes best-effort and closes the connection.
func (b *NATSBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		if b.conn.IsConnected() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = b.conn.FlushWithContext(ctx)
			cancel()
		}
		b.conn.Close()
	})
	return nil
}
