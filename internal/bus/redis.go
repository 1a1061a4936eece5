// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/logging"
)

// RedisBus is a Bus on redis PUBLISH / PSUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	buffer int
	logger zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedis creates a redis bus from cfg.RedisURL.
func NewRedis(cfg Config) (*RedisBus, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return newRedisWithClient(redis.NewClient(opts), cfg.DeliveryBuffer), nil
}

func newRedisWithClient(client *redis.Client, buffer int) *RedisBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &RedisBus{
		client: client,
		buffer: buffer,
		logger: logging.WithComponent("bus").With().Str("backend", BackendRedis).Logger(),
		done:   make(chan struct{}),
	}
}

// Backend implements Bus.
func (b *RedisBus) Backend() string { return BackendRedis }

func (b *RedisBus) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, ch Channel, payload []byte) error {
	if b.closed() {
		return ErrClosed
	}
	if !ch.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidChannel, ch)
	}
	if err := b.client.Publish(ctx, ch.String(), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ch, err)
	}
	return nil
}

// Subscribe implements Bus. The PSUBSCRIBE is confirmed before returning so
// callers learn about an unreachable server immediately.
func (b *RedisBus) Subscribe(ctx context.Context, patterns ...Pattern) (<-chan Delivery, error) {
	if b.closed() {
		return nil, ErrClosed
	}
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = string(p)
	}

	ps := b.client.PSubscribe(ctx, names...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	out := make(chan Delivery, b.buffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if !forward(ctx, b.done, out, Delivery{Channel: m.Channel, Payload: []byte(m.Payload)}) {
					return
				}
			}
		}
	}()

	b.logger.Debug().Strs("patterns", names).Msg("Subscribed to redis patterns")
	return out, nil
}

// Ping implements Bus.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes all subscriptions and the client.
func (b *RedisBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.client.Close()
	})
	return err
}
