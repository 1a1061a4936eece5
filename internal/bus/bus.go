// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

// Package bus bridges agent events across Agentstream instances.
//
// Channels are named "execution:<id>", "conversation:<id>", "execution:all"
// and "automated-gather:<id>"; Channel and ParseChannel are the only code
// that builds or splits those names.
//
// The Publisher side is attached to the emitter and fans each event out to
// its execution, conversation and global channels. The Subscriber side is a
// supervised service that pattern-subscribes to every namespace and hands
// deliveries to a Dispatcher (the WebSocket server), reconnecting with
// bounded exponential backoff while the bus is unavailable.
//
// Backends: redis (PUBLISH/PSUBSCRIBE), nats (core subjects with wildcards)
// and memory (watermill gochannel, single process).
package bus

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Delivery is one message received from the bus.
type Delivery struct {
	// Channel is the channel name the message was published to.
	Channel string
	Payload []byte
}

// Bus is a pub/sub transport.
type Bus interface {
	// Publish sends payload to ch.
	Publish(ctx context.Context, ch Channel, payload []byte) error
	// Subscribe delivers messages on channels matching any pattern. The
	// returned channel is closed when ctx is done, the bus is closed or the
	// subscription is lost.
	Subscribe(ctx context.Context, patterns ...Pattern) (<-chan Delivery, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Backend returns the backend name.
	Backend() string
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend string

	RedisURL     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	NATSURL       string
	SubjectPrefix string
	ReconnectWait time.Duration

	// DeliveryBuffer is the capacity of subscription channels.
	DeliveryBuffer int
}

// DefaultConfig returns a zero-configuration local redis setup.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendRedis,
		RedisURL:       "redis://localhost:6379",
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		NATSURL:        "nats://127.0.0.1:4222",
		SubjectPrefix:  "agentstream",
		ReconnectWait:  2 * time.Second,
		DeliveryBuffer: 256,
	}
}

// New creates the bus selected by cfg.Backend. Construction does not
// require the remote side to be reachable.
func New(cfg Config) (Bus, error) {
	if cfg.DeliveryBuffer <= 0 {
		cfg.DeliveryBuffer = 256
	}
	switch cfg.Backend {
	case BackendRedis, "":
		return NewRedis(cfg)
	case BackendNATS:
		return NewNATS(cfg)
	case BackendMemory:
		return NewMemory(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

// forward sends d on out unless ctx or done fires first.
func forward(ctx context.Context, done <-chan struct{}, out chan<- Delivery, d Delivery) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	case <-done:
		return false
	}
}
