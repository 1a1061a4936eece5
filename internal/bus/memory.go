// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/agentstream/internal/logging"
)

const (
	memoryTopic       = "agentstream"
	metadataChannel   = "channel"
	memoryOutputQueue = 256
)

// MemoryBus is a single-process Bus on watermill's gochannel pub/sub. All
// channels share one topic; the channel name travels in message metadata
// and patterns are matched by the subscriber.
type MemoryBus struct {
	pubsub *gochannel.GoChannel
	buffer int

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemory creates an in-process bus.
func NewMemory(cfg Config) *MemoryBus {
	buffer := cfg.DeliveryBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: memoryOutputQueue,
			// Publish waits for the subscriber's ack, which keeps
			// per-publisher order intact.
			BlockPublishUntilSubscriberAck: true,
		}, logging.NewWatermillLogger("bus")),
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// Backend implements Bus.
func (b *MemoryBus) Backend() string { return BackendMemory }

func (b *MemoryBus) closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(_ context.Context, ch Channel, payload []byte) error {
	if b.closed() {
		return ErrClosed
	}
	if !ch.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidChannel, ch)
	}
	return b.PublishRaw(ch.String(), payload)
}

// PublishRaw publishes to an arbitrary channel name. It lets in-process
// producers of external namespaces feed the bridge.
func (b *MemoryBus) PublishRaw(channel string, payload []byte) error {
	if b.closed() {
		return ErrClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataChannel, channel)
	if err := b.pubsub.Publish(memoryTopic, msg); err != nil {
		return fmt.Errorf("memory publish %s: %w", channel, err)
	}
	return nil
}

func matchAny(patterns []Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(ctx context.Context, patterns ...Pattern) (<-chan Delivery, error) {
	if b.closed() {
		return nil, ErrClosed
	}
	msgs, err := b.pubsub.Subscribe(ctx, memoryTopic)
	if err != nil {
		return nil, fmt.Errorf("memory subscribe: %w", err)
	}

	out := make(chan Delivery, b.buffer)
	go func() {
		defer close(out)
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
				m.Ack()
				name := m.Metadata.Get(metadataChannel)
				if !matchAny(patterns, name) {
					continue
				}
				if !forward(ctx, b.done, out, Delivery{Channel: name, Payload: m.Payload}) {
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping implements Bus.
func (b *MemoryBus) Ping(_ context.Context) error {
	if b.closed() {
		return ErrClosed
	}
	return nil
}

// Close implements Bus.
func (b *MemoryBus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		if cerr := b.pubsub.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
	})
	return err
}
