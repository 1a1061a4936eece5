// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// Dispatcher receives bus messages for local delivery.
type Dispatcher interface {
	DispatchBusMessage(channel string, payload []byte)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(channel string, payload []byte)

// DispatchBusMessage implements Dispatcher.
func (f DispatcherFunc) DispatchBusMessage(channel string, payload []byte) { f(channel, payload) }

// SubscriberConfig tunes reconnection.
type SubscriberConfig struct {
	Patterns       []Pattern
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Subscriber forwards bus messages to a Dispatcher. It implements
// suture.Service and keeps resubscribing with exponential backoff, capped at
// MaxBackoff, while the bus is unavailable.
type Subscriber struct {
	bus        Bus
	dispatcher Dispatcher
	patterns   []Pattern
	initial    time.Duration
	max        time.Duration
	logger     zerolog.Logger

	connected atomic.Bool
	received  atomic.Int64
}

// NewSubscriber creates a subscriber. Empty patterns default to DefaultPatterns.
func NewSubscriber(b Bus, d Dispatcher, cfg SubscriberConfig) *Subscriber {
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Subscriber{
		bus:        b,
		dispatcher: d,
		patterns:   cfg.Patterns,
		initial:    cfg.InitialBackoff,
		max:        cfg.MaxBackoff,
		logger:     logging.WithComponent("bus-subscriber").With().Str("backend", b.Backend()).Logger(),
	}
}

// Serve subscribes and dispatches until ctx is canceled.
func (s *Subscriber) Serve(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initial
	bo.MaxInterval = s.max
	bo.Reset()

	defer s.setConnected(false)

	for {
		deliveries, err := s.bus.Subscribe(ctx, s.patterns...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return suture.ErrDoNotRestart
			}
			wait := bo.NextBackOff()
			metrics.BusReconnects.Inc()
			s.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Bus subscribe failed, delivering locally only")
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		bo.Reset()
		s.setConnected(true)
		s.logger.Info().Interface("patterns", s.patterns).Msg("Bus subscriber connected")

		for d := range deliveries {
			s.dispatch(d)
		}
		s.setConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := bo.NextBackOff()
		metrics.BusReconnects.Inc()
		s.logger.Warn().Dur("retry_in", wait).Msg("Bus subscription lost, resubscribing")
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (s *Subscriber) dispatch(d Delivery) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("channel", d.Channel).Msg("Dispatcher panicked")
		}
	}()

	scope := "unknown"
	if ch, err := ParseChannel(d.Channel); err == nil {
		scope = ch.Scope.String()
	}
	metrics.RecordBusDelivery(scope)
	s.received.Add(1)
	s.dispatcher.DispatchBusMessage(d.Channel, d.Payload)
}

func (s *Subscriber) setConnected(v bool) {
	s.connected.Store(v)
	metrics.SetBusConnected(v)
}

// Connected reports whether a subscription is currently held.
func (s *Subscriber) Connected() bool { return s.connected.Load() }

// Received returns the number of messages dispatched.
func (s *Subscriber) Received() int64 { return s.received.Load() }

// String implements fmt.Stringer for supervisor logging.
func (s *Subscriber) String() string { return "bus-subscriber" }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
