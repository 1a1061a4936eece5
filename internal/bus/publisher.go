// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/agentstream/internal/events"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/metrics"
)

// BreakerConfig configures the publish circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig trips after five consecutive failures and retries after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "bus-publisher",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// newCircuitBreaker builds a breaker that exports its state as a metric.
func newCircuitBreaker(cfg BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// Publisher fans events out to their bus channels.
type Publisher struct {
	bus     Bus
	cb      *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPublisher wraps b. timeout bounds each publish call; zero means 5s.
func NewPublisher(b Bus, breaker BreakerConfig, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := logging.WithComponent("bus-publisher").With().Str("backend", b.Backend()).Logger()
	return &Publisher{
		bus:     b,
		cb:      newCircuitBreaker(breaker, logger),
		timeout: timeout,
		logger:  logger,
	}
}

// PublishEvent encodes ev once and publishes it to the execution channel, the
// conversation channel when set, and the global channel. A failure on one
// channel does not stop the others; all failures are returned joined.
func (p *Publisher) PublishEvent(ctx context.Context, ev events.Event) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}
	h := ev.Header()
	return p.PublishPayload(ctx, PublishChannels(h.ExecutionID, h.ConversationID), payload)
}

// PublishPayload publishes an encoded payload to each channel.
func (p *Publisher) PublishPayload(ctx context.Context, channels []Channel, payload []byte) error {
	var errs []error
	for _, ch := range channels {
		if err := p.publish(ctx, ch, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, ch Channel, payload []byte) error {
	_, err := p.cb.Execute(func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.bus.Publish(pctx, ch, payload)
	})

	scope := ch.Scope.String()
	switch {
	case err == nil:
		metrics.RecordBusPublish(scope, "ok")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBusPublish(scope, "circuit_open")
		return fmt.Errorf("%w: %s", ErrCircuitOpen, ch)
	default:
		metrics.RecordBusPublish(scope, "error")
		return err
	}
}

// State returns the circuit breaker state name.
func (p *Publisher) State() string {
	return p.cb.State().String()
}

// Close closes the underlying bus.
func (p *Publisher) Close() error {
	return p.bus.Close()
}
