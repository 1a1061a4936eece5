// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/agentstream/internal/bus"
	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/persistence"
	"github.com/tomtom215/agentstream/internal/validation"
	"github.com/tomtom215/agentstream/internal/websocket"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig           `koanf:"server"`
	WebSocket websocket.ServerConfig `koanf:"websocket"`
	Bus       BusConfig              `koanf:"bus"`
	Emitter   emitter.Config         `koanf:"emitter"`
	Store     StoreConfig            `koanf:"store"`
	Logging   LoggingConfig          `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings. The WebSocket endpoint and
// the REST API share this listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BusConfig selects and tunes the distributed bus.
type BusConfig struct {
	Backend        string        `koanf:"backend" validate:"oneof=redis nats memory"`
	RedisURL       string        `koanf:"redis_url"`
	NATSURL        string        `koanf:"nats_url"`
	SubjectPrefix  string        `koanf:"subject_prefix"`
	DialTimeout    time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait" validate:"gt=0"`
	DeliveryBuffer int           `koanf:"delivery_buffer" validate:"min=1"`
	PublishTimeout time.Duration `koanf:"publish_timeout" validate:"gt=0"`

	Breaker   BreakerConfig   `koanf:"breaker"`
	Reconnect ReconnectConfig `koanf:"reconnect"`
	Embedded  EmbeddedConfig  `koanf:"embedded"`
}

// BreakerConfig tunes the publish circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests" validate:"min=1"`
	Interval         time.Duration `koanf:"interval" validate:"min=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
}

// ReconnectConfig bounds the subscriber's resubscribe backoff.
type ReconnectConfig struct {
	InitialBackoff time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `koanf:"max_backoff" validate:"gt=0"`
}

// EmbeddedConfig runs a NATS server inside the process. Only used with the
// nats backend.
type EmbeddedConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port" validate:"min=-1,max=65535"`
	MaxPayload int32  `koanf:"max_payload" validate:"min=0"`
}

// StoreConfig selects the persistence adapter.
type StoreConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Backend       string        `koanf:"backend" validate:"oneof=badger sqlite memory"`
	Path          string        `koanf:"path"`
	Retention     time.Duration `koanf:"retention" validate:"min=0"`
	PruneInterval time.Duration `koanf:"prune_interval" validate:"gt=0"`
	SyncWrites    bool          `koanf:"sync_writes"`
	BusyTimeout   time.Duration `koanf:"busy_timeout" validate:"min=0"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks field rules and cross-field constraints.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	var errs []error
	switch c.Bus.Backend {
	case bus.BackendRedis:
		if c.Bus.RedisURL == "" {
			errs = append(errs, errors.New("bus.redis_url is required for the redis backend"))
		}
	case bus.BackendNATS:
		if c.Bus.NATSURL == "" && !c.Bus.Embedded.Enabled {
			errs = append(errs, errors.New("bus.nats_url is required unless bus.embedded.enabled is set"))
		}
	}
	if c.Bus.Embedded.Enabled && c.Bus.Backend != bus.BackendNATS {
		errs = append(errs, fmt.Errorf("bus.embedded.enabled requires the nats backend, got %q", c.Bus.Backend))
	}
	if c.Bus.Reconnect.MaxBackoff < c.Bus.Reconnect.InitialBackoff {
		errs = append(errs, errors.New("bus.reconnect.max_backoff must not be less than initial_backoff"))
	}
	if c.Store.Enabled && c.Store.Backend == persistence.BackendSQLite && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for the sqlite backend"))
	}
	if c.WebSocket.ClientTimeout < c.WebSocket.HeartbeatInterval {
		errs = append(errs, errors.New("websocket.client_timeout must not be less than heartbeat_interval"))
	}
	return errors.Join(errs...)
}

// BusOptions returns the bus backend configuration.
func (b BusConfig) BusOptions() bus.Config {
	return bus.Config{
		Backend:        b.Backend,
		RedisURL:       b.RedisURL,
		DialTimeout:    b.DialTimeout,
		ReadTimeout:    b.DialTimeout,
		WriteTimeout:   b.DialTimeout,
		NATSURL:        b.NATSURL,
		SubjectPrefix:  b.SubjectPrefix,
		ReconnectWait:  b.ReconnectWait,
		DeliveryBuffer: b.DeliveryBuffer,
	}
}

// BreakerOptions returns the publisher circuit breaker settings.
func (b BusConfig) BreakerOptions() bus.BreakerConfig {
	return bus.BreakerConfig{
		Name:             "bus-publisher",
		MaxRequests:      b.Breaker.MaxRequests,
		Interval:         b.Breaker.Interval,
		Timeout:          b.Breaker.Timeout,
		FailureThreshold: b.Breaker.FailureThreshold,
	}
}

// SubscriberOptions returns the bus subscriber settings.
func (b BusConfig) SubscriberOptions() bus.SubscriberConfig {
	return bus.SubscriberConfig{
		Patterns:       bus.DefaultPatterns(),
		InitialBackoff: b.Reconnect.InitialBackoff,
		MaxBackoff:     b.Reconnect.MaxBackoff,
	}
}

// EmbeddedOptions returns the embedded NATS server settings.
func (b BusConfig) EmbeddedOptions() bus.EmbeddedConfig {
	return bus.EmbeddedConfig{
		Host:       b.Embedded.Host,
		Port:       b.Embedded.Port,
		MaxPayload: b.Embedded.MaxPayload,
	}
}

// Options returns the persistence adapter configuration.
func (s StoreConfig) Options() persistence.Config {
	return persistence.Config{
		Backend:     s.Backend,
		Path:        s.Path,
		Retention:   s.Retention,
		SyncWrites:  s.SyncWrites,
		BusyTimeout: s.BusyTimeout,
	}
}

// Options returns the logger configuration. verbose forces debug output.
func (l LoggingConfig) Options(verbose bool) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	cfg.Verbose = verbose
	return cfg
}
