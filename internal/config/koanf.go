// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/agentstream/internal/bus"
	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/persistence"
	"github.com/tomtom215/agentstream/internal/websocket"
)

// DefaultConfigPaths lists config file locations in priority order. The
// first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/agentstream/config.yaml",
	"/etc/agentstream/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the configuration Load starts from before any file or
// environment is applied.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a configuration that runs with no file and no
// environment: redis on localhost, badger in memory, port 3001.
func defaultConfig() *Config {
	breaker := bus.DefaultBreakerConfig()
	busDefaults := bus.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3001,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		WebSocket: websocket.DefaultServerConfig(),
		Bus: BusConfig{
			Backend:        busDefaults.Backend,
			RedisURL:       busDefaults.RedisURL,
			NATSURL:        busDefaults.NATSURL,
			SubjectPrefix:  busDefaults.SubjectPrefix,
			DialTimeout:    busDefaults.DialTimeout,
			ReconnectWait:  busDefaults.ReconnectWait,
			DeliveryBuffer: busDefaults.DeliveryBuffer,
			PublishTimeout: 5 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:      breaker.MaxRequests,
				Interval:         breaker.Interval,
				Timeout:          breaker.Timeout,
				FailureThreshold: breaker.FailureThreshold,
			},
			Reconnect: ReconnectConfig{
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
			},
			Embedded: EmbeddedConfig{
				Host:       "127.0.0.1",
				Port:       4222,
				MaxPayload: 1 << 20,
			},
		},
		Emitter: emitter.DefaultConfig(),
		Store: StoreConfig{
			Enabled:       true,
			Backend:       persistence.BackendBadger,
			Path:          "",
			Retention:     0,
			PruneInterval: time.Hour,
			BusyTimeout:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration in three layers, later ones winning:
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. environment variables listed in envMappings
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set by env.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"websocket.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to config paths.
var envMappings = map[string]string{
	// HTTP / WebSocket listener
	"ws_port":             "server.port",
	"http_host":           "server.host",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// WebSocket server
	"ws_heartbeat_interval": "websocket.heartbeat_interval",
	"ws_client_timeout":     "websocket.client_timeout",
	"ws_verbose":            "websocket.verbose",
	"ws_send_queue_size":    "websocket.send_queue_size",
	"ws_inbound_rate":       "websocket.inbound_rate",
	"ws_inbound_burst":      "websocket.inbound_burst",
	"ws_allowed_origins":    "websocket.allowed_origins",

	// Bus
	"bus_backend":           "bus.backend",
	"redis_url":             "bus.redis_url",
	"nats_url":              "bus.nats_url",
	"bus_subject_prefix":    "bus.subject_prefix",
	"bus_publish_timeout":   "bus.publish_timeout",
	"bus_breaker_threshold": "bus.breaker.failure_threshold",
	"bus_breaker_timeout":   "bus.breaker.timeout",
	"bus_reconnect_max":     "bus.reconnect.max_backoff",
	"nats_embedded":         "bus.embedded.enabled",
	"nats_embedded_port":    "bus.embedded.port",

	// Emitter
	"emitter_buffer_size":   "emitter.buffer_size",
	"emitter_queue_size":    "emitter.queue_size",
	"emitter_drain_timeout": "emitter.drain_timeout",

	// Store
	"store_enabled":   "store.enabled",
	"store_backend":   "store.backend",
	"store_path":      "store.path",
	"store_retention": "store.retention",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// millisecondVars take bare integers as milliseconds.
var millisecondVars = map[string]bool{
	"ws_heartbeat_interval": true,
	"ws_client_timeout":     true,
	"emitter_drain_timeout": true,
}

// envTransformFunc maps an environment variable to its config path and
// value. Unmapped variables return an empty key and are skipped.
func envTransformFunc(key, value string) (string, interface{}) {
	key = strings.ToLower(key)
	path, ok := envMappings[key]
	if !ok {
		return "", nil
	}
	if millisecondVars[key] {
		if ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return path, time.Duration(ms) * time.Millisecond
		}
	}
	return path, value
}
