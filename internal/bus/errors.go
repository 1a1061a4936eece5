// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import "errors"

// ErrInvalidChannel is returned for channel names outside the known namespaces.
var ErrInvalidChannel = errors.New("invalid bus channel")

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// ErrCircuitOpen is returned when publishing is short-circuited by the breaker.
var ErrCircuitOpen = errors.New("bus circuit breaker open")

// ErrUnsupportedBackend is returned by New for an unknown backend name.
var ErrUnsupportedBackend = errors.New("unsupported bus backend")

// ErrInvalidSubject is returned when an id cannot be mapped to a NATS subject token.
var ErrInvalidSubject = errors.New("id not representable as subject token")
