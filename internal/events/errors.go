// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package events

import "errors"

// ErrUnknownEventType is returned when a payload names a type this package does not define.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrNilEvent is returned when a nil event is encoded or validated.
var ErrNilEvent = errors.New("event is nil")

// ErrMissingExecutionID is returned for events without an execution id.
var ErrMissingExecutionID = errors.New("event has no execution id")

// ErrReservedExecutionID is returned for events whose execution id names the global channel.
var ErrReservedExecutionID = errors.New("execution id is reserved")

// ErrTypeMismatch is returned when an event header's tag differs from its variant.
var ErrTypeMismatch = errors.New("event type does not match variant")

// ErrInvalidMessage is returned for wire messages that cannot be parsed.
var ErrInvalidMessage = errors.New("invalid message")
