// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package emitter

import "errors"

// ErrShuttingDown is logged when an event arrives after Shutdown began.
var ErrShuttingDown = errors.New("emitter shutting down")

// ErrDrainTimeout is returned by Shutdown when queued work outlived the grace period.
var ErrDrainTimeout = errors.New("emitter drain grace period elapsed")
