// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package persistence

import "errors"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("event store closed")

	// ErrUnsupportedBackend is returned by Open for unknown backend names.
	ErrUnsupportedBackend = errors.New("unsupported store backend")

	// ErrInvalidExecutionID is returned for execution ids that cannot be keyed.
	ErrInvalidExecutionID = errors.New("invalid execution id")
)
