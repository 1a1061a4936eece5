// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

// Package validation wraps go-playground/validator v10 with a shared
// validator instance and the custom tags used across agentstream.
//
// Custom tags:
//   - eventtype: the value is a known event type tag such as "agent-start"
//   - identifier: an execution or conversation id usable as a bus channel
//     suffix (non-empty, no whitespace or NATS wildcard characters, at most
//     256 bytes)
//
// Example usage:
//
//	type eventsQuery struct {
//	    ExecutionID string `validate:"identifier"`
//	    Type        string `validate:"omitempty,eventtype"`
//	    Source      string `validate:"omitempty,oneof=buffer store"`
//	}
//
//	if verr := validation.ValidateStruct(&q); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// Configuration structs are validated with the same instance, so koanf tags
// and validate tags sit side by side on config fields.
package validation
