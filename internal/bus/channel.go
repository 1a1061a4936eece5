// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"fmt"
	"strings"

	"github.com/tomtom215/agentstream/internal/events"
)

// Scope identifies which audience a bus channel addresses.
type Scope int

// Channel scopes.
const (
	ScopeUnknown Scope = iota
	// ScopeExecution addresses subscribers of one execution.
	ScopeExecution
	// ScopeConversation addresses subscribers of one conversation.
	ScopeConversation
	// ScopeAllExecutions is the global monitoring channel.
	ScopeAllExecutions
	// ScopeAutomatedGather is an external batch pipeline namespace forwarded to everyone.
	ScopeAutomatedGather
)

// Channel name prefixes.
const (
	prefixExecution       = "execution"
	prefixConversation    = "conversation"
	prefixAutomatedGather = "automated-gather"
	allID                 = events.ReservedExecutionID
	separator             = ":"
)

// String returns the scope's name.
func (s Scope) String() string {
	switch s {
	case ScopeExecution:
		return prefixExecution
	case ScopeConversation:
		return prefixConversation
	case ScopeAllExecutions:
		return "all-executions"
	case ScopeAutomatedGather:
		return prefixAutomatedGather
	default:
		return "unknown"
	}
}

// Channel is a parsed bus channel name.
type Channel struct {
	Scope Scope
	ID    string
}

// ExecutionChannel returns the channel for one execution.
func ExecutionChannel(executionID string) Channel {
	return Channel{Scope: ScopeExecution, ID: executionID}
}

// ConversationChannel returns the channel for one conversation.
func ConversationChannel(conversationID string) Channel {
	return Channel{Scope: ScopeConversation, ID: conversationID}
}

// AllExecutions returns the global monitoring channel.
func AllExecutions() Channel {
	return Channel{Scope: ScopeAllExecutions}
}

// AutomatedGatherChannel returns a channel in the automated-gather namespace.
func AutomatedGatherChannel(id string) Channel {
	return Channel{Scope: ScopeAutomatedGather, ID: id}
}

// String encodes the channel name, e.g. "execution:123" or "execution:all".
func (c Channel) String() string {
	switch c.Scope {
	case ScopeExecution:
		return prefixExecution + separator + c.ID
	case ScopeConversation:
		return prefixConversation + separator + c.ID
	case ScopeAllExecutions:
		return prefixExecution + separator + allID
	case ScopeAutomatedGather:
		return prefixAutomatedGather + separator + c.ID
	default:
		return ""
	}
}

// Valid reports whether c can be published to.
func (c Channel) Valid() bool {
	switch c.Scope {
	case ScopeAllExecutions:
		return true
	case ScopeExecution:
		// "all" is reserved for the global channel.
		return c.ID != "" && c.ID != allID
	case ScopeConversation, ScopeAutomatedGather:
		return c.ID != ""
	default:
		return false
	}
}

// ParseChannel decodes a channel name produced by Channel.String.
func ParseChannel(name string) (Channel, error) {
	prefix, id, ok := strings.Cut(name, separator)
	if !ok || id == "" {
		return Channel{}, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	switch prefix {
	case prefixExecution:
		if id == allID {
			return AllExecutions(), nil
		}
		return ExecutionChannel(id), nil
	case prefixConversation:
		return ConversationChannel(id), nil
	case prefixAutomatedGather:
		return AutomatedGatherChannel(id), nil
	default:
		return Channel{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidChannel, prefix)
	}
}

// Pattern is a channel subscription pattern covering one prefix.
type Pattern string

// Subscription patterns consumed by the subscriber side of the bridge.
const (
	PatternExecution       Pattern = prefixExecution + separator + "*"
	PatternConversation    Pattern = prefixConversation + separator + "*"
	PatternAutomatedGather Pattern = prefixAutomatedGather + separator + "*"
)

// DefaultPatterns lists every namespace forwarded to WebSocket clients.
func DefaultPatterns() []Pattern {
	return []Pattern{PatternExecution, PatternConversation, PatternAutomatedGather}
}

// Match reports whether channel name falls under p. Only a trailing "*" is
// supported, which is all the bridge uses.
func (p Pattern) Match(name string) bool {
	s := string(p)
	if strings.HasSuffix(s, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(s, "*"))
	}
	return s == name
}

// PublishChannels returns the channels an event is published to: its
// execution, its conversation when present, and the global channel.
func PublishChannels(executionID, conversationID string) []Channel {
	out := make([]Channel, 0, 3)
	out = append(out, ExecutionChannel(executionID))
	if conversationID != "" {
		out = append(out, ConversationChannel(conversationID))
	}
	return append(out, AllExecutions())
}
