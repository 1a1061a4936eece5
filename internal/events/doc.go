// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package events defines the agent execution lifecycle events and the wire
envelope used to carry them over WebSocket connections.

# Event Variants

Event is a closed set: only the types declared in this package implement it.
Every variant embeds Base, which carries the discriminant tag, the execution
id that groups one orchestration run, an optional conversation id and the
creation timestamp.

	ev := events.NewAgentStart(events.Ref{ExecutionID: "exec-1"}, "story-head", "Story Head", "story")
	data, err := events.Encode(ev)

Decode restores the concrete variant from its "type" field:

	ev, err := events.Decode(data)
	switch e := ev.(type) {
	case events.AgentStart:
	    fmt.Println(e.AgentID)
	}

# Wire Messages

Message is the envelope exchanged with clients. Control messages (subscribe,
unsubscribe, ping, pong) carry no event payload; "event" messages carry the
encoded event verbatim.
*/
package events
