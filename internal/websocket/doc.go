// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package websocket multiplexes agent events to browser clients.

Key Components:

  - Registry: the only owner of connection state. It maps connection ids to
    transports and keeps execution and conversation subscription indices.
  - Client: a gorilla/websocket Transport with a bounded send queue and
    separate read and write goroutines.
  - Server: upgrades HTTP requests, handles client control frames, runs the
    heartbeat sweep and routes bus deliveries to subscribed connections.

Architecture:

	bus.Subscriber ──DispatchBusMessage──▶ Server ──▶ Registry
	                                                   │
	                           ┌───────────┬───────────┼───────────┐
	                           │           │           │           │
	                        Client1     Client2     Client3     Client4

Each client has two goroutines:
  - readPump: reads control frames, refreshes the heartbeat on pong
  - writePump: writes queued frames

Control frames (client to server):

	{"type":"subscribe","executionId":"exec-1","conversationId":"conv-1"}
	{"type":"unsubscribe","executionId":"exec-1"}
	{"type":"ping"}

Outbound frames:

	{"type":"event","executionId":"exec-1","event":{...},"timestamp":"..."}
	{"type":"ping"|"pong","timestamp":"..."}

A client whose send queue is full is disconnected rather than allowed to slow
down delivery to everyone else. Connections that do not answer pings within
the client timeout are evicted by the heartbeat sweep.
*/
package websocket
