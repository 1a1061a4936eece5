// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// Heartbeat is satisfied by *websocket.Server.
type Heartbeat interface {
	RunHeartbeat(ctx context.Context) error
}

// HeartbeatService supervises the websocket ping/eviction loop.
type HeartbeatService struct {
	server Heartbeat
	name   string
}

// NewHeartbeatService wraps server's heartbeat loop.
func NewHeartbeatService(server Heartbeat) *HeartbeatService {
	return &HeartbeatService{
		server: server,
		name:   "websocket-heartbeat",
	}
}

// Serve implements suture.Service. RunHeartbeat returns nil only after the
// websocket server has been shut down, and a stopped heartbeat must not be
// restarted, so that case maps to suture.ErrDoNotRestart.
func (s *HeartbeatService) Serve(ctx context.Context) error {
	err := s.server.RunHeartbeat(ctx)
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return err
}

// String implements fmt.Stringer for supervisor logging.
func (s *HeartbeatService) String() string {
	return s.name
}
