// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package supervisor runs the long-lived agentstream services under a suture v4
supervisor tree.

# Overview

Services are grouped into three layers so a failure in one does not restart
the others:

	agentstream
	├── data-layer
	│   └── event-pruner         (store enabled and retention > 0)
	├── messaging-layer
	│   ├── bus-subscriber
	│   └── websocket-heartbeat
	└── api-layer
	    └── http-server

The emitter, the connection registry and the store are plain objects owned
by internal/app. They have no Serve loop and are closed in order after the
tree has stopped.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddMessagingService(subscriber)
	tree.AddMessagingService(services.NewHeartbeatService(wsServer))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

# Failure Handling

Each supervisor keeps a failure counter that decays over FailureDecay
seconds. Once it passes FailureThreshold, restarts wait FailureBackoff.
Service return values:
  - nil or an error: the service is restarted
  - suture.ErrDoNotRestart: the service is removed
  - ctx.Err() after cancellation: normal shutdown

Supervisor events (restarts, backoff, timeouts) are logged through slog via
sutureslog, and slog is bridged to zerolog by internal/logging.

# Debugging Shutdown

Services that outlive ShutdownTimeout show up in UnstoppedServiceReport.
internal/app logs that report after the tree returns.

# See Also

  - internal/supervisor/services: wrappers for http.Server and the heartbeat
  - github.com/thejerf/suture/v4
*/
package supervisor
