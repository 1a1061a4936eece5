// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

/*
Package services adapts blocking components to suture.Service.

  - HTTPServerService: runs ListenAndServe and calls Shutdown with a bounded
    context when the supervisor cancels it.
  - HeartbeatService: runs websocket.Server.RunHeartbeat. A heartbeat that
    ends because the websocket server shut down is not restarted.

The bus subscriber and the event pruner implement suture.Service
themselves and are added to the tree directly.
*/
package services
