// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/agentstream/internal/api"
	"github.com/tomtom215/agentstream/internal/bus"
	"github.com/tomtom215/agentstream/internal/config"
	"github.com/tomtom215/agentstream/internal/emitter"
	"github.com/tomtom215/agentstream/internal/logging"
	"github.com/tomtom215/agentstream/internal/persistence"
	"github.com/tomtom215/agentstream/internal/supervisor"
	"github.com/tomtom215/agentstream/internal/supervisor/services"
	"github.com/tomtom215/agentstream/internal/websocket"
)

// ErrNotStarted is returned by Wait before Start.
var ErrNotStarted = errors.New("app not started")

// App owns the single emitter, connection server, bus clients and store of
// the process. Callers that produce events take the emitter from Emitter()
// instead of reaching for a global.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	started time.Time

	embedded   *bus.EmbeddedNATS
	pubBus     bus.Bus
	subBus     bus.Bus
	publisher  *bus.Publisher
	store      *persistence.Adapter
	emitter    *emitter.Emitter
	registry   *websocket.Registry
	wsServer   *websocket.Server
	subscriber *bus.Subscriber
	pruner     *persistence.Pruner
	handler    http.Handler
	httpServer *http.Server
	tree       *supervisor.SupervisorTree

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	treeErr error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds every component from cfg. Nothing runs until Start. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app requires a configuration")
	}
	a := &App{
		cfg:     cfg,
		logger:  logging.WithComponent("app"),
		started: time.Now(),
	}
	defer func() {
		if err != nil {
			for _, cerr := range a.closeResources(context.Background()) {
				a.logger.Warn().Err(cerr).Msg("Cleanup after failed start")
			}
		}
	}()

	if err = a.initBus(); err != nil {
		return nil, err
	}
	if err = a.initStore(ctx); err != nil {
		return nil, err
	}

	opts := []emitter.Option{emitter.WithPublisher(a.publisher)}
	if a.store != nil {
		opts = append(opts, emitter.WithStore(a.store))
	}
	a.emitter = emitter.New(cfg.Emitter, opts...)

	a.registry = websocket.NewRegistry(cfg.WebSocket.ClientTimeout)
	a.wsServer = websocket.NewServer(a.registry, cfg.WebSocket)
	a.subscriber = bus.NewSubscriber(a.subBus, a.wsServer, cfg.Bus.SubscriberOptions())

	a.handler = a.buildRouter()
	a.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if err = a.buildTree(); err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("addr", a.httpServer.Addr).
		Str("bus", a.pubBus.Backend()).
		Bool("store", a.store != nil).
		Msg("Application initialized")
	return a, nil
}

// initBus connects the publish and subscribe sides. The memory backend
// shares one instance so both sides see the same messages; network
// backends get one client each so a stalled subscription never blocks
// publishing.
func (a *App) initBus() error {
	cfg := a.cfg.Bus
	if cfg.Embedded.Enabled {
		ns, err := bus.StartEmbeddedNATS(cfg.EmbeddedOptions())
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		a.embedded = ns
		cfg.NATSURL = ns.ClientURL()
		a.logger.Info().Str("url", ns.ClientURL()).Msg("Embedded NATS server started")
	}

	opts := cfg.BusOptions()
	if opts.Backend == bus.BackendMemory {
		mem := bus.NewMemory(opts)
		a.pubBus, a.subBus = mem, mem
	} else {
		var err error
		if a.pubBus, err = bus.New(opts); err != nil {
			return fmt.Errorf("create publish bus: %w", err)
		}
		if a.subBus, err = bus.New(opts); err != nil {
			return fmt.Errorf("create subscribe bus: %w", err)
		}
	}
	a.publisher = bus.NewPublisher(a.pubBus, cfg.BreakerOptions(), cfg.PublishTimeout)
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if !a.cfg.Store.Enabled {
		a.logger.Info().Msg("Event persistence disabled")
		return nil
	}
	store, err := persistence.Open(ctx, a.cfg.Store.Options())
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	a.store = persistence.NewAdapter(store)
	if a.cfg.Store.Retention > 0 {
		a.pruner = persistence.NewPruner(a.store, a.cfg.Store.PruneInterval, a.cfg.Store.Retention)
	}
	a.logger.Info().Str("backend", store.Backend()).Str("path", a.cfg.Store.Path).Msg("Event store opened")
	return nil
}

func (a *App) buildRouter() http.Handler {
	// A nil *Adapter in the interface would defeat the handler's nil check.
	var store api.EventStore
	if a.store != nil {
		store = a.store
	}
	handler := api.NewHandler(a.emitter, store, a)
	mw := api.NewMiddleware(api.MiddlewareConfig{
		CORSAllowedOrigins: a.cfg.Server.CORSOrigins,
		CORSAllowedMethods: api.DefaultMiddlewareConfig().CORSAllowedMethods,
		CORSAllowedHeaders: api.DefaultMiddlewareConfig().CORSAllowedHeaders,
		CORSMaxAge:         api.DefaultMiddlewareConfig().CORSMaxAge,
		RateLimitRequests:  a.cfg.Server.RateLimitRequests,
		RateLimitWindow:    a.cfg.Server.RateLimitWindow,
		RateLimitDisabled:  a.cfg.Server.RateLimitDisabled,
	})
	return api.NewRouter(handler, mw, a.wsServer).Handler()
}

func (a *App) buildTree() error {
	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	if a.pruner != nil {
		tree.AddDataService(a.pruner)
	}
	tree.AddMessagingService(a.subscriber)
	tree.AddMessagingService(services.NewHeartbeatService(a.wsServer))
	tree.AddAPIService(services.NewHTTPServerService(a.httpServer, a.cfg.Server.ShutdownTimeout))
	a.tree = tree
	return nil
}

// Emitter returns the process emitter.
func (a *App) Emitter() *emitter.Emitter { return a.emitter }

// Server returns the connection server.
func (a *App) Server() *websocket.Server { return a.wsServer }

// Handler returns the HTTP handler serving /ws and the REST endpoints.
func (a *App) Handler() http.Handler { return a.handler }

// Start runs the supervisor tree in the background.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	errCh := a.tree.ServeBackground(ctx)
	a.done = make(chan struct{})
	go func() {
		a.treeErr = <-errCh
		close(a.done)
	}()
	a.logger.Info().Str("addr", a.httpServer.Addr).Msg("Supervisor tree started")
}

// Wait blocks until the tree stops on its own or ctx is done.
func (a *App) Wait(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-ctx.Done():
		return nil
	case <-done:
		if a.treeErr != nil && !errors.Is(a.treeErr, context.Canceled) {
			return fmt.Errorf("supervisor tree stopped: %w", a.treeErr)
		}
		return nil
	}
}

// Run starts the app, blocks until ctx is canceled or the tree fails, and
// shuts down with the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)
	runErr := a.Wait(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the process in order: refuse and disconnect websocket
// clients, stop supervised services (HTTP listener, bus subscriber,
// heartbeat, pruner), drain the emitter (which closes the publish bus),
// then close the store and the embedded NATS server. Each step is logged
// and a failure does not skip the ones after it. Repeated calls return the
// first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown(ctx)
	})
	return a.shutdownErr
}

func (a *App) shutdown(ctx context.Context) error {
	start := time.Now()
	a.logger.Info().Msg("Shutting down")
	var errs []error

	if err := a.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket server: %w", err))
	}

	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
			// UnstoppedServiceReport blocks until the tree has terminated.
			if unstopped, err := a.tree.UnstoppedServiceReport(); err == nil {
				for _, svc := range unstopped {
					a.logger.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
				}
			}
			a.logger.Info().Msg("Supervised services stopped")
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("supervisor tree: %w", ctx.Err()))
		}
	}

	if err := a.emitter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("emitter: %w", err))
	}

	errs = append(errs, a.closeResources(ctx)...)

	err := errors.Join(errs...)
	ev := a.logger.Info()
	if err != nil {
		ev = a.logger.Warn().Err(err)
	}
	ev.Dur("duration", time.Since(start)).Msg("Shutdown complete")
	return err
}

// closeResources closes what the emitter does not own. The publish bus is
// closed by the emitter, except when New failed before the emitter existed.
func (a *App) closeResources(ctx context.Context) []error {
	var errs []error
	if a.emitter == nil && a.pubBus != nil {
		if err := a.pubBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publish bus: %w", err))
		}
	}
	if a.subBus != nil && a.subBus != a.pubBus {
		if err := a.subBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscribe bus: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.logger.Info().Msg("Event store closed")
	}
	if a.embedded != nil {
		if err := a.embedded.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop embedded NATS: %w", err))
		}
		a.logger.Info().Msg("Embedded NATS server stopped")
	}
	return errs
}
