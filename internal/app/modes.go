package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/bus"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/orchestrator"
	"github.com/alanyoungcy/hedgebot/internal/pipeline"
	"github.com/alanyoungcy/hedgebot/internal/platform/bridge"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

const shutdownTimeout = 30 * time.Second

// runtime is the engine side of a process: session registry, engine and
// the orchestrator fed from the command channel.
type runtime struct {
	automation *config.Automation
	registry   *session.Registry
	orch       *orchestrator.Orchestrator
	publisher  *bus.Publisher
	consumer   *bus.Consumer
	sink       bus.Sink
}

func (a *App) channels() bus.Channels {
	return bus.Channels{
		Commands: a.cfg.Bus.CommandChannel,
		Events:   a.cfg.Bus.EventChannel,
		EventLog: a.cfg.Bus.EventStream,
	}
}

func (a *App) buildRuntime(deps *Dependencies) (*runtime, error) {
	automation, err := config.NewAutomation(a.cfg.Automation)
	if err != nil {
		return nil, err
	}

	ec := a.cfg.Engine
	eng := engine.New(automation, engine.Options{
		PendingPollAttempts:   ec.PendingPollAttempts,
		PendingPollInterval:   ec.PendingPollInterval.Duration,
		RetryDelay:            ec.RetryDelay.Duration,
		BalanceRefreshTimeout: ec.BalanceRefreshTimeout.Duration,
		VenueCallsPerWindow:   ec.VenueCallsPerWindow,
		VenueCallWindow:       ec.VenueCallWindow.Duration,
	}, a.logger)
	eng.SetPersistence(deps.Records, deps.Audit)
	eng.SetRateLimiter(deps.RateLimiter)
	if ep := a.cfg.Bridge.TranslatorEndpoint; ep != "" {
		eng.SetTranslator(bridge.NewTranslator(ep, deps.Signer, a.cfg.Bridge.Timeout.Duration))
	}

	dialer := bridge.NewDialer(bridge.DialerConfig{
		Signer:         deps.Signer,
		Timeout:        a.cfg.Bridge.Timeout.Duration,
		RatePerSecond:  a.cfg.Bridge.RatePerSecond,
		Burst:          a.cfg.Bridge.Burst,
		StakePrecision: int32(a.cfg.Bridge.StakePrecision),
	}, a.logger)
	regCfg := session.RegistryConfig{LockTTL: ec.SessionLockTTL.Duration}
	if ec.DistributedLocks {
		regCfg.Locker = deps.LockManager
	}
	registry := session.NewRegistry(dialer, regCfg, a.logger)
	eng.SetReviver(registry)

	publisher := bus.NewPublisher(deps.SignalBus, a.channels(), a.cfg.Bus.NodeName, a.logger)
	sink := bus.Fanout{publisher, deps.Notifier}

	orch := orchestrator.New(registry, eng, automation, sink, a.logger)
	orch.SetBalanceCache(deps.Balances)
	for _, h := range a.cfg.Handlers {
		orch.SetDescriptor(h.Name, venue.Descriptor{
			Platform:  h.Platform,
			Endpoint:  h.Endpoint,
			ProfileID: h.ProfileID,
			Account:   h.Account,
		})
	}

	return &runtime{
		automation: automation,
		registry:   registry,
		orch:       orch,
		publisher:  publisher,
		consumer:   bus.NewConsumer(deps.SignalBus, a.cfg.Bus.CommandChannel, orch, a.logger),
		sink:       sink,
	}, nil
}

// startRuntime runs the consumer and notifier and drains the orchestrator
// once ctx ends.
func (a *App) startRuntime(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	g.Go(func() error {
		return rt.consumer.Run(ctx)
	})
	if deps.Notifier.Enabled() {
		g.Go(func() error {
			return deps.Notifier.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("draining tasks", slog.Int("active", rt.orch.Active()))
		err := rt.orch.Shutdown(shutCtx)
		rt.registry.Close()
		return err
	})
}

// EngineMode runs the command consumer and the engine without the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")
	rt, err := a.buildRuntime(deps)
	if err != nil {
		return fmt.Errorf("engine mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startRuntime(ctx, g, deps, rt)
	return g.Wait()
}

// FullMode runs the engine, the admin API and, when enabled, the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	rt, err := a.buildRuntime(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startRuntime(ctx, g, deps, rt)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	}

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:     handler.NewHealthHandler(rt.orch, a.cfg.Mode),
			Tasks:      handler.NewTaskHandler(rt.consumer, rt.orch, a.logger),
			Sessions:   handler.NewSessionHandler(rt.registry, deps.Balances, rt.consumer, a.logger),
			Automation: handler.NewAutomationHandler(rt.automation, rt.sink, a.logger),
		}
		a.addStoreHandlers(&handlers, deps)
		a.startHTTPServer(ctx, g, deps, handlers)
	}
	return g.Wait()
}

// ServerMode serves the admin API on a node without an engine. Commands are
// forwarded on the command channel.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	publisher := bus.NewPublisher(deps.SignalBus, a.channels(), a.cfg.Bus.NodeName, a.logger)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(nil, a.cfg.Mode),
		Tasks:  handler.NewTaskHandler(handler.SubmitFunc(publisher.Forward), nil, a.logger),
	}
	a.addStoreHandlers(&handlers, deps)
	a.startHTTPServer(ctx, g, deps, handlers)
	return g.Wait()
}

// ArchiveMode only moves terminal order records to object storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver requires postgres and s3")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
	g.Go(func() error {
		return arch.RunEvery(ctx)
	})
}

func (a *App) addStoreHandlers(h *server.Handlers, deps *Dependencies) {
	if deps.Records != nil {
		h.Orders = handler.NewOrderHandler(deps.Records, deps.Audit, a.logger)
	}
	if deps.BlobReader != nil {
		h.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}
}

// startHTTPServer adds the HTTP server and the event hub to g. The server
// is shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Channel:        a.cfg.Bus.EventChannel,
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
