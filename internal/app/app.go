// Package app wires the engine's services together.
package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ruvelro/maca-engine/internal/analysis"
	"github.com/ruvelro/maca-engine/internal/applier"
	"github.com/ruvelro/maca-engine/internal/bridge"
	"github.com/ruvelro/maca-engine/internal/config"
	"github.com/ruvelro/maca-engine/internal/events"
	"github.com/ruvelro/maca-engine/internal/media"
	"github.com/ruvelro/maca-engine/internal/observe"
	"github.com/ruvelro/maca-engine/internal/queue"
)

// App holds all the core services and business logic
type App struct {
	Config *config.Config

	// Core services
	Coordinator *queue.Coordinator
	Observer    *observe.Observer
	Analyzer    analysis.Service
	Applier     applier.Applier
	Bridge      *bridge.Server

	// Event system
	EventBroker *events.Broker
}

// New creates a new app with all services initialized.
//
// The bridge talks to the observer and coordinator through the App itself:
// the server is constructed first (the bridge applier needs it for RPC), so
// App proxies the sink interfaces to the services created after it.
func New(cfg *config.Config, eventBroker *events.Broker) *App {
	app := &App{
		Config:      cfg,
		EventBroker: eventBroker,
	}

	app.Bridge = bridge.New(bridge.Config{
		ListenAddr: cfg.BridgeListenAddr,
		Token:      cfg.BridgeToken,
	}, app, app, eventBroker)

	app.Analyzer = analysis.NewVisionClient(cfg.AnalysisURL, cfg.AnalysisModel, cfg.AnalysisAPIKey)

	// Prefer the server-side REST applier when a site is configured;
	// otherwise fields are applied in-page through the bridge.
	var fieldApplier applier.Applier
	if cfg.WPRestBase != "" {
		fieldApplier = applier.NewRESTApplier(cfg.WPRestBase, cfg.WPRestUser, cfg.WPAppPassword)
	} else {
		fieldApplier = applier.NewBridgeApplier(app.Bridge)
	}
	app.Applier = applier.NewRetry(fieldApplier)

	app.Coordinator = queue.NewCoordinator(eventBroker, app.Analyzer, app.Applier, queue.Options{
		FuseEnabled: &cfg.FuseEnabled,
		FuseMax:     cfg.FuseMax,
	})

	app.Observer = observe.New(app.Coordinator, observe.Config{
		AutoOnUpload: cfg.AutoOnUpload,
		AutoOnSelect: cfg.AutoOnSelect,
	})

	return app
}

// Run starts the bridge and the polling backstop and blocks until the
// context ends or the bridge fails to bind.
func (a *App) Run(ctx context.Context) error {
	if err := a.Bridge.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Bridge.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.Observer.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Bridge.Close(context.Background())
	})
	return g.Wait()
}

// GridSink proxying (bridge → observer)

// HandleSnapshot implements bridge.GridSink.
func (a *App) HandleSnapshot(tabID, pageURL, html string) {
	a.Observer.HandleSnapshot(tabID, pageURL, html)
}

// HandleUploadSignal implements bridge.GridSink.
func (a *App) HandleUploadSignal(tabID string) {
	a.Observer.HandleUploadSignal(tabID)
}

// HandleSelection implements bridge.GridSink.
func (a *App) HandleSelection(tabID, attachmentID string) {
	a.Observer.HandleSelection(tabID, attachmentID)
}

// QueueControl proxying (bridge → coordinator)

// Pause implements bridge.QueueControl.
func (a *App) Pause(tabID string) { a.Coordinator.Pause(tabID) }

// Resume implements bridge.QueueControl.
func (a *App) Resume(tabID string) { a.Coordinator.Resume(tabID) }

// Cancel implements bridge.QueueControl.
func (a *App) Cancel(tabID string) { a.Coordinator.Cancel(tabID) }

// RemoveTab implements both sink interfaces: a closed tab purges observer
// and queue state alike.
func (a *App) RemoveTab(tabID string) {
	a.Observer.RemoveTab(tabID)
	a.Coordinator.RemoveTab(tabID)
}

// Admit exposes the admission gate for dev tooling.
func (a *App) Admit(c media.Candidate) queue.AdmitResult {
	return a.Coordinator.Admit(c)
}
