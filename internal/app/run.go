package app

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Run starts every component and blocks until a shutdown signal arrives
// or the root context is cancelled.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.healthChecker.SetReady(true)
	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	if a.bridge != nil {
		a.wg.Add(1)
		go a.runBridge()
	}

	a.wg.Add(1)
	go a.runDailyLossMonitor()

	a.wg.Add(1)
	go a.runIngestors()

	a.wg.Add(1)
	go a.runPriceFanout()

	a.wg.Add(1)
	go a.runOrchestrator()

	a.wg.Add(1)
	go a.runMonitor()

	a.wg.Add(1)
	go a.runAssignments()

	a.wg.Add(1)
	go a.runSignalLoop()

	a.wg.Add(1)
	go a.runReleaseLoop()

	a.wg.Add(1)
	go a.runExitFanIn()

	a.wg.Add(1)
	go a.runEngine()

	a.wg.Add(1)
	go a.runResultLoop()

	a.wg.Add(1)
	go a.runTracker()

	a.wg.Add(1)
	go a.runPositionUpdateLoop()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runBridge() {
	defer a.wg.Done()
	if err := a.bridge.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Error("transport-bridge-error", zap.Error(err))
	}
}

func (a *App) runDailyLossMonitor() {
	defer a.wg.Done()
	a.dailyLoss.Run(a.ctx)
}

func (a *App) runIngestors() {
	defer a.wg.Done()
	if err := a.ingestors.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Error("ingestor-supervisor-error", zap.Error(err))
	}
}

// runPriceFanout mirrors every applied quote onto the transport bus so
// subscribers (the operator HTTP surface's future streaming endpoints,
// the audit bridge) see quote traffic without depending on the ingestor
// directly. The topic is price.{market_id}: quote.Snapshot carries no
// venue, so the venue segment that transport.PriceTopic adds is absent.
func (a *App) runPriceFanout() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case snap, ok := <-a.ingestors.Updates():
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			a.bus.Publish("ingestor", fmt.Sprintf("price.%s", snap.MarketID), payload, time.Now().UnixMilli())
		}
	}
}

func (a *App) runOrchestrator() {
	defer a.wg.Done()
	if err := a.orch.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Error("orchestrator-error", zap.Error(err))
	}
}

func (a *App) runMonitor() {
	defer a.wg.Done()
	if err := a.monitor.Run(a.ctx, a.ingestors.Updates()); err != nil && a.ctx.Err() == nil {
		a.logger.Error("event-monitor-error", zap.Error(err))
	}
}

// runAssignments drains assignments and releases from the orchestrator
// into the Event Monitor, and subscribes each newly assigned link's
// venue markets on the matching price feed so the ingestor starts
// streaming quotes for it.
func (a *App) runAssignments() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case link, ok := <-a.orch.Assignments():
			if !ok {
				return
			}
			a.monitor.Assign(*link)
			for v, marketID := range link.VenueMarkets {
				if feed, found := a.feedsByVenue[v]; found {
					if err := feed.Subscribe(a.ctx, []string{marketID}); err != nil {
						a.logger.Error("venue-subscribe-failed",
							zap.String("venue", string(v)), zap.String("market-id", marketID), zap.Error(err))
					}
				}
			}
		case eventID, ok := <-a.orch.Releases():
			if !ok {
				return
			}
			a.monitor.Release(eventID)
		}
	}
}

// runSignalLoop reads signals emitted by the Event Monitor, resolves
// each signal's pregame prior for price-sanity checking, runs the
// Signal Processor's gate pipeline, and forwards every accepted
// request to the shared execution queue, remembering which entity it
// belongs to so a later fill can be credited to the right position.
func (a *App) runSignalLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case sig, ok := <-a.monitor.Signals():
			if !ok {
				return
			}
			a.processSignal(sig)
		}
	}
}

func (a *App) processSignal(sig *types.Signal) {
	if err := a.store.SaveSignal(a.ctx, sig); err != nil {
		a.logger.Error("save-signal-failed", zap.String("signal-id", sig.ID), zap.Error(err))
	}

	var prior float64
	if event, err := a.eventStates.Fetch(a.ctx, sig.EventID); err == nil {
		prior = event.PregamePrior
	} else {
		a.logger.Warn("event-state-fetch-failed-for-prior", zap.String("event-id", sig.EventID), zap.Error(err))
	}

	requests, reason, err := a.processor.Process(a.ctx, sig, prior)
	if err != nil {
		a.logger.Error("signal-processing-failed", zap.String("signal-id", sig.ID), zap.Error(err))
		return
	}
	if reason != "" {
		a.logger.Info("signal-rejected", zap.String("signal-id", sig.ID), zap.String("reason", string(reason)))
		return
	}

	for _, req := range requests {
		a.pendingEntities.Store(req.RequestID, sig.Entity)
		if err := a.store.SaveExecutionRequest(a.ctx, req); err != nil {
			a.logger.Error("save-execution-request-failed", zap.String("request-id", req.RequestID), zap.Error(err))
		}
		select {
		case a.requests <- req:
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) runReleaseLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case eventID, ok := <-a.monitor.ReleaseRequests():
			if !ok {
				return
			}
			a.monitor.Release(eventID)
		}
	}
}

// runExitFanIn forwards exit requests from the Position Tracker into
// the same queue the Signal Processor feeds, so the Execution Engine
// sees a single unified request stream.
func (a *App) runExitFanIn() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case req, ok := <-a.tracker.ExitRequests():
			if !ok {
				return
			}
			if err := a.store.SaveExecutionRequest(a.ctx, req); err != nil {
				a.logger.Error("save-exit-request-failed", zap.String("request-id", req.RequestID), zap.Error(err))
			}
			select {
			case a.requests <- req:
			case <-a.ctx.Done():
				return
			}
		}
	}
}

func (a *App) runEngine() {
	defer a.wg.Done()
	if err := a.engine.Run(a.ctx, a.requests); err != nil && a.ctx.Err() == nil {
		a.logger.Error("execution-engine-error", zap.Error(err))
	}
}

// runResultLoop routes every fill or rejection back to the Position
// Tracker: a RequestID found in pendingEntities is an entry fill, an
// absent one is an exit fill closing an already-open position.
func (a *App) runResultLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case result, ok := <-a.engine.Results():
			if !ok {
				return
			}
			if err := a.store.SaveExecutionResult(a.ctx, result); err != nil {
				a.logger.Error("save-execution-result-failed", zap.String("request-id", result.RequestID), zap.Error(err))
			}

			payload, err := json.Marshal(result)
			if err == nil {
				a.bus.Publish("execution", transport.TopicExecutionResult, payload, time.Now().UnixMilli())
			}

			if entity, found := a.pendingEntities.LoadAndDelete(result.RequestID); found {
				a.tracker.OnFilled(a.ctx, result, entity.(string))
			} else {
				a.tracker.OnExitFilled(a.ctx, result)
			}
		}
	}
}

func (a *App) runTracker() {
	defer a.wg.Done()
	if err := a.tracker.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Error("position-tracker-error", zap.Error(err))
	}
}

// runPositionUpdateLoop persists every position change and folds
// realized P&L from closed positions into the daily loss tracker that
// backs the kill switch's automatic trip.
func (a *App) runPositionUpdateLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case pos, ok := <-a.tracker.Updates():
			if !ok {
				return
			}

			payload, err := json.Marshal(pos)
			if err == nil {
				a.bus.Publish("position", transport.TopicPositionUpdate, payload, time.Now().UnixMilli())
			}

			if pos.Status == types.PositionClosed {
				a.pnl.Add(pos.RealizedPnL)
				if err := a.store.SaveClosedPosition(a.ctx, pos); err != nil {
					a.logger.Error("save-closed-position-failed", zap.String("position-id", pos.PositionID), zap.Error(err))
				}
				continue
			}

			if err := a.store.SavePosition(a.ctx, pos); err != nil {
				a.logger.Error("save-position-failed", zap.String("position-id", pos.PositionID), zap.Error(err))
			}
		}
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
