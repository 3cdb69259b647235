package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown cancels the root context, stops the HTTP server, waits for
// every component goroutine to return, and closes the durable store.
// Every hot-path component (ingestor, orchestrator, monitor, processor
// loop, engine, tracker, daily loss monitor, bridge) shuts down purely
// by observing ctx cancellation, so Shutdown only needs to drive the
// two collaborators that don't: the HTTP server and the store.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")
	return nil
}
