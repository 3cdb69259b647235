package app

import (
	"context"
	"sync"

	"github.com/petec4244/arbees/internal/eventmonitor"
	"github.com/petec4244/arbees/internal/eventstate"
	"github.com/petec4244/arbees/internal/execution"
	"github.com/petec4244/arbees/internal/ingestor"
	"github.com/petec4244/arbees/internal/killswitch"
	"github.com/petec4244/arbees/internal/orchestrator"
	"github.com/petec4244/arbees/internal/position"
	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/internal/ratelimit"
	"github.com/petec4244/arbees/internal/signal"
	"github.com/petec4244/arbees/internal/storage"
	"github.com/petec4244/arbees/internal/transport"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/healthprobe"
	"github.com/petec4244/arbees/pkg/httpserver"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// App orchestrates the five hot-path components (Price Ingestor, Event
// Monitor, Signal Processor, Execution Engine, Position Tracker) and
// the transport fabric, durable store, and operator-facing surfaces
// they share.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	quotes *quote.Store
	bus    *transport.Bus
	bridge *transport.Bridge
	store  storage.Store

	killSwitch *killswitch.Switch
	dailyLoss  *killswitch.DailyLossMonitor
	pnl        *dailyPnLTracker
	limiters   *ratelimit.PerVenue
	orders     map[types.Venue]venue.OrderClient

	eventStates  *eventstate.Client
	ingestors    *ingestor.Supervisor
	feedsByVenue map[types.Venue]venue.PriceFeed
	orch         *orchestrator.Poller
	monitor     *eventmonitor.Monitor
	processor   *signal.Processor
	engine      *execution.Engine
	tracker     *position.Tracker

	// requests fans entry requests from the Signal Processor and exit
	// requests from the Position Tracker into the Execution Engine.
	requests chan *types.ExecutionRequest
	// pendingEntities maps an in-flight entry ExecutionRequest.RequestID
	// to the Entity its originating Signal named, so a fill result can
	// be routed to Tracker.OnFilled with the right entity. A RequestID
	// absent from this map on fill is an exit, routed to OnExitFilled.
	pendingEntities sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // Reserved for a future single-event debug mode.
}
