package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
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
	"github.com/petec4244/arbees/internal/venue/kalshi"
	"github.com/petec4244/arbees/internal/venue/polymarket"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/healthprobe"
	"github.com/petec4244/arbees/pkg/httpserver"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/petec4244/arbees/pkg/wallet"
	"github.com/petec4244/arbees/pkg/websocket"
	"go.uber.org/zap"
)

// New wires the five hot-path components (Price Ingestor, Event Monitor,
// Signal Processor, Execution Engine, Position Tracker) against the
// durable store, transport fabric, kill switch, and operator HTTP
// surface, and returns an App ready for Run.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	store, err := BuildStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	quotes := quote.NewStore()

	bus := transport.NewBus(logger, nil)
	var bridge *transport.Bridge
	if cfg.TransportMirrorEnabled {
		bridge = transport.NewBridge(storage.AuditBridge{Store: store}, cfg.BridgeQueueCapacity, logger)
		bus = transport.NewBus(logger, bridge)
	}

	killSwitch, err := killswitch.New(cfg.KillSwitchSentinelPath, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup kill switch: %w", err)
	}

	pnlTracker := newDailyPnLTracker()
	dailyLoss := killswitch.NewDailyLossMonitor(killswitch.DailyLossConfig{
		Switch:        killSwitch,
		Source:        pnlTracker,
		MaxDailyLoss:  cfg.DailyLossCap,
		TripFraction:  cfg.DailyLossTripFraction,
		CheckInterval: cfg.BalanceRefreshInterval,
		Logger:        logger,
	})

	limiters := ratelimit.NewPerVenue()
	limiters.Add(string(types.VenueKalshi), cfg.KalshiRateLimitPerSec, cfg.KalshiRateLimitBurst)
	limiters.Add(string(types.VenuePolymarket), cfg.PolymarketRateLimitPerSec, cfg.PolymarketRateLimitBurst)

	feeds, orders, balanceFetchers, err := BuildVenues(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup venues: %w", err)
	}

	ingestors := ingestor.New(ingestor.Config{
		Feeds:          feeds,
		Store:          quotes,
		Logger:         logger,
		RestartBackoff: cfg.IngestorRestartBackoff,
	})

	feedsByVenue := make(map[types.Venue]venue.PriceFeed, len(feeds))
	for _, f := range feeds {
		feedsByVenue[f.Venue] = f.Feed
	}

	eventStates := eventstate.New(eventstate.Config{
		BaseURL: cfg.EventStateAPIURL,
		Timeout: cfg.EventStateTimeout,
		Logger:  logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		LinksPath:    cfg.EventLinksPath,
		PollInterval: cfg.OrchestratorPollInterval,
		Logger:       logger,
	})

	probabilities := DefaultProbabilityModel()

	monitor := eventmonitor.New(
		eventmonitor.Config{
			TickInterval:           cfg.EventMonitorTick,
			StalenessTTL:           cfg.EventStalenessTTL,
			ArbThresholdCents:      cfg.ArbThresholdCents,
			MinEdgeBPS:             cfg.MinEdgeBPS,
			MaxSizeCap:             cfg.MaxSizeCap,
			SignalTTL:              cfg.SignalTTL,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		},
		eventmonitor.Deps{
			States:        eventStates,
			Probabilities: probabilities,
			Quotes:        quotes,
			Cooldowns:     store,
			Logger:        logger,
		},
		nil, // stateCache: no Ristretto layer in front of the event-state client yet
	)

	processor := signal.New(
		signal.Config{
			MinEdgeBPS:               cfg.MinEdgeBPS,
			MinSafePrice:             cfg.MinSafePrice,
			MaxSafePrice:             cfg.MaxSafePrice,
			PriorDriftMaxDelta:       cfg.PriorDriftMaxDelta,
			KellyCapFraction:         cfg.KellyCapFraction,
			MinOrderSize:             cfg.MinOrderSize,
			MaxOrderSize:             cfg.MaxOrderSize,
			MaxOrderContracts:        cfg.MaxOrderContracts,
			NonSportVolatilityFactor: cfg.NonSportVolatilityFactor,
			ExposurePerMarketCap:     cfg.ExposurePerMarketCap,
			ExposurePerEventCap:      cfg.ExposurePerEventCap,
			ExposureGlobalCap:        cfg.ExposureGlobalCap,
			ExposurePerCategoryCap:   cfg.ExposurePerCategoryCap,
			DedupWindow:              cfg.SignalDedupWindow,
		},
		signal.Deps{
			Dedup:      store,
			Cooldowns:  store,
			Exposure:   store,
			Bankroll:   store,
			EventKinds: EventKindResolver{States: eventStates},
			Logger:     logger,
		},
	)

	requests := make(chan *types.ExecutionRequest, 1024)

	engine := execution.New(
		execution.Config{
			Mode:     cfg.ExecutionMode,
			Gate:     execution.GateConfigFromAppConfig(cfg),
			Requests: requests,
		},
		execution.Deps{
			KillSwitch:  killSwitch,
			Idempotency: execution.NewIdempotency(cfg.IdempotencyWindow),
			Limiters:    limiters,
			Balances:    execution.NewBalanceCache(balanceFetchers, logger),
			Exposure:    store,
			Orders:      orders,
			Logger:      logger,
		},
	)

	tracker := position.New(
		position.Config{
			ExitInterval:        cfg.ExitCheckInterval,
			MinHoldTime:         cfg.MinHoldTime,
			StopLossBPS:         cfg.StopLossBPS,
			TakeProfitBPS:       cfg.TakeProfitBPS,
			MaxHoldTime:         cfg.MaxHoldTime,
			ModelReversalBPS:    cfg.ModelReversalBPS,
			SlippageBufferCents: cfg.SlippageBufferCents,
			ExitFeeBufferFrac:   cfg.ExitFeeBufferFrac,
			ReconcileInterval:   cfg.ReconcileInterval,
			MismatchTolerance:   cfg.MismatchTolerance,
		},
		position.Deps{
			Quotes:        quotes,
			Events:        eventStates,
			Probabilities: probabilities,
			// Holdings is left empty: no venue client here exposes a
			// holdings-listing endpoint yet (Kalshi and Polymarket both
			// only expose balance, not open positions, over the
			// interfaces this repo wires), so reconcile() has nothing
			// to compare against and is a documented no-op for now.
			Holdings: map[types.Venue]position.VenueHoldings{},
			Store:    store,
			Logger:   logger,
		},
	)

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Quotes:        quotes,
	})

	return &App{
		cfg:    cfg,
		logger: logger,

		healthChecker: healthChecker,
		httpServer:    httpServer,

		quotes: quotes,
		bus:    bus,
		bridge: bridge,
		store:  store,

		killSwitch: killSwitch,
		dailyLoss:  dailyLoss,
		pnl:        pnlTracker,
		limiters:   limiters,
		orders:     orders,

		eventStates:  eventStates,
		ingestors:    ingestors,
		feedsByVenue: feedsByVenue,
		orch:         orch,
		monitor:     monitor,
		processor:   processor,
		engine:      engine,
		tracker:     tracker,
		requests:    requests,

		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// DefaultProbabilityModel builds the dispatch model shared by the Event
// Monitor and the Position Tracker: a scoreboard-driven estimator for
// sport events, a static prior for everything else.
func DefaultProbabilityModel() eventmonitor.DispatchModel {
	return eventmonitor.DispatchModel{
		Sport: eventmonitor.ScoreboardModel{
			ScoreWeight:       0.35,
			UrgencyWeight:     1.5,
			PossessionBonus:   0.2,
			RegulationSeconds: 3600,
		},
		Other: eventmonitor.PriorProbabilityProvider{},
	}
}

// BuildStore constructs the durable store selected by cfg.StorageMode.
func BuildStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		return storage.NewPostgresStore(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	case "memory":
		return storage.NewMemStore(), nil
	default:
		return storage.NewConsoleStore(logger), nil
	}
}

// BuildVenues builds the price feeds, order clients, and balance
// fetchers for every venue with credentials configured. A venue missing
// its credentials is simply omitted rather than failing startup, since
// an operator may run this against a single venue during development.
func BuildVenues(cfg *config.Config, logger *zap.Logger) ([]ingestor.Feed, map[types.Venue]venue.OrderClient, map[types.Venue]venue.BalanceFetcher, error) {
	var feeds []ingestor.Feed
	orders := make(map[types.Venue]venue.OrderClient)
	balances := make(map[types.Venue]venue.BalanceFetcher)

	if cfg.KalshiAPIKeyID != "" && cfg.KalshiPrivateKeyPEM != "" {
		privateKey, err := kalshi.LoadPrivateKeyPEM([]byte(cfg.KalshiPrivateKeyPEM))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse kalshi private key: %w", err)
		}

		feed := kalshi.New(kalshi.Config{
			APIKeyID:   cfg.KalshiAPIKeyID,
			PrivateKey: privateKey,
			WSURL:      cfg.KalshiWSURL,
			Logger:     logger,
		})
		feeds = append(feeds, ingestor.Feed{Venue: types.VenueKalshi, Feed: feed})

		orderClient, err := kalshi.NewOrderClient(kalshi.ClientConfig{
			APIKeyID:   cfg.KalshiAPIKeyID,
			PrivateKey: privateKey,
			BaseURL:    cfg.KalshiRESTURL,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build kalshi order client: %w", err)
		}
		orders[types.VenueKalshi] = orderClient
		balances[types.VenueKalshi] = kalshi.NewBalanceClient(orderClient)
	}

	if cfg.PolymarketPrivateKey != "" {
		pool := websocket.NewPool(websocket.PoolConfig{
			Size:                  cfg.WSPoolSize,
			WSUrl:                 cfg.PolymarketWSURL,
			DialTimeout:           cfg.WSDialTimeout,
			PongTimeout:           cfg.WSPongTimeout,
			PingInterval:          cfg.WSPingInterval,
			ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
			MessageBufferSize:     cfg.WSMessageBufferSize,
			Logger:                logger,
		})

		feed := polymarket.New(polymarket.Config{Pool: pool, Logger: logger})
		feeds = append(feeds, ingestor.Feed{Venue: types.VenuePolymarket, Feed: feed})

		orderClient, err := polymarket.NewOrderClient(polymarket.ClientConfig{
			APIKey:        cfg.PolymarketAPIKey,
			Secret:        cfg.PolymarketSecret,
			Passphrase:    cfg.PolymarketPassphrase,
			PrivateKey:    cfg.PolymarketPrivateKey,
			Address:       cfg.PolymarketAddress,
			ProxyAddress:  cfg.PolymarketAddress,
			SignatureType: 0,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build polymarket order client: %w", err)
		}
		orders[types.VenuePolymarket] = orderClient

		walletClient, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build polygon wallet client: %w", err)
		}
		balances[types.VenuePolymarket] = polymarket.NewBalanceClient(polymarketUSDCFetcher(walletClient, cfg.PolymarketAddress))
	}

	return feeds, orders, balances, nil
}

// polymarketUSDCFetcher adapts pkg/wallet's on-chain balance lookup into
// the plain USD-float signature polymarket.NewBalanceClient expects.
func polymarketUSDCFetcher(w *wallet.Client, address string) func(ctx context.Context) (float64, error) {
	addr := common.HexToAddress(address)
	return func(ctx context.Context) (float64, error) {
		balances, err := w.GetBalances(ctx, addr)
		if err != nil {
			return 0, err
		}
		return usdcToFloat(balances.USDC), nil
	}
}

// usdcToFloat converts a 6-decimal USDC integer balance to a USD float.
func usdcToFloat(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	usdc := new(big.Float).SetInt(raw)
	usdc.Quo(usdc, big.NewFloat(1e6))
	f, _ := usdc.Float64()
	return f
}
