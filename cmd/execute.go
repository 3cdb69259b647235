package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petec4244/arbees/internal/app"
	"github.com/petec4244/arbees/internal/eventmonitor"
	"github.com/petec4244/arbees/internal/eventstate"
	"github.com/petec4244/arbees/internal/execution"
	"github.com/petec4244/arbees/internal/ingestor"
	"github.com/petec4244/arbees/internal/killswitch"
	"github.com/petec4244/arbees/internal/orchestrator"
	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/internal/ratelimit"
	signalproc "github.com/petec4244/arbees/internal/signal"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run detection, the Signal Processor, and the Execution Engine",
	Long: `Runs the full entry path (Components A through D): ingests quotes,
detects signals, pushes them through the risk gates, and submits
accepted requests to the Execution Engine, printing every fill or
rejection. Skips the Position Tracker, so nothing here manages exits.

Respects the same EXECUTION_MODE (paper/live) and kill switch as
"arbees run".`,
	RunE: runExecute,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	feeds, orders, balanceFetchers, err := app.BuildVenues(cfg, logger)
	if err != nil {
		return fmt.Errorf("build venues: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no venue credentials configured")
	}

	store, err := app.BuildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer func() { _ = store.Close() }()

	quotes := quote.NewStore()

	killSwitch, err := killswitch.New(cfg.KillSwitchSentinelPath, logger)
	if err != nil {
		return fmt.Errorf("build kill switch: %w", err)
	}

	limiters := ratelimit.NewPerVenue()
	limiters.Add(string(types.VenueKalshi), cfg.KalshiRateLimitPerSec, cfg.KalshiRateLimitBurst)
	limiters.Add(string(types.VenuePolymarket), cfg.PolymarketRateLimitPerSec, cfg.PolymarketRateLimitBurst)

	supervisor := ingestor.New(ingestor.Config{
		Feeds:          feeds,
		Store:          quotes,
		Logger:         logger,
		RestartBackoff: cfg.IngestorRestartBackoff,
	})

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
			Probabilities: app.DefaultProbabilityModel(),
			Quotes:        quotes,
			Cooldowns:     store,
			Logger:        logger,
		},
		nil,
	)

	processor := signalproc.New(
		signalproc.Config{
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
		signalproc.Deps{
			Dedup:      store,
			Cooldowns:  store,
			Exposure:   store,
			Bankroll:   store,
			EventKinds: app.EventKindResolver{States: eventStates},
			Logger:     logger,
		},
	)

	requests := make(chan *types.ExecutionRequest, 256)

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("ingestor error: %v\n", err)
		}
	}()
	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("orchestrator error: %v\n", err)
		}
	}()
	go func() {
		if err := monitor.Run(ctx, supervisor.Updates()); err != nil && ctx.Err() == nil {
			fmt.Printf("event monitor error: %v\n", err)
		}
	}()
	go func() {
		if err := engine.Run(ctx, requests); err != nil && ctx.Err() == nil {
			fmt.Printf("execution engine error: %v\n", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case link, ok := <-orch.Assignments():
				if !ok {
					return
				}
				monitor.Assign(*link)
				for v, marketID := range link.VenueMarkets {
					for _, f := range feeds {
						if f.Venue == v {
							_ = f.Feed.Subscribe(ctx, []string{marketID})
						}
					}
				}
			case eventID, ok := <-orch.Releases():
				if !ok {
					return
				}
				monitor.Release(eventID)
			}
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-monitor.Signals():
				if !ok {
					return
				}
				var prior float64
				if event, err := eventStates.Fetch(ctx, sig.EventID); err == nil {
					prior = event.PregamePrior
				}
				reqs, reason, err := processor.Process(ctx, sig, prior)
				if err != nil {
					fmt.Printf("signal processing error: %v\n", err)
					continue
				}
				if reason != "" {
					fmt.Printf("signal %s rejected: %s\n", sig.ID, reason)
					continue
				}
				for _, req := range reqs {
					select {
					case requests <- req:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Executing. Press Ctrl+C to stop.")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case result, ok := <-engine.Results():
			if !ok {
				return nil
			}
			raw, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(raw))
		}
	}
}
