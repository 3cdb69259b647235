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
	"github.com/petec4244/arbees/internal/ingestor"
	"github.com/petec4244/arbees/internal/orchestrator"
	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/internal/storage"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run ingestion plus the Event Monitor and print emitted signals",
	Long: `Starts the Price Ingestor and Event Monitor (Component B) against
every configured venue and the event links file, and prints every
arbitrage or edge signal as it's emitted, without running the Signal
Processor's risk gates or placing any orders.`,
	RunE: runDetect,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	feeds, _, _, err := app.BuildVenues(cfg, logger)
	if err != nil {
		return fmt.Errorf("build venues: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no venue credentials configured")
	}

	store := storage.NewMemStore()
	quotes := quote.NewStore()

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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Detecting. Press Ctrl+C to stop.")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case sig, ok := <-monitor.Signals():
			if !ok {
				return nil
			}
			raw, _ := json.MarshalIndent(sig, "", "  ")
			fmt.Println(string(raw))
		}
	}
}
