package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petec4244/arbees/internal/app"
	"github.com/petec4244/arbees/internal/eventstate"
	"github.com/petec4244/arbees/internal/ingestor"
	"github.com/petec4244/arbees/internal/position"
	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the Position Tracker alone against live quotes",
	Long: `Starts the Price Ingestor and Position Tracker (Component E), and
prints every position update, exit request, and alert as it happens.
With no open positions loaded from the store this mostly exercises the
ingestion-to-quote path; point it at a store already holding open
positions to watch real stop-loss, take-profit, and time-based exits
fire.`,
	RunE: runTrack,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
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

	store, err := app.BuildStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer func() { _ = store.Close() }()

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
			Probabilities: app.DefaultProbabilityModel(),
			Holdings:      map[types.Venue]position.VenueHoldings{},
			Store:         store,
			Logger:        logger,
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
		if err := tracker.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("position tracker error: %v\n", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-tracker.ExitRequests():
				if !ok {
					return
				}
				raw, _ := json.MarshalIndent(req, "", "  ")
				fmt.Println(string(raw))
			case alert, ok := <-tracker.Alerts():
				if !ok {
					return
				}
				fmt.Printf("alert: %s\n", alert)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Tracking. Press Ctrl+C to stop.")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case pos, ok := <-tracker.Updates():
			if !ok {
				return nil
			}
			raw, _ := json.MarshalIndent(pos, "", "  ")
			fmt.Println(string(raw))
		}
	}
}
