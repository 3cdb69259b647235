package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petec4244/arbees/internal/app"
	"github.com/petec4244/arbees/internal/ingestor"
	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the Price Ingestor alone and print applied quote snapshots",
	Long: `Starts the per-venue supervisor over every configured venue feed and
prints each applied quote as it lands in the shared store, without
running the rest of the pipeline. Useful for watching ingestion
throughput and restart behavior in isolation.`,
	RunE: runIngest,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringSliceP("market", "m", nil, "Market ID to subscribe on every configured venue (repeatable)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	markets, _ := cmd.Flags().GetStringSlice("market")

	feeds, _, _, err := app.BuildVenues(cfg, logger)
	if err != nil {
		return fmt.Errorf("build venues: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no venue credentials configured")
	}

	store := quote.NewStore()
	supervisor := ingestor.New(ingestor.Config{
		Feeds:          feeds,
		Store:          store,
		Logger:         logger,
		RestartBackoff: cfg.IngestorRestartBackoff,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("ingestor supervisor error: %v\n", err)
		}
	}()

	for _, f := range feeds {
		if len(markets) == 0 {
			continue
		}
		if err := f.Feed.Subscribe(ctx, markets); err != nil {
			fmt.Printf("subscribe failed on %s: %v\n", f.Venue, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Ingesting. Press Ctrl+C to stop.")

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case snap, ok := <-supervisor.Updates():
			if !ok {
				return nil
			}
			raw, _ := json.Marshal(snap)
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), raw)
		}
	}
}
