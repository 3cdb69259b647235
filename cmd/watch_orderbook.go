package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/internal/venue/kalshi"
	"github.com/petec4244/arbees/internal/venue/polymarket"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/petec4244/arbees/pkg/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-quotes <market-id>",
	Short: "Watch live best-ask quote updates for a single market on one venue",
	Long: `Connects directly to a venue's price feed and prints every applied
quote update for one market, bypassing the ingestor's shared store.
Useful for debugging venue connectivity and message framing in
isolation from the rest of the pipeline.

Example:
  arbees watch-quotes --venue kalshi KXPRES-24NOV05-DJT
  arbees watch-quotes --venue polymarket 0xabc...`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchQuotes,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
	watchOrderbookCmd.Flags().BoolP("json", "j", false, "Output raw JSON messages")
	watchOrderbookCmd.Flags().String("venue", "polymarket", "Venue to watch: kalshi or polymarket")
}

func runWatchQuotes(cmd *cobra.Command, args []string) error {
	marketID := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	venueName, _ := cmd.Flags().GetString("venue")

	feed, err := buildWatchFeed(cfg, logger, venueName)
	if err != nil {
		return err
	}

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("feed-run-error", zap.Error(err))
		}
	}()

	if err := feed.Subscribe(ctx, []string{marketID}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer feed.Close()

	fmt.Printf("Watching %s on %s. Press Ctrl+C to stop.\n", marketID, venueName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	updates := feed.Updates()

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if jsonOutput {
				raw, _ := json.MarshalIndent(upd, "", "  ")
				fmt.Println(string(raw))
			} else {
				printQuoteUpdate(w, upd)
			}
		}
	}
}

// buildWatchFeed constructs a single venue.PriceFeed for ad hoc
// inspection, independent of the full ingestor.Supervisor wiring.
func buildWatchFeed(cfg *config.Config, logger *zap.Logger, venueName string) (venue.PriceFeed, error) {
	switch types.Venue(venueName) {
	case types.VenueKalshi:
		privateKey, err := kalshi.LoadPrivateKeyPEM([]byte(cfg.KalshiPrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse kalshi private key: %w", err)
		}
		return kalshi.New(kalshi.Config{
			APIKeyID:   cfg.KalshiAPIKeyID,
			PrivateKey: privateKey,
			WSURL:      cfg.KalshiWSURL,
			Logger:     logger,
		}), nil
	case types.VenuePolymarket:
		pool := websocket.NewPool(websocket.PoolConfig{
			Size:                  1,
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
		return polymarket.New(polymarket.Config{Pool: pool, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unknown venue %q (want kalshi or polymarket)", venueName)
	}
}

func printQuoteUpdate(w *tabwriter.Writer, upd venue.QuoteUpdate) {
	timestamp := time.UnixMilli(upd.AtMS).Format("15:04:05.000")
	fmt.Fprintf(w, "[%s] %s\t%s\tYES %d@%d\tNO %d@%d\tseq=%d\n",
		timestamp, upd.Venue, upd.MarketID,
		upd.YesAskCents, upd.YesSizeCts, upd.NoAskCents, upd.NoSizeCts, upd.Seq)
	w.Flush()
}
