package cmd

import (
	"fmt"

	"github.com/petec4244/arbees/internal/app"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the full trading pipeline",
	Long: `Starts every hot-path component end to end: ingests Kalshi and
Polymarket quotes, assigns event links from the orchestrator, evaluates
cross-venue arbitrage and model-driven edge signals, runs accepted
requests through the execution gate, and tracks open positions through
exit and reconciliation.

The --single-market flag is accepted and passed to the app, which does
not act on it: every linked event is tracked.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("single-market", "s", "", "Market slug (accepted but has no effect; every linked event is tracked)")
}

func runBot(cmd *cobra.Command, args []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Get flags
	singleMarket, _ := cmd.Flags().GetString("single-market")

	// Create app with options
	opts := &app.Options{
		SingleMarket: singleMarket,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
