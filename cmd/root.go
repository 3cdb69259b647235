package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "arbees",
	Short: "Cross-venue prediction market trading engine",
	Long: `Arbees trades the same real-world event across Kalshi and
Polymarket. It ingests live quotes from both venues, links their markets
to a shared event, detects risk-free cross-venue arbitrage and
model-driven edge against a win-probability estimate, and runs accepted
signals through a gated execution engine with a kill switch, exposure
caps, and per-venue rate limits before tracking the resulting positions
through exit.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Flags can be added here if needed
}
