package cmd

import (
	"fmt"

	"github.com/petec4244/arbees/internal/killswitch"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var killswitchCmd = &cobra.Command{
	Use:   "killswitch",
	Short: "Inspect or trip the gate G2 kill switch",
	Long: `Reads, enables, or disables the sentinel file the running engine's
gate G2 checks before every order placement. Operating on the sentinel
directly lets an operator halt trading from outside the process, even
if the engine itself is unresponsive.`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var killswitchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the kill switch is active",
	RunE:  runKillswitchStatus,
}

//nolint:gochecknoglobals // Cobra boilerplate
var killswitchEnableCmd = &cobra.Command{
	Use:   "enable <reason>",
	Short: "Trip the kill switch, blocking every new order",
	Args:  cobra.ExactArgs(1),
	RunE:  runKillswitchEnable,
}

//nolint:gochecknoglobals // Cobra boilerplate
var killswitchDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Clear the kill switch, resuming order placement",
	RunE:  runKillswitchDisable,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(killswitchCmd)
	killswitchCmd.AddCommand(killswitchStatusCmd, killswitchEnableCmd, killswitchDisableCmd)
}

func loadKillswitch() (*killswitch.Switch, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return killswitch.New(cfg.KillSwitchSentinelPath, logger)
}

func runKillswitchStatus(cmd *cobra.Command, args []string) error {
	sw, err := loadKillswitch()
	if err != nil {
		return err
	}
	if sw.IsActive() {
		fmt.Println("kill switch: ACTIVE (trading halted)")
	} else {
		fmt.Println("kill switch: inactive")
	}
	return nil
}

func runKillswitchEnable(cmd *cobra.Command, args []string) error {
	sw, err := loadKillswitch()
	if err != nil {
		return err
	}
	if err := sw.Enable(args[0]); err != nil {
		return fmt.Errorf("enable kill switch: %w", err)
	}
	fmt.Printf("kill switch enabled: %s\n", args[0])
	return nil
}

func runKillswitchDisable(cmd *cobra.Command, args []string) error {
	sw, err := loadKillswitch()
	if err != nil {
		return err
	}
	if err := sw.Disable(); err != nil {
		return fmt.Errorf("disable kill switch: %w", err)
	}
	fmt.Println("kill switch disabled")
	return nil
}
