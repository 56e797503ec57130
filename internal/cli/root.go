// Package cli implements the HabitNest command-line interface using Cobra.
// Commands open the configured store directly; only `serve` starts the API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/habitnest/habitnest/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "habitnest",
	Short: "HabitNest: habit progress and rewards",
	Long: `HabitNest tracks daily habits (sleep, hydration, diet, focus) and pays
out rewards: a 7-day check-in calendar, activity streaks and quests.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	userFlag   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HABITNEST_HOME/config.toml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// addUserFlag registers the required --user flag on a per-user command.
func addUserFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&userFlag, "user", "u", "", "User id")
	_ = cmd.MarkFlagRequired("user")
}

func loadConfig() (daemon.Config, error) {
	if configPath != "" {
		return daemon.LoadConfigFile(configPath)
	}
	return daemon.LoadConfig()
}

// openDaemon builds the services for a one-shot command.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.NewWithConfig(cfg)
}
