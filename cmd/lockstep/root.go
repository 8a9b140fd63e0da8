package main

import (
	"fmt"
	"os"

	"github.com/aretw0/lockstep/internal/cli"
	"github.com/aretw0/lockstep/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lockstep",
	Short: "lockstep schedules lock-declaring actions and manages modal dialogs",
	Long: `lockstep runs actions that declare the shared resources they read and write,
and drives a dialog manager that blocks pointer input while modal dialogs are open.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "lockstep.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	cfg, err := cli.LoadConfig(path, level)
	return cfg, path, err
}
