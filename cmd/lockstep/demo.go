package main

import (
	"context"
	"time"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/internal/cli"
	"github.com/aretw0/lockstep/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the two-modal-dialog scenario and print a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		latency, _ := cmd.Flags().GetDuration("latency")
		out := cmd.OutOrStdout()

		report, err := cli.RunDemo(context.Background(), latency)
		if err != nil {
			return err
		}

		if tui.IsTerminal(out) {
			tui.PrintBanner(out, lockstep.Version)
		}
		return report.Render(out, tui.RendererFor(out))
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().Duration("latency", 20*time.Millisecond, "Simulated store latency")
}
