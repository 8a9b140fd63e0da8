package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "List the lock registry and the registered actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		asGraph, _ := cmd.Flags().GetBool("graph")
		out := cmd.OutOrStdout()

		// in-memory collaborators are enough to list descriptors
		sys, err := lockstep.New(lockstep.WithRegistry(cfg.Registry()))
		if err != nil {
			return err
		}
		defer sys.Shutdown(context.Background())

		if asGraph {
			fmt.Fprint(out, graph.GenerateMermaid(sys.Scheduler.Actions(), nil))
			return nil
		}

		fmt.Fprintln(out, "Locks:")
		for _, l := range sys.Scheduler.Registry().All() {
			fmt.Fprintf(out, "  %s\n", l)
		}
		fmt.Fprintln(out, "Actions:")
		for _, a := range sys.Scheduler.Actions() {
			var parts []string
			for l, acc := range a.Access() {
				parts = append(parts, fmt.Sprintf("%s:%s", l, acc))
			}
			sort.Strings(parts)
			modal := ""
			if a.Modal {
				modal = " modal"
			}
			fmt.Fprintf(out, "  %-32s %s%s\n", a.Name, strings.Join(parts, " "), modal)
		}
		if err := sys.Scheduler.ValidateTransfers(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Transfers: ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locksCmd)
	locksCmd.Flags().Bool("graph", false, "Print a Mermaid flowchart instead")
}
