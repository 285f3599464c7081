/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/metrics"
)

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics <csvfile> <ids...>",
	Short: "Writes output metrics of analyses or jobs run on DNAnexus to CSV",
	Long: `Describes the given executions and writes one CSV row per execution with
its top level attributes and integer outputs.

IDs can be project-<ID>, analysis-<ID> or job-<ID>. For a project every job
and analysis within it is included, optionally only those in the states
given with --state ('runnable' means waiting to be executed).`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		states := stringSliceFlag(cmd, "state")
		if len(states) == 0 {
			states = s.cfg.States
		}
		if err := metrics.ValidateStates(states); err != nil {
			log.Fatalf("Error getting state flag: %v", err)
		}
		names := stringSliceFlag(cmd, "executableName")
		if len(names) == 0 {
			names = s.cfg.Executable
		}
		workers := intFlag(cmd, "workers")
		if !cmd.Flags().Changed("workers") && s.cfg.Threads > 0 {
			workers = s.cfg.Threads
		}
		opts := metrics.Options{
			States:          states,
			ExecutableNames: names,
			NoDescendants:   boolFlag(cmd, "noDescendants"),
			Workers:         workers,
		}

		descs, err := metrics.Collect(ctx, s.client, args[1:], opts, os.Stdout)
		if err != nil {
			log.Fatalf("Error describing executions: %v", err)
		}
		rows := metrics.Flatten(descs, opts)

		f, err := os.Create(args[0])
		if err != nil {
			log.Fatalf("Error creating %s: %v", args[0], err)
		}
		defer f.Close()
		if err := metrics.WriteCSV(f, rows); err != nil {
			log.Fatalf("Error writing %s: %v", args[0], err)
		}
		fmt.Printf("Metrics written for %d execution objects.\n", len(rows))
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().StringSlice("state", []string{}, "Execution states to include for project IDs: done, failed, running, terminated, runnable (can specify multiple)")
	metricsCmd.Flags().StringSlice("executableName", []string{}, "DNAnexus executable names to include; all if omitted (can specify multiple)")
	metricsCmd.Flags().Bool("noDescendants", false, "Include top-level executions only")
	metricsCmd.Flags().IntP("workers", "j", runtime.NumCPU(), "Describe calls in flight")
}
