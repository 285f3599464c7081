/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/applets"
	"github.com/gmaffy/viral-ngs-dx/validation"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "viral-ngs-assembly DNAnexus workflow validation",
	Long: `Runs an assembly workflow over the samples of the validation data project
and compares the new assemblies with the ones made before.

1. validate launch <workflow> starts the runs and records them
2. validate postmortem <record> reports on the runs and their identity`,
}

var validateLaunchCmd = &cobra.Command{
	Use:   "launch <workflow>",
	Short: "Launches the workflow and a MUSCLE alignment on every validation sample",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		revision, err := applets.GitRevision(stringFlag(cmd, "applets-dir", s.cfg.AppletsDir))
		if err != nil {
			log.Fatalf("Error detecting git revision: %v", err)
		}
		_, _, err = validation.Launch(ctx, s.client, validation.LaunchOptions{
			Project:     s.project(s.cat.Defaults.ValidationProject),
			Folder:      stringFlag(cmd, "folder"),
			Workflow:    args[0],
			Novocraft:   stringFlag(cmd, "novocraft", s.cat.Defaults.NovocraftBuilder),
			GATK:        stringFlag(cmd, "gatk", s.cat.Defaults.GATKBuilder),
			Muscle:      stringFlag(cmd, "muscle", s.cfg.Muscle, s.cat.Defaults.Muscle),
			DataProject: stringFlag(cmd, "data-project", s.cat.Defaults.ValidationDataProject),
			Limit:       intFlag(cmd, "limit"),
			RunID:       validation.RunID(time.Now(), revision),
		}, os.Stdout)
		if err != nil {
			log.Fatalf("Error launching validation: %v", err)
		}
	},
}

var validatePostmortemCmd = &cobra.Command{
	Use:   "postmortem <record>",
	Short: "Reports the state and assembly identity of every sample of a validation run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		results, err := validation.Postmortem(ctx, s.client, args[0], os.Stdout)
		if err != nil {
			log.Fatalf("Error examining validation run %s: %v", args[0], err)
		}
		summary := validation.Summarize(results)
		s.logger.Info("VALIDATION", "PROGRAM", "postmortem", "ID", args[0], "samples", summary.Samples, "mean_identity", summary.Mean, "min_identity", summary.Min)

		report := stringFlag(cmd, "report")
		if report == "" {
			return
		}
		f, err := os.Create(report)
		if err != nil {
			log.Fatalf("Error creating %s: %v", report, err)
		}
		defer f.Close()
		if err := validation.WriteReport(f, results); err != nil {
			log.Fatalf("Error writing %s: %v", report, err)
		}
		fmt.Printf("Report written to %s\n", report)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.AddCommand(validateLaunchCmd)
	validateCmd.AddCommand(validatePostmortemCmd)

	validateLaunchCmd.Flags().StringP("folder", "f", "", "Folder within project (default: timestamp-based)")
	validateLaunchCmd.Flags().String("novocraft", "", "Novocraft tarball (default from catalog)")
	validateLaunchCmd.Flags().String("gatk", "", "GATK tarball (default from catalog)")
	validateLaunchCmd.Flags().String("muscle", "", "Muscle applet ID (default from catalog)")
	validateLaunchCmd.Flags().String("data-project", "", "project holding the earlier BAMs and assemblies (default from catalog)")
	validateLaunchCmd.Flags().Int("limit", 0, "Launch workflow on no more than this many samples")
	validateLaunchCmd.Flags().String("applets-dir", ".", "git checkout the run is named after")

	validatePostmortemCmd.Flags().StringP("report", "o", "", "write an HTML identity report to this file")
}
