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
	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/testruns"
	"github.com/gmaffy/viral-ngs-dx/workflow"
)

// buildAssemblyWorkflowCmd represents the buildAssemblyWorkflow command
var buildAssemblyWorkflowCmd = &cobra.Command{
	Use:   "buildAssemblyWorkflow",
	Short: "Builds the four stage trim, filter, Trinity and finishing assembly workflow",
	Long: `Builds the trimmer, lastal filter and assembly finisher applets into
<folder>/applets and wires them with an existing Trinity applet:

1. trim
2. filter
3. trinity
4. finishing

--SRR1553416 then assembles SRR1553416 and prints the analysis outputs
every 30 seconds until it finishes.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		legacy := s.cat.Legacy
		appletsDir := stringFlag(cmd, "applets-dir", s.cfg.AppletsDir)
		revision, err := applets.GitRevision(appletsDir)
		if err != nil {
			log.Fatalf("Error detecting git revision: %v", err)
		}
		project := s.project(s.cat.Defaults.Project)
		folder := stringFlag(cmd, "folder", s.cfg.Folder, applets.DefaultFolder(time.Now(), revision))
		opts := workflow.LegacyOptions{
			Resources:          stringFlag(cmd, "resources", s.cfg.Resources, s.cat.Defaults.Resources),
			TrimContaminants:   stringFlag(cmd, "trim-contaminants", legacy.TrimContaminants),
			FilterTargets:      stringFlag(cmd, "filter-targets", legacy.FilterTargets),
			TrinityApplet:      stringFlag(cmd, "trinity-applet", legacy.TrinityApplet),
			FinishingReference: stringFlag(cmd, "finishing-reference", legacy.FinishingReference),
		}

		p, err := s.client.DescribeProject(ctx, project)
		if err != nil {
			log.Fatalf("Error describing project %s: %v", project, err)
		}
		fmt.Printf("project: %s (%s)\n", p.Name, project)
		fmt.Printf("folder: %s\n", folder)

		appletsFolder := applets.AppletsFolder(folder)
		if !boolFlag(cmd, "no-applets") {
			if err := s.client.NewFolder(ctx, project, appletsFolder, true); err != nil {
				log.Fatalf("Error creating %s: %v", appletsFolder, err)
			}
			builder := &applets.Builder{
				Client:    s.client,
				Packager:  platform.DX{},
				Project:   project,
				SourceDir: appletsDir,
				Revision:  revision,
				Logger:    s.logger,
				LogPath:   s.logPath,
			}
			if _, err := builder.Build(ctx, appletsFolder, applets.LegacyApplets); err != nil {
				log.Fatalf("Error building applets: %v", err)
			}
		}

		built, err := workflow.Build(ctx, s.client, applets.NewResolver(s.client, project, appletsFolder),
			workflow.LegacyAssembly(opts), workflow.Target{Project: project, Folder: folder})
		if err != nil {
			log.Fatalf("Error building workflow: %v", err)
		}
		fmt.Printf("%s %s\n", built.ID, built.Spec.Name)

		if !boolFlag(cmd, "SRR1553416") {
			return
		}
		runner := &testruns.Runner{Client: s.client, Project: project, Folder: folder, Revision: revision, Out: os.Stdout, Logger: s.logger}
		analysisID, err := runner.LaunchLegacy(ctx, built, "SRR1553416", legacy.SRR1553416)
		if err != nil {
			log.Fatalf("Error launching SRR1553416: %v", err)
		}
		if _, err := runner.Monitor(ctx, analysisID); err != nil {
			log.Fatalf("Error monitoring %s: %v", analysisID, err)
		}
	},
}

func init() {
	rootCmd.AddCommand(buildAssemblyWorkflowCmd)

	buildAssemblyWorkflowCmd.Flags().StringP("folder", "f", "", "Folder within project (default: timestamp-based)")
	buildAssemblyWorkflowCmd.Flags().Bool("no-applets", false, "Assume applets already exist under designated folder")
	buildAssemblyWorkflowCmd.Flags().String("resources", "", "viral-ngs resources tarball (default from catalog)")
	buildAssemblyWorkflowCmd.Flags().Bool("SRR1553416", false, "run assembly of SRR1553416")
	buildAssemblyWorkflowCmd.Flags().String("trim-contaminants", "", "adapters & contaminants FASTA (default from catalog)")
	buildAssemblyWorkflowCmd.Flags().String("filter-targets", "", "panel of target sequences (default from catalog)")
	buildAssemblyWorkflowCmd.Flags().String("trinity-applet", "", "Trinity wrapper applet (default from catalog)")
	buildAssemblyWorkflowCmd.Flags().String("finishing-reference", "", "Reference genome FASTA (default from catalog)")
	buildAssemblyWorkflowCmd.Flags().String("applets-dir", ".", "directory holding the applet sources")
}
