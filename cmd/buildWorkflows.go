/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/applets"
	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/testruns"
	"github.com/gmaffy/viral-ngs-dx/utils"
	"github.com/gmaffy/viral-ngs-dx/workflow"
)

// buildWorkflowsCmd represents the buildWorkflows command
var buildWorkflowsCmd = &cobra.Command{
	Use:   "buildWorkflows",
	Short: "Builds the viral-ngs applets and workflows in a new folder",
	Long: `Builds, in a timestamped folder of the project:

1. the workflow applets (into <folder>/applets) and the user facing applets
2. one assembly workflow per species (Ebola, Lassa, Generic, Abridged)
3. the demux-only and demux-plus workflows

With --run-tests the small test samples are assembled and their figures of
merit checked; --run-large-tests adds the larger samples. Applets already
built for the same git revision into the same folder are reused.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		if err := utils.CheckDeps("dx", "git"); err != nil {
			log.Fatalf("Error checking dependencies: %v", err)
		}

		appletsDir := stringFlag(cmd, "applets-dir", s.cfg.AppletsDir)
		revision, err := applets.GitRevision(appletsDir)
		if err != nil {
			log.Fatalf("Error detecting git revision: %v", err)
		}
		project := s.project(s.cat.Defaults.Project)
		folder := stringFlag(cmd, "folder", s.cfg.Folder, applets.DefaultFolder(time.Now(), revision))
		gatk := stringFlag(cmd, "gatk", s.cfg.GATK, s.cat.Defaults.GATK)
		novocraft := stringFlag(cmd, "novocraft", s.cfg.Novocraft)
		runTests := boolFlag(cmd, "run-tests")
		runLargeTests := boolFlag(cmd, "run-large-tests")
		dotDir := stringFlag(cmd, "dot")

		p, err := s.client.DescribeProject(ctx, project)
		if err != nil {
			log.Fatalf("Error describing project %s: %v", project, err)
		}
		fmt.Printf("project: %s (%s)\n", p.Name, project)
		fmt.Printf("folder: %s\n", folder)

		appletsFolder := applets.AppletsFolder(folder)
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
		if _, err := builder.Build(ctx, appletsFolder, applets.WorkflowApplets); err != nil {
			log.Fatalf("Error building applets: %v", err)
		}
		if _, err := builder.Build(ctx, folder, applets.ExposedApplets); err != nil {
			log.Fatalf("Error building applets: %v", err)
		}

		resolver := applets.NewResolver(s.client, project, appletsFolder)
		target := workflow.Target{
			Project:    project,
			Folder:     folder,
			Properties: map[string]string{applets.RevisionProperty: revision},
		}
		build := func(spec workflow.Spec) *workflow.Built {
			if dotDir != "" {
				writeDOT(dotDir, spec)
			}
			s.logger.Info("BUILD WORKFLOWS", "PROGRAM", "workflow", "APPLET", spec.Name, "REVISION", revision, "FOLDER", folder, "STATUS", utils.StatusStarted)
			built, err := workflow.Build(ctx, s.client, resolver, spec, target)
			if err != nil {
				s.logger.Error("BUILD WORKFLOWS", "PROGRAM", "workflow", "APPLET", spec.Name, "STATUS", utils.StatusFailed, "error", err)
				log.Fatalf("Error building workflow %s: %v", spec.Name, err)
			}
			s.logger.Info("BUILD WORKFLOWS", "PROGRAM", "workflow", "APPLET", spec.Name, "REVISION", revision, "FOLDER", folder, "STATUS", utils.StatusCompleted, "ID", built.ID)
			fmt.Printf("%s %s\n", built.ID, spec.Name)
			return built
		}

		assemblies := map[string]*workflow.Built{}
		for _, species := range s.cat.SpeciesNames() {
			assemblies[species] = build(workflow.Assembly(species, s.cat.Species[species]))
		}
		build(workflow.DemuxOnly())
		demuxPlus := build(workflow.DemuxPlus())

		if !runTests && !runLargeTests {
			return
		}
		runner := &testruns.Runner{
			Client:    s.client,
			Project:   project,
			Folder:    folder,
			Revision:  revision,
			Muscle:    stringFlag(cmd, "muscle", s.cfg.Muscle, s.cat.Defaults.Muscle),
			GATK:      gatk,
			Novocraft: novocraft,
			KrakenDB:  s.cat.Defaults.MinikrakenDB,
			Out:       os.Stdout,
			Logger:    s.logger,
		}
		assemblyRuns, err := runner.LaunchAssemblies(ctx, s.cat.Tests(runLargeTests), assemblies)
		if err != nil {
			log.Fatalf("Error launching test assemblies: %v", err)
		}
		demuxRuns, err := runner.LaunchDemuxPlus(ctx, s.cat.DemuxTests, demuxPlus)
		if err != nil {
			log.Fatalf("Error launching demux-plus tests: %v", err)
		}
		if err := runner.Wait(ctx, assemblyRuns, demuxRuns); err != nil {
			log.Fatalf("Error waiting for test analyses: %v", err)
		}
		if err := runner.Check(ctx, assemblyRuns); err != nil {
			log.Fatalf("Error checking test results: %v", err)
		}
	},
}

func writeDOT(dir string, spec workflow.Spec) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Error creating %s: %v", dir, err)
	}
	path := filepath.Join(dir, spec.Name+".dot")
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Error creating %s: %v", path, err)
	}
	defer f.Close()
	if err := workflow.WriteDOT(spec, f); err != nil {
		log.Fatalf("Error writing %s: %v", path, err)
	}
}

func init() {
	rootCmd.AddCommand(buildWorkflowsCmd)

	buildWorkflowsCmd.Flags().StringP("folder", "f", "", "Folder within project (default: timestamp-based)")
	buildWorkflowsCmd.Flags().String("novocraft", "", "Novocraft license file. Optional: multithreading enabled with license")
	buildWorkflowsCmd.Flags().String("gatk", "", "GATK tarball (default from catalog)")
	buildWorkflowsCmd.Flags().String("muscle", "", "MUSCLE applet used to inspect test assemblies (default from catalog)")
	buildWorkflowsCmd.Flags().String("applets-dir", ".", "directory holding the applet sources")
	buildWorkflowsCmd.Flags().String("dot", "", "write the stage graph of every workflow as Graphviz DOT into this directory")
	buildWorkflowsCmd.Flags().Bool("run-tests", false, "run small test assemblies")
	buildWorkflowsCmd.Flags().Bool("run-large-tests", false, "run test assemblies of varying sizes")
}
