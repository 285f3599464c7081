/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/resources"
)

// buildResourcesCmd represents the buildResources command
var buildResourcesCmd = &cobra.Command{
	Use:   "buildResources <gitref>",
	Short: "Builds the viral-ngs resources tarball on DNAnexus",
	Long: `Builds the viral-ngs-builder applet and runs it for a dnanexus/viral-ngs
git ref. The builder bundles the Novocraft and GATK tarballs with the
viral-ngs reference data; the id of the resulting tarball is printed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(true)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		_, err := resources.BuildTarball(ctx, s.client, platform.DX{}, resources.Options{
			Project:      s.project(s.cat.Defaults.Project),
			Folder:       stringFlag(cmd, "folder"),
			GitRef:       args[0],
			Novocraft:    stringFlag(cmd, "novocraft", s.cat.Defaults.NovocraftBuilder),
			GATK:         stringFlag(cmd, "gatk", s.cat.Defaults.GATKBuilder),
			SourceDir:    stringFlag(cmd, "applets-dir", s.cfg.AppletsDir),
			ReuseBuilder: boolFlag(cmd, "reuse-builder"),
		}, os.Stdout)
		if err != nil {
			log.Fatalf("Error building resources tarball: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(buildResourcesCmd)

	buildResourcesCmd.Flags().StringP("folder", "f", resources.DefaultFolder, "Folder within project")
	buildResourcesCmd.Flags().String("novocraft", "", "Novocraft tarball (default from catalog)")
	buildResourcesCmd.Flags().String("gatk", "", "GATK tarball (default from catalog)")
	buildResourcesCmd.Flags().Bool("reuse-builder", false, "Reuse the existing 'builder' applet instead of recreating it")
	buildResourcesCmd.Flags().String("applets-dir", ".", "directory holding the viral-ngs-builder applet source")
}
