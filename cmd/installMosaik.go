/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/tools/mosaik"
)

// installMosaikCmd represents the installMosaik command
var installMosaikCmd = &cobra.Command{
	Use:   "installMosaik",
	Short: "Downloads and builds the MOSAIK aligner",
	Long: `Downloads the MOSAIK source at a pinned commit, builds it with make and
prints the path of MosaikAligner and of the networkFile directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := newSession(false)
		defer s.Close()
		ctx, cancel := signalContext()
		defer cancel()

		tool := mosaik.New(stringFlag(cmd, "build-dir", s.cfg.BuildDir))
		tool.Logger = s.logger
		if !boolFlag(cmd, "network-only") {
			if err := tool.Install(ctx); err != nil {
				log.Fatalf("Error installing MOSAIK: %v", err)
			}
			fmt.Println(tool.Executable())
		}
		dir, err := tool.NetworkFile(ctx)
		if err != nil {
			log.Fatalf("Error locating MOSAIK network files: %v", err)
		}
		fmt.Println(dir)
	},
}

func init() {
	rootCmd.AddCommand(installMosaikCmd)

	installMosaikCmd.Flags().String("build-dir", "build", "directory tools are installed into")
	installMosaikCmd.Flags().Bool("network-only", false, "only download the source for its networkFile directory")
}
