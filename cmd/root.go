/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "viral-ngs-dx",
	Short: "Build and test the viral-ngs pipelines on DNAnexus",
	Long: `Operator tooling for the viral-ngs pipelines on DNAnexus:
1.	Build applets and the assembly and demultiplexing workflows
2.	Run the test samples and check their figures of merit
3.	Build the resources tarball
4.	Export execution metrics to CSV
5.	Validate an assembly workflow against earlier assemblies
6.	Install the MOSAIK aligner
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var cfgFile string
var projectID string
var logFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file ")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "DNAnexus project ID")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "JSON log file, also used to resume applet builds")
}
