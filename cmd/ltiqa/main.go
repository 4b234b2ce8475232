package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "ltiqa",
	Short:         "Course Q&A tool for LMS launches",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(materialsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(sparqlCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
