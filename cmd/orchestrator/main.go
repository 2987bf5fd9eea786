// Package main provides the orchestrator CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cosim/orchestrator/pkg/logger"
)

// Version is the current version number.
const Version = "0.1.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:     "orchestrator",
	Short:   "Co-simulation workflow orchestrator",
	Long:    `orchestrator coordinates a distributed co-simulation workflow: it validates global state from per-component reports, computes the minimum synchronized step, and issues steering commands to local supervisors.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logger.EnableDebug()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSteerCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSuperviseCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
