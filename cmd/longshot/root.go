package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		logFormat string
		logLevel  string
	)
	root := &cobra.Command{
		Use:           "longshot",
		Short:         "Drive ECAM espresso machines over Bluetooth Low Energy",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(logFormat, logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text|json")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	root.AddCommand(
		newBrewCmd(),
		newMonitorCmd(),
		newListCmd(),
		newListRecipesCmd(),
		newReadParameterCmd(),
		newServerCmd(),
		newPipeCmd(),
	)
	return root
}
