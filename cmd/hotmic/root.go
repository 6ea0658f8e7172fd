package main

import (
	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by all subcommands.
var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hotmic",
		Short:         "Voice session controller with silence endpointing and playback controls",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to $HOTMIC_CONFIG)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newConfigCmd())
	return root
}
