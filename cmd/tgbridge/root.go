package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	serve := newServeCmd(&configPath)
	root := &cobra.Command{
		Use:           "tgbridge",
		Short:         "Relay Telegram conversations into Pyrus tasks and back",
		SilenceUsage:  true,
		SilenceErrors: true,
		// bare invocation serves
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML configuration file")

	root.AddCommand(serve, newMigrateCmd(&configPath))
	return root
}
