package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/wallpaint/internal/core"
)

func checkConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config [config.yaml]",
		Short: "Validate a server configuration file",
		Long:  `Load a configuration file, apply defaults and report the effective settings. Defaults to CONFIG_PATH or ./config.yaml.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			config, err := core.LoadConfig(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", path)
			fmt.Fprintf(out, "  port:         %d\n", config.Port)
			fmt.Fprintf(out, "  database:     %s\n", config.Database.Type)
			fmt.Fprintf(out, "  storage:      %s\n", config.Storage.Type)
			fmt.Fprintf(out, "  segmentation: %s (timeout %s)\n", config.Segmentation.Type, config.Segmentation.Timeout)
			fmt.Fprintf(out, "  output:       %s, %d workers, queue %d\n",
				config.Pipeline.OutputFormat, config.Pipeline.Workers, config.Pipeline.QueueSize)
			for i, cmdConfig := range config.Pipeline.PostProcess {
				fmt.Fprintf(out, "  postProcess[%d]: %s %v\n", i, cmdConfig.Name, cmdConfig.Params)
			}
			return nil
		},
	}
}
