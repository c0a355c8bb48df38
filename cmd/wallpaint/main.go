package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func defaultConfigPath() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cwd, "config.yaml")
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wallpaint",
		Short:         "Recolour walls in photos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(paintCommand(), checkConfigCommand())
	return rootCmd
}

func main() {
	if err := RootCommand().Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}
