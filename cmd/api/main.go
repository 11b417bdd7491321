package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "clinic-api",
		Short:        "Pediatric clinic billing and appointments API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: config.yml in ., ./config or /app/config)")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newUserCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
