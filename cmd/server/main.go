package main

import (
	"os"

	"github.com/OFFIS-RIT/aai-resources/internal/cli"
	"github.com/OFFIS-RIT/aai-resources/internal/config"
	"github.com/OFFIS-RIT/aai-resources/internal/server"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	cli.InitLogger("server")

	var configPath string
	cmd := &cobra.Command{
		Use:          "server [-c <config>]",
		Short:        "Serve the A&AI admin API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return server.Init(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "graph storage config file")

	if err := cmd.Execute(); err != nil {
		logger.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}
