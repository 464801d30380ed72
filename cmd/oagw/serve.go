package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oagw/gateway/bootstrap"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the OAGW gateway server.

The server will:
  - Load configuration from oagw.yaml (or --config)
  - Connect to the repository (sqlite or memory)
  - Serve the Management REST API under /oagw/v1
  - Serve the Proxy endpoint under /api/oagw/v1/proxy/{alias}/*

Examples:
  oagw serve
  oagw serve --config /etc/oagw/config.yaml
  oagw serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("No configuration found at %s.\n", cfgFile)
		fmt.Println("Create one, or point --config at an existing file.")
		return nil
	}

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	app.HotReload = hotReload

	return app.Run()
}
