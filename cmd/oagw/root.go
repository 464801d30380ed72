package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "oagw",
	Short: "Multi-tenant outbound API gateway",
	Long: `OAGW is an egress proxy that sits between your services and the
third-party APIs they call: it resolves a per-tenant upstream from a
request alias, enforces per-upstream and per-route rate limits,
injects credentials via pluggable auth plugins, and applies header
transforms before forwarding.

Quick start:
  oagw serve     # Start the gateway
  oagw migrate   # Apply pending sqlite schema migrations`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "oagw.yaml", "config file path")
}
