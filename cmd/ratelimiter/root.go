package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aesthetiq/ratelimiter/internal/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ratelimiter",
	Short: "Rate limiting service with pluggable strategies and storage",
	Long: `ratelimiter enforces per-category request limits in front of an HTTP API.

It supports fixed window, sliding window, token bucket, leaky bucket and
adaptive strategies on Redis, in-memory or SQL storage, and ships with DDoS
heuristics and an event log with analytics.`,
	Version:       server.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.yaml or ./config/config.yaml)")
}
