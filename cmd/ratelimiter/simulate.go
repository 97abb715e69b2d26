package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aesthetiq/ratelimiter/internal/ratelimit"
	"github.com/aesthetiq/ratelimiter/internal/storage"
)

var simulateFlags struct {
	strategy string
	max      int64
	window   time.Duration
	requests int
	interval time.Duration
	load     float64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a strategy with synthetic requests",
	Long: `Run a strategy against in-memory storage with evenly spaced synthetic
timestamps and print every decision. No server or Redis is needed.

Examples:
  # Burst of 15 requests against a 10 per minute token bucket
  ratelimiter simulate --strategy token_bucket --max 10 --window 1m --requests 15 --interval 100ms

  # Adaptive strategy under 90% load
  ratelimiter simulate --strategy adaptive --max 10 --load 0.9`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return simulate(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateFlags.strategy, "strategy", "s", string(ratelimit.FixedWindowStrategy), "strategy name")
	simulateCmd.Flags().Int64VarP(&simulateFlags.max, "max", "m", 10, "requests allowed per window")
	simulateCmd.Flags().DurationVarP(&simulateFlags.window, "window", "w", time.Minute, "window length")
	simulateCmd.Flags().IntVarP(&simulateFlags.requests, "requests", "n", 20, "number of requests to send")
	simulateCmd.Flags().DurationVarP(&simulateFlags.interval, "interval", "i", time.Second, "time between requests")
	simulateCmd.Flags().Float64Var(&simulateFlags.load, "load", 0, "system load seen by the adaptive strategy (0-1)")
}

func simulate(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store := storage.NewMemoryStorage(storage.WithSweepInterval(0))
	defer store.Close()

	factory := ratelimit.NewFactory(store).WithAdaptive(ratelimit.AdaptiveSettings{
		LoadProvider: ratelimit.StaticLoad(simulateFlags.load),
	})

	limiter, err := factory.CreateRateLimiter(ratelimit.Config{
		Window:   simulateFlags.window,
		Max:      simulateFlags.max,
		Strategy: ratelimit.Strategy(simulateFlags.strategy),
	})
	if err != nil {
		return err
	}

	start := time.Unix(0, 0).UTC()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tOFFSET\tALLOWED\tREMAINING\tRETRY AFTER")

	var allowed int
	for i := 0; i < simulateFlags.requests; i++ {
		offset := time.Duration(i) * simulateFlags.interval
		result, err := limiter.IsAllowed(ctx, "simulate", start.Add(offset))
		if err != nil {
			return fmt.Errorf("request %d: %w", i+1, err)
		}

		retry := "-"
		if result.RetryAfter != nil {
			retry = result.RetryAfter.String()
		}
		if result.Allowed {
			allowed++
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%s\n", i+1, offset, result.Allowed, result.Remaining, retry)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s: %d allowed, %d denied\n", simulateFlags.strategy, allowed, simulateFlags.requests-allowed)
	return nil
}
