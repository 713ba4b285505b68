// Command nrdata-dl downloads NR records for a list of customers, validating
// every identifier before it reaches the API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrioqueiroz/nrdata-dl/internal/config"
	"github.com/mrioqueiroz/nrdata-dl/internal/input"
	"github.com/mrioqueiroz/nrdata-dl/pkg/cache"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
	"github.com/mrioqueiroz/nrdata-dl/pkg/pipeline"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nrdata-dl",
		Short:        "Validate and download NR records per customer",
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(newRunCmd(), newValidateCmd(), versionCmd)
	return rootCmd
}

// runFlags maps command-line flags to configuration keys.
var runFlags = map[string]string{
	"input":            config.KeyInputFile,
	"output":           config.KeyOutputFolder,
	"concurrency":      config.KeyConcurrency,
	"limit-per-minute": config.KeyLimitPerMinute,
	"log-level":        config.KeyLogLevel,
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download every identifier of the input file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")

			cfg, err := config.Load(envFile, func(v *viper.Viper) error {
				for flag, key := range runFlags {
					if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("env-file", "", "env file to load (default: .env when present)")
	cmd.Flags().String("input", "", "input file with one identifier or customer_id,identifier per line")
	cmd.Flags().String("output", "", "output directory")
	cmd.Flags().Int("concurrency", 0, "parallel requests per customer")
	cmd.Flags().Int("limit-per-minute", 0, "requests allowed per minute")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logCfg := cfg.Logging()
	logger := logging.Setup(logCfg)

	customers, err := input.Load(cfg.InputFile, cfg.DefaultCustomer)
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Client:          cfg.Client(),
		Credentials:     cfg.Credentials(),
		RateLimit:       cfg.RateLimit(),
		MaxConcurrency:  cfg.Concurrency,
		OutputDir:       cfg.OutputFolder,
		Customers:       customers,
		MetricsTextfile: cfg.MetricsTextfile,
	}

	if cfg.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()

		manager, err := cache.NewManager(rdb, cfg.Cache())
		if err != nil {
			return err
		}
		pcfg.Cache = manager
	}

	report, err := pipeline.Run(ctx, pcfg)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return err
	}

	totals := report.Result.Totals()
	fmt.Fprintf(out, "run %s: %d customers, %d identifiers: %d valid, %d invalid, %d failed; summary: %s\n",
		report.RunID, len(report.Result.Batches()), totals.Total(),
		totals.Valid, totals.Invalid, totals.Failed, report.Output.SummaryPath)

	return report.Output.Err()
}

// connectRedis opens and pings the payload cache.
func connectRedis(ctx context.Context, rawURL string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", config.KeyRedisURL, err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return rdb, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate identifier...",
		Short: "Check identifiers offline without contacting the API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invalid := 0
			for _, raw := range args {
				id, err := nr.Parse(raw)
				if err != nil {
					invalid++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\t%s\n", raw, nr.Reason(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid\n", id)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d identifiers are invalid", invalid, len(args))
			}
			return nil
		},
	}
}
