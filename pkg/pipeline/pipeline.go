// Package pipeline runs one audit: customers are fetched one after another
// through a shared rate gate, and each customer's files are written as soon
// as its batch completes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
	"github.com/mrioqueiroz/nrdata-dl/pkg/batch"
	"github.com/mrioqueiroz/nrdata-dl/pkg/client"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
	"github.com/mrioqueiroz/nrdata-dl/pkg/metrics"
	"github.com/mrioqueiroz/nrdata-dl/pkg/output"
	"github.com/mrioqueiroz/nrdata-dl/pkg/ratelimit"
)

// ErrRunAborted wraps the run-scoped error that stopped a run.
var ErrRunAborted = errors.New("run aborted")

// Config is everything a run needs. It is built by the caller; the pipeline
// never reads the environment or files other than its output directory.
type Config struct {
	// Client configures the API client. Its Limiter, Cache and Clock are
	// filled in by Run.
	Client client.Config

	Credentials client.Credentials

	RateLimit ratelimit.Config

	// MaxConcurrency bounds parallel requests within one customer.
	MaxConcurrency int

	// OutputDir receives per-customer files and the summary.
	OutputDir string

	Customers []audit.Customer

	// Cache is optional.
	Cache client.PayloadCache

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// MetricsTextfile writes nrdata-dl.prom into OutputDir when the run ends.
	MetricsTextfile bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be > 0 (got %d)", c.MaxConcurrency)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	ids := make([]string, len(c.Customers))
	for i, cust := range c.Customers {
		ids[i] = cust.ID
	}
	return output.CheckCustomerIDs(ids...)
}

// Report describes a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Result holds the batches of every customer that completed.
	Result audit.Result

	Output output.Report
}

// Run executes the audit described by cfg.
//
// Per-identifier problems never surface here; they are outcomes in the
// report. The error is non-nil only for configuration or output setup
// problems, or when a run-scoped error (authentication failure,
// cancellation) aborted the run, in which case it wraps ErrRunAborted. Files
// already written for earlier customers stay on disk; the aborted customer
// gets none and no summary is written.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: cfg.Clock.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, "pipeline", report.RunID)
	logger := logging.FromContext(ctx, "pipeline")

	gate, err := ratelimit.NewGate(cfg.RateLimit, cfg.Clock, logging.FromContext(ctx, "ratelimit"))
	if err != nil {
		return report, fmt.Errorf("create rate gate: %w", err)
	}

	clientCfg := cfg.Client
	clientCfg.Limiter = gate
	clientCfg.Cache = cfg.Cache
	clientCfg.Clock = cfg.Clock
	apiClient, err := client.New(clientCfg)
	if err != nil {
		return report, fmt.Errorf("create client: %w", err)
	}

	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return report, err
	}

	fetcher := batch.NewFetcher(apiClient, batch.Config{MaxConcurrency: cfg.MaxConcurrency})

	logger.Info().
		Int("customers", len(cfg.Customers)).
		Dur("spacing", gate.Spacing()).
		Int("concurrency", cfg.MaxConcurrency).
		Bool("cache", cfg.Cache != nil).
		Msg("Starting run")

	defer func() {
		if cfg.MetricsTextfile {
			path := filepath.Join(cfg.OutputDir, metrics.TextfileName)
			if err := metrics.WriteTextfile(path); err != nil {
				logger.Warn().Err(err).Msg("Failed to write metrics textfile")
			}
		}
	}()

	var batches []audit.CustomerBatch
	for _, customer := range cfg.Customers {
		b, err := fetcher.Run(ctx, customer, cfg.Credentials)
		if err != nil {
			report.Result = audit.Aggregate(batches...)
			report.FinishedAt = cfg.Clock.Now().UTC()
			logger.Error().
				Err(err).
				Str("customer_id", customer.ID).
				Int("completed_customers", len(batches)).
				Msg("Run aborted")
			return report, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}

		batches = append(batches, b)
		report.Output.Customers = append(report.Output.Customers, writer.WriteCustomer(b))
	}

	report.Result = audit.Aggregate(batches...)
	report.Output.SummaryPath, report.Output.SummaryErr = writer.WriteSummary(report.Result)
	report.FinishedAt = cfg.Clock.Now().UTC()

	totals := report.Result.Totals()
	logger.Info().
		Int("valid", totals.Valid).
		Int("invalid", totals.Invalid).
		Int("failed", totals.Failed).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Run complete")

	return report, nil
}
