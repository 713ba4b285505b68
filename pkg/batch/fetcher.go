package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
	"github.com/mrioqueiroz/nrdata-dl/pkg/client"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests. The shared
	// rate limiter still decides when each one may start.
	MaxConcurrency int

	// ProgressEvery logs progress after this many completed fetches.
	ProgressEvery int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		ProgressEvery:  50,
	}
}

// RecordFetcher fetches a single identifier. *client.Client implements it.
type RecordFetcher interface {
	Fetch(ctx context.Context, id nr.Identifier, creds client.Credentials) (audit.Outcome, error)
}

// task is one unique identifier to fetch and the input positions waiting on it.
type task struct {
	id        nr.Identifier
	positions []int
}

// result is the outcome of one task.
type result struct {
	task    *task
	outcome audit.Outcome
}

// Fetcher runs customer batches through a worker pool.
type Fetcher struct {
	fetcher RecordFetcher
	config  Config
}

// NewFetcher creates a new batch fetcher.
func NewFetcher(fetcher RecordFetcher, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = DefaultConfig().ProgressEvery
	}

	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// Run validates and fetches every identifier of customer and returns the
// batch in input order. A non-nil error is run-scoped (fatal client error or
// cancellation); the batch is then the zero value.
func (f *Fetcher) Run(ctx context.Context, customer audit.Customer, creds client.Credentials) (audit.CustomerBatch, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, "batch-fetcher").With().Str("customer_id", customer.ID).Logger()

	entries := make([]audit.Entry, len(customer.Identifiers))
	tasks, invalid := f.plan(customer, entries)

	logger.Info().
		Int("identifiers", len(entries)).
		Int("invalid", invalid).
		Int("to_fetch", len(tasks)).
		Msg("Starting batch fetch")

	if len(tasks) > 0 {
		if err := f.fetchAll(ctx, tasks, creds, entries, logger); err != nil {
			logger.Error().
				Err(err).
				Dur("duration", time.Since(start)).
				Msg("Batch aborted, discarding collected outcomes")
			return audit.CustomerBatch{}, fmt.Errorf("customer %s: %w", customer.ID, err)
		}
	}

	b, err := audit.NewCustomerBatch(customer, entries)
	if err != nil {
		return audit.CustomerBatch{}, err
	}

	for _, e := range entries {
		outcomesTotal.WithLabelValues(string(e.Outcome.Status())).Inc()
	}
	batchDuration.Observe(time.Since(start).Seconds())

	counts := b.Counts()
	logger.Info().
		Int("valid", counts.Valid).
		Int("invalid", counts.Invalid).
		Int("failed", counts.Failed).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return b, nil
}

// plan validates every input, fills entries for invalid ones and returns the
// unique identifiers to fetch in first-appearance order.
func (f *Fetcher) plan(customer audit.Customer, entries []audit.Entry) ([]*task, int) {
	var (
		tasks   []*task
		byID    = make(map[nr.Identifier]*task)
		invalid int
	)

	for pos, raw := range customer.Identifiers {
		entries[pos] = audit.Entry{Position: pos, Raw: raw.Value}

		id, err := nr.Parse(raw.Value)
		if err != nil {
			entries[pos].Outcome = audit.Invalid(nr.Reason(err))
			invalid++
			continue
		}
		entries[pos].Identifier = id

		if t, ok := byID[id]; ok {
			t.positions = append(t.positions, pos)
			duplicatesTotal.Inc()
			continue
		}
		t := &task{id: id, positions: []int{pos}}
		byID[id] = t
		tasks = append(tasks, t)
	}

	return tasks, invalid
}

// fetchAll drains tasks with a bounded worker pool and records every outcome
// in entries. The first worker error cancels the remaining work.
func (f *Fetcher) fetchAll(ctx context.Context, tasks []*task, creds client.Credentials, entries []audit.Entry, logger zerolog.Logger) error {
	queue := make(chan *task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	results := make(chan result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	workers := min(f.config.MaxConcurrency, len(tasks))
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			return f.worker(gctx, workerID, queue, results, creds, logger)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	fetched := 0
	for r := range results {
		for _, pos := range r.task.positions {
			entries[pos].Outcome = r.outcome
		}
		fetched++

		if fetched%f.config.ProgressEvery == 0 {
			logger.Info().
				Int("fetched", fetched).
				Int("total", len(tasks)).
				Float64("progress_pct", float64(fetched)/float64(len(tasks))*100).
				Msg("Fetch progress")
		}
	}

	return <-done
}

// worker processes tasks from the queue until it is empty or the batch is cancelled.
func (f *Fetcher) worker(ctx context.Context, workerID int, queue <-chan *task, results chan<- result, creds client.Credentials, logger zerolog.Logger) error {
	processed := 0

	for t := range queue {
		if err := ctx.Err(); err != nil {
			logger.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return err
		}

		outcome, err := f.fetcher.Fetch(ctx, t.id, creds)
		if err != nil {
			return err
		}

		// results is buffered for every task, so this never blocks.
		results <- result{task: t, outcome: outcome}
		processed++
	}

	if processed > 0 {
		logger.Debug().
			Int("worker_id", workerID).
			Int("processed", processed).
			Msg("Worker completed")
	}
	return nil
}
