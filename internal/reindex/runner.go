// Package reindex drives batch repair runs over the relational store.
// Each target closes one of the ingestion pipeline's eventual
// consistency gaps: regenerating missing derivatives or sidecars, or
// rebuilding the search collections from the rows.
package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// Outcome classifies what happened to one item.
type Outcome string

const (
	// OutcomeUpdated means the item was repaired or reindexed.
	OutcomeUpdated Outcome = "updated"
	// OutcomeSkipped means the item needed nothing.
	OutcomeSkipped Outcome = "skipped"
	// OutcomePlanned means a dry run would have updated the item.
	OutcomePlanned Outcome = "planned"
	// OutcomeFailed means the item errored; the run continues.
	OutcomeFailed Outcome = "failed"
)

// Item is one unit of repair work.
type Item struct {
	ID    string
	Label string // filename or tag name, for logs
}

// Target is one named repair procedure the runner can drive.
type Target interface {
	// Name is the target selector shown in logs and the CLI.
	Name() string
	// Count returns how many items the run will visit, or -1 when the
	// total is unknown.
	Count(ctx context.Context) (int, error)
	// Prepare runs once before the first batch. Never called on a dry
	// run.
	Prepare(ctx context.Context) error
	// NextBatch returns up to limit items with IDs after afterID, in id
	// order. A short batch ends the run.
	NextBatch(ctx context.Context, afterID string, limit int) ([]Item, error)
	// Process repairs one item. Errors are logged and counted, not
	// propagated.
	Process(ctx context.Context, item Item) (Outcome, error)
}

// Options bound a run's footprint on the storage and search backends.
type Options struct {
	BatchSize   int
	Concurrency int
	// Delay paces batches: at most one batch per Delay. Zero disables
	// pacing.
	Delay   time.Duration
	DryRun  bool
	Verbose bool
}

// Summary is the end-of-run accounting per outcome class.
type Summary struct {
	Target   string
	RunID    string
	Total    int
	Counts   map[Outcome]int
	Duration time.Duration
}

// Runner pages a target's items in fixed-size batches with a bounded
// worker fan-out per batch and optional inter-batch pacing.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

func NewRunner(opts Options, logger *slog.Logger) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Runner{
		opts:   opts,
		logger: logger.With("component", "reindex"),
	}
}

// Run drives one target to completion.
func (r *Runner) Run(ctx context.Context, target Target) (*Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "target", target.Name())

	total, err := target.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	logger.Info("starting run",
		"items", total,
		"batch_size", r.opts.BatchSize,
		"concurrency", r.opts.Concurrency,
		"delay", r.opts.Delay,
		"dry_run", r.opts.DryRun,
	)

	if r.opts.DryRun {
		logger.Info("dry run, skipping target preparation")
	} else if err := target.Prepare(ctx); err != nil {
		return nil, fmt.Errorf("prepare target: %w", err)
	}

	var bar *progressbar.ProgressBar
	if !r.opts.Verbose {
		bar = progressbar.Default(int64(total), target.Name())
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.opts.Delay), 1)
	}

	summary := &Summary{
		Target: target.Name(),
		RunID:  runID,
		Counts: make(map[Outcome]int),
	}
	start := time.Now()

	afterID := ""
	for {
		if err := limiter.Wait(ctx); err != nil {
			return summary, err
		}

		items, err := target.NextBatch(ctx, afterID, r.opts.BatchSize)
		if err != nil {
			return summary, fmt.Errorf("list batch after %q: %w", afterID, err)
		}
		if len(items) == 0 {
			break
		}

		for _, outcome := range r.processBatch(ctx, logger, target, items, bar) {
			if outcome == "" {
				continue // item never ran, the context was cancelled
			}
			summary.Counts[outcome]++
			summary.Total++
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		afterID = items[len(items)-1].ID
		if len(items) < r.opts.BatchSize {
			break
		}
	}

	summary.Duration = time.Since(start)
	if bar != nil {
		_ = bar.Finish()
	}

	logger.Info("run complete",
		"items", summary.Total,
		"updated", summary.Counts[OutcomeUpdated],
		"planned", summary.Counts[OutcomePlanned],
		"skipped", summary.Counts[OutcomeSkipped],
		"failed", summary.Counts[OutcomeFailed],
		"duration", summary.Duration,
	)
	return summary, nil
}

// processBatch fans items out to a fixed pool of workers drawing from a
// shared queue.
func (r *Runner) processBatch(ctx context.Context, logger *slog.Logger, target Target, items []Item, bar *progressbar.ProgressBar) []Outcome {
	outcomes := make([]Outcome, len(items))
	queue := make(chan int)

	var wg sync.WaitGroup
	for n := 0; n < min(r.opts.Concurrency, len(items)); n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				outcomes[i] = r.processItem(ctx, logger, target, items[i])
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}

feed:
	for i := range items {
		select {
		case queue <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	return outcomes
}

func (r *Runner) processItem(ctx context.Context, logger *slog.Logger, target Target, item Item) Outcome {
	outcome, err := target.Process(ctx, item)
	if err != nil {
		logger.Error("item failed", "id", item.ID, "label", item.Label, "error", err)
		return OutcomeFailed
	}

	switch {
	case outcome == OutcomePlanned:
		logger.Info("dry run, would update", "id", item.ID, "label", item.Label)
	case r.opts.Verbose:
		logger.Info("item processed", "id", item.ID, "label", item.Label, "outcome", string(outcome))
	}
	return outcome
}
