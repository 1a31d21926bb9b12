package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultBackfillAttempts = 10
	defaultBackfillPause    = 2 * time.Second
)

var ErrBackfillTargetMissed = errors.New("backfill target not reached")

// Runner runs one ingestion pass. Implemented by Orchestrator.
type Runner interface {
	Run(ctx context.Context, params Params) (*Report, error)
}

// Counter reports how many articles the store holds.
// Implemented by database.ArticleRepository.
type Counter interface {
	CountArticles(ctx context.Context) (int, error)
}

var _ Runner = (*Orchestrator)(nil)

// Backfiller repeats ingestion until the store reaches a target size.
type Backfiller struct {
	runner   Runner
	counter  Counter
	attempts int
	pause    time.Duration
}

func NewBackfiller(runner Runner, counter Counter) *Backfiller {
	return &Backfiller{
		runner:   runner,
		counter:  counter,
		attempts: DefaultBackfillAttempts,
		pause:    defaultBackfillPause,
	}
}

// Run returns the final article count. It stops early once the target is
// met and returns ErrBackfillTargetMissed when attempts run out.
func (b *Backfiller) Run(ctx context.Context, target int, params Params) (int, error) {
	count, err := b.counter.CountArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}

	slog.Info("Starting backfill", "current", count, "target", target, "backfill_days", params.withDefaults().BackfillDays)

	for attempt := 1; count < target && attempt <= b.attempts; attempt++ {
		report, err := b.runner.Run(ctx, params)
		switch {
		case errors.Is(err, ErrNoSources):
			return count, err
		case err != nil:
			slog.Warn("Backfill attempt failed", "attempt", attempt, "max_attempts", b.attempts, "error", err)
		case report.TotalInserted == 0:
			slog.Info("No new articles inserted", "attempt", attempt, "max_attempts", b.attempts)
		default:
			slog.Info("Backfill attempt completed", "attempt", attempt, "max_attempts", b.attempts,
				"inserted", report.TotalInserted, "skipped", report.TotalSkipped)
		}

		if count, err = b.counter.CountArticles(ctx); err != nil {
			return 0, fmt.Errorf("failed to count articles: %w", err)
		}

		if count >= target || attempt == b.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-time.After(b.pause):
		}
	}

	if count < target {
		return count, fmt.Errorf("%w: %d of %d articles after %d attempts", ErrBackfillTargetMissed, count, target, b.attempts)
	}

	slog.Info("Backfill completed", "count", count, "target", target)
	return count, nil
}
