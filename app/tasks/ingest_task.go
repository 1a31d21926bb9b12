package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/framefuture/newsdeck/app/ingest"
)

// IngestTask runs the ingestion pipeline once and records each source's outcome.
type IngestTask struct {
	Task
	runner   IngestRunner
	recorder RunRecorder
	params   ingest.Params
	running  *atomic.Bool
	onReport func(*ingest.Report)
}

// NewIngestTask creates an ingestion task. running guards against overlapping
// runs when shared between tasks; onReport may be nil.
func NewIngestTask(runner IngestRunner, recorder RunRecorder, params ingest.Params, running *atomic.Bool, onReport func(*ingest.Report)) *IngestTask {
	if running == nil {
		running = &atomic.Bool{}
	}

	return &IngestTask{
		Task:     NewTask(TaskTypeIngest, ScopeAll),
		runner:   runner,
		recorder: recorder,
		params:   params,
		running:  running,
		onReport: onReport,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.running.CompareAndSwap(false, true) {
		slog.Debug("Ingestion already running, skipping", "id", t.GetID())
		return nil
	}
	defer t.running.Store(false)

	report, err := t.runner.Run(ctx, t.params)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if t.recorder != nil {
		for _, result := range report.Results {
			err := t.recorder.RecordRun(ctx, result.Source, report.Timestamp, result.Inserted, result.Skipped, result.Error)
			if err != nil {
				slog.Warn("Failed to record source run", "source", result.Source, "error", err)
			}
		}
	}

	if t.onReport != nil {
		t.onReport(report)
	}

	slog.Info("Task completed",
		"type", "Ingest",
		"duration", t.GetDuration(),
		"sources", len(report.Results),
		"inserted", report.TotalInserted,
		"skipped", report.TotalSkipped,
		"failed_sources", report.FailedSources())

	return nil
}
