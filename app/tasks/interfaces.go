package tasks

import (
	"context"
	"time"

	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/ingest"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run ingestion in the background.
// Example usage:
//
//	scheduler := NewScheduler(sources, orchestrator, sourceRepo, params, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewIngestTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Health() map[string]interface{}
}

// IngestRunner runs one ingestion over all configured sources.
// Implemented by ingest.Orchestrator.
type IngestRunner interface {
	Run(ctx context.Context, params ingest.Params) (*ingest.Report, error)
}

// RunRecorder persists per-source run outcomes.
// Implemented by database.SourceRepository.
type RunRecorder interface {
	UpsertSource(ctx context.Context, name, feedURL string) error
	RecordRun(ctx context.Context, name string, runAt time.Time, inserted, skipped int, runErr string) error
}

var (
	_ IngestRunner = (*ingest.Orchestrator)(nil)
	_ RunRecorder  = (*database.SourceRepository)(nil)
)
