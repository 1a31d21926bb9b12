package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/framefuture/newsdeck/app/feed"
)

// SyncSourceTask registers a configured source in the source status table.
type SyncSourceTask struct {
	Task
	Source   *feed.Source
	recorder RunRecorder
}

func NewSyncSourceTask(source *feed.Source, recorder RunRecorder) *SyncSourceTask {
	return &SyncSourceTask{
		Task:     NewTask(TaskTypeSyncSource, source.Name),
		Source:   source,
		recorder: recorder,
	}
}

func (t *SyncSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.recorder.UpsertSource(ctx, t.Source.Name, t.Source.URL); err != nil {
		slog.Error("Task failed", "type", "SyncSource", "source", t.Source.Name, "error", err)
		return fmt.Errorf("failed to sync source to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSource",
		"source", t.Source.Name,
		"duration", t.GetDuration())

	return nil
}
