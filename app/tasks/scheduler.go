package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framefuture/newsdeck/app/feed"
	"github.com/framefuture/newsdeck/app/ingest"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskQueueSize = 100
	taskTimeout   = 10 * time.Minute
	maxRetryDelay = 30 * time.Second
)

// Stats holds scheduler counters.
type Stats struct {
	CurrentWorkers int
	TotalProcessed int64
	TotalErrors    int64
	QueueSize      int
	LastReport     *ingest.Report
}

type Scheduler struct {
	sources     []*feed.Source
	runner      IngestRunner
	recorder    RunRecorder
	params      ingest.Params
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	ingesting   atomic.Bool
	mu          sync.Mutex
	stats       *Stats
}

// NewScheduler creates a scheduler that syncs sources on start and runs
// ingestion every interval. A non-positive interval runs ingestion once at start.
func NewScheduler(sources []*feed.Source, runner IngestRunner, recorder RunRecorder,
	params ingest.Params, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount <= 0 {
		workerCount = 1
	}

	return &Scheduler{
		sources:     sources,
		runner:      runner,
		recorder:    recorder,
		params:      params,
		interval:    interval,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, taskQueueSize),
		stats:       &Stats{CurrentWorkers: workerCount},
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.enqueueStartupTasks()

		if s.interval <= 0 {
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueIngest()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Health summarizes worker activity; an error rate above 10% reports degraded.
func (s *Scheduler) Health() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	errorRate := 0.0
	if s.stats.TotalProcessed > 0 {
		errorRate = float64(s.stats.TotalErrors) / float64(s.stats.TotalProcessed)
	}

	status := "healthy"
	if errorRate > 0.1 {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":          status,
		"workers":         s.stats.CurrentWorkers,
		"queue_size":      len(s.taskQueue),
		"total_processed": s.stats.TotalProcessed,
		"total_errors":    s.stats.TotalErrors,
		"error_rate":      errorRate,
		"ingesting":       s.ingesting.Load(),
	}

	if s.stats.LastReport != nil {
		health["last_run_at"] = s.stats.LastReport.Timestamp
		health["last_inserted"] = s.stats.LastReport.TotalInserted
	}

	return health
}

// IngestGuard is set while an ingestion run is in progress. Manual triggers
// share it so runs never overlap.
func (s *Scheduler) IngestGuard() *atomic.Bool {
	return &s.ingesting
}

func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := *s.stats
	stats.QueueSize = len(s.taskQueue)
	return stats
}

func (s *Scheduler) enqueueStartupTasks() {
	if len(s.sources) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Processing source configurations", "count", len(s.sources))

	// Sources are registered before the first run so its outcomes can be recorded
	if s.recorder != nil {
		for _, source := range s.sources {
			task := NewSyncSourceTask(source, s.recorder)
			task.Start()
			if err := task.Execute(s.ctx); err != nil {
				slog.Warn("Failed to sync source", "source", source.Name, "error", err)
			}
		}
	}

	s.enqueueIngest()
}

func (s *Scheduler) enqueueIngest() {
	if s.ingesting.Load() {
		slog.Debug("Ingestion still running, skipping tick")
		return
	}

	task := NewIngestTask(s.runner, s.recorder, s.params, &s.ingesting, s.setLastReport)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue IngestTask", "error", err)
	}
}

func (s *Scheduler) setLastReport(report *ingest.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastReport = report
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	s.mu.Lock()
	s.stats.TotalProcessed++
	if err != nil {
		s.stats.TotalErrors++
	}
	s.mu.Unlock()

	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "scope", task.GetScope(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(retryDelay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
