package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framefuture/newsdeck/app/api"
	"github.com/framefuture/newsdeck/app/cfg"
	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/feed"
	"github.com/framefuture/newsdeck/app/ingest"
	"github.com/framefuture/newsdeck/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	if appConfig.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting Newsdeck", "version", appConfig.Version)

	db, err := database.NewConnection(appConfig.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appConfig.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Debug("Database ready", "path", appConfig.DBPath, "schema_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appConfig.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appConfig.FeedsDir, "error", err)
		os.Exit(1)
	}
	sources := configCache.GetEnabledSources()
	slog.Info("Source configurations loaded", "total", configCache.GetConfigCount(), "enabled", len(sources))

	articleRepo := database.NewArticleRepository(db)
	sourceRepo := database.NewSourceRepository(db)

	httpClient := feed.NewHTTPClient()
	parser := feed.NewParser()

	var fetcher ingest.Fetcher = feed.NewHTTPFetcher(httpClient, parser, appConfig.UserAgent)
	if appConfig.FixturesDir != "" {
		slog.Info("Reading feeds from fixtures", "dir", appConfig.FixturesDir)
		fetcher = feed.NewFixtureFetcher(appConfig.FixturesDir, parser)
	}

	extractor := feed.NewContentExtractor(httpClient, appConfig.UserAgent, appConfig.ExtractTimeoutDuration())
	orchestrator := ingest.NewOrchestrator(sources, fetcher, articleRepo, extractor, appConfig.WorkerCount)

	params := ingest.Params{
		BackfillDays: appConfig.BackfillDays,
		MaxPerSource: appConfig.MaxPerSource,
	}

	if appConfig.Once || appConfig.BackfillTarget > 0 {
		var code int
		if appConfig.Once {
			code = runOnce(sources, orchestrator, sourceRepo, params)
		} else {
			code = runBackfill(orchestrator, articleRepo, appConfig.BackfillTarget, params)
		}
		db.Close()
		os.Exit(code)
	}

	interval := time.Duration(appConfig.SchedulerInterval) * time.Second
	scheduler := tasks.NewScheduler(sources, orchestrator, sourceRepo, params, interval, appConfig.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "interval", interval.String(), "workers", appConfig.WorkerCount)

	handler := api.NewHandler(configCache, articleRepo, sourceRepo, orchestrator, scheduler,
		scheduler.IngestGuard(), appConfig.IngestSecret, params)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // manual ingestion responds when the run completes
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Newsdeck shutdown complete")
}

// runOnce ingests every source a single time and prints the report as JSON.
func runOnce(sources []*feed.Source, runner tasks.IngestRunner, recorder tasks.RunRecorder, params ingest.Params) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, source := range sources {
		if err := tasks.NewSyncSourceTask(source, recorder).Execute(ctx); err != nil {
			slog.Warn("Failed to sync source", "source", source.Name, "error", err)
		}
	}

	var report *ingest.Report
	task := tasks.NewIngestTask(runner, recorder, params, nil, func(r *ingest.Report) {
		report = r
	})
	if err := task.Execute(ctx); err != nil {
		slog.Error("Ingestion failed", "error", err)
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		slog.Error("Failed to write report", "error", err)
		return 1
	}

	return 0
}

func runBackfill(runner ingest.Runner, counter ingest.Counter, target int, params ingest.Params) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	count, err := ingest.NewBackfiller(runner, counter).Run(ctx, target, params)
	if err != nil {
		slog.Error("Backfill failed", "count", count, "target", target, "error", err)
		return 1
	}

	fmt.Printf("Backfill complete: %d articles (target %d)\n", count, target)
	return 0
}
