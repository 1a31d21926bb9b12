package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/framefuture/newsdeck/app/feed"
	"github.com/framefuture/newsdeck/app/ingest"
	"github.com/framefuture/newsdeck/app/tasks"
)

const (
	ingestSecretHeader = "x-ingest-secret"

	feedWindowRecent = "24h"

	defaultFeedLimit = 50
	maxFeedLimit     = 200
	rssItemLimit     = 50
)

// NewHandler wires the HTTP handlers. scheduler may be nil when the
// background scheduler is disabled; guard is shared with it so manual and
// scheduled runs never overlap.
func NewHandler(configCache *feed.ConfigCache, articleRepo ArticleReader, sourceRepo SourceStore,
	runner tasks.IngestRunner, scheduler tasks.TaskSchedulerInterface, guard *atomic.Bool,
	ingestSecret string, params ingest.Params) *Handler {
	if guard == nil {
		guard = &atomic.Bool{}
	}

	return &Handler{
		articleRepo:  articleRepo,
		sourceRepo:   sourceRepo,
		runner:       runner,
		generator:    feed.NewGenerator(),
		configCache:  configCache,
		scheduler:    scheduler,
		ingestGuard:  guard,
		ingestSecret: ingestSecret,
		params:       params,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	window := c.DefaultQuery("window", feedWindowRecent)

	// Any window other than 24h is unbounded
	var since *time.Time
	if window == feedWindowRecent {
		t := time.Now().UTC().Add(-24 * time.Hour)
		since = &t
	}

	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = min(max(parsed, 1), maxFeedLimit)
	}

	articles, err := h.articleRepo.QueryRecent(c.Request.Context(), since, limit)
	if err != nil {
		slog.Error("Database error", "operation", "query_recent", "window", window, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := FeedResponse{
		Articles: make([]ArticleResponse, 0, len(articles)),
		Window:   window,
	}
	for _, article := range articles {
		response.Articles = append(response.Articles, newArticleResponse(article))
	}
	response.Count = len(response.Articles)

	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetRSS(c *gin.Context) {
	articles, err := h.articleRepo.QueryRecent(c.Request.Context(), nil, rssItemLimit)
	if err != nil {
		slog.Error("Database error", "operation", "query_recent", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(articles, h.configCache.GetConfigCount())
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))

	c.String(http.StatusOK, rss)
}

// Ingest runs one ingestion synchronously and responds with its report.
// Disconnecting does not cancel the run.
func (h *Handler) Ingest(c *gin.Context) {
	if h.ingestSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion endpoint is disabled (INGEST_SECRET not set)"})
		return
	}

	provided := c.GetHeader(ingestSecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.ingestSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ingest secret"})
		return
	}

	params := h.params

	if raw := c.Query("backfill_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "backfill_days must be a positive integer"})
			return
		}
		params.BackfillDays = days
	}

	if raw := c.Query("max_per_source"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_per_source must be a positive integer"})
			return
		}
		params.MaxPerSource = limit
	}

	var report *ingest.Report
	task := tasks.NewIngestTask(h.runner, h.sourceRepo, params, h.ingestGuard, func(r *ingest.Report) {
		report = r
	})

	// A started run completes even if the client goes away.
	if err := task.Execute(context.WithoutCancel(c.Request.Context())); err != nil {
		slog.Error("Manual ingestion failed", "id", task.GetID(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ingestion failed", "details": err.Error()})
		return
	}

	if report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Ingestion already running"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetSources(c *gin.Context) {
	rows, err := h.sourceRepo.ListSources(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	sources := make([]SourceResponse, 0, len(rows))
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		seen[row.Name] = true

		source := SourceResponse{
			Name:          row.Name,
			FeedURL:       row.FeedURL,
			DefaultTags:   []string{},
			LastRunAt:     row.LastRunAt,
			LastInserted:  row.LastInserted,
			LastSkipped:   row.LastSkipped,
			LastError:     row.LastError,
			TotalInserted: row.TotalInserted,
		}

		if config, err := h.configCache.GetConfig(row.Name); err == nil {
			source.Enabled = config.IsEnabled()
			if config.DefaultTags != nil {
				source.DefaultTags = config.DefaultTags
			}
		}

		sources = append(sources, source)
	}

	// Configured sources that have not been synced yet
	for _, config := range h.configCache.GetEnabledSources() {
		if seen[config.Name] {
			continue
		}

		source := SourceResponse{
			Name:        config.Name,
			FeedURL:     config.URL,
			Enabled:     true,
			DefaultTags: []string{},
		}
		if config.DefaultTags != nil {
			source.DefaultTags = config.DefaultTags
		}
		sources = append(sources, source)
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if err := h.articleRepo.Ping(c.Request.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	if articleCount, err := h.articleRepo.CountArticles(c.Request.Context()); err == nil {
		health["articles"] = articleCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()
	health["ingesting"] = h.ingestGuard.Load()

	if h.scheduler != nil {
		health["scheduler"] = h.scheduler.Health()
	}

	c.JSON(http.StatusOK, health)
}
