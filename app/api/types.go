package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/feed"
	"github.com/framefuture/newsdeck/app/ingest"
	"github.com/framefuture/newsdeck/app/tasks"
)

type GeneratorInterface interface {
	Run(articles []database.Article, sourceCount int) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// ArticleReader is the read side of the article store.
type ArticleReader interface {
	QueryRecent(ctx context.Context, since *time.Time, limit int) ([]database.Article, error)
	CountArticles(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type SourceStore interface {
	tasks.RunRecorder
	ListSources(ctx context.Context) ([]database.Source, error)
}

var (
	_ ArticleReader = (*database.ArticleRepository)(nil)
	_ SourceStore   = (*database.SourceRepository)(nil)
)

type Handler struct {
	articleRepo  ArticleReader
	sourceRepo   SourceStore
	runner       tasks.IngestRunner
	generator    GeneratorInterface
	configCache  *feed.ConfigCache
	scheduler    tasks.TaskSchedulerInterface
	ingestGuard  *atomic.Bool
	ingestSecret string
	params       ingest.Params
}

type ArticleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	SourceName  string    `json:"source_name"`
	SourceURL   string    `json:"source_url"`
	ImageURL    *string   `json:"image_url"`
	PublishedAt time.Time `json:"published_at"`
	Tags        []string  `json:"tags"`
}

type FeedResponse struct {
	Articles []ArticleResponse `json:"articles"`
	Count    int               `json:"count"`
	Window   string            `json:"window"`
}

type SourceResponse struct {
	Name          string     `json:"name"`
	FeedURL       string     `json:"feed_url"`
	Enabled       bool       `json:"enabled"`
	DefaultTags   []string   `json:"default_tags"`
	LastRunAt     *time.Time `json:"last_run_at"`
	LastInserted  int        `json:"last_inserted"`
	LastSkipped   int        `json:"last_skipped"`
	LastError     string     `json:"last_error,omitempty"`
	TotalInserted int        `json:"total_inserted"`
}

func newArticleResponse(article database.Article) ArticleResponse {
	tags := article.Tags
	if tags == nil {
		tags = []string{}
	}

	return ArticleResponse{
		ID:          article.ID,
		Title:       article.Title,
		Summary:     article.Summary,
		SourceName:  article.SourceName,
		SourceURL:   article.SourceURL,
		ImageURL:    article.ImageURL,
		PublishedAt: article.PublishedAt,
		Tags:        tags,
	}
}
