package database

import (
	"context"
	"time"
)

type ArticleRepositoryInterface interface {
	InsertArticle(ctx context.Context, article Article) error
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	ExistsByFingerprint(ctx context.Context, hash string) (bool, error)
	QueryRecent(ctx context.Context, since *time.Time, limit int) ([]Article, error)
	CountArticles(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type SourceRepositoryInterface interface {
	UpsertSource(ctx context.Context, name, feedURL string) error
	RecordRun(ctx context.Context, name string, runAt time.Time, inserted, skipped int, runErr string) error
	ListSources(ctx context.Context) ([]Source, error)
}

var (
	_ ArticleRepositoryInterface = (*ArticleRepository)(nil)
	_ SourceRepositoryInterface  = (*SourceRepository)(nil)
)
