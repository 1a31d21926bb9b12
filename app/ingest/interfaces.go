package ingest

import (
	"context"
	"time"

	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/feed"
)

// Store is the persistence contract the pipeline depends on.
// Implemented by database.ArticleRepository.
type Store interface {
	InsertArticle(ctx context.Context, article database.Article) error
	ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error)
	ExistsByFingerprint(ctx context.Context, hash string) (bool, error)
	QueryRecent(ctx context.Context, since *time.Time, limit int) ([]database.Article, error)
}

// Pinger is checked before a run when the store supports it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Fetcher retrieves and normalizes one source into candidates.
// Implemented by feed.HTTPFetcher and feed.FixtureFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, source *feed.Source) ([]feed.Candidate, error)
}

// Extractor loads readable text for an article page.
// Implemented by feed.ContentExtractor.
type Extractor interface {
	Extract(ctx context.Context, link string) (feed.Extracted, error)
}

var (
	_ Store     = (*database.ArticleRepository)(nil)
	_ Pinger    = (*database.ArticleRepository)(nil)
	_ Counter   = (*database.ArticleRepository)(nil)
	_ Fetcher   = (*feed.HTTPFetcher)(nil)
	_ Fetcher   = (*feed.FixtureFetcher)(nil)
	_ Extractor = (*feed.ContentExtractor)(nil)
)
