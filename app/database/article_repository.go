package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var articleColumns = []string{
	"id", "title", "summary", "source_name", "source_url", "image_url",
	"published_at", "tags", "hash", "created_at",
}

// ArticleRepository handles database operations for articles
type ArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// InsertArticle inserts a new article. Collisions on source URL or hash
// return ErrDuplicate and leave the stored row untouched.
func (r *ArticleRepository) InsertArticle(ctx context.Context, article Article) error {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}

	if article.Tags == nil {
		article.Tags = []string{}
	}
	tags, err := json.Marshal(article.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (
			id, title, summary, source_name, source_url, image_url,
			published_at, tags, hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, article.ID, article.Title, article.Summary, article.SourceName, article.SourceURL,
		article.ImageURL, article.PublishedAt.UTC().UnixMilli(), string(tags), article.Hash,
		article.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}

	return nil
}

// ExistsBySourceURL checks if an article with the given source URL already exists
func (r *ArticleRepository) ExistsBySourceURL(ctx context.Context, sourceURL string) (bool, error) {
	return r.exists(ctx, "source_url", sourceURL)
}

// ExistsByFingerprint checks if an article with the given content hash already exists
func (r *ArticleRepository) ExistsByFingerprint(ctx context.Context, hash string) (bool, error) {
	return r.exists(ctx, "hash", hash)
}

func (r *ArticleRepository) exists(ctx context.Context, column, value string) (bool, error) {
	query, args, err := sq.Select("1").From("articles").Where(sq.Eq{column: value}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", column, err)
	}

	return true, nil
}

// QueryRecent returns articles newest published first, optionally limited to
// those published at or after since.
func (r *ArticleRepository) QueryRecent(ctx context.Context, since *time.Time, limit int) ([]Article, error) {
	builder := sq.Select(articleColumns...).
		From("articles").
		OrderBy("published_at DESC", "created_at DESC")

	if since != nil {
		builder = builder.Where(sq.GtOrEq{"published_at": since.UTC().UnixMilli()})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

// CountArticles returns the total number of stored articles
func (r *ArticleRepository) CountArticles(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}

func scanArticle(rows *sql.Rows) (Article, error) {
	var (
		article     Article
		imageURL    sql.NullString
		publishedAt int64
		createdAt   int64
		tags        string
	)

	err := rows.Scan(
		&article.ID, &article.Title, &article.Summary, &article.SourceName, &article.SourceURL,
		&imageURL, &publishedAt, &tags, &article.Hash, &createdAt,
	)
	if err != nil {
		return Article{}, fmt.Errorf("failed to scan article row: %w", err)
	}

	if imageURL.Valid {
		article.ImageURL = &imageURL.String
	}
	article.PublishedAt = time.UnixMilli(publishedAt).UTC()
	article.CreatedAt = time.UnixMilli(createdAt).UTC()

	if err := json.Unmarshal([]byte(tags), &article.Tags); err != nil {
		return Article{}, fmt.Errorf("failed to decode tags for article %s: %w", article.ID, err)
	}

	return article, nil
}
