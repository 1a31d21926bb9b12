package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SourceRepository tracks per-source ingestion status
type SourceRepository struct {
	db *DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// UpsertSource registers a configured source or refreshes its feed URL
func (r *SourceRepository) UpsertSource(ctx context.Context, name, feedURL string) error {
	now := time.Now().UTC().UnixMilli()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (name, feed_url, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			feed_url = excluded.feed_url,
			updated_at = excluded.updated_at
	`, name, feedURL, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	return nil
}

// RecordRun stores the outcome of the latest ingestion of a source
func (r *SourceRepository) RecordRun(ctx context.Context, name string, runAt time.Time, inserted, skipped int, runErr string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET last_run_at = ?, last_inserted = ?, last_skipped = ?, last_error = ?,
		    total_inserted = total_inserted + ?, updated_at = ?
		WHERE name = ?
	`, runAt.UTC().UnixMilli(), inserted, skipped, runErr, inserted, time.Now().UTC().UnixMilli(), name)
	if err != nil {
		return fmt.Errorf("failed to record source run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source '%s' is not registered", name)
	}

	return nil
}

// ListSources returns all registered sources ordered by name
func (r *SourceRepository) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, feed_url, last_run_at, last_inserted, last_skipped, last_error,
		       total_inserted, created_at, updated_at
		FROM sources
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var (
			source    Source
			lastRunAt sql.NullInt64
			createdAt int64
			updatedAt int64
		)
		err := rows.Scan(
			&source.Name, &source.FeedURL, &lastRunAt, &source.LastInserted, &source.LastSkipped,
			&source.LastError, &source.TotalInserted, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		if lastRunAt.Valid {
			t := time.UnixMilli(lastRunAt.Int64).UTC()
			source.LastRunAt = &t
		}
		source.CreatedAt = time.UnixMilli(createdAt).UTC()
		source.UpdatedAt = time.UnixMilli(updatedAt).UTC()

		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}
