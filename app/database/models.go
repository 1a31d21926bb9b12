package database

import (
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert collides with an existing source URL or hash.
var ErrDuplicate = errors.New("article already exists")

// Article represents an article record in the database
type Article struct {
	ID          string // UUID, generated on insert when empty
	Title       string
	Summary     string
	SourceName  string
	SourceURL   string // Unique
	ImageURL    *string
	PublishedAt time.Time
	Tags        []string
	Hash        string // Unique content fingerprint
	CreatedAt   time.Time
}

// Source represents the persisted status of a configured source
type Source struct {
	Name          string
	FeedURL       string
	LastRunAt     *time.Time
	LastInserted  int
	LastSkipped   int
	LastError     string
	TotalInserted int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
