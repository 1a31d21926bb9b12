package feed

import (
	"time"
)

// Feed processing types

type Candidate struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Content     string // Plain snippet preferred, falls back to raw content
	HTML        string // content:encoded or content, used for image lookup
	ImageURL    string
	Categories  []string
}

// Configuration types

type Source struct {
	Name        string         // Derived from filename (without extension)
	URL         string         `yaml:"url" toml:"url"`
	DefaultTags []string       `yaml:"default_tags" toml:"default_tags"`
	Settings    SourceSettings `yaml:"settings" toml:"settings"`
	Filters     []SourceFilter `yaml:"filters" toml:"filters"`
}

type SourceSettings struct {
	Enabled        *bool `yaml:"enabled" toml:"enabled"`                 // defaults to true when unset
	Timeout        int   `yaml:"timeout" toml:"timeout"`                 // seconds
	ExtractContent bool  `yaml:"extract_content" toml:"extract_content"` // fetch article page when the feed has no content
}

type SourceFilter struct {
	Field    string   `yaml:"field" toml:"field"`
	Includes []string `yaml:"includes" toml:"includes"`
	Excludes []string `yaml:"excludes" toml:"excludes"`
}

const (
	DefaultTimeout = 10 // seconds
	UntitledTitle  = "Untitled"
)

func (s *Source) IsEnabled() bool {
	if s.Settings.Enabled == nil {
		return true
	}
	return *s.Settings.Enabled
}

func (s *Source) GetTimeout() time.Duration {
	if s.Settings.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(s.Settings.Timeout) * time.Second
}
