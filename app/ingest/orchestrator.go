package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/feed"
)

const (
	DefaultBackfillDays = 7
	DefaultMaxPerSource = 20
	DefaultWorkers      = 4
)

var ErrNoSources = errors.New("no sources configured")

type Params struct {
	BackfillDays int
	MaxPerSource int
}

func (p Params) withDefaults() Params {
	if p.BackfillDays <= 0 {
		p.BackfillDays = DefaultBackfillDays
	}
	if p.MaxPerSource <= 0 {
		p.MaxPerSource = DefaultMaxPerSource
	}
	return p
}

type outcome int

const (
	outcomeDropped outcome = iota
	outcomeFiltered
	outcomeSkipped
	outcomeFailed
	outcomeInserted
)

// Orchestrator runs the ingestion pipeline over a fixed list of sources.
type Orchestrator struct {
	sources    []*feed.Source
	fetcher    Fetcher
	store      Store
	extractor  Extractor
	dedup      *DedupGate
	filterer   *feed.Filterer
	summarizer *feed.Summarizer
	tagger     *feed.Tagger
	workers    int
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. extractor may be nil, in which case
// sources with extract_content keep their feed content as is.
func NewOrchestrator(sources []*feed.Source, fetcher Fetcher, store Store, extractor Extractor, workers int) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Orchestrator{
		sources:    sources,
		fetcher:    fetcher,
		store:      store,
		extractor:  extractor,
		dedup:      NewDedupGate(store),
		filterer:   feed.NewFilterer(),
		summarizer: feed.NewSummarizer(),
		tagger:     feed.NewTagger(),
		workers:    workers,
		now:        time.Now,
	}
}

// Run ingests every source and returns the aggregated report. Only pre-flight
// failures (no sources, unreachable store) return an error.
func (o *Orchestrator) Run(ctx context.Context, params Params) (*Report, error) {
	if len(o.sources) == 0 {
		return nil, ErrNoSources
	}

	if pinger, ok := o.store.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return nil, fmt.Errorf("store is unavailable: %w", err)
		}
	}

	params = params.withDefaults()
	startedAt := o.now()
	cutoff := startedAt.Add(-time.Duration(params.BackfillDays) * 24 * time.Hour)

	results := make([]SourceResult, len(o.sources))

	var g errgroup.Group
	g.SetLimit(o.workers)

	for i, source := range o.sources {
		g.Go(func() error {
			results[i] = o.runSource(ctx, source, params.MaxPerSource, cutoff)
			return nil
		})
	}

	// Workers never return errors; failures are recorded in their result slot.
	_ = g.Wait()

	completedAt := o.now()
	report := newReport(results, completedAt, completedAt.Sub(startedAt))

	slog.Info("Ingestion completed",
		"sources", len(results),
		"inserted", report.TotalInserted,
		"skipped", report.TotalSkipped,
		"failed_sources", len(report.FailedSources()),
		"duration", report.Duration)

	return report, nil
}

func (o *Orchestrator) runSource(ctx context.Context, source *feed.Source, maxPerSource int, cutoff time.Time) SourceResult {
	result := SourceResult{Source: source.Name}
	startedAt := time.Now()

	candidates, err := o.fetch(ctx, source)
	if err != nil {
		slog.Warn("Source fetch failed", "source", source.Name, "error", err)
		result.Error = err.Error()
		return result
	}

	if len(candidates) > maxPerSource {
		candidates = candidates[:maxPerSource]
	}

	for _, candidate := range candidates {
		switch o.processCandidate(ctx, source, candidate, cutoff) {
		case outcomeInserted:
			result.Inserted++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFiltered:
			result.Filtered++
		case outcomeFailed:
			result.Failed++
		}
	}

	slog.Info("Source ingested",
		"source", source.Name,
		"duration", time.Since(startedAt),
		"total", len(candidates),
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"filtered", result.Filtered,
		"failed", result.Failed)

	return result
}

func (o *Orchestrator) fetch(ctx context.Context, source *feed.Source) (candidates []feed.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()

	return o.fetcher.Fetch(ctx, source)
}

func (o *Orchestrator) processCandidate(ctx context.Context, source *feed.Source, candidate feed.Candidate, cutoff time.Time) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Item processing panicked", "source", source.Name, "link", candidate.Link, "panic", r)
			result = outcomeFailed
		}
	}()

	if candidate.PublishedAt.Before(cutoff) {
		return outcomeDropped
	}

	if strings.TrimSpace(candidate.Link) == "" {
		return outcomeDropped
	}

	if excluded, reason := o.filterer.Run(candidate, source); excluded {
		slog.Debug("Item filtered", "source", source.Name, "link", candidate.Link, "reason", reason)
		return outcomeFiltered
	}

	hash := feed.Fingerprint(candidate.Title, candidate.Link)

	duplicate, err := o.dedup.IsDuplicate(ctx, candidate.Link, hash)
	if err != nil {
		slog.Warn("Duplicate check failed", "source", source.Name, "link", candidate.Link, "error", err)
		return outcomeFailed
	}
	if duplicate {
		return outcomeSkipped
	}

	content, imageURL := o.enrich(ctx, source, candidate)

	article := database.Article{
		Title:       candidate.Title,
		Summary:     o.summarizer.Run(content, candidate.Title),
		SourceName:  source.Name,
		SourceURL:   candidate.Link,
		PublishedAt: candidate.PublishedAt,
		Tags:        feed.TagStrings(o.tagger.Run(candidate.Title, content, source.DefaultTags)),
		Hash:        hash,
		CreatedAt:   o.now().UTC(),
	}
	if imageURL != "" {
		article.ImageURL = &imageURL
	}

	if err := o.store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			slog.Debug("Insert lost to concurrent duplicate", "source", source.Name, "link", candidate.Link)
		} else {
			slog.Warn("Failed to insert article", "source", source.Name, "link", candidate.Link, "error", err)
		}
		return outcomeFailed
	}

	return outcomeInserted
}

// enrich returns the content and image used for the article, pulling the
// article page when the feed carried no content and the source asks for it.
func (o *Orchestrator) enrich(ctx context.Context, source *feed.Source, candidate feed.Candidate) (string, string) {
	content, imageURL := candidate.Content, candidate.ImageURL

	if strings.TrimSpace(content) != "" || !source.Settings.ExtractContent || o.extractor == nil {
		return content, imageURL
	}

	extracted, err := o.extractor.Extract(ctx, candidate.Link)
	if err != nil {
		slog.Debug("Content extraction failed", "source", source.Name, "link", candidate.Link, "error", err)
		return content, imageURL
	}

	if imageURL == "" {
		imageURL = extracted.ImageURL
	}

	return extracted.Text, imageURL
}
