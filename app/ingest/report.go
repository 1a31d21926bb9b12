package ingest

import (
	"time"
)

// SourceResult is the outcome of ingesting one source.
// Filtered and Failed are informational and never contribute to report totals.
type SourceResult struct {
	Source   string `json:"source"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Filtered int    `json:"filtered"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

type Report struct {
	TotalInserted int            `json:"total_inserted"`
	TotalSkipped  int            `json:"total_skipped"`
	Results       []SourceResult `json:"results"`
	Timestamp     time.Time      `json:"timestamp"`
	Duration      string         `json:"duration"`
}

func newReport(results []SourceResult, completedAt time.Time, duration time.Duration) *Report {
	report := &Report{
		Results:   results,
		Timestamp: completedAt.UTC(),
		Duration:  duration.String(),
	}

	for _, result := range results {
		report.TotalInserted += result.Inserted
		report.TotalSkipped += result.Skipped
	}

	return report
}

// FailedSources returns the names of sources whose fetch failed.
func (r *Report) FailedSources() []string {
	var names []string
	for _, result := range r.Results {
		if result.Error != "" {
			names = append(names, result.Source)
		}
	}
	return names
}

func (r *Report) Result(source string) (SourceResult, bool) {
	for _, result := range r.Results {
		if result.Source == source {
			return result, true
		}
	}
	return SourceResult{}, false
}
