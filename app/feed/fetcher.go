package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const maxFeedSize = 10 << 20

type HTTPFetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
}

func NewHTTPFetcher(httpClient *http.Client, parser *Parser, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, source *Source) ([]Candidate, error) {
	data, err := f.fetchFeed(ctx, source)
	if err != nil {
		return nil, err
	}

	return f.parser.Run(data)
}

func (f *HTTPFetcher) fetchFeed(ctx context.Context, source *Source) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, source.GetTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	return data, nil
}

// FixtureFetcher serves feeds from <dir>/<source name>.xml instead of the network.
type FixtureFetcher struct {
	dir    string
	parser *Parser
}

func NewFixtureFetcher(dir string, parser *Parser) *FixtureFetcher {
	return &FixtureFetcher{dir: dir, parser: parser}
}

func (f *FixtureFetcher) Fetch(ctx context.Context, source *Source) ([]Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(filepath.Join(f.dir, source.Name+".xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	return f.parser.Run(data)
}

func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}
}
