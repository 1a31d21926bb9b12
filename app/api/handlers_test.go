package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/framefuture/newsdeck/app/cfg"
	"github.com/framefuture/newsdeck/app/database"
	"github.com/framefuture/newsdeck/app/feed"
	"github.com/framefuture/newsdeck/app/ingest"
)

const testSecret = "s3cret"

// mockArticleReader implements ArticleReader for testing
type mockArticleReader struct {
	articles  []database.Article
	err       error
	pingErr   error
	lastSince *time.Time
	lastLimit int
}

func (m *mockArticleReader) QueryRecent(ctx context.Context, since *time.Time, limit int) ([]database.Article, error) {
	m.lastSince = since
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if len(m.articles) > limit {
		return m.articles[:limit], nil
	}
	return m.articles, nil
}

func (m *mockArticleReader) CountArticles(ctx context.Context) (int, error) {
	return len(m.articles), m.err
}

func (m *mockArticleReader) Ping(ctx context.Context) error {
	return m.pingErr
}

// mockSourceStore implements SourceStore for testing
type mockSourceStore struct {
	mu      sync.Mutex
	sources []database.Source
	runs    map[string]int
}

func (m *mockSourceStore) UpsertSource(ctx context.Context, name, feedURL string) error {
	return nil
}

func (m *mockSourceStore) RecordRun(ctx context.Context, name string, runAt time.Time, inserted, skipped int, runErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]int)
	}
	m.runs[name] += inserted
	return nil
}

func (m *mockSourceStore) ListSources(ctx context.Context) ([]database.Source, error) {
	return m.sources, nil
}

// mockRunner implements tasks.IngestRunner for testing
type mockRunner struct {
	calls      int
	err        error
	lastParams ingest.Params
}

func (m *mockRunner) Run(ctx context.Context, params ingest.Params) (*ingest.Report, error) {
	m.calls++
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &ingest.Report{
		TotalInserted: 2,
		TotalSkipped:  1,
		Results: []ingest.SourceResult{
			{Source: "alpha", Inserted: 2, Skipped: 1},
		},
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:  "1s",
	}, nil
}

func setupTestConfig(t *testing.T) {
	t.Helper()

	t.Setenv("PORT", "8080")
	t.Setenv("BASE_URL", "")
	t.Setenv("TZ", "UTC")

	if _, err := cfg.LoadArgs([]string{}); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
}

func setupConfigCache(t *testing.T) *feed.ConfigCache {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"alpha.yml": "url: \"https://alpha.com/feed\"\ndefault_tags: [\"models\"]\n",
		"beta.toml": "url = \"https://beta.com/feed\"\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	configCache := feed.NewConfigCache(dir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}
	return configCache
}

type testEnv struct {
	articles *mockArticleReader
	sources  *mockSourceStore
	runner   *mockRunner
	guard    *atomic.Bool
	router   *gin.Engine
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	setupTestConfig(t)

	image := "https://alpha.com/lead.png"
	env := &testEnv{
		articles: &mockArticleReader{articles: []database.Article{
			{
				ID:          "a1",
				Title:       "New model released",
				Summary:     "A new model was released.",
				SourceName:  "alpha",
				SourceURL:   "https://alpha.com/1",
				ImageURL:    &image,
				PublishedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
				Tags:        []string{"MODELS"},
			},
			{
				ID:          "a2",
				Title:       "Funding round",
				Summary:     "A startup raised money.",
				SourceName:  "beta",
				SourceURL:   "https://beta.com/2",
				PublishedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			},
		}},
		sources: &mockSourceStore{},
		runner:  &mockRunner{},
		guard:   &atomic.Bool{},
	}

	handler := NewHandler(setupConfigCache(t), env.articles, env.sources, env.runner, nil, env.guard, secret, ingest.Params{})
	env.router = NewServer(handler)

	return env
}

func (e *testEnv) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestGetFeed(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodGet, "/api/feed", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response FeedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Window != "24h" {
		t.Errorf("Expected window '24h', got '%s'", response.Window)
	}
	if response.Count != 2 || len(response.Articles) != 2 {
		t.Fatalf("Expected 2 articles, got count=%d len=%d", response.Count, len(response.Articles))
	}
	if env.articles.lastSince == nil {
		t.Fatal("Expected 24h window to pass a lower bound")
	}
	if age := time.Since(*env.articles.lastSince); age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("Expected lower bound about 24h ago, got %v", age)
	}
	if env.articles.lastLimit != 50 {
		t.Errorf("Expected default limit 50, got %d", env.articles.lastLimit)
	}

	first := response.Articles[0]
	if first.ImageURL == nil || *first.ImageURL != "https://alpha.com/lead.png" {
		t.Errorf("Expected image URL, got %v", first.ImageURL)
	}
	if response.Articles[1].Tags == nil {
		t.Error("Expected empty tag list, got null")
	}
	if !strings.Contains(w.Body.String(), `"image_url":null`) {
		t.Errorf("Expected null image_url in body, got %s", w.Body.String())
	}
}

func TestGetFeedParameters(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		expectedCode  int
		expectedLimit int
		expectSince   bool
	}{
		{"all window", "?window=all", http.StatusOK, 50, false},
		{"limit clamped high", "?window=all&limit=500", http.StatusOK, 200, false},
		{"limit clamped low", "?limit=0", http.StatusOK, 1, true},
		{"explicit limit", "?window=24h&limit=10", http.StatusOK, 10, true},
		{"unknown window is unbounded", "?window=7d", http.StatusOK, 50, false},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testSecret)

			w := env.do(http.MethodGet, "/api/feed"+tt.query, nil)
			if w.Code != tt.expectedCode {
				t.Fatalf("Expected status %d, got %d", tt.expectedCode, w.Code)
			}
			if tt.expectedCode != http.StatusOK {
				return
			}

			if env.articles.lastLimit != tt.expectedLimit {
				t.Errorf("Expected limit %d, got %d", tt.expectedLimit, env.articles.lastLimit)
			}
			if (env.articles.lastSince != nil) != tt.expectSince {
				t.Errorf("Expected since set=%t, got %v", tt.expectSince, env.articles.lastSince)
			}
		})
	}
}

func TestGetFeedDatabaseError(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.articles.err = errors.New("disk I/O error")

	w := env.do(http.MethodGet, "/api/feed", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		method       string
		query        string
		header       string
		expectedCode int
		expectRun    bool
	}{
		{"disabled without secret", "", http.MethodPost, "", testSecret, http.StatusServiceUnavailable, false},
		{"missing header", testSecret, http.MethodPost, "", "", http.StatusUnauthorized, false},
		{"wrong secret", testSecret, http.MethodPost, "", "nope", http.StatusUnauthorized, false},
		{"post", testSecret, http.MethodPost, "", testSecret, http.StatusOK, true},
		{"get", testSecret, http.MethodGet, "", testSecret, http.StatusOK, true},
		{"invalid backfill", testSecret, http.MethodPost, "?backfill_days=-1", testSecret, http.StatusBadRequest, false},
		{"invalid max per source", testSecret, http.MethodPost, "?max_per_source=x", testSecret, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.secret)

			header := map[string]string{}
			if tt.header != "" {
				header["x-ingest-secret"] = tt.header
			}

			w := env.do(tt.method, "/api/ingest"+tt.query, header)
			if w.Code != tt.expectedCode {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedCode, w.Code, w.Body.String())
			}

			if ran := env.runner.calls > 0; ran != tt.expectRun {
				t.Errorf("Expected run=%t, got %d calls", tt.expectRun, env.runner.calls)
			}
		})
	}
}

func TestIngestReturnsReport(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodPost, "/api/ingest?backfill_days=3&max_per_source=5", map[string]string{"x-ingest-secret": testSecret})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if env.runner.lastParams.BackfillDays != 3 || env.runner.lastParams.MaxPerSource != 5 {
		t.Errorf("Expected params {3 5}, got %+v", env.runner.lastParams)
	}

	var report ingest.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.TotalInserted != 2 || report.TotalSkipped != 1 {
		t.Errorf("Expected totals 2/1, got %d/%d", report.TotalInserted, report.TotalSkipped)
	}

	if env.sources.runs["alpha"] != 2 {
		t.Errorf("Expected recorded run for alpha, got %v", env.sources.runs)
	}
	if env.guard.Load() {
		t.Error("Expected ingest guard to be released")
	}
}

func TestIngestConflictAndFailure(t *testing.T) {
	env := newTestEnv(t, testSecret)
	header := map[string]string{"x-ingest-secret": testSecret}

	env.guard.Store(true)
	w := env.do(http.MethodPost, "/api/ingest", header)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 while running, got %d", w.Code)
	}
	if env.runner.calls != 0 {
		t.Errorf("Expected no run while guarded, got %d", env.runner.calls)
	}

	env.guard.Store(false)
	env.runner.err = ingest.ErrNoSources
	w = env.do(http.MethodPost, "/api/ingest", header)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 on run failure, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), ingest.ErrNoSources.Error()) {
		t.Errorf("Expected error details in body, got %s", w.Body.String())
	}
}

func TestGetSources(t *testing.T) {
	env := newTestEnv(t, testSecret)

	runAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.sources.sources = []database.Source{
		{Name: "alpha", FeedURL: "https://alpha.com/feed", LastRunAt: &runAt, LastInserted: 4, TotalInserted: 10},
		{Name: "retired", FeedURL: "https://retired.com/feed"},
	}

	w := env.do(http.MethodGet, "/api/sources", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Sources []SourceResponse `json:"sources"`
		Total   int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Total != 3 {
		t.Fatalf("Expected 3 sources, got %d", response.Total)
	}

	names := []string{response.Sources[0].Name, response.Sources[1].Name, response.Sources[2].Name}
	if strings.Join(names, ",") != "alpha,beta,retired" {
		t.Errorf("Expected sources ordered by name, got %v", names)
	}

	alpha := response.Sources[0]
	if !alpha.Enabled || alpha.TotalInserted != 10 || len(alpha.DefaultTags) != 1 {
		t.Errorf("Unexpected alpha source: %+v", alpha)
	}
	if response.Sources[1].LastRunAt != nil {
		t.Error("Expected unsynced source to have no last run")
	}
	if response.Sources[2].Enabled {
		t.Error("Expected source without configuration to be reported disabled")
	}
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", health["status"])
	}
	if health["articles"] != float64(2) {
		t.Errorf("Expected 2 articles, got %v", health["articles"])
	}
	if health["loaded_configurations"] != float64(2) {
		t.Errorf("Expected 2 configurations, got %v", health["loaded_configurations"])
	}

	env.articles.pingErr = errors.New("database is closed")
	w = env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when store is down, got %d", w.Code)
	}
}

func TestGetRSS(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodGet, "/feed.xml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Expected XML content type, got %s", ct)
	}
	if w.Header().Get("X-Feed-Items") != "2" {
		t.Errorf("Expected X-Feed-Items 2, got %s", w.Header().Get("X-Feed-Items"))
	}

	body := w.Body.String()
	for _, expected := range []string{"<title>New model released</title>", "<title>Funding round</title>", "from 2 sources"} {
		if !strings.Contains(body, expected) {
			t.Errorf("Expected RSS to contain %q", expected)
		}
	}
	if env.articles.lastSince != nil || env.articles.lastLimit != 50 {
		t.Errorf("Expected unbounded query of 50, got since=%v limit=%d", env.articles.lastSince, env.articles.lastLimit)
	}
}

func TestServerMiscRoutes(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(http.MethodOptions, "/api/ingest", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for preflight, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "X-Ingest-Secret") {
		t.Error("Expected CORS to allow the ingest secret header")
	}

	w = env.do(http.MethodGet, "/favicon.ico", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for favicon, got %d", w.Code)
	}

	w = env.do(http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/feed.xml") {
		t.Errorf("Expected index with endpoints, got %d: %s", w.Code, w.Body.String())
	}
}

// disconnectingFetcher cancels the client's request while one source is fetched
type disconnectingFetcher struct {
	cancel   context.CancelFunc
	cancelOn string
}

func (f *disconnectingFetcher) Fetch(ctx context.Context, source *feed.Source) ([]feed.Candidate, error) {
	if source.Name == f.cancelOn {
		f.cancel()
	}

	return []feed.Candidate{{
		Title:       "Story from " + source.Name,
		Link:        "https://" + source.Name + ".com/1",
		PublishedAt: time.Now().UTC().Add(-time.Hour),
		Content:     "A new open model was released by the lab today. It leads several reasoning benchmarks.",
	}}, nil
}

func TestIngestSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupTestConfig(t)

	db, err := database.NewConnection(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	articleRepo := database.NewArticleRepository(db)
	sourceRepo := database.NewSourceRepository(db)

	sources := []*feed.Source{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	for _, source := range sources {
		if err := sourceRepo.UpsertSource(context.Background(), source.Name, "https://"+source.Name+".com/feed"); err != nil {
			t.Fatal(err)
		}
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &disconnectingFetcher{cancel: cancel, cancelOn: "a"}
	orchestrator := ingest.NewOrchestrator(sources, fetcher, articleRepo, nil, 1)

	handler := NewHandler(setupConfigCache(t), articleRepo, sourceRepo, orchestrator, nil, nil, testSecret, ingest.Params{})
	router := NewServer(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil).WithContext(reqCtx)
	req.Header.Set("x-ingest-secret", testSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if reqCtx.Err() == nil {
		t.Fatal("Expected request context to be cancelled during the run")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var report ingest.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(report.Results))
	}
	for _, result := range report.Results {
		if result.Inserted != 1 || result.Error != "" {
			t.Errorf("Expected source %s to complete, got %+v", result.Source, result)
		}
	}

	count, err := articleRepo.CountArticles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Expected 3 stored articles, got %d", count)
	}
}
