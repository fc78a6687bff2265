package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/health"
	"DailyBrief/internal/infrastructure/extractor"
	"DailyBrief/internal/infrastructure/fetch"
	"DailyBrief/internal/infrastructure/parser"
	"DailyBrief/internal/infrastructure/storage"
	"DailyBrief/internal/ports"
	"DailyBrief/internal/report"
	"DailyBrief/internal/scanner"
	"DailyBrief/internal/scoring"
	"DailyBrief/internal/summarize"
)

var runDay = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	channel string
	err     error

	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Channel() string { return n.channel }

func (n *recordingNotifier) Deliver(_ context.Context, subject, markdown string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, markdown)
	return n.err
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

func openStore(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.Open(context.Background(), storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "brief.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func articleBody(n int) string {
	return fmt.Sprintf("Article %d explains how golang services handle structured logging in production systems today. "+
		"The author walks through handler configuration and shows how context values travel with every record. "+
		"Benchmarks compare allocation counts across several popular logging libraries used by large teams. "+
		"Finally the piece lists migration steps for codebases that still rely on the older log package.", n)
}

// newsServer serves two RSS feeds with five items each; items 3 and 7 share a body.
func newsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	feed := func(from, to int) string {
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Go news</title>`)
		for i := from; i <= to; i++ {
			pub := runDay.Add(-time.Duration(i) * time.Hour).Format(time.RFC1123Z)
			fmt.Fprintf(&b, `<item><title>Golang story %d</title><link>%s/article/%d</link>`+
				`<description>Notes about golang release %d</description><pubDate>%s</pubDate></item>`,
				i, srv.URL, i, i, pub)
		}
		b.WriteString(`</channel></rss>`)
		return b.String()
	}
	mux.HandleFunc("/feed1.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed(1, 5)))
	})
	mux.HandleFunc("/feed2.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed(6, 10)))
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/article/"), "%d", &n)
		if n == 7 {
			n = 3
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><nav>Home</nav><article><p>%s</p></article></body></html>`, articleBody(n))
	})
	return srv
}

type endToEnd struct {
	pipeline *Pipeline
	store    *storage.Repository
	notifier *recordingNotifier
	reports  string
}

func newEndToEnd(t *testing.T, srv *httptest.Server) endToEnd {
	t.Helper()
	store := openStore(t)
	client := fetch.New(fetch.Options{Concurrency: 5, Timeout: 5 * time.Second}, srv.Client(), nil)

	topics := []string{"golang"}
	notifier := &recordingNotifier{channel: "slack"}
	reports := filepath.Join(t.TempDir(), "reports")

	p := NewPipeline(PipelineDeps{
		Sources: []domain.Source{
			{URL: srv.URL + "/feed1.xml", Kind: "rss"},
			{URL: srv.URL + "/feed2.xml"},
		},
		Feeds:      parser.NewStrategySource(scanner.NewRegistry(parser.NewRSSScanner(client)), nil),
		Health:     health.NewTracker(store),
		Seen:       store,
		Extractor:  extractor.NewGoqueryExtractor(client),
		Scoring:    scoring.NewKeywordStrategy(scoring.Config{Topics: topics, Weights: scoring.DefaultWeights(), MaxAgeHours: 48}),
		Summarizer: summarize.NewExtractiveStrategy(summarize.Options{Sentences: 2}),
		Reports:    report.NewFileWriter(reports),
		Notifiers:  []ports.Notifier{notifier},
		Options: PipelineOptions{
			Topics:        topics,
			MinScore:      1,
			MaxArticles:   30,
			MaxSummary:    10,
			SubjectPrefix: "[Daily Brief]",
		},
		Now: func() time.Time { return runDay },
	})
	return endToEnd{pipeline: p, store: store, notifier: notifier, reports: reports}
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newsServer(t)
	e := newEndToEnd(t, srv)
	ctx := context.Background()

	summary, err := e.pipeline.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Count(domain.StageFetchFeeds))
	assert.Equal(t, 10, summary.Count(domain.StageFetchContent))
	assert.Equal(t, 9, summary.Count(domain.StageContentDedup))
	assert.Equal(t, 9, summary.Count(domain.StageSummarize))
	assert.Equal(t, 10, summary.Count(domain.StagePersist))
	assert.True(t, summary.Delivery["slack"])
	assert.Equal(t, "keyword", summary.Scoring)

	require.Equal(t, 1, e.notifier.calls())
	assert.Equal(t, "[Daily Brief] 2024-05-01", e.notifier.subjects[0])
	body := e.notifier.bodies[0]
	assert.Equal(t, 9, strings.Count(body, "\n## "))
	assert.Contains(t, body, "Golang story 3")
	assert.NotContains(t, body, "Golang story 7")

	data, err := os.ReadFile(filepath.Join(e.reports, "2024-05-01.md"))
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, summary.ReportPath, filepath.Join(e.reports, "2024-05-01.md"))

	rows, err := e.store.CountSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, rows)

	last, ok := e.pipeline.LastRun()
	require.True(t, ok)
	assert.Equal(t, summary.RunID, last.RunID)

	// a second run sees everything as already delivered
	again, err := e.pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, again.Count(domain.StageFetchFeeds))
	assert.Equal(t, 0, again.Count(domain.StageURLDedup))
	assert.Equal(t, 0, again.Count(domain.StageSummarize))
	assert.Equal(t, 1, e.notifier.calls())
	assert.NotEqual(t, summary.RunID, again.RunID)

	data, err = os.ReadFile(filepath.Join(e.reports, "2024-05-01.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "No new articles")
}

func TestPipelineStagesShrinkMonotonically(t *testing.T) {
	t.Parallel()

	srv := newsServer(t)
	summary, err := newEndToEnd(t, srv).pipeline.Run(context.Background())
	require.NoError(t, err)

	order := []domain.StageName{
		domain.StageFetchFeeds, domain.StageURLDedup, domain.StageKeywordFilter,
		domain.StageFetchContent, domain.StageContentDedup, domain.StageScore, domain.StageSummarize,
	}
	for i := 1; i < len(order); i++ {
		assert.LessOrEqual(t, summary.Count(order[i]), summary.Count(order[i-1]), "%s grew after %s", order[i], order[i-1])
	}
}

// --- unit-level fakes ---

type fakeFeeds map[string][]domain.FeedEntry

func (f fakeFeeds) Fetch(_ context.Context, src domain.Source) ([]domain.FeedEntry, error) {
	entries, ok := f[src.URL]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return entries, nil
}

type fakeExtractor map[string]string

func (f fakeExtractor) Extract(_ context.Context, url string) (string, error) {
	text, ok := f[url]
	if !ok {
		return "", extractor.ErrNoContent
	}
	return text, nil
}

type failingSeen struct {
	*storage.Repository
}

func (failingSeen) SeenURLs(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("database is locked")
}

func entry(url, title, desc string) domain.FeedEntry {
	return domain.FeedEntry{URL: url, Title: title, Description: desc}
}

func TestPipelineDegradesGracefully(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ok := &recordingNotifier{channel: "telegram"}
	broken := &recordingNotifier{channel: "email", err: errors.New("smtp down")}

	p := NewPipeline(PipelineDeps{
		Sources: []domain.Source{{URL: "good"}, {URL: "bad"}},
		Feeds: fakeFeeds{"good": {
			entry("u1", "Rust compiler news", "rust"),
			entry("u2", "Rust async book", "rust"),
			entry("u1", "Rust compiler news", "rust"),
		}},
		Health:    health.NewTracker(store),
		Seen:      store,
		Extractor: fakeExtractor{"u1": articleBody(1)},
		Notifiers: []ports.Notifier{broken, ok},
		Options:   PipelineOptions{Topics: []string{"rust"}, MinScore: 1},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Count(domain.StageFetchFeeds))
	assert.Equal(t, 2, summary.Count(domain.StageURLDedup))
	assert.Equal(t, 1, summary.Count(domain.StageFetchContent))
	assert.Equal(t, 1, summary.Count(domain.StageSummarize))
	assert.Equal(t, map[string]bool{"email": false, "telegram": true}, summary.Delivery)
	assert.Equal(t, "extractive", summary.Summarizing)

	seen, err := store.IsURLSeen(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, seen, "delivery failure must not prevent persistence")

	h, found, err := store.GetSourceHealth(context.Background(), "bad")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, h.ConsecutiveFailures)
}

func TestPipelineSkipsDisabledSources(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	tracker := health.NewTracker(store, health.WithThreshold(1), health.WithClock(func() time.Time { return runDay }))
	require.NoError(t, tracker.RecordFailure(context.Background(), "flaky"))

	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "flaky"}},
		Feeds:     fakeFeeds{"flaky": {entry("u1", "t", "d")}},
		Health:    tracker,
		Seen:      store,
		Extractor: fakeExtractor{},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Count(domain.StageFetchFeeds))
}

func TestPipelineCrossURLDedupAgainstStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.MarkSeen(ctx, domain.SeenRecord{
		URL: "https://old.example/story", Title: "Old", ContentHash: domain.ContentHash(articleBody(1)), FirstSeen: runDay.Add(-24 * time.Hour),
	}))

	notifier := &recordingNotifier{channel: "slack"}
	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "feed"}},
		Feeds:     fakeFeeds{"feed": {entry("https://mirror.example/story", "Mirror", "d"), entry("https://new.example/story", "New", "d")}},
		Seen:      store,
		Extractor: fakeExtractor{"https://mirror.example/story": articleBody(1), "https://new.example/story": articleBody(2)},
		Notifiers: []ports.Notifier{notifier},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(domain.StageFetchContent))
	assert.Equal(t, 1, summary.Count(domain.StageContentDedup))
	require.Equal(t, 1, notifier.calls())
	assert.NotContains(t, notifier.bodies[0], "mirror.example")

	mirrored, err := store.IsURLSeen(ctx, "https://mirror.example/story")
	require.NoError(t, err)
	assert.True(t, mirrored)

	rows, err := store.CountSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
}

func TestPipelineEmptyTopicsAdmitsEverything(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "feed"}},
		Feeds:     fakeFeeds{"feed": {entry("a", "Unrelated", "x"), entry("b", "Other", "y")}},
		Seen:      store,
		Extractor: fakeExtractor{"a": articleBody(1), "b": articleBody(2)},
		Options:   PipelineOptions{MinScore: 1},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(domain.StageKeywordFilter))
	assert.Equal(t, 2, summary.Count(domain.StageSummarize))
}

func TestPipelineStorageErrorIsFatal(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "feed"}},
		Feeds:     fakeFeeds{"feed": {entry("a", "t", "d")}},
		Seen:      failingSeen{openStore(t)},
		Extractor: fakeExtractor{},
		Now:       func() time.Time { return runDay },
	})

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "database is locked")
	_, ok := p.LastRun()
	assert.False(t, ok)
}

func TestKeywordFilterOrdersAndTruncates(t *testing.T) {
	t.Parallel()

	older := runDay.Add(-2 * time.Hour)
	newer := runDay.Add(-time.Hour)
	p := NewPipeline(PipelineDeps{Options: PipelineOptions{Topics: []string{"go"}, MinScore: 1, MaxArticles: 2}})
	r := &run{Pipeline: p, log: p.deps.Logger}

	out := r.keywordFilter([]domain.ArticleCandidate{
		{URL: "undated", Title: "go go"},
		{URL: "old", Title: "go go", Published: &older},
		{URL: "new", Title: "go go", Published: &newer},
		{URL: "drop", Title: "python"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].URL)
	assert.Equal(t, "old", out[1].URL)
}

// rendezvousNotifier only succeeds once every notifier sharing its barrier is delivering.
type rendezvousNotifier struct {
	channel string
	arrived *sync.WaitGroup
	all     chan struct{}
}

func (n *rendezvousNotifier) Channel() string { return n.channel }

func (n *rendezvousNotifier) Deliver(ctx context.Context, _, _ string) error {
	n.arrived.Done()
	select {
	case <-n.all:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPipelineDeliversChannelsConcurrently(t *testing.T) {
	t.Parallel()

	var arrived sync.WaitGroup
	arrived.Add(2)
	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()

	store := openStore(t)
	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "good"}},
		Feeds:     fakeFeeds{"good": {entry("u1", "Rust compiler news", "rust")}},
		Health:    health.NewTracker(store),
		Seen:      store,
		Extractor: fakeExtractor{"u1": articleBody(1)},
		Notifiers: []ports.Notifier{
			&rendezvousNotifier{channel: "email", arrived: &arrived, all: all},
			&rendezvousNotifier{channel: "slack", arrived: &arrived, all: all},
		},
		Options: PipelineOptions{Topics: []string{"rust"}, DeliveryTimeout: 2 * time.Second},
		Now:     func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"email": true, "slack": true}, summary.Delivery)
	assert.Equal(t, 1, summary.Count(domain.StageReport))
}

// stuckNotifier blocks until its context ends.
type stuckNotifier struct{}

func (stuckNotifier) Channel() string { return "email" }

func (stuckNotifier) Deliver(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPipelineStuckChannelDoesNotBlockPersistence(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ok := &recordingNotifier{channel: "telegram"}
	p := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "good"}},
		Feeds:     fakeFeeds{"good": {entry("u1", "Rust compiler news", "rust")}},
		Health:    health.NewTracker(store),
		Seen:      store,
		Extractor: fakeExtractor{"u1": articleBody(1)},
		Notifiers: []ports.Notifier{stuckNotifier{}, ok},
		Options:   PipelineOptions{Topics: []string{"rust"}, DeliveryTimeout: 200 * time.Millisecond},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"email": false, "telegram": true}, summary.Delivery)
	assert.Equal(t, 1, summary.Count(domain.StagePersist))

	seen, err := store.IsURLSeen(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPipelineDropsEmptyBodies(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	p := NewPipeline(PipelineDeps{
		Sources: []domain.Source{{URL: "good"}},
		Feeds: fakeFeeds{"good": {
			entry("u1", "Rust compiler news", "rust"),
			entry("u2", "Rust async book", "rust"),
		}},
		Health:    health.NewTracker(store),
		Seen:      store,
		Extractor: fakeExtractor{"u1": articleBody(1), "u2": ""},
		Options:   PipelineOptions{Topics: []string{"rust"}},
		Now:       func() time.Time { return runDay },
	})

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(domain.StageKeywordFilter))
	assert.Equal(t, 1, summary.Count(domain.StageFetchContent))
}
