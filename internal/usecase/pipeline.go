package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
	"DailyBrief/internal/report"
	"DailyBrief/internal/scoring"
	"DailyBrief/internal/summarize"
)

// SourceHealth is the circuit breaker consulted around every feed fetch.
type SourceHealth interface {
	IsDisabled(ctx context.Context, source string) (bool, error)
	RecordSuccess(ctx context.Context, source string) error
	RecordFailure(ctx context.Context, source string) error
}

// PipelineOptions are the per-run knobs of the funnel.
type PipelineOptions struct {
	Topics        []string
	MinScore      float64
	MaxArticles   int
	MaxSummary    int
	Concurrency   int
	SubjectPrefix string
	Location      *time.Location
	// DeliveryTimeout bounds each notifier call.
	DeliveryTimeout time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources    []domain.Source
	Feeds      ports.FeedSource
	Health     SourceHealth
	Seen       ports.SeenRepository
	Extractor  ports.TextExtractor
	Scoring    scoring.Strategy
	Summarizer summarize.Strategy
	Reports    ports.ReportWriter
	Notifiers  []ports.Notifier
	Options    PipelineOptions
	Now        func() time.Time
	Logger     *slog.Logger
}

// Pipeline implements the daily funnel: cheap filters first, network-heavy stages last.
type Pipeline struct {
	deps PipelineDeps
	opts PipelineOptions

	mu   sync.Mutex
	last *domain.RunSummary
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Summarizer == nil {
		deps.Summarizer = summarize.NewExtractiveStrategy(summarize.Options{})
	}
	if deps.Scoring == nil {
		deps.Scoring = scoring.NewKeywordStrategy(scoring.Config{
			Topics:  deps.Options.Topics,
			Weights: scoring.DefaultWeights(),
		})
	}

	opts := deps.Options
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 30
	}
	if opts.MaxSummary <= 0 {
		opts.MaxSummary = 10
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 2 * time.Minute
	}
	return &Pipeline{deps: deps, opts: opts}
}

// LastRun returns the summary of the most recent completed run.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return domain.RunSummary{}, false
	}
	return *p.last, true
}

type run struct {
	*Pipeline
	log     *slog.Logger
	now     time.Time
	summary domain.RunSummary
}

// Run executes one funnel pass. Only storage failures abort it; everything
// else degrades and is reflected in the returned summary.
func (p *Pipeline) Run(ctx context.Context) (domain.RunSummary, error) {
	now := p.deps.Now().In(p.opts.Location)
	r := &run{
		Pipeline: p,
		now:      now,
		summary: domain.RunSummary{
			RunID:       uuid.NewString(),
			StartedAt:   now,
			Sources:     len(p.deps.Sources),
			Counts:      make(map[domain.StageName]int),
			Delivery:    make(map[string]bool),
			Scoring:     p.deps.Scoring.Name(),
			Summarizing: p.deps.Summarizer.Name(),
		},
	}
	r.log = p.deps.Logger.With("run_id", r.summary.RunID)
	r.log.Info("run started", "sources", len(p.deps.Sources), "scoring", r.summary.Scoring, "summarizing", r.summary.Summarizing)

	if err := r.execute(ctx); err != nil {
		r.log.Error("run aborted", "error", err)
		return r.summary, err
	}

	r.summary.FinishedAt = p.deps.Now().In(p.opts.Location)
	r.log.Info("run complete", r.summary.LogArgs()...)

	p.mu.Lock()
	s := r.summary
	p.last = &s
	p.mu.Unlock()
	return r.summary, nil
}

func (r *run) execute(ctx context.Context) error {
	entries, err := r.fetchFeeds(ctx)
	if err != nil {
		return err
	}
	r.count(domain.StageFetchFeeds, len(entries))

	unseen, err := r.urlDedup(ctx, entries)
	if err != nil {
		return err
	}
	r.count(domain.StageURLDedup, len(unseen))

	shortlist := r.keywordFilter(unseen)
	r.count(domain.StageKeywordFilter, len(shortlist))

	withContent := r.fetchContent(ctx, shortlist)
	r.count(domain.StageFetchContent, len(withContent))

	fresh, dupes, err := r.contentDedup(ctx, withContent)
	if err != nil {
		return err
	}
	r.count(domain.StageContentDedup, len(fresh))

	ranked, err := r.deps.Scoring.Score(ctx, fresh, r.now)
	if err != nil {
		return fmt.Errorf("score candidates: %w", err)
	}
	r.count(domain.StageScore, len(ranked))

	summarized := r.summarize(ctx, ranked)
	r.count(domain.StageSummarize, len(summarized))

	r.publish(ctx, summarized)
	r.count(domain.StageReport, len(summarized))

	marked, err := r.persist(ctx, summarized, dupes)
	if err != nil {
		return err
	}
	r.count(domain.StagePersist, marked)
	return nil
}

func (r *run) count(stage domain.StageName, n int) {
	r.summary.Counts[stage] = n
	r.log.Info("stage complete", "stage", string(stage), "count", n)
}

// fetchFeeds pulls every enabled source concurrently; results keep source order.
func (r *run) fetchFeeds(ctx context.Context) ([]domain.FeedEntry, error) {
	sources := r.deps.Sources
	results := make([][]domain.FeedEntry, len(sources))
	var (
		mu              sync.Mutex
		skipped, failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			if r.deps.Health != nil {
				disabled, err := r.deps.Health.IsDisabled(gctx, src.URL)
				if err != nil {
					return err
				}
				if disabled {
					r.log.Warn("source disabled, skipping", "source", src.URL)
					mu.Lock()
					skipped++
					mu.Unlock()
					return nil
				}
			}

			entries, fetchErr := r.deps.Feeds.Fetch(gctx, src)
			if fetchErr != nil {
				r.log.Warn("feed fetch failed", "source", src.URL, "stage", string(domain.StageFetchFeeds), "error", fetchErr)
				mu.Lock()
				failed++
				mu.Unlock()
				if r.deps.Health != nil {
					return r.deps.Health.RecordFailure(gctx, src.URL)
				}
				return nil
			}

			results[i] = entries
			if r.deps.Health != nil {
				return r.deps.Health.RecordSuccess(gctx, src.URL)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch feeds: %w", err)
	}

	r.summary.Skipped = skipped
	r.summary.Failed = failed

	var all []domain.FeedEntry
	for _, entries := range results {
		all = append(all, entries...)
	}
	return all, nil
}

// urlDedup drops entries already in the store and repeated URLs within the run.
func (r *run) urlDedup(ctx context.Context, entries []domain.FeedEntry) ([]domain.ArticleCandidate, error) {
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.URL != "" {
			urls = append(urls, e.URL)
		}
	}
	seen, err := r.deps.Seen.SeenURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("url dedup: %w", err)
	}

	inRun := make(map[string]bool, len(entries))
	out := make([]domain.ArticleCandidate, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" || seen[e.URL] || inRun[e.URL] {
			continue
		}
		inRun[e.URL] = true
		out = append(out, domain.NewCandidate(e))
	}
	return out, nil
}

// keywordFilter scores on title and description only, keeps the best MaxArticles.
// Without topics every candidate passes.
func (r *run) keywordFilter(candidates []domain.ArticleCandidate) []domain.ArticleCandidate {
	filterByScore := len(r.opts.Topics) > 0

	out := make([]domain.ArticleCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.KeywordScore = scoring.KeywordScore(c.Description, c.Title, r.opts.Topics)
		if filterByScore && c.KeywordScore < r.opts.MinScore {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].KeywordScore != out[j].KeywordScore {
			return out[i].KeywordScore > out[j].KeywordScore
		}
		return newer(out[i].Published, out[j].Published)
	})

	if len(out) > r.opts.MaxArticles {
		out = out[:r.opts.MaxArticles]
	}
	return out
}

// newer orders by publish time descending with unknown dates last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// fetchContent downloads article bodies concurrently; failures drop the candidate.
func (r *run) fetchContent(ctx context.Context, candidates []domain.ArticleCandidate) []domain.ArticleCandidate {
	results := make([]*domain.ArticleCandidate, len(candidates))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			text, err := r.deps.Extractor.Extract(ctx, c.URL)
			if err != nil {
				r.log.Info("article dropped", "url", c.URL, "stage", string(domain.StageFetchContent), "error", err)
				return nil
			}
			full := c.WithContent(text)
			if !full.HasContent() {
				r.log.Info("article dropped", "url", c.URL, "stage", string(domain.StageFetchContent), "error", "empty body")
				return nil
			}
			results[i] = &full
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.ArticleCandidate, 0, len(candidates))
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// duplicate is a candidate whose body matched a stored article or an earlier candidate.
type duplicate struct {
	candidate domain.ArticleCandidate
	stored    bool
}

// contentDedup drops bodies already delivered and collapses same-hash candidates,
// keeping the first in keyword order.
func (r *run) contentDedup(ctx context.Context, candidates []domain.ArticleCandidate) ([]domain.ArticleCandidate, []duplicate, error) {
	hashes := make([]string, len(candidates))
	for i, c := range candidates {
		hashes[i] = c.ContentHash
	}
	stored, err := r.deps.Seen.SeenHashes(ctx, hashes)
	if err != nil {
		return nil, nil, fmt.Errorf("content dedup: %w", err)
	}

	var (
		fresh = make([]domain.ArticleCandidate, 0, len(candidates))
		dupes []duplicate
		inRun = make(map[string]bool, len(candidates))
	)
	for _, c := range candidates {
		switch {
		case stored[c.ContentHash]:
			dupes = append(dupes, duplicate{candidate: c, stored: true})
		case inRun[c.ContentHash]:
			r.log.Info("duplicate body collapsed", "url", c.URL, "hash", c.ContentHash)
			dupes = append(dupes, duplicate{candidate: c})
		default:
			inRun[c.ContentHash] = true
			fresh = append(fresh, c)
		}
	}
	return fresh, dupes, nil
}

func (r *run) summarize(ctx context.Context, ranked []domain.ArticleCandidate) []domain.ArticleCandidate {
	if len(ranked) > r.opts.MaxSummary {
		ranked = ranked[:r.opts.MaxSummary]
	}
	out := make([]domain.ArticleCandidate, len(ranked))
	for i, c := range ranked {
		c.Summary = r.deps.Summarizer.Summarize(ctx, c)
		out[i] = c
	}
	return out
}

// publish always writes the report; delivery needs at least one article.
// Channels are delivered concurrently and fail independently.
func (r *run) publish(ctx context.Context, items []domain.ArticleCandidate) {
	markdown := report.Build(r.now, items)
	if r.deps.Reports != nil {
		path, err := r.deps.Reports.Save(ctx, r.now, markdown)
		if err != nil {
			r.log.Error("report not saved", "error", err)
		} else {
			r.summary.ReportPath = path
			r.log.Info("report saved", "path", path)
		}
	}

	if len(items) == 0 {
		r.log.Info("nothing new, delivery skipped")
		return
	}

	subject := report.Subject(r.opts.SubjectPrefix, r.now)
	delivered := make([]bool, len(r.deps.Notifiers))

	var g errgroup.Group
	for i, n := range r.deps.Notifiers {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, r.opts.DeliveryTimeout)
			defer cancel()
			if err := n.Deliver(dctx, subject, markdown); err != nil {
				r.log.Warn("delivery failed", "channel", n.Channel(), "error", err)
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, n := range r.deps.Notifiers {
		r.summary.Delivery[n.Channel()] = delivered[i]
	}
}

// persist marks delivered candidates and the URLs of their content twins.
func (r *run) persist(ctx context.Context, delivered []domain.ArticleCandidate, dupes []duplicate) (int, error) {
	deliveredHashes := make(map[string]bool, len(delivered))
	records := make([]domain.SeenRecord, 0, len(delivered)+len(dupes))
	for _, c := range delivered {
		deliveredHashes[c.ContentHash] = true
		records = append(records, r.seenRecord(c))
	}
	for _, d := range dupes {
		if d.stored || deliveredHashes[d.candidate.ContentHash] {
			records = append(records, r.seenRecord(d.candidate))
		}
	}

	for _, rec := range records {
		if err := r.deps.Seen.MarkSeen(ctx, rec); err != nil {
			return 0, fmt.Errorf("persist %s: %w", rec.URL, err)
		}
	}
	return len(records), nil
}

func (r *run) seenRecord(c domain.ArticleCandidate) domain.SeenRecord {
	return domain.SeenRecord{
		URL:         c.URL,
		Title:       c.Title,
		ContentHash: c.ContentHash,
		FirstSeen:   r.now,
	}
}
