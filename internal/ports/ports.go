package ports

import (
	"context"
	"time"

	"DailyBrief/internal/domain"
)

// FeedSource pulls entries for a single configured source.
type FeedSource interface {
	Fetch(ctx context.Context, source domain.Source) ([]domain.FeedEntry, error)
}

// TextExtractor downloads an article page and returns its readable body text.
type TextExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// SeenRepository is the system of record for already delivered articles.
type SeenRepository interface {
	IsURLSeen(ctx context.Context, url string) (bool, error)
	IsHashSeen(ctx context.Context, hash string) (bool, error)
	SeenURLs(ctx context.Context, urls []string) (map[string]bool, error)
	SeenHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	MarkSeen(ctx context.Context, record domain.SeenRecord) error
}

// EmbeddingRepository persists embedding vectors keyed by content address.
type EmbeddingRepository interface {
	GetEmbedding(ctx context.Context, cacheKey string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, entry domain.EmbeddingCacheEntry) error
}

// SourceHealthRepository stores per-source circuit-breaker state.
type SourceHealthRepository interface {
	GetSourceHealth(ctx context.Context, url string) (domain.SourceHealth, bool, error)
	ListSourceHealth(ctx context.Context) ([]domain.SourceHealth, error)
	RecordSourceSuccess(ctx context.Context, url string, at time.Time) error
	RecordSourceFailure(ctx context.Context, url string, at time.Time) (int, error)
	DisableSource(ctx context.Context, url string, until time.Time) error
}

// EmbeddingProvider turns a batch of texts into vectors, one per input and in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// SummaryRequest carries everything a summarization backend needs.
type SummaryRequest struct {
	Title    string
	Text     string
	MaxWords int
	Language string
	Style    string
}

// SummaryProvider generates an abstractive summary.
type SummaryProvider interface {
	Name() string
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// Notifier delivers the digest over one channel (email, Slack webhook, Telegram).
type Notifier interface {
	Channel() string
	Deliver(ctx context.Context, subject, markdown string) error
}

// ReportWriter stores the rendered markdown digest.
type ReportWriter interface {
	Save(ctx context.Context, day time.Time, markdown string) (string, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
