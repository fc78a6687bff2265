package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source is a configured feed endpoint together with the scanner kind that reads it.
type Source struct {
	URL     string
	Kind    string
	Options map[string]string
}

// FeedEntry is a single item produced by a feed scanner.
type FeedEntry struct {
	Title       string
	URL         string
	Description string
	Published   *time.Time
	SourceURL   string
}

// ArticleCandidate is built incrementally while it moves through the funnel.
type ArticleCandidate struct {
	URL         string
	Title       string
	Description string
	Published   *time.Time
	SourceURL   string

	// Text and ContentHash are only populated after the full-content fetch.
	Text        string
	ContentHash string

	KeywordScore  float64
	SemanticScore float64
	RecencyScore  float64
	Score         float64
	Summary       string
}

// NewCandidate converts a feed entry into a funnel candidate.
func NewCandidate(entry FeedEntry) ArticleCandidate {
	return ArticleCandidate{
		URL:         entry.URL,
		Title:       entry.Title,
		Description: entry.Description,
		Published:   entry.Published,
		SourceURL:   entry.SourceURL,
	}
}

// WithContent attaches the extracted body and its hash. Text and hash are always set together.
func (c ArticleCandidate) WithContent(text string) ArticleCandidate {
	c.Text = text
	c.ContentHash = ContentHash(text)
	return c
}

// HasContent reports whether the full-content stage populated the candidate.
func (c ArticleCandidate) HasContent() bool {
	return c.ContentHash != "" && c.Text != ""
}

// ContentHash returns the hex SHA-256 digest used for cross-URL dedup.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SeenRecord persisted to storage to prevent repeat delivery.
type SeenRecord struct {
	URL         string
	Title       string
	ContentHash string
	FirstSeen   time.Time
}

// EmbeddingCacheEntry stores a vector under a content-addressed key.
type EmbeddingCacheEntry struct {
	CacheKey  string
	Model     string
	Vector    []float32
	CreatedAt time.Time
}

// SourceHealth is the circuit-breaker state of a single feed.
type SourceHealth struct {
	URL                 string
	ConsecutiveFailures int
	LastFailure         *time.Time
	LastSuccess         *time.Time
	DisabledUntil       *time.Time
}

// DisabledAt evaluates the breaker lazily: a deadline in the past means healthy again.
func (h SourceHealth) DisabledAt(now time.Time) bool {
	return h.DisabledUntil != nil && now.Before(*h.DisabledUntil)
}
