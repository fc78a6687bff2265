package summarize

import (
	"context"
	"log/slog"
	"strings"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

// Strategy produces a summary for every candidate. It never fails: backends degrade
// to the extractive summary.
type Strategy interface {
	Name() string
	Summarize(ctx context.Context, c domain.ArticleCandidate) string
}

// Options tunes the generated summaries.
type Options struct {
	MaxWords  int
	Language  string
	Style     string
	Sentences int
}

// ExtractiveStrategy summarizes locally without any network call.
type ExtractiveStrategy struct {
	sentences int
}

func NewExtractiveStrategy(opts Options) *ExtractiveStrategy {
	return &ExtractiveStrategy{sentences: opts.Sentences}
}

func (s *ExtractiveStrategy) Name() string { return "extractive" }

func (s *ExtractiveStrategy) Summarize(_ context.Context, c domain.ArticleCandidate) string {
	return Extractive(sourceText(c), s.sentences)
}

// LLMStrategy asks a provider first and falls back to the extractive summary per article.
type LLMStrategy struct {
	provider ports.SummaryProvider
	opts     Options
	logger   *slog.Logger
}

func NewLLMStrategy(provider ports.SummaryProvider, opts Options, logger *slog.Logger) *LLMStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMStrategy{provider: provider, opts: opts, logger: logger}
}

func (s *LLMStrategy) Name() string { return s.provider.Name() }

func (s *LLMStrategy) Summarize(ctx context.Context, c domain.ArticleCandidate) string {
	summary, err := s.provider.Summarize(ctx, ports.SummaryRequest{
		Title:    c.Title,
		Text:     sourceText(c),
		MaxWords: s.opts.MaxWords,
		Language: s.opts.Language,
		Style:    s.opts.Style,
	})
	summary = strings.TrimSpace(summary)
	if err == nil && summary != "" {
		return summary
	}
	if err != nil {
		s.logger.Warn("summary provider failed, using extractive", "url", c.URL, "provider", s.provider.Name(), "error", err)
	}
	return Extractive(sourceText(c), s.opts.Sentences)
}

func sourceText(c domain.ArticleCandidate) string {
	if c.Text != "" {
		return c.Text
	}
	return c.Description
}
