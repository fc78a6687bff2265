package parser

import (
	"context"
	"fmt"
	"log/slog"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
	"DailyBrief/internal/scanner"
)

const defaultKind = "rss"

// StrategySource implements FeedSource by dispatching to the scanner registered for the source kind.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.FeedSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// Fetch runs the scanner for one source and stamps every entry with the source URL.
func (s *StrategySource) Fetch(ctx context.Context, source domain.Source) ([]domain.FeedEntry, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	kind := source.Kind
	if kind == "" {
		kind = defaultKind
	}
	strategy, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.URL, err)
	}

	s.debug("scan source", "source", source.URL, "scanner", kind)
	entries, err := strategy.Scan(ctx, scanner.Request{
		SourceURL: source.URL,
		Options:   source.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("scan source %s: %w", source.URL, err)
	}

	for i := range entries {
		if entries[i].SourceURL == "" {
			entries[i].SourceURL = source.URL
		}
	}
	s.debug("source produced entries", "source", source.URL, "count", len(entries))
	return entries, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
