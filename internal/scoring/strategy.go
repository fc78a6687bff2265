package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/embedding"
)

const embeddingInputRunes = 2000

// Strategy ranks deduplicated candidates. It is chosen once per run.
type Strategy interface {
	Name() string
	Score(ctx context.Context, candidates []domain.ArticleCandidate, now time.Time) ([]domain.ArticleCandidate, error)
}

// Config carries the ranking knobs shared by every strategy.
type Config struct {
	Topics      []string
	Weights     Weights
	MaxAgeHours float64
}

// KeywordStrategy ranks by normalized keyword score and recency only.
type KeywordStrategy struct {
	cfg Config
}

// NewKeywordStrategy builds the credential-free ranking.
func NewKeywordStrategy(cfg Config) *KeywordStrategy {
	return &KeywordStrategy{cfg: cfg}
}

func (s *KeywordStrategy) Name() string { return "keyword" }

// Score fills keyword and recency scores and sorts by the combined key.
func (s *KeywordStrategy) Score(_ context.Context, candidates []domain.ArticleCandidate, now time.Time) ([]domain.ArticleCandidate, error) {
	return rank(candidates, s.cfg, nil, now), nil
}

// HybridStrategy adds cosine similarity against the interest profile.
type HybridStrategy struct {
	cfg      Config
	embedder embedding.BatchEmbedder
	model    string
	logger   *slog.Logger
}

// NewHybridStrategy wires the embedding cache into ranking.
func NewHybridStrategy(cfg Config, embedder embedding.BatchEmbedder, model string, logger *slog.Logger) *HybridStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridStrategy{cfg: cfg, embedder: embedder, model: model, logger: logger}
}

func (s *HybridStrategy) Name() string { return "hybrid" }

// Score embeds the batch in one call. A provider failure degrades this batch to keyword
// ranking; storage failures are returned.
func (s *HybridStrategy) Score(ctx context.Context, candidates []domain.ArticleCandidate, now time.Time) ([]domain.ArticleCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	profile, err := embedding.BuildInterestProfile(ctx, s.embedder, s.cfg.Topics, s.model)
	if err != nil {
		if errors.Is(err, embedding.ErrProviderFailed) {
			s.logger.Warn("interest profile unavailable, ranking by keyword", "error", err)
			return rank(candidates, s.cfg, nil, now), nil
		}
		return nil, fmt.Errorf("interest profile: %w", err)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = embeddingInput(c)
	}
	vectors, err := s.embedder.GetBatch(ctx, texts, s.model)
	if err != nil {
		if errors.Is(err, embedding.ErrProviderFailed) {
			s.logger.Warn("article embeddings unavailable, ranking by keyword", "error", err, "candidates", len(candidates))
			return rank(candidates, s.cfg, nil, now), nil
		}
		return nil, fmt.Errorf("embed candidates: %w", err)
	}

	semantic := make([]float64, len(candidates))
	for i, v := range vectors {
		if len(v) != len(profile) {
			s.logger.Warn("article embedding dimension mismatch, ranking by keyword",
				"url", candidates[i].URL, "dims", len(v), "profile_dims", len(profile))
			return rank(candidates, s.cfg, nil, now), nil
		}
		semantic[i] = embedding.Cosine(profile, v)
	}
	return rank(candidates, s.cfg, semantic, now), nil
}

// rank scores a copy of candidates. A nil semantic slice zeroes the semantic term.
func rank(candidates []domain.ArticleCandidate, cfg Config, semantic []float64, now time.Time) []domain.ArticleCandidate {
	out := make([]domain.ArticleCandidate, len(candidates))
	copy(out, candidates)

	raw := make([]float64, len(out))
	var maxRaw float64
	for i, c := range out {
		body := c.Text
		if body == "" {
			body = c.Description
		}
		raw[i] = KeywordScore(body, c.Title, cfg.Topics)
		maxRaw = max(maxRaw, raw[i])
	}

	for i := range out {
		c := &out[i]
		c.KeywordScore = NormalizeKeywordScore(raw[i], maxRaw)
		c.RecencyScore = RecencyScore(c.Published, now, cfg.MaxAgeHours)
		c.SemanticScore = 0
		if semantic != nil {
			c.SemanticScore = semantic[i]
		}
		c.Score = Combined(c.SemanticScore, c.KeywordScore, c.RecencyScore, cfg.Weights)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func embeddingInput(c domain.ArticleCandidate) string {
	text := c.Text
	if text == "" {
		text = c.Description
	}
	if text == "" {
		text = c.Title
	}
	runes := []rune(text)
	if len(runes) > embeddingInputRunes {
		return string(runes[:embeddingInputRunes])
	}
	return text
}
