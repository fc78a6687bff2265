package embedding

import (
	"context"
	"fmt"
)

// BatchEmbedder resolves texts to vectors in input order.
type BatchEmbedder interface {
	GetBatch(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// BuildInterestProfile embeds the topics and returns their L2-normalized mean.
func BuildInterestProfile(ctx context.Context, embedder BatchEmbedder, topics []string, model string) ([]float32, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("build interest profile: no topics")
	}
	vectors, err := embedder.GetBatch(ctx, topics, model)
	if err != nil {
		return nil, fmt.Errorf("embed topics: %w", err)
	}
	// cached and fresh vectors may still disagree, e.g. after a provider model change
	mean, err := Mean(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: average topic vectors: %w", ErrProviderFailed, err)
	}
	return Normalize(mean), nil
}
