package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

// keyPrefixRunes is how much of the text participates in the cache key.
const keyPrefixRunes = 500

var (
	// ErrProviderFailed marks errors that came from the embedding backend rather than storage.
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrProviderUnavailable = fmt.Errorf("%w: no provider configured", ErrProviderFailed)
)

// CacheKey addresses a vector by model and the leading 500 runes of text.
func CacheKey(model, text string) string {
	runes := []rune(text)
	if len(runes) > keyPrefixRunes {
		runes = runes[:keyPrefixRunes]
	}
	sum := sha256.Sum256([]byte(model + ":" + string(runes)))
	return hex.EncodeToString(sum[:])
}

// Cache is a read-through embedding cache backed by persistent storage.
type Cache struct {
	repo     ports.EmbeddingRepository
	provider ports.EmbeddingProvider
	now      func() time.Time
}

// NewCache wires storage and an optional provider. A nil provider serves hits only.
func NewCache(repo ports.EmbeddingRepository, provider ports.EmbeddingProvider) *Cache {
	return &Cache{repo: repo, provider: provider, now: time.Now}
}

// Get returns the cached vector for text under model.
func (c *Cache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	vec, ok, err := c.repo.GetEmbedding(ctx, CacheKey(model, text))
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	return vec, ok, nil
}

// Set stores vec for text under model.
func (c *Cache) Set(ctx context.Context, model, text string, vec []float32) error {
	return c.put(ctx, CacheKey(model, text), model, vec)
}

// GetBatch resolves every text, calling the provider once for all misses.
// The result is aligned with texts.
func (c *Cache) GetBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var misses []int

	for i, text := range texts {
		keys[i] = CacheKey(model, text)
		vec, ok, err := c.repo.GetEmbedding(ctx, keys[i])
		if err != nil {
			return nil, fmt.Errorf("get embedding: %w", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	if c.provider == nil {
		return nil, ErrProviderUnavailable
	}

	batch := make([]string, len(misses))
	for j, idx := range misses {
		batch[j] = texts[idx]
	}
	vectors, err := c.provider.Embed(ctx, batch, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrProviderFailed, len(vectors), len(batch))
	}
	if err := sameDims(vectors); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	for j, idx := range misses {
		if err := c.put(ctx, keys[idx], model, vectors[j]); err != nil {
			return nil, err
		}
		out[idx] = vectors[j]
	}
	return out, nil
}

func (c *Cache) put(ctx context.Context, key, model string, vec []float32) error {
	err := c.repo.PutEmbedding(ctx, domain.EmbeddingCacheEntry{
		CacheKey:  key,
		Model:     model,
		Vector:    vec,
		CreatedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}

// sameDims rejects empty vectors and batches whose vectors disagree on dimension.
func sameDims(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("vector %d is empty", i)
		}
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("vector %d has %d dims, want %d", i, len(v), len(vectors[0]))
		}
	}
	return nil
}
