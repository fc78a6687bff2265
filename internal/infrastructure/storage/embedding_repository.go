package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

var _ ports.EmbeddingRepository = (*Repository)(nil)

// GetEmbedding loads a cached vector. The bool is false on a miss.
func (r *Repository) GetEmbedding(ctx context.Context, cacheKey string) ([]float32, bool, error) {
	query, args, err := r.builder.Select("vector").From("embeddings").
		Where(sq.Eq{"cache_key": cacheKey}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build embedding lookup: %w", err)
	}

	var raw string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query embedding: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, false, fmt.Errorf("decode embedding %s: %w", cacheKey, err)
	}
	return vec, true, nil
}

// PutEmbedding upserts the vector; the newest write wins.
func (r *Repository) PutEmbedding(ctx context.Context, entry domain.EmbeddingCacheEntry) error {
	raw, err := json.Marshal(entry.Vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	query, args, err := r.builder.Insert("embeddings").
		Columns("cache_key", "model", "vector", "created_ts").
		Values(entry.CacheKey, entry.Model, string(raw), entry.CreatedAt.Unix()).
		Suffix("ON CONFLICT (cache_key) DO UPDATE SET model = excluded.model, vector = excluded.vector, created_ts = excluded.created_ts").
		ToSql()
	if err != nil {
		return fmt.Errorf("build embedding upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}
