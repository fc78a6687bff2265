package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

// batchSize bounds the IN (...) list; SQLite caps bound parameters per statement.
const batchSize = 500

var _ ports.SeenRepository = (*Repository)(nil)

// IsURLSeen reports whether the URL was delivered by an earlier run.
func (r *Repository) IsURLSeen(ctx context.Context, url string) (bool, error) {
	return r.exists(ctx, "url", url)
}

// IsHashSeen reports whether any stored article shares the content hash.
func (r *Repository) IsHashSeen(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	return r.exists(ctx, "content_hash", hash)
}

// SeenURLs returns the subset of urls that already exist in storage.
func (r *Repository) SeenURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	return r.lookup(ctx, "url", urls)
}

// SeenHashes returns the subset of hashes that already exist in storage.
func (r *Repository) SeenHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	return r.lookup(ctx, "content_hash", hashes)
}

// MarkSeen inserts the record, keeping the first-seen row when the URL is already present.
func (r *Repository) MarkSeen(ctx context.Context, record domain.SeenRecord) error {
	var hash any
	if record.ContentHash != "" {
		hash = record.ContentHash
	}

	query, args, err := r.builder.Insert("seen").
		Columns("url", "title", "content_hash", "first_seen_ts").
		Values(record.URL, record.Title, hash, record.FirstSeen.Unix()).
		Suffix("ON CONFLICT (url) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert seen: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert seen: %w", err)
	}
	return nil
}

// CountSeen returns the number of stored rows.
func (r *Repository) CountSeen(ctx context.Context) (int, error) {
	query, args, err := r.builder.Select("COUNT(*)").From("seen").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count seen: %w", err)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count seen: %w", err)
	}
	return n, nil
}

func (r *Repository) exists(ctx context.Context, column, value string) (bool, error) {
	query, args, err := r.builder.Select("1").From("seen").
		Where(sq.Eq{column: value}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build seen lookup: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("query seen by %s: %w", column, err)
	}
	found := rows.Next()
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return false, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return false, fmt.Errorf("close rows: %w", closeErr)
	}
	return found, nil
}

func (r *Repository) lookup(ctx context.Context, column string, values []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(values) == 0 {
		return result, nil
	}

	for start := 0; start < len(values); start += batchSize {
		end := min(start+batchSize, len(values))
		chunk := values[start:end]

		query, args, err := r.builder.Select(column).From("seen").
			Where(sq.Eq{column: chunk}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build seen batch: %w", err)
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query seen batch: %w", err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan %s: %w", column, err)
			}
			result[v] = true
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("rows iteration: %w", rowsErr)
		}
		if closeErr := rows.Close(); closeErr != nil {
			return nil, fmt.Errorf("close rows: %w", closeErr)
		}
	}
	return result, nil
}
