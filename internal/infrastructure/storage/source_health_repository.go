package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"DailyBrief/internal/domain"
	"DailyBrief/internal/ports"
)

var _ ports.SourceHealthRepository = (*Repository)(nil)

var healthColumns = []string{
	"url", "consecutive_failures", "last_failure_ts", "last_success_ts", "disabled_until_ts",
}

// GetSourceHealth loads breaker state; the bool is false for a source never recorded.
func (r *Repository) GetSourceHealth(ctx context.Context, url string) (domain.SourceHealth, bool, error) {
	query, args, err := r.builder.Select(healthColumns...).From("source_health").
		Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return domain.SourceHealth{}, false, fmt.Errorf("build health lookup: %w", err)
	}

	h, err := scanHealth(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SourceHealth{}, false, nil
		}
		return domain.SourceHealth{}, false, fmt.Errorf("query source health: %w", err)
	}
	return h, true, nil
}

// ListSourceHealth returns every tracked source ordered by URL.
func (r *Repository) ListSourceHealth(ctx context.Context) ([]domain.SourceHealth, error) {
	query, args, err := r.builder.Select(healthColumns...).From("source_health").
		OrderBy("url").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build health list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query source health: %w", err)
	}

	var result []domain.SourceHealth
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan source health: %w", err)
		}
		result = append(result, h)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}
	return result, nil
}

// RecordSourceSuccess zeroes the failure counter and lifts any disable deadline.
func (r *Repository) RecordSourceSuccess(ctx context.Context, url string, at time.Time) error {
	query, args, err := r.builder.Insert("source_health").
		Columns("url", "consecutive_failures", "last_success_ts", "disabled_until_ts").
		Values(url, 0, at.Unix(), nil).
		Suffix("ON CONFLICT (url) DO UPDATE SET consecutive_failures = 0, last_success_ts = excluded.last_success_ts, disabled_until_ts = NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build success upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source success: %w", err)
	}
	return nil
}

// RecordSourceFailure increments the counter atomically and returns the new value.
func (r *Repository) RecordSourceFailure(ctx context.Context, url string, at time.Time) (int, error) {
	query, args, err := r.builder.Insert("source_health").
		Columns("url", "consecutive_failures", "last_failure_ts").
		Values(url, 1, at.Unix()).
		Suffix("ON CONFLICT (url) DO UPDATE SET consecutive_failures = source_health.consecutive_failures + 1, last_failure_ts = excluded.last_failure_ts RETURNING consecutive_failures").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build failure upsert: %w", err)
	}

	var failures int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&failures); err != nil {
		return 0, fmt.Errorf("upsert source failure: %w", err)
	}
	return failures, nil
}

// DisableSource sets the deadline before which the source is skipped.
func (r *Repository) DisableSource(ctx context.Context, url string, until time.Time) error {
	query, args, err := r.builder.Update("source_health").
		Set("disabled_until_ts", until.Unix()).
		Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return fmt.Errorf("build disable update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("disable source: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHealth(row rowScanner) (domain.SourceHealth, error) {
	var h domain.SourceHealth
	var lastFailure, lastSuccess, until sql.NullInt64
	if err := row.Scan(&h.URL, &h.ConsecutiveFailures, &lastFailure, &lastSuccess, &until); err != nil {
		return domain.SourceHealth{}, err
	}
	h.LastFailure = timeFromNull(lastFailure)
	h.LastSuccess = timeFromNull(lastSuccess)
	h.DisabledUntil = timeFromNull(until)
	return h, nil
}
