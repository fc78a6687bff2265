// Package health implements the per-source circuit breaker.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DailyBrief/internal/ports"
)

const (
	DefaultDisableAfter = 5
	DefaultCooldown     = 24 * time.Hour
)

// Tracker isolates flaky feeds: after DisableAfter consecutive failures a source is
// skipped until the cooldown deadline passes.
type Tracker struct {
	repo         ports.SourceHealthRepository
	disableAfter int
	cooldown     time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithThreshold overrides the number of consecutive failures that trips the breaker.
func WithThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.disableAfter = n
		}
	}
}

// WithCooldown overrides how long a tripped source stays disabled.
func WithCooldown(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger attaches a logger for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker wires the breaker to its storage.
func NewTracker(repo ports.SourceHealthRepository, opts ...Option) *Tracker {
	t := &Tracker{
		repo:         repo,
		disableAfter: DefaultDisableAfter,
		cooldown:     DefaultCooldown,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsDisabled reports whether the stored deadline is still in the future.
func (t *Tracker) IsDisabled(ctx context.Context, source string) (bool, error) {
	h, ok, err := t.repo.GetSourceHealth(ctx, source)
	if err != nil {
		return false, fmt.Errorf("load source health %s: %w", source, err)
	}
	if !ok {
		return false, nil
	}
	return h.DisabledAt(t.now()), nil
}

// RecordSuccess resets the failure counter and clears any disable deadline.
func (t *Tracker) RecordSuccess(ctx context.Context, source string) error {
	if err := t.repo.RecordSourceSuccess(ctx, source, t.now()); err != nil {
		return fmt.Errorf("record success %s: %w", source, err)
	}
	return nil
}

// RecordFailure increments the counter and trips the breaker at the threshold.
func (t *Tracker) RecordFailure(ctx context.Context, source string) error {
	now := t.now()
	failures, err := t.repo.RecordSourceFailure(ctx, source, now)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", source, err)
	}
	if failures < t.disableAfter {
		return nil
	}

	until := now.Add(t.cooldown)
	if err := t.repo.DisableSource(ctx, source, until); err != nil {
		return fmt.Errorf("disable source %s: %w", source, err)
	}
	if t.logger != nil {
		t.logger.Warn("source disabled", "source", source, "failures", failures, "until", until)
	}
	return nil
}
