package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"DailyBrief/internal/ports"
)

// CronScheduler fires the job at every minute matched by a cron expression,
// evaluated in the configured timezone. Runs never overlap: the next fire time
// is computed after the previous job returns.
type CronScheduler struct {
	expr   *Expression
	loc    *time.Location
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, loc *time.Location, logger *slog.Logger) (*CronScheduler, error) {
	expr, err := ParseExpression(spec)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{
		expr:   expr,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Start launches the timer loop. Calling it twice is a no-op.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("scheduler job is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.loop(ctx, job, c.done)
	return nil
}

func (c *CronScheduler) loop(ctx context.Context, job func(time.Time), done chan struct{}) {
	defer close(done)
	for {
		now := c.now().In(c.loc)
		next := c.expr.Next(now)
		if next.IsZero() {
			c.logger.Error("cron expression never fires, scheduler stopped")
			return
		}
		c.logger.Info("next run scheduled", "at", next)

		select {
		case <-ctx.Done():
			return
		case <-c.after(next.Sub(now)):
			job(next)
		}
	}
}

// Stop cancels the loop and waits for an in-flight job, or until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduler: %w", ctx.Err())
	}
}
