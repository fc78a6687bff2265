package usecase

import (
	"context"
	"testing"
	"time"

	"DailyBrief/internal/domain"
)

type immediateDriver struct {
	started, stopped bool
}

func (d *immediateDriver) Start(_ context.Context, job func(time.Time)) error {
	d.started = true
	job(runDay)
	return nil
}

func (d *immediateDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTick(t *testing.T) {
	store := openStore(t)
	pipeline := NewPipeline(PipelineDeps{
		Sources:   []domain.Source{{URL: "feed"}},
		Feeds:     fakeFeeds{"feed": {entry("a", "t", "d")}},
		Seen:      store,
		Extractor: fakeExtractor{},
		Now:       func() time.Time { return runDay },
	})

	driver := &immediateDriver{}
	s := NewScheduler(driver, pipeline, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := pipeline.LastRun(); !ok {
		t.Fatalf("expected the tick to run the pipeline")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !driver.started || !driver.stopped {
		t.Fatalf("driver not driven: %+v", driver)
	}
}

func TestSchedulerWithoutDriver(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
