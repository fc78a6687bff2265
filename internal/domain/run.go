package domain

import "time"

// StageName enumerates funnel milestones used in logs and run summaries.
type StageName string

const (
	StageFetchFeeds    StageName = "fetch_feeds"
	StageURLDedup      StageName = "url_dedup"
	StageKeywordFilter StageName = "keyword_filter"
	StageFetchContent  StageName = "fetch_content"
	StageContentDedup  StageName = "content_dedup"
	StageScore         StageName = "score"
	StageSummarize     StageName = "summarize"
	StageReport        StageName = "report"
	StagePersist       StageName = "persist"
)

// RunSummary captures what a single funnel run produced.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Sources     int
	Skipped     int
	Failed      int
	Counts      map[StageName]int
	ReportPath  string
	Delivery    map[string]bool
	Scoring     string
	Summarizing string
}

// Count returns the output size of a stage, zero when it did not run.
func (r RunSummary) Count(stage StageName) int {
	if r.Counts == nil {
		return 0
	}
	return r.Counts[stage]
}

// LogArgs flattens the summary into slog key/value pairs.
func (r RunSummary) LogArgs() []any {
	args := []any{
		"run_id", r.RunID,
		"sources", r.Sources,
		"sources_skipped", r.Skipped,
		"sources_failed", r.Failed,
		"scoring", r.Scoring,
		"summarizing", r.Summarizing,
		"report", r.ReportPath,
		"duration", r.FinishedAt.Sub(r.StartedAt).String(),
	}
	for _, stage := range []StageName{
		StageFetchFeeds, StageURLDedup, StageKeywordFilter, StageFetchContent,
		StageContentDedup, StageScore, StageSummarize, StageReport, StagePersist,
	} {
		args = append(args, string(stage), r.Count(stage))
	}
	for channel, ok := range r.Delivery {
		args = append(args, "delivered_"+channel, ok)
	}
	return args
}
