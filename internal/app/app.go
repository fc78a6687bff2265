package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"DailyBrief/internal/config"
	"DailyBrief/internal/domain"
	"DailyBrief/internal/embedding"
	"DailyBrief/internal/health"
	"DailyBrief/internal/infrastructure/email"
	"DailyBrief/internal/infrastructure/extractor"
	"DailyBrief/internal/infrastructure/fetch"
	"DailyBrief/internal/infrastructure/httpapi"
	"DailyBrief/internal/infrastructure/llm"
	"DailyBrief/internal/infrastructure/ml"
	"DailyBrief/internal/infrastructure/parser"
	"DailyBrief/internal/infrastructure/scheduler"
	"DailyBrief/internal/infrastructure/storage"
	"DailyBrief/internal/infrastructure/telegram"
	"DailyBrief/internal/infrastructure/webhook"
	"DailyBrief/internal/logging"
	"DailyBrief/internal/ports"
	"DailyBrief/internal/report"
	"DailyBrief/internal/scanner"
	"DailyBrief/internal/scoring"
	"DailyBrief/internal/summarize"
	"DailyBrief/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Repository
	pipeline *usecase.Pipeline
}

// New opens storage and builds the pipeline. Strategies are fixed here, once per process.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	client := fetch.New(fetchOptions(cfg.Fetch), nil, logging.Component(baseLogger, "fetch"))

	registry := scanner.NewRegistry(
		parser.NewRSSScanner(client),
		parser.NewArxivScanner(client),
	)
	source := parser.NewStrategySource(registry, logging.Component(baseLogger, "source"))

	sources := make([]domain.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, domain.Source{URL: s.URL, Kind: s.Kind, Options: s.Options})
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:    sources,
		Feeds:      source,
		Health:     health.NewTracker(store, health.WithLogger(logging.Component(baseLogger, "health"))),
		Seen:       store,
		Extractor:  extractor.NewGoqueryExtractor(client),
		Scoring:    scoringStrategy(cfg, store, baseLogger),
		Summarizer: summaryStrategy(cfg, baseLogger),
		Reports:    report.NewFileWriter(cfg.Storage.ReportsDir),
		Notifiers:  notifiers(cfg.Delivery),
		Options: usecase.PipelineOptions{
			Topics:        cfg.Topics,
			MinScore:      cfg.Ranking.MinScoreValue(),
			MaxArticles:   cfg.Limits.PerRunMaxArticles,
			MaxSummary:    cfg.Limits.PerRunMaxSummary,
			Concurrency:   cfg.Fetch.Concurrency,
			SubjectPrefix: cfg.Delivery.SubjectPrefix,
			Location:      cfg.Location(),
		},
		Logger: logging.Component(baseLogger, "pipeline"),
	})

	return &Application{cfg: cfg, logger: baseLogger, store: store, pipeline: pipeline}, nil
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (domain.RunSummary, error) {
	return a.pipeline.Run(ctx)
}

// Schedule runs the pipeline on the configured cron expression until ctx is cancelled,
// serving the status API alongside when an address is configured.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Location(), logging.Component(a.logger, "scheduler"))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched := usecase.NewScheduler(driver, a.pipeline, logging.Component(a.logger, "scheduler"))

	g, gctx := errgroup.WithContext(ctx)
	if err := sched.Start(gctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Location().String())

	if a.cfg.Server.Addr != "" {
		server := httpapi.NewServer(a.cfg.Server.Addr, httpapi.Deps{
			DB:      a.store,
			Sources: a.store,
			Runs:    a.pipeline,
		}, logging.Component(a.logger, "httpapi"))
		g.Go(func() error { return server.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	return g.Wait()
}

// SourceHealth lists circuit-breaker state for every source seen so far.
func (a *Application) SourceHealth(ctx context.Context) ([]domain.SourceHealth, error) {
	return a.store.ListSourceHealth(ctx)
}

// Close releases storage.
func (a *Application) Close() error {
	return a.store.Close()
}

func fetchOptions(c config.FetchConfig) fetch.Options {
	return fetch.Options{
		Concurrency:    c.Concurrency,
		PoliteDelay:    c.PoliteDelay,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		MaxBodyBytes:   c.MaxBodyBytes,
		UserAgent:      c.UserAgent,
	}
}

// embeddingProvider returns nil when no semantic backend is usable.
func embeddingProvider(c config.EmbeddingConfig) ports.EmbeddingProvider {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			return nil
		}
		return ml.NewOpenAIEmbedder(c.Endpoint, c.APIKey)
	case "ollama":
		return ml.NewOllamaEmbedder(c.BaseURL)
	default:
		return nil
	}
}

func scoringStrategy(cfg config.Config, repo ports.EmbeddingRepository, logger *slog.Logger) scoring.Strategy {
	scfg := scoring.Config{
		Topics:      cfg.Topics,
		Weights:     scoring.MergeWeights(cfg.Ranking.ScoreWeights),
		MaxAgeHours: cfg.Ranking.MaxAgeHours,
	}

	provider := embeddingProvider(cfg.Embedding)
	switch {
	case len(cfg.Topics) == 0:
		logger.Info("no topics configured, semantic ranking disabled")
	case provider == nil:
		logger.Warn("no embedding credential, using keyword-only ranking", "provider", cfg.Embedding.Provider)
	default:
		return scoring.NewHybridStrategy(scfg, embedding.NewCache(repo, provider), cfg.Embedding.Model, logging.Component(logger, "scoring"))
	}
	return scoring.NewKeywordStrategy(scfg)
}

func summaryStrategy(cfg config.Config, logger *slog.Logger) summarize.Strategy {
	opts := summarize.Options{
		MaxWords:  cfg.Summarization.MaxWords,
		Language:  cfg.Summarization.Language,
		Style:     cfg.Summarization.Style,
		Sentences: cfg.Summarization.Sentences,
	}
	if !cfg.Summarization.IsEnabled() {
		return summarize.NewExtractiveStrategy(opts)
	}

	var provider ports.SummaryProvider
	switch cfg.Summarization.Provider {
	case "openai":
		if cfg.ChatGPT.APIKey != "" {
			provider = llm.NewChatGPTClient(cfg.ChatGPT, cfg.Summarization.Model)
		}
	case "anthropic":
		if cfg.Anthropic.APIKey != "" {
			provider = llm.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Summarization.Model)
		}
	}
	if provider == nil {
		logger.Warn("no summarization credential, using extractive summaries", "provider", cfg.Summarization.Provider)
		return summarize.NewExtractiveStrategy(opts)
	}
	return summarize.NewLLMStrategy(provider, opts, logging.Component(logger, "summarize"))
}

func notifiers(c config.DeliveryConfig) []ports.Notifier {
	var out []ports.Notifier
	if c.Email.Enabled {
		out = append(out, email.NewNotifier(c.Email))
	}
	if c.Slack.Enabled {
		out = append(out, webhook.NewSlackNotifier(c.Slack.WebhookURL))
	}
	if c.Telegram.Enabled {
		out = append(out, telegram.NewNotifier(c.Telegram.BotToken, c.Telegram.ChatID))
	}
	return out
}
