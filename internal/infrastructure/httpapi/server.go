// Package httpapi exposes a read-only status API while the scheduler runs.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"DailyBrief/internal/domain"
)

const gracefulShutdownTimeout = 10 * time.Second

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLister lists per-source circuit-breaker state.
type HealthLister interface {
	ListSourceHealth(ctx context.Context) ([]domain.SourceHealth, error)
}

// RunStatus exposes the most recent funnel run.
type RunStatus interface {
	LastRun() (domain.RunSummary, bool)
}

type Deps struct {
	DB      Pinger
	Sources HealthLister
	Runs    RunStatus
	Now     func() time.Time
}

type Server struct {
	echo   *echo.Echo
	addr   string
	deps   Deps
	logger *slog.Logger
}

func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, addr: addr, deps: deps, logger: logger}
	s.setupMiddlewares()
	s.routes()
	return s
}

func (s *Server) setupMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogLatency:  true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				s.logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "request",
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
				)
			} else {
				s.logger.LogAttrs(c.Request().Context(), slog.LevelError, "request failed",
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.String("err", v.Error.Error()),
				)
			}
			return nil
		},
	}))
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.healthz)
	s.echo.GET("/api/sources", s.sources)
	s.echo.GET("/api/runs/last", s.lastRun)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c echo.Context) error {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type sourceView struct {
	URL                 string     `json:"url"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	DisabledUntil       *time.Time `json:"disabled_until,omitempty"`
	Disabled            bool       `json:"disabled"`
}

func (s *Server) sources(c echo.Context) error {
	if s.deps.Sources == nil {
		return c.JSON(http.StatusOK, []sourceView{})
	}
	list, err := s.deps.Sources.ListSourceHealth(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list source health").SetInternal(err)
	}

	now := s.deps.Now()
	out := make([]sourceView, 0, len(list))
	for _, h := range list {
		out = append(out, sourceView{
			URL:                 h.URL,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastFailure:         h.LastFailure,
			LastSuccess:         h.LastSuccess,
			DisabledUntil:       h.DisabledUntil,
			Disabled:            h.DisabledAt(now),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type runView struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sources    int             `json:"sources"`
	Skipped    int             `json:"sources_skipped"`
	Failed     int             `json:"sources_failed"`
	Stages     map[string]int  `json:"stages"`
	Report     string          `json:"report"`
	Delivery   map[string]bool `json:"delivery"`
	Scoring    string          `json:"scoring"`
	Summaries  string          `json:"summarizing"`
}

func (s *Server) lastRun(c echo.Context) error {
	if s.deps.Runs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no run recorded yet")
	}
	run, ok := s.deps.Runs.LastRun()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no run recorded yet")
	}

	stages := make(map[string]int, len(run.Counts))
	for stage, n := range run.Counts {
		stages[string(stage)] = n
	}
	return c.JSON(http.StatusOK, runView{
		RunID:      run.RunID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Sources:    run.Sources,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Stages:     stages,
		Report:     run.ReportPath,
		Delivery:   run.Delivery,
		Scoring:    run.Scoring,
		Summaries:  run.Summarizing,
	})
}
