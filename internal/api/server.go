package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/campus-notice/internal/auth"
	"github.com/david/campus-notice/internal/db"
	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
	"github.com/david/campus-notice/internal/notify"
	"github.com/david/campus-notice/internal/pipeline"
)

// Runner executes one pipeline run. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
	Sources() []ingest.SourceConfig
}

// CallbackPoster delivers run results to a caller's hook.
type CallbackPoster interface {
	Post(ctx context.Context, cb notify.Callback, resp models.Response) error
}

// Deps are the collaborators of a Server. Store, Notifier and Callbacks may be nil.
type Deps struct {
	Runner      Runner
	Auth        *auth.Service
	Store       db.RunStore
	Notifier    *notify.Notifier
	Callbacks   CallbackPoster
	CORSOrigins []string
}

type Server struct {
	Echo      *echo.Echo
	Runner    Runner
	Auth      *auth.Service
	Store     db.RunStore
	Notifier  *notify.Notifier
	Callbacks CallbackPoster

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Echo:      e,
		Runner:    deps.Runner,
		Auth:      deps.Auth,
		Store:     deps.Store,
		Notifier:  deps.Notifier,
		Callbacks: deps.Callbacks,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	crawl := s.Echo.Group("/crawl")
	crawl.Use(s.Auth.Middleware)
	crawl.POST("/request", s.handleCrawlRequest)

	api := s.Echo.Group("/api/v1")
	api.GET("/sources", s.handleGetSources)

	// Admin Routes (run history & background runs)
	admin := api.Group("")
	admin.Use(s.Auth.AdminMiddleware)
	admin.GET("/runs", s.handleListRuns)
	admin.GET("/runs/:id", s.handleGetRun)
	admin.GET("/notices/similar", s.handleSimilarNotices)
	admin.POST("/admin/runs", s.handleStartRunJob)
	admin.GET("/admin/job/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"store":  s.Store != nil,
		"notify": s.Notifier.Enabled(),
	})
}

type sourceSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Adapter     string   `json:"adapter"`
	Match       []string `json:"match"`
	Boards      []string `json:"boards"`
	Description string   `json:"description,omitempty"`
}

func (s *Server) handleGetSources(c echo.Context) error {
	sources := s.Runner.Sources()
	out := make([]sourceSummary, 0, len(sources))
	for _, src := range sources {
		boards := make([]string, 0, len(src.Boards))
		for _, b := range src.Boards {
			boards = append(boards, b.Name)
		}
		out = append(out, sourceSummary{
			ID:          src.ID,
			Name:        src.Name,
			Adapter:     src.Adapter,
			Match:       src.Match,
			Boards:      boards,
			Description: src.Description,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Start blocks serving on port.
func (s *Server) Start(port string) error {
	logging.For("api").Infof("listening on :%s", port)
	return s.Echo.Start(":" + port)
}

// Shutdown stops the listener and cancels a running background job.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Cancel != nil {
		s.runningJob.Cancel()
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}
