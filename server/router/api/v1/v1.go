// Package v1 serves the operator HTTP API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/internal/profile"
	ratelimit "github.com/hrygo/adpilot/server/middleware"
	"github.com/hrygo/adpilot/server/scheduler"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/learning"
	"github.com/hrygo/adpilot/server/service/monitor"
	"github.com/hrygo/adpilot/server/service/target"
)

// Services are the components the API exposes. Scheduler and Gatherer may
// be nil.
type Services struct {
	Executor  *action.Executor
	Targets   *target.Store
	Learner   *learning.Learner
	Monitor   *monitor.Monitor
	Scheduler *scheduler.Scheduler
	Gatherer  prometheus.Gatherer
}

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Services

	limiter  *ratelimit.RateLimiter
	markdown goldmark.Markdown
	logger   *slog.Logger
}

func NewAPIV1Service(secret string, profile *profile.Profile, services Services) *APIV1Service {
	if services.Gatherer == nil {
		services.Gatherer = prometheus.DefaultGatherer
	}
	return &APIV1Service{
		Secret:   secret,
		Profile:  profile,
		Services: services,
		limiter:  ratelimit.NewRateLimiter(ratelimit.DefaultRate, ratelimit.DefaultBurst),
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (s *APIV1Service) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// RegisterRoutes mounts the health and metrics endpoints and the
// authenticated /api/v1 group on e.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))

	g := e.Group("/api/v1", middleware.CORS(), s.limiter.Middleware(), s.authenticate)

	g.GET("/actions/pending", s.ListPendingActions)
	g.GET("/actions/history", s.ListActionHistory)
	g.GET("/actions/feed.atom", s.ActionFeed)
	g.GET("/actions/:id", s.GetAction)
	g.POST("/actions", s.ProposeAction)
	g.POST("/actions/execute", s.ExecuteAction)
	g.POST("/actions/:id/approve", s.ApproveAction)
	g.POST("/actions/:id/reject", s.RejectAction)

	g.GET("/targets", s.ListTargets)
	g.PUT("/targets/defaults/:type", s.SetDefaultTargets)
	g.GET("/targets/:campaign_id", s.GetTargets)
	g.PUT("/targets/:campaign_id", s.SetCampaignTargets)
	g.DELETE("/targets/:campaign_id", s.RemoveTargets)

	g.GET("/learnings", s.GetLearningSummary)
	g.POST("/learnings/analyze", s.AnalyzeLearnings)

	g.POST("/runs", s.RunNow)
	g.GET("/runs/latest", s.GetLatestRun)
	g.GET("/report", s.GetReport)
	g.GET("/scheduler", s.GetSchedulerStatus)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version,omitempty"`
	ExecutorMode string `json:"executor_mode,omitempty"`
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.Profile != nil {
		resp.Version = s.Profile.Version
	}
	if s.Executor != nil {
		resp.ExecutorMode = string(s.Executor.Mode())
	}
	return c.JSON(http.StatusOK, resp)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps err onto a status: AppErrors carry their own, anything
// else is a 500.
func (s *APIV1Service) writeError(c echo.Context, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			s.logger.Warn("operator request failed", "path", c.Path(), "code", appErr.Code, "error", err)
		}
		return c.JSON(status, ErrorResponse{Code: string(appErr.Code), Message: appErr.Message})
	}
	s.logger.Warn("operator request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func (s *APIV1Service) bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperrors.InvalidArgument("invalid request body")
	}
	return nil
}
