package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/taskboard/internal/adapter/metrics"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/pscheid92/taskboard/internal/platform/config"
	"github.com/pscheid92/taskboard/internal/platform/token"
)

type appService interface {
	RegisterUser(ctx context.Context, email string, attributes map[string]any) (*domain.User, error)
	GetUser(ctx context.Context, email string) (*domain.User, error)
	GetContainer(ctx context.Context, owner string) (*domain.Container, error)
	GetProject(ctx context.Context, owner string, projectID int64) (*domain.Project, error)
	CreateProject(ctx context.Context, owner string, project domain.NewProject) (*domain.Project, error)
	UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error)
	DeleteProject(ctx context.Context, owner string, projectID int64) error
	AddTask(ctx context.Context, owner string, projectID int64, fields map[string]any) (*domain.Task, error)
	UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields map[string]any) (*domain.Task, error)
	DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error
}

type tokenIssuer interface {
	Issue(id token.Identity) (string, time.Time, error)
	Verify(raw string) (*token.Identity, error)
	TTL() time.Duration
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app    appService
	tokens tokenIssuer

	relayHandler http.Handler

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the routes. registry may be nil, which disables /metrics and
// request instrumentation.
func NewServer(cfg *config.Config, app appService, tokens tokenIssuer, relayHandler http.Handler, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	srv := &Server{
		echo:         newEcho(),
		config:       cfg,
		app:          app,
		tokens:       tokens,
		relayHandler: relayHandler,
		registry:     registry,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}
	if registry != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	srv.registerRoutes()

	return srv
}

// newEcho trusts only the TCP peer address, so X-Forwarded-For cannot pick the
// rate limiter bucket.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPDirect()
	return e
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
