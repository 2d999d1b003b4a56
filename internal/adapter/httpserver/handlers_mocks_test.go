package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/pscheid92/taskboard/internal/platform/config"
	"github.com/pscheid92/taskboard/internal/platform/token"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	registerUserFn  func(ctx context.Context, email string, attributes map[string]any) (*domain.User, error)
	getUserFn       func(ctx context.Context, email string) (*domain.User, error)
	getContainerFn  func(ctx context.Context, owner string) (*domain.Container, error)
	getProjectFn    func(ctx context.Context, owner string, projectID int64) (*domain.Project, error)
	createProjectFn func(ctx context.Context, owner string, project domain.NewProject) (*domain.Project, error)
	updateProjectFn func(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error)
	deleteProjectFn func(ctx context.Context, owner string, projectID int64) error
	addTaskFn       func(ctx context.Context, owner string, projectID int64, fields map[string]any) (*domain.Task, error)
	updateTaskFn    func(ctx context.Context, owner string, projectID, taskID int64, fields map[string]any) (*domain.Task, error)
	deleteTaskFn    func(ctx context.Context, owner string, projectID, taskID int64) error
}

var errNotImplemented = errors.New("not implemented")

func (m *mockAppService) RegisterUser(ctx context.Context, email string, attributes map[string]any) (*domain.User, error) {
	if m.registerUserFn != nil {
		return m.registerUserFn(ctx, email, attributes)
	}
	return &domain.User{Email: domain.NormalizeEmail(email)}, nil
}

func (m *mockAppService) GetUser(ctx context.Context, email string) (*domain.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, email)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) GetContainer(ctx context.Context, owner string) (*domain.Container, error) {
	if m.getContainerFn != nil {
		return m.getContainerFn(ctx, owner)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) GetProject(ctx context.Context, owner string, projectID int64) (*domain.Project, error) {
	if m.getProjectFn != nil {
		return m.getProjectFn(ctx, owner, projectID)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) CreateProject(ctx context.Context, owner string, project domain.NewProject) (*domain.Project, error) {
	if m.createProjectFn != nil {
		return m.createProjectFn(ctx, owner, project)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) UpdateProject(ctx context.Context, owner string, projectID int64, patch domain.ProjectPatch) (*domain.Project, error) {
	if m.updateProjectFn != nil {
		return m.updateProjectFn(ctx, owner, projectID, patch)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) DeleteProject(ctx context.Context, owner string, projectID int64) error {
	if m.deleteProjectFn != nil {
		return m.deleteProjectFn(ctx, owner, projectID)
	}
	return errNotImplemented
}

func (m *mockAppService) AddTask(ctx context.Context, owner string, projectID int64, fields map[string]any) (*domain.Task, error) {
	if m.addTaskFn != nil {
		return m.addTaskFn(ctx, owner, projectID, fields)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) UpdateTask(ctx context.Context, owner string, projectID, taskID int64, fields map[string]any) (*domain.Task, error) {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, owner, projectID, taskID, fields)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) DeleteTask(ctx context.Context, owner string, projectID, taskID int64) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, owner, projectID, taskID)
	}
	return errNotImplemented
}

// --- Test helpers ---

const testSecret = "test-secret-0123456789abcdef"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	issuer, err := token.NewIssuer(testSecret, time.Hour, clockwork.NewFakeClockAt(testNow))
	require.NoError(t, err)

	srv := &Server{
		echo: newEcho(),
		config: &config.Config{
			Port:               "0",
			EnforceOwnerMatch:  true,
			AuthRateLimit:      100,
			CORSAllowedOrigins: []string{"http://localhost:5173"},
		},
		app:       app,
		tokens:    issuer,
		startTime: testNow,
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withProduction() func(*Server) {
	return func(s *Server) {
		s.config.AppEnv = "production"
	}
}

// withErrorHandling wraps handler with mw and the error middleware, matching production order.
func withErrorHandling(mw echo.MiddlewareFunc, handler echo.HandlerFunc) echo.HandlerFunc {
	return ErrorHandlingMiddleware()(mw(handler))
}

func newRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// serve runs req through the full router.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// doRequest runs a request through the full router. cookie may be nil.
func doRequest(srv *Server, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := newRequest(method, path, body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return serve(srv, req)
}

func authCookie(t *testing.T, srv *Server, email string) *http.Cookie {
	t.Helper()
	raw, _, err := srv.tokens.Issue(token.Identity{Email: email})
	require.NoError(t, err)
	return &http.Cookie{Name: tokenCookieName, Value: raw}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
