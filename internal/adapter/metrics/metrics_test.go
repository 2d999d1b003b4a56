package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/taskboard/internal/adapter/memory"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AllCollectorsRegisterOnce(t *testing.T) {
	reg := NewRegistry()

	assert.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewWebSocketMetrics(reg)
		NewStoreMetrics(reg)
		NewDBMetrics(reg)
		NewRedisMetrics(reg)
	})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/projects/:owner", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/health/live", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/projects/a@example.com", "/projects/b@example.com", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/projects/:owner", "204")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestInstrumentedContainerRepo_CountsResults(t *testing.T) {
	reg := NewRegistry()
	m := NewStoreMetrics(reg)
	store := memory.NewStore(clockwork.NewFakeClock())
	repo := InstrumentContainers(store.Containers(), m)
	ctx := context.Background()

	_, err := repo.Create(ctx, "a@example.com")
	require.NoError(t, err)
	_, err = repo.AddProject(ctx, "a@example.com", domain.NewProject{})
	require.NoError(t, err)
	_, err = repo.AddProject(ctx, "ghost@example.com", domain.NewProject{})
	require.ErrorIs(t, err, domain.ErrOwnerNotFound)
	_, err = repo.Create(ctx, "a@example.com")
	require.ErrorIs(t, err, domain.ErrContainerExists)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add_project", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("add_project", "not_found")))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "not_found", resultLabel(domain.ErrTaskNotFound))
	assert.Equal(t, "error", resultLabel(errors.New("boom")))
}

func TestStatementKind(t *testing.T) {
	assert.Equal(t, "SELECT", statementKind("  select document FROM containers"))
	assert.Equal(t, "UPDATE", statementKind("UPDATE containers SET"))
	assert.Equal(t, "unknown", statementKind(""))
}

func TestDBMetrics_TracesQueries(t *testing.T) {
	reg := NewRegistry()
	m := NewDBMetrics(reg)

	ctx := m.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	time.Sleep(time.Millisecond)
	m.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryErrors.WithLabelValues("SELECT")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))

	m.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryErrors.WithLabelValues("SELECT")))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	reg := NewRegistry()
	ws := NewWebSocketMetrics(reg)
	ws.ActiveConnections.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.True(t, strings.Contains(rec.Body.String(), "taskboard_websocket_active_connections 1"))
}
