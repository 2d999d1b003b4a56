package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/taskboard/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rootMessage, rec.Body.String())
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "uptime_seconds")
}

func TestReadiness_AllHealthy(t *testing.T) {
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(
		HealthCheck{Name: "store", Check: func(context.Context) error { return nil }},
	))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"store":"ok"}}`, rec.Body.String())
}

func TestReadiness_FailingCheck(t *testing.T) {
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(
		HealthCheck{Name: "store", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "relay_bridge", Check: func(context.Context) error { return errors.New("connection refused") }},
	))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.JSONEq(t, `{"status":"unhealthy","checks":{"store":"ok","relay_bridge":"connection refused"}}`, rec.Body.String())
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "version")
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := &config.Config{Port: "0", AuthRateLimit: 100}
	srv := NewServer(cfg, &mockAppService{}, nil, nil, prometheus.NewRegistry(), nil)

	rec := doRequest(srv, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taskboard_http_requests_total{method="GET",route="/",status_code="200"} 1`)
}

func TestRelayRouteAbsentWithoutHandler(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS_AllowsConfiguredOriginWithCredentials(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	req := newRequest(http.MethodOptions, "/jwt", "")
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(srv, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	req := newRequest(http.MethodOptions, "/jwt", "")
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(srv, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
