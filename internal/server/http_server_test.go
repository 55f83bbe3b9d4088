package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/authcore/internal/metrics"
)

func serve(t *testing.T, s *HTTPServer, path string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}

	return rec, body
}

func TestHealthz(t *testing.T) {
	s := NewHTTPServer(":0", nil, prometheus.NewRegistry(), nil)

	rec, body := serve(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	s := NewHTTPServer(":0", nil, prometheus.NewRegistry(), map[string]Check{"redis": healthy})
	rec, body := serve(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"redis": "ok"}, body)

	s = NewHTTPServer(":0", nil, prometheus.NewRegistry(), map[string]Check{"redis": healthy, "mongo": broken})
	rec, body = serve(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", body["mongo"])
	assert.Equal(t, "ok", body["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ClientAuthFailed()

	s := NewHTTPServer(":0", nil, reg, nil)
	rec, _ := serve(t, s, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authcore_client_auth_failures_total 1")
}

func TestGroup(t *testing.T) {
	s := NewHTTPServer(":0", nil, prometheus.NewRegistry(), nil)

	var seen bool
	g := s.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			seen = true
			return next(c)
		}
	})
	g.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "pong"})
	})

	rec, body := serve(t, s, "/api/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", body["status"])
	assert.True(t, seen)

	seen = false
	rec, _ = serve(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, seen, "group middleware stays on the group")
}
