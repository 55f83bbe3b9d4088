package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.pilab.hu/authcore/log"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

// HTTPServer is the operational HTTP surface: liveness, readiness and
// Prometheus metrics.
type HTTPServer struct {
	echo   *echo.Echo
	addr   string
	logger log.Logger
	checks map[string]Check
}

// NewHTTPServer creates an echo server listening on addr. Readiness runs
// every check in checks by name.
func NewHTTPServer(addr string, logger log.Logger, gatherer prometheus.Gatherer,
	checks map[string]Check,
) *HTTPServer {
	if logger == nil {
		logger = log.Nop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 5 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second

	s := &HTTPServer{echo: e, addr: addr, logger: logger, checks: checks}

	e.Use(s.requestLogger)

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// Group mounts a route group under prefix behind m.
func (s *HTTPServer) Group(prefix string, m ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(prefix, m...)
}

// Handler returns the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info(context.Background(), "ops server listening", log.Fields{"addr": s.addr})

	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *HTTPServer) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) readyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn(ctx, "readiness check failed", log.Fields{"check": name, "error": err.Error()})
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	return c.JSON(status, results)
}

func (s *HTTPServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		fields := log.Fields{
			"method":  req.Method,
			"path":    req.URL.Path,
			"status":  c.Response().Status,
			"latency": time.Since(start).String(),
		}

		if err != nil {
			s.logger.Error(req.Context(), "HTTP request failed", err, fields)
		} else {
			s.logger.Debug(req.Context(), "HTTP request", fields)
		}

		return nil
	}
}
