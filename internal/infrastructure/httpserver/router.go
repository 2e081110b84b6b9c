package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health status values.
const (
	StatusHealthy  = "healthy"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
)

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessChecker reports whether the daemon is ready (the session is active).
type ReadinessChecker interface {
	IsReady(ctx context.Context) bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Logger is the structured logger for router events.
	Logger *slog.Logger

	// Gatherer serves /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Readiness backs /ready. Nil means always ready.
	Readiness ReadinessChecker

	// AllowOrigins enables CORS for these origins. Empty means same-origin only.
	AllowOrigins []string
}

// Router manages the route table and middleware chain.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
}

// NewRouter applies the global middleware and registers the operational
// endpoints (/health, /ready, /metrics).
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	r := &Router{echo: e, config: config}

	e.Use(Recover(config.Logger))
	if len(config.AllowOrigins) > 0 {
		e.Use(CORS(config.AllowOrigins...))
	}
	e.Use(RequestLogger(config.Logger, "/health", "/ready", "/metrics"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: StatusHealthy})
	})
	e.GET("/ready", r.handleReady)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))

	return r
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// RouteRegistrar defines the interface for registering routes.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// RegisterAll registers all route registrars with the router.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r.echo)
	}
}

func (r *Router) handleReady(c echo.Context) error {
	if r.config.Readiness == nil || r.config.Readiness.IsReady(c.Request().Context()) {
		return c.JSON(http.StatusOK, HealthResponse{Status: StatusReady})
	}
	return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: StatusNotReady})
}
