package aether

import (
	"time"

	"github.com/aether-sd/aether/core/services"
	"github.com/labstack/echo/v4"
)

// MetricsEndpoint exposes the Prometheus metrics
// @Summary Prometheus metrics endpoint
// @Router /metrics [get]
func MetricsEndpoint(metrics *services.MetricsService) echo.HandlerFunc {
	return echo.WrapHandler(metrics.Handler())
}

type apiMiddlewareConfig struct {
	Filter  func(c echo.Context) bool
	metrics *services.MetricsService
}

// MetricsAPIMiddleware times every request by its route pattern, so
// /generated-images/* is one series rather than one per file.
func MetricsAPIMiddleware(metrics *services.MetricsService) echo.MiddlewareFunc {
	cfg := apiMiddlewareConfig{
		metrics: metrics,
		Filter: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Filter != nil && cfg.Filter(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			elapsed := float64(time.Since(start)) / float64(time.Second)
			cfg.metrics.ObserveAPICall(c.Request().Method, c.Path(), elapsed)
			return err
		}
	}
}
