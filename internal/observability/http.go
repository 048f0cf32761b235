// Package observability owns the review engine's Prometheus collectors: HTTP
// traffic, sweeper runs and transitions, matching outcomes and broker
// publishes. MetricsHandler serves them on the API's /metrics route.
package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler registers the engine collectors and exposes the Prometheus
// scrape endpoint through Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
