package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesEngineCollectors(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	SweepRuns().WithLabelValues("ok").Inc()
	PeerEdgesCreated().WithLabelValues("manual").Add(2)
	NotificationsPublished().WithLabelValues("review_reminder").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `sweep_runs_total{outcome="ok"}`)
	require.Contains(t, string(body), `peer_edges_created_total{mode="manual"}`)
	require.Contains(t, string(body), `notifications_published_total{type="review_reminder"}`)
}
