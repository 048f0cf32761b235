package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func correlationApp() *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		if GetCorrelationID(c) != CorrelationIDFromContext(c.UserContext()) {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestCorrelationIDReusesCallerHeaders(t *testing.T) {
	app := correlationApp()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-7")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, "req-7", resp.Header.Get(correlationHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlationHeader, "corr-1")
	req.Header.Set(requestIDHeader, "req-7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "corr-1", resp.Header.Get(correlationHeader))
}

func TestCorrelationIDReplacesUnusableHeaders(t *testing.T) {
	app := correlationApp()

	for _, incoming := range []string{strings.Repeat("a", maxCorrelationIDLen+1), "two words", "café"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(correlationHeader, incoming)
		resp, err := app.Test(req)
		require.NoError(t, err)

		issued := resp.Header.Get(correlationHeader)
		require.NotEqual(t, incoming, issued)
		require.Len(t, issued, 36)
	}
}
