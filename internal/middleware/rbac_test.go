package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func staffApp(role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(localUserID, uint(9))
		c.Locals(localUserRole, role)
		return c.Next()
	})
	app.Post("/assignments", RequireRole(RoleTeacher, RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestRequireRoleGatesStaffRoutes(t *testing.T) {
	cases := []struct {
		role   string
		status int
	}{
		{RoleTeacher, fiber.StatusCreated},
		{RoleAdmin, fiber.StatusCreated},
		{RoleStudent, fiber.StatusForbidden},
		{"system", fiber.StatusForbidden},
		{"", fiber.StatusForbidden},
	}

	for _, tc := range cases {
		resp, err := staffApp(tc.role).Test(httptest.NewRequest(http.MethodPost, "/assignments", nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, "role %q", tc.role)
	}
}

func TestRequireRoleRejectsNonTokenRoles(t *testing.T) {
	require.Panics(t, func() { RequireRole("system") })
	require.NotPanics(t, func() { RequireRole(" Admin ") })
}

func TestActorFromClaimsWhitelistsRoles(t *testing.T) {
	id, role, err := actorFromClaims(map[string]interface{}{"sub": "12", "roles": []interface{}{"", " Teacher"}})
	require.NoError(t, err)
	require.Equal(t, uint(12), id)
	require.Equal(t, RoleTeacher, role)

	id, _, err = actorFromClaims(map[string]interface{}{"user_id": float64(77), "role": "system"})
	require.ErrorIs(t, err, errUnsupportedRole)
	require.Equal(t, uint(77), id)

	_, _, err = actorFromClaims(map[string]interface{}{"id": float64(3)})
	require.ErrorIs(t, err, errMissingRole)

	id, _, _ = actorFromClaims(map[string]interface{}{"sub": float64(1.5), "role": "student"})
	require.Zero(t, id)
}
