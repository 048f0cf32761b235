package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-review-engine/internal/utils"
)

const (
	localUserID   = "user_id"
	localUserRole = "user_role"
)

// RequireActor rejects requests whose token carried no usable subject or no
// permitted role. Every engine call needs both.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, role := ActorFromContext(c)
		if userID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if role == "" {
			return utils.Fail(c, fiber.StatusForbidden, errMissingRole.Error(), nil)
		}
		return c.Next()
	}
}

// ActorFromContext returns the authenticated user id and role set by
// JWTProtected. The role is empty unless it is one of the token roles.
func ActorFromContext(c *fiber.Ctx) (uint, string) {
	userID, _ := c.Locals(localUserID).(uint)
	role, _ := c.Locals(localUserRole).(string)
	if _, ok := tokenRoles[role]; !ok {
		role = ""
	}
	return userID, role
}
