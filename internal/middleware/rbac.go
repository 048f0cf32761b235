package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-review-engine/internal/utils"
)

// RequireRole admits only actors holding one of roles. Every role must be a
// token role; anything else is a wiring mistake and panics at startup.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := canonicalRole(role)
		if _, ok := tokenRoles[normalized]; !ok {
			panic(fmt.Sprintf("middleware: %q is not a token role", role))
		}
		allowed[normalized] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		_, role := ActorFromContext(c)
		if _, ok := allowed[role]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
