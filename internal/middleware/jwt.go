package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-review-engine/internal/utils"
)

// Roles a bearer token may carry. The engine's internal system actor is never
// accepted from a token.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var tokenRoles = map[string]struct{}{
	RoleStudent: {},
	RoleTeacher: {},
	RoleAdmin:   {},
}

var (
	errMissingRole     = errors.New("role claim required")
	errUnsupportedRole = errors.New("role is not permitted")
)

// JWTProtected validates HMAC bearer tokens and stores the caller's id and
// role for RequireActor.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		userID, role, roleErr := actorFromClaims(claims)
		if userID != 0 {
			c.Locals(localUserID, userID)
		}
		if roleErr == nil {
			c.Locals(localUserRole, role)
		} else if errors.Is(roleErr, errUnsupportedRole) {
			return utils.Fail(c, fiber.StatusForbidden, roleErr.Error(), nil)
		}

		return c.Next()
	}
}

// actorFromClaims reads the subject from sub, user_id or id and the role from
// role or roles. A role outside tokenRoles yields errUnsupportedRole.
func actorFromClaims(claims jwt.MapClaims) (uint, string, error) {
	var userID uint
	for _, key := range []string{"sub", "user_id", "id"} {
		if value, ok := claims[key]; ok {
			if parsed, err := parseSubject(value); err == nil {
				userID = parsed
				break
			}
		}
	}

	for _, key := range []string{"role", "roles"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		role := firstRole(value)
		if role == "" {
			continue
		}
		if _, known := tokenRoles[role]; !known {
			return userID, "", errUnsupportedRole
		}
		return userID, role, nil
	}

	return userID, "", errMissingRole
}

func parseSubject(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("invalid subject %v", v)
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

// firstRole returns the first non-empty role of a string or string-array claim.
func firstRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return canonicalRole(v)
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				if role := canonicalRole(str); role != "" {
					return role
				}
			}
		}
	}
	return ""
}

func canonicalRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
