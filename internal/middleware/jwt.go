package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dinehub/realtime-core/internal/utils"
)

// StaffProtected validates JWT bearer tokens on staff-only routes and binds
// the staff identity to the request. The accept race in the order service
// needs that identity recorded atomically with the claim.
func StaffProtected(secret string) fiber.Handler {
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
				return nil, fmt.Errorf("unexpected signing method")
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

		if staffID := claimString(claims, "sub", "staff_id", "name"); staffID != "" {
			c.Locals("staff_id", staffID)
		}
		if role := claimString(claims, "role", "staff_role"); role != "" {
			c.Locals("staff_role", role)
		}

		return c.Next()
	}
}

// StaffIdentity returns the staff identifier bound by StaffProtected.
func StaffIdentity(c *fiber.Ctx) string {
	if value := c.Locals("staff_id"); value != nil {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if str, ok := value.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}
