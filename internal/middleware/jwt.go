package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/openedu-labs/qfeed-api/internal/models"
	"github.com/openedu-labs/qfeed-api/internal/utils"
)

// JWTProtected validates the bearer token issued by the identity
// collaborator and exposes the requester through c.Locals("user_id")
// and c.Locals("user_role"). Tokens without a numeric subject are
// rejected: every grading endpoint checks the caller against the
// submission owner, so an anonymous token is useless here.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c.Get("Authorization"))
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
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

		userID, err := subjectID(claims)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "token carries no subject")
		}

		c.Locals("user_id", userID)
		c.Locals("user_role", roleClaim(claims))

		return c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header missing")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}

	return strings.TrimSpace(parts[1]), nil
}

// subjectID accepts the numeric subject under the claim names the
// identity service has used over time.
func subjectID(claims jwt.MapClaims) (uint, error) {
	for _, key := range []string{"sub", "user_id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v >= 0 {
				return uint(v), nil
			}
		case string:
			if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
				return uint(parsed), nil
			}
		}
	}

	return 0, fmt.Errorf("no numeric subject claim")
}

// roleClaim resolves the requester role, defaulting to student so a
// token without a role claim never gains staff access.
func roleClaim(claims jwt.MapClaims) string {
	if value, ok := claims["role"].(string); ok {
		if role := strings.ToLower(strings.TrimSpace(value)); role != "" {
			return role
		}
	}

	if values, ok := claims["roles"].([]interface{}); ok {
		for _, item := range values {
			if str, ok := item.(string); ok {
				if role := strings.ToLower(strings.TrimSpace(str)); role != "" {
					return role
				}
			}
		}
	}

	return models.RoleStudent
}
