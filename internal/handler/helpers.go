package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/openedu-labs/qfeed-api/internal/dto"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := c.Params(key)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func parseFormUint(c *fiber.Ctx, key string) (*uint, error) {
	value := c.FormValue(key)
	if value == "" {
		return nil, errors.New("missing " + key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

// requesterFrom reads the identity the JWT middleware stored on the request.
// Routes mounted without the middleware yield a zero requester.
func requesterFrom(c *fiber.Ctx) dto.Requester {
	requester := dto.Requester{}
	if id, ok := c.Locals("user_id").(uint); ok {
		requester.ID = id
	}
	if role, ok := c.Locals("user_role").(string); ok {
		requester.Role = role
	}
	return requester
}
