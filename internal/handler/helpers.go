package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dinehub/realtime-core/internal/middleware"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseParamUint(c *fiber.Ctx, key string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(key), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

// requestContext returns the request-scoped context with the correlation
// identifier attached, falling back to a fresh background context.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
