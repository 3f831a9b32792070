package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dinehub/realtime-core/internal/config"
	"github.com/dinehub/realtime-core/internal/handler"
	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	OrderHandler    *handler.OrderHandler
	ChatHandler     *handler.ChatHandler
	RealtimeHandler *handler.RealtimeHandler
	StaffMiddleware fiber.Handler
}

// Register wires the HTTP and websocket routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	staffMiddleware := deps.StaffMiddleware
	if staffMiddleware == nil {
		staffMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.OrderHandler != nil {
		orders := api.Group("/order")
		placeLimiter := middleware.RateLimit("order", cfg.OrderRateLimitPerMin, time.Minute)
		orders.Use(func(c *fiber.Ctx) error {
			if c.Method() == fiber.MethodPost {
				return placeLimiter(c)
			}
			return c.Next()
		})
		deps.OrderHandler.Register(orders)
	}

	if deps.ChatHandler != nil {
		chats := api.Group("/chat")
		deps.ChatHandler.Register(chats)
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api)
	}

	restaurant := api.Group("/restaurant", staffMiddleware)
	if deps.OrderHandler != nil {
		deps.OrderHandler.RegisterStaff(restaurant)
	}
	if deps.ChatHandler != nil {
		deps.ChatHandler.RegisterStaff(restaurant.Group("/chat"))
	}
}
