package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/service"
)

// RealtimeHandler wires the websocket upgrade endpoint into the hub.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userName := strings.TrimSpace(conn.Query("user_name"))
	if userName == "" {
		userName = "guest"
	}

	staff := strings.EqualFold(strings.TrimSpace(conn.Query("user_type")), "staff")
	correlation := strings.TrimSpace(conn.Query("correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ConnectionOptions{
		UserName:      userName,
		Staff:         staff,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user", userName).Bool("staff", staff).Msg("realtime client connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user", userName).Bool("staff", staff).Msg("realtime client disconnected")
}
