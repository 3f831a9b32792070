package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/dto"
	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/service"
	"github.com/dinehub/realtime-core/internal/utils"
)

// ChatHandler wires chat room and message routes.
type ChatHandler struct {
	service service.ChatService
	logger  zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds the customer-facing chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/create", h.create)
	router.Get("/:id/messages", h.history)
	router.Post("/:id/messages", h.postMessage)
	router.Put("/:id/messages/:messageId", h.editMessage)
	router.Delete("/:id/messages/:messageId", h.deleteMessage)
}

// RegisterStaff binds the staff-only chat routes.
func (h *ChatHandler) RegisterStaff(router fiber.Router) {
	router.Get("/staff/chats", h.staffChats)
	router.Post("/:id/accept", h.accept)
}

func (h *ChatHandler) create(c *fiber.Ctx) error {
	var req dto.ChatCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	room, err := h.service.Create(requestContext(c), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("chat creation failed")
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendCreated(c, "chat created", room)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	before := time.Time{}
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		before = parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	history, err := h.service.History(requestContext(c), c.Params("id"), before, limit)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "chat not found")
		}
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load chat history")
	}

	return utils.SendSuccess(c, "chat history", history)
}

func (h *ChatHandler) postMessage(c *fiber.Ctx) error {
	var req dto.ChatMessageCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.CorrelationID == "" {
		req.CorrelationID = middleware.GetCorrelationID(c)
	}

	message, err := h.service.PostMessage(requestContext(c), c.Params("id"), req)
	if err != nil {
		if errors.Is(err, service.ErrChatNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "chat not found")
		}
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendCreated(c, "message sent", message)
}

func (h *ChatHandler) editMessage(c *fiber.Ctx) error {
	var req dto.ChatMessageEditRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.EditMessage(requestContext(c), c.Params("id"), c.Params("messageId"), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "message not found")
		case errors.Is(err, service.ErrMessageImmutable):
			return utils.SendError(c, fiber.StatusConflict, "message cannot be edited")
		default:
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	return utils.SendSuccess(c, "message edited", message)
}

func (h *ChatHandler) deleteMessage(c *fiber.Ctx) error {
	message, err := h.service.DeleteMessage(requestContext(c), c.Params("id"), c.Params("messageId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "message not found")
		case errors.Is(err, service.ErrMessageImmutable):
			return utils.SendError(c, fiber.StatusConflict, "message cannot be deleted")
		default:
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete message")
		}
	}

	return utils.SendSuccess(c, "message deleted", message)
}

func (h *ChatHandler) staffChats(c *fiber.Ctx) error {
	rooms, err := h.service.StaffChats(requestContext(c))
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list chats")
	}

	return utils.SendSuccess(c, "staff chats", rooms)
}

func (h *ChatHandler) accept(c *fiber.Ctx) error {
	room, err := h.service.Accept(requestContext(c), c.Params("id"), middleware.StaffIdentity(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChatNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "chat not found")
		case errors.Is(err, service.ErrChatAlreadyAccepted):
			return utils.SendError(c, fiber.StatusConflict, "chat already accepted")
		default:
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	return utils.SendSuccess(c, "chat accepted", room)
}
