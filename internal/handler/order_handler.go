package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/dto"
	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/service"
	"github.com/dinehub/realtime-core/internal/utils"
)

// OrderHandler wires order placement, tracking, and staff lifecycle routes.
type OrderHandler struct {
	service service.OrderService
	logger  zerolog.Logger
}

// NewOrderHandler creates an order handler instance.
func NewOrderHandler(service service.OrderService, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger.With().Str("component", "order_handler").Logger(),
	}
}

// Register binds the customer-facing order routes.
func (h *OrderHandler) Register(router fiber.Router) {
	router.Post("/", h.place)
	router.Get("/search/:term", h.search)
	router.Get("/:orderNumber/track", h.track)
}

// RegisterStaff binds the staff-only order management routes.
func (h *OrderHandler) RegisterStaff(router fiber.Router) {
	router.Get("/orders", h.list)
	router.Post("/orders/:id/accept", h.accept)
	router.Post("/orders/:id/reject", h.reject)
	router.Put("/orders/:id/status", h.updateStatus)
}

func (h *OrderHandler) place(c *fiber.Ctx) error {
	var req dto.OrderCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.service.Place(requestContext(c), req)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateOrder) {
			return utils.SendErrorWithDetails(c, fiber.StatusConflict, "duplicate order detected", dto.DuplicateOrderResponse{
				IsDuplicate:   true,
				ExistingOrder: order,
			})
		}
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("order placement failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to place order")
	}

	return utils.SendCreated(c, "order placed", order)
}

func (h *OrderHandler) search(c *fiber.Ctx) error {
	orders, err := h.service.Search(requestContext(c), c.Params("term"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendSuccess(c, "orders found", orders)
}

func (h *OrderHandler) track(c *fiber.Ctx) error {
	order, err := h.service.Track(requestContext(c), c.Params("orderNumber"))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "order not found")
		}
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to track order")
	}

	return utils.SendSuccess(c, "order status", order)
}

func (h *OrderHandler) list(c *fiber.Ctx) error {
	orders, err := h.service.ListRecent(requestContext(c))
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list orders")
	}

	return utils.SendSuccess(c, "orders", orders)
}

func (h *OrderHandler) accept(c *fiber.Ctx) error {
	orderID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid order id")
	}

	staffID := middleware.StaffIdentity(c)
	order, err := h.service.Accept(requestContext(c), orderID, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyAssigned):
			return utils.SendErrorWithDetails(c, fiber.StatusConflict, "order already assigned", order)
		case errors.Is(err, service.ErrOrderNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "order not found")
		default:
			h.logger.Error().Err(err).Uint("order_id", orderID).Msg("order accept failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to accept order")
		}
	}

	return utils.SendSuccess(c, "order accepted", order)
}

func (h *OrderHandler) reject(c *fiber.Ctx) error {
	orderID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid order id")
	}

	order, err := h.service.Reject(requestContext(c), orderID, middleware.StaffIdentity(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyAssigned):
			return utils.SendErrorWithDetails(c, fiber.StatusConflict, "order no longer pending", order)
		case errors.Is(err, service.ErrOrderNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "order not found")
		default:
			h.logger.Error().Err(err).Uint("order_id", orderID).Msg("order reject failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to reject order")
		}
	}

	return utils.SendSuccess(c, "order rejected", order)
}

func (h *OrderHandler) updateStatus(c *fiber.Ctx) error {
	orderID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid order id")
	}

	var req dto.OrderStatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.service.UpdateStatus(requestContext(c), orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOutOfOrderTransition):
			return utils.SendErrorWithDetails(c, fiber.StatusConflict, "stale status transition", order)
		case errors.Is(err, service.ErrOrderNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "order not found")
		default:
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	return utils.SendSuccess(c, "order status updated", order)
}
