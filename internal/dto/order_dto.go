package dto

import (
	"time"

	"github.com/dinehub/realtime-core/internal/models"
)

// OrderLineItemRequest describes a single cart line submitted at placement.
type OrderLineItemRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=128"`
	Quantity int     `json:"quantity" validate:"required,min=1,max=50"`
	Price    float64 `json:"price" validate:"required,gt=0"`
	Notes    string  `json:"notes" validate:"omitempty,max=255"`
}

// OrderCreateRequest is the payload for placing a new order.
type OrderCreateRequest struct {
	CustomerName     string                 `json:"customer_name" validate:"required,min=1,max=128"`
	CustomerEmail    string                 `json:"customer_email" validate:"omitempty,email,max=255"`
	CustomerPhone    string                 `json:"customer_phone" validate:"omitempty,max=32"`
	TableNumber      string                 `json:"table_number" validate:"required,min=1,max=16"`
	Items            []OrderLineItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentMethod    string                 `json:"payment_method" validate:"omitempty,oneof=cash card online"`
	ConfirmDuplicate bool                   `json:"confirm_duplicate"`
}

// OrderStatusUpdateRequest changes an order's lifecycle state.
type OrderStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=pending accepted preparing completed rejected"`
}

// OrderResponse is the serialized representation of an order.
type OrderResponse struct {
	ID            uint                   `json:"order_id"`
	OrderNumber   string                 `json:"order_number"`
	CustomerName  string                 `json:"customer_name"`
	CustomerEmail string                 `json:"customer_email,omitempty"`
	CustomerPhone string                 `json:"customer_phone,omitempty"`
	TableNumber   string                 `json:"table_number"`
	Items         []models.OrderLineItem `json:"items"`
	TotalAmount   float64                `json:"total_amount"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
	Status        string                 `json:"status"`
	AssignedTo    string                 `json:"assigned_to,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// DuplicateOrderResponse is returned with a 409 when a recent matching order exists.
type DuplicateOrderResponse struct {
	IsDuplicate   bool          `json:"is_duplicate"`
	ExistingOrder OrderResponse `json:"existing_order"`
}

// NewOrderResponse converts an order model into a DTO.
func NewOrderResponse(order models.Order) OrderResponse {
	return OrderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		TableNumber:   order.TableNumber,
		Items:         order.Items,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: order.PaymentMethod,
		Status:        order.Status,
		AssignedTo:    order.AssignedTo,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

// NewOrderResponseSlice converts a slice of order models into DTOs.
func NewOrderResponseSlice(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, NewOrderResponse(order))
	}
	return out
}
