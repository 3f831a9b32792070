package models

import (
	"time"

	"gorm.io/datatypes"
)

// Order represents a placed customer order and its lifecycle state.
type Order struct {
	ID            uint                               `gorm:"primaryKey" json:"id"`
	OrderNumber   string                             `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	CustomerName  string                             `gorm:"size:128;not null" json:"customer_name"`
	CustomerEmail string                             `gorm:"size:255;index" json:"customer_email"`
	CustomerPhone string                             `gorm:"size:32;index" json:"customer_phone"`
	TableNumber   string                             `gorm:"size:16;index" json:"table_number"`
	Items         datatypes.JSONSlice[OrderLineItem] `gorm:"type:json" json:"items"`
	TotalAmount   float64                            `gorm:"not null" json:"total_amount"`
	PaymentMethod string                             `gorm:"size:32" json:"payment_method"`
	Status        string                             `gorm:"size:32;not null;default:pending;index" json:"status"`
	AssignedTo    string                             `gorm:"size:64" json:"assigned_to"`
	CreatedAt     time.Time                          `json:"created_at"`
	UpdatedAt     time.Time                          `json:"updated_at"`
}

// OrderLineItem is a single menu entry within an order.
type OrderLineItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Notes    string  `json:"notes,omitempty"`
}

const (
	// OrderStatusPending indicates the order awaits a staff decision.
	OrderStatusPending = "pending"
	// OrderStatusAccepted indicates a staff member has claimed the order.
	OrderStatusAccepted = "accepted"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing = "preparing"
	// OrderStatusCompleted indicates the order was fulfilled.
	OrderStatusCompleted = "completed"
	// OrderStatusRejected indicates the order was declined; terminal.
	OrderStatusRejected = "rejected"
)

// orderStatusRank orders lifecycle states so that regressions can be detected.
// Rejected is terminal and ranks alongside completed.
var orderStatusRank = map[string]int{
	OrderStatusPending:   0,
	OrderStatusAccepted:  1,
	OrderStatusPreparing: 2,
	OrderStatusCompleted: 3,
	OrderStatusRejected:  3,
}

// KnownOrderStatus reports whether status is part of the order lifecycle.
func KnownOrderStatus(status string) bool {
	_, ok := orderStatusRank[status]
	return ok
}

// StatusAdvances reports whether moving from current to next is a forward
// transition in the order state machine. Equal or earlier states do not
// advance, and a terminal state never advances again.
func StatusAdvances(current, next string) bool {
	currentRank, ok := orderStatusRank[current]
	if !ok {
		return KnownOrderStatus(next)
	}
	nextRank, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	if current == OrderStatusRejected || current == OrderStatusCompleted {
		return false
	}
	return nextRank > currentRank
}

// IsTerminal reports whether the order has reached a final state.
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusRejected
}
