package realtime

import (
	"encoding/json"
	"time"
)

// Event kinds on the websocket stream. Outbound and inbound are from the
// client's point of view.
const (
	EventJoinChat    = "joinChat"
	EventLeaveChat   = "leaveChat"
	EventJoinOrders  = "joinOrders"
	EventSendMessage = "sendMessage"

	EventNewOrder           = "newOrder"
	EventOrderAccepted      = "orderAccepted"
	EventOrderRejected      = "orderRejected"
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventNewChatAvailable   = "newChatAvailable"
	EventChatAccepted       = "chatAccepted"
	EventNewMessage         = "newMessage"
	EventMessageEdited      = "messageEdited"
	EventMessageDeleted     = "messageDeleted"
	EventTypingStatus       = "typingStatus"
)

// Order lifecycle states.
const (
	OrderStatusPending   = "pending"
	OrderStatusAccepted  = "accepted"
	OrderStatusPreparing = "preparing"
	OrderStatusCompleted = "completed"
	OrderStatusRejected  = "rejected"
)

// Sender classifications for chat messages.
const (
	SenderTypeCustomer = "customer"
	SenderTypeStaff    = "staff"
	SenderTypeSystem   = "system"
)

// DeletedMessagePlaceholder replaces the content of tombstoned messages.
const DeletedMessagePlaceholder = "This message was deleted"

// orderStatusRank orders the lifecycle so stale transitions can be rejected.
// Both terminal states share the top rank.
var orderStatusRank = map[string]int{
	OrderStatusPending:   0,
	OrderStatusAccepted:  1,
	OrderStatusPreparing: 2,
	OrderStatusCompleted: 3,
	OrderStatusRejected:  3,
}

// StatusAdvances reports whether moving from current to next is a forward
// step in the order lifecycle. Repeats and regressions do not advance, and
// nothing advances out of a terminal state.
func StatusAdvances(current, next string) bool {
	currentRank, ok := orderStatusRank[current]
	if !ok {
		return false
	}
	nextRank, ok := orderStatusRank[next]
	if !ok {
		return false
	}
	if current == OrderStatusCompleted || current == OrderStatusRejected {
		return false
	}
	return nextRank > currentRank
}

// Envelope frames every message on the websocket stream.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a framed event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// OrderItem is a single line item on an order.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Notes    string  `json:"notes,omitempty"`
}

// Order is the client-side view of an order, fed by both REST snapshots and
// realtime events.
type Order struct {
	ID            uint        `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	TableNumber   string      `json:"table_number"`
	Items         []OrderItem `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Status        string      `json:"status"`
	AssignedTo    string      `json:"assigned_to,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ChatRoom is the client-side view of a support conversation.
type ChatRoom struct {
	ChatID        string    `json:"chat_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	OrderNumber   string    `json:"order_number,omitempty"`
	Status        string    `json:"status"`
	AcceptedBy    string    `json:"accepted_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is one entry in a chat room's log. Edits and deletes mutate in
// place; entries are never removed.
type Message struct {
	MessageID     string    `json:"message_id"`
	ChatID        string    `json:"chat_id"`
	Sender        string    `json:"sender"`
	SenderType    string    `json:"sender_type"`
	Content       string    `json:"content"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	IsEdited      bool      `json:"is_edited"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
	Pending       bool      `json:"-"`
}

// JoinChatPayload subscribes the session to a chat room.
type JoinChatPayload struct {
	ChatID   string `json:"chat_id"`
	UserType string `json:"user_type,omitempty"`
	UserName string `json:"user_name,omitempty"`
}

// TypingStatusPayload carries the typing indicator for a chat room.
type TypingStatusPayload struct {
	ChatID   string `json:"chat_id"`
	Sender   string `json:"sender"`
	IsTyping bool   `json:"is_typing"`
}

// SendMessagePayload posts a message through the realtime channel.
type SendMessagePayload struct {
	ChatID        string `json:"chat_id"`
	Sender        string `json:"sender"`
	SenderType    string `json:"sender_type"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// MessageEventPayload wraps a chat message broadcast to a room.
type MessageEventPayload struct {
	ChatID  string  `json:"chat_id"`
	Message Message `json:"message"`
}

// MessageEditedPayload notifies a room of an in-place edit.
type MessageEditedPayload struct {
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at"`
}

// MessageDeletedPayload notifies a room of a tombstoned message.
type MessageDeletedPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// OrderStatusPayload notifies the orders room of a lifecycle transition.
type OrderStatusPayload struct {
	OrderID     uint   `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// ChatAcceptedPayload notifies a room that staff claimed the conversation.
type ChatAcceptedPayload struct {
	ChatID     string `json:"chat_id"`
	AcceptedBy string `json:"accepted_by"`
}

// NotificationKind classifies toast-worthy events.
type NotificationKind string

const (
	NotificationNewOrder    NotificationKind = "new-order"
	NotificationChatRequest NotificationKind = "chat-request"
	NotificationChatMessage NotificationKind = "chat-message"
)

// Notification is an ephemeral, UI-facing event derived from the aggregates.
// Notifications are in-memory only and are not persisted across restarts.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	Order      *Order           `json:"order,omitempty"`
	Chat       *ChatRoom        `json:"chat,omitempty"`
	Message    *Message         `json:"message,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}
