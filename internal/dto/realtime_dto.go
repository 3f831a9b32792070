package dto

import (
	"encoding/json"
	"time"
)

// Realtime event kinds exchanged over the websocket stream. Inbound and
// outbound directions are from the gateway's point of view.
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

// RealtimeEnvelope frames every message on the websocket stream.
type RealtimeEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewRealtimeEnvelope marshals payload into a framed event. Marshal failures
// surface as an envelope with empty data; callers log and skip those.
func NewRealtimeEnvelope(event string, payload any) (RealtimeEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RealtimeEnvelope{}, err
	}
	return RealtimeEnvelope{Event: event, Data: data}, nil
}

// JoinChatPayload subscribes the session to a chat room.
type JoinChatPayload struct {
	ChatID   string `json:"chat_id" validate:"required,max=64"`
	UserType string `json:"user_type" validate:"omitempty,oneof=customer staff"`
	UserName string `json:"user_name" validate:"omitempty,max=128"`
}

// TypingStatusPayload carries the typing indicator for a chat room.
type TypingStatusPayload struct {
	ChatID   string `json:"chat_id" validate:"required,max=64"`
	Sender   string `json:"sender" validate:"required,max=128"`
	IsTyping bool   `json:"is_typing"`
}

// SendMessagePayload posts a message through the realtime channel. The REST
// endpoint is the commit path; this exists for parity with older clients and
// is translated into the same service call.
type SendMessagePayload struct {
	ChatID        string `json:"chat_id" validate:"required,max=64"`
	Sender        string `json:"sender" validate:"required,max=128"`
	SenderType    string `json:"sender_type" validate:"required,oneof=customer staff"`
	Content       string `json:"content" validate:"required,min=1,max=4000"`
	CorrelationID string `json:"correlation_id" validate:"omitempty,max=64"`
}

// MessageEventPayload wraps a chat message broadcast to a room.
type MessageEventPayload struct {
	ChatID  string              `json:"chat_id"`
	Message ChatMessageResponse `json:"message"`
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
