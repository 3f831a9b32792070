package dto

import (
	"time"

	"github.com/dinehub/realtime-core/internal/models"
)

// ChatCreateRequest opens a new support conversation for a customer.
type ChatCreateRequest struct {
	CustomerName  string `json:"customer_name" validate:"required,min=1,max=128"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email,max=255"`
	OrderNumber   string `json:"order_number" validate:"omitempty,max=32"`
}

// ChatMessageCreateRequest posts a message into an existing chat room.
type ChatMessageCreateRequest struct {
	Sender        string `json:"sender" validate:"required,min=1,max=128"`
	SenderType    string `json:"sender_type" validate:"required,oneof=customer staff system"`
	Content       string `json:"content" validate:"required,min=1,max=4000"`
	CorrelationID string `json:"correlation_id" validate:"omitempty,max=64"`
}

// ChatMessageEditRequest replaces the content of an existing message.
type ChatMessageEditRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// ChatRoomResponse is the serialized representation of a chat room.
type ChatRoomResponse struct {
	ChatID        string    `json:"chat_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	OrderNumber   string    `json:"order_number,omitempty"`
	Status        string    `json:"status"`
	AcceptedBy    string    `json:"accepted_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	MessageID     string    `json:"message_id"`
	ChatID        string    `json:"chat_id"`
	Sender        string    `json:"sender"`
	SenderType    string    `json:"sender_type"`
	Content       string    `json:"content"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	IsEdited      bool      `json:"is_edited"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatHistoryResponse bundles a room with its ordered message log.
type ChatHistoryResponse struct {
	ChatID   string                `json:"chat_id"`
	Messages []ChatMessageResponse `json:"messages"`
}

// NewChatRoomResponse converts a chat room model into a DTO.
func NewChatRoomResponse(room models.ChatRoom) ChatRoomResponse {
	return ChatRoomResponse{
		ChatID:        room.ChatID,
		CustomerName:  room.CustomerName,
		CustomerEmail: room.CustomerEmail,
		OrderNumber:   room.OrderNumber,
		Status:        room.Status,
		AcceptedBy:    room.AcceptedBy,
		CreatedAt:     room.CreatedAt,
	}
}

// NewChatRoomResponseSlice converts chat room models into DTOs.
func NewChatRoomResponseSlice(rooms []models.ChatRoom) []ChatRoomResponse {
	out := make([]ChatRoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewChatRoomResponse(room))
	}
	return out
}

// NewChatMessageResponse converts a chat message model into a DTO.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		MessageID:     message.MessageID,
		ChatID:        message.ChatID,
		Sender:        message.Sender,
		SenderType:    message.SenderType,
		Content:       message.Content,
		CorrelationID: message.CorrelationID,
		IsEdited:      message.IsEdited,
		IsDeleted:     message.IsDeleted,
		CreatedAt:     message.CreatedAt,
	}
}

// NewChatMessageResponseSlice converts chat message models into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}
