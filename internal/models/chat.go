package models

import "time"

// ChatRoom represents a support conversation initiated by a customer.
type ChatRoom struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	ChatID        string        `gorm:"size:64;uniqueIndex;not null" json:"chat_id"`
	CustomerName  string        `gorm:"size:128;not null" json:"customer_name"`
	CustomerEmail string        `gorm:"size:255" json:"customer_email"`
	OrderNumber   string        `gorm:"size:32;index" json:"order_number"`
	Status        string        `gorm:"size:32;not null;default:pending" json:"status"`
	AcceptedBy    string        `gorm:"size:64" json:"accepted_by"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Messages      []ChatMessage `gorm:"foreignKey:ChatID;references:ChatID" json:"messages,omitempty"`
}

// ChatMessage is a single message within a chat room. Deleted messages are
// kept as tombstones so history stays stable for every participant.
type ChatMessage struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	MessageID     string    `gorm:"size:64;uniqueIndex;not null" json:"message_id"`
	ChatID        string    `gorm:"size:64;index;not null" json:"chat_id"`
	Sender        string    `gorm:"size:128;not null" json:"sender"`
	SenderType    string    `gorm:"size:16;not null;default:customer" json:"sender_type"`
	Content       string    `gorm:"type:text" json:"content"`
	CorrelationID string    `gorm:"size:64;index" json:"correlation_id,omitempty"`
	IsEdited      bool      `gorm:"not null;default:false" json:"is_edited"`
	IsDeleted     bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	// ChatStatusPending indicates no staff member has claimed the chat yet.
	ChatStatusPending = "pending"
	// ChatStatusActive indicates a staff member accepted the chat.
	ChatStatusActive = "active"
)

const (
	// SenderTypeCustomer marks messages authored by the ordering customer.
	SenderTypeCustomer = "customer"
	// SenderTypeStaff marks messages authored by restaurant staff.
	SenderTypeStaff = "staff"
	// SenderTypeSystem marks informational messages; never editable.
	SenderTypeSystem = "system"
)

// DeletedMessagePlaceholder replaces the content of tombstoned messages.
const DeletedMessagePlaceholder = "This message was deleted"
