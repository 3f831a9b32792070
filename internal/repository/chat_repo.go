package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dinehub/realtime-core/internal/models"
)

// ChatRepository persists chat rooms and their message logs.
type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, chatID string) (models.ChatRoom, error)
	ListRooms(ctx context.Context, limit int) ([]models.ChatRoom, error)
	// ClaimRoom marks a pending room active and records the accepting staff
	// identity; losing claimants receive ErrNoRowsUpdated.
	ClaimRoom(ctx context.Context, chatID, staffID string) (models.ChatRoom, error)
	SaveMessage(ctx context.Context, message *models.ChatMessage) error
	GetMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error)
	ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]models.ChatMessage, error)
	EditMessage(ctx context.Context, chatID, messageID, content string) (models.ChatMessage, error)
	// TombstoneMessage soft-deletes a message, replacing its content with the
	// shared placeholder. Repeating the call is a no-op.
	TombstoneMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *chatRepository) GetRoom(ctx context.Context, chatID string) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&room).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

func (r *chatRepository) ListRooms(ctx context.Context, limit int) ([]models.ChatRoom, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *chatRepository) ClaimRoom(ctx context.Context, chatID, staffID string) (models.ChatRoom, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("chat_id = ? AND status = ?", chatID, models.ChatStatusPending).
		Updates(map[string]any{
			"status":      models.ChatStatusActive,
			"accepted_by": staffID,
		})
	if result.Error != nil {
		return models.ChatRoom{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.ChatRoom{}, ErrNoRowsUpdated
	}
	return r.GetRoom(ctx, chatID)
}

func (r *chatRepository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *chatRepository) GetMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error) {
	var message models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND message_id = ?", chatID, messageID).
		First(&message).Error
	if err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) EditMessage(ctx context.Context, chatID, messageID, content string) (models.ChatMessage, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("chat_id = ? AND message_id = ? AND is_deleted = ? AND sender_type <> ?",
			chatID, messageID, false, models.SenderTypeSystem).
		Updates(map[string]any{
			"content":   content,
			"is_edited": true,
		})
	if result.Error != nil {
		return models.ChatMessage{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.ChatMessage{}, ErrNoRowsUpdated
	}
	return r.GetMessage(ctx, chatID, messageID)
}

func (r *chatRepository) TombstoneMessage(ctx context.Context, chatID, messageID string) (models.ChatMessage, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("chat_id = ? AND message_id = ? AND sender_type <> ?", chatID, messageID, models.SenderTypeSystem).
		Updates(map[string]any{
			"content":    models.DeletedMessagePlaceholder,
			"is_deleted": true,
		})
	if result.Error != nil {
		return models.ChatMessage{}, result.Error
	}
	// RowsAffected can be zero when the tombstone is already in place; repeats
	// must stay no-ops, so only a missing row is an error.
	message, err := r.GetMessage(ctx, chatID, messageID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	// The update never matches system rows, so an intact system message means
	// the delete was refused, not applied.
	if message.SenderType == models.SenderTypeSystem {
		return models.ChatMessage{}, ErrNoRowsUpdated
	}
	return message, nil
}
