package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dinehub/realtime-core/internal/models"
)

func setupChatRepo(t *testing.T) ChatRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ChatRoom{}, &models.ChatMessage{}))

	return NewChatRepository(db)
}

func seedRoom(t *testing.T, repo ChatRepository) models.ChatRoom {
	t.Helper()

	room := models.ChatRoom{
		ChatID:       "chat-1",
		CustomerName: "Maya",
		OrderNumber:  "1042",
		Status:       models.ChatStatusPending,
	}
	require.NoError(t, repo.CreateRoom(context.Background(), &room))
	return room
}

func seedMessage(t *testing.T, repo ChatRepository, id, senderType, content string) models.ChatMessage {
	t.Helper()

	message := models.ChatMessage{
		MessageID:  id,
		ChatID:     "chat-1",
		Sender:     "Maya",
		SenderType: senderType,
		Content:    content,
	}
	require.NoError(t, repo.SaveMessage(context.Background(), &message))
	return message
}

func TestClaimRoomHasExactlyOneWinner(t *testing.T) {
	repo := setupChatRepo(t)
	ctx := context.Background()
	seedRoom(t, repo)

	won, err := repo.ClaimRoom(ctx, "chat-1", "alice")
	require.NoError(t, err)
	require.Equal(t, models.ChatStatusActive, won.Status)
	require.Equal(t, "alice", won.AcceptedBy)

	_, err = repo.ClaimRoom(ctx, "chat-1", "bob")
	require.ErrorIs(t, err, ErrNoRowsUpdated)

	room, err := repo.GetRoom(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, "alice", room.AcceptedBy)
}

func TestEditMessageGuards(t *testing.T) {
	repo := setupChatRepo(t)
	ctx := context.Background()
	seedRoom(t, repo)
	seedMessage(t, repo, "msg-1", models.SenderTypeCustomer, "typo")
	seedMessage(t, repo, "sys-1", models.SenderTypeSystem, "Maya started a chat")

	edited, err := repo.EditMessage(ctx, "chat-1", "msg-1", "fixed")
	require.NoError(t, err)
	require.Equal(t, "fixed", edited.Content)
	require.True(t, edited.IsEdited)

	// System messages are immutable.
	_, err = repo.EditMessage(ctx, "chat-1", "sys-1", "tampered")
	require.ErrorIs(t, err, ErrNoRowsUpdated)

	// Tombstoned messages cannot be edited back.
	_, err = repo.TombstoneMessage(ctx, "chat-1", "msg-1")
	require.NoError(t, err)
	_, err = repo.EditMessage(ctx, "chat-1", "msg-1", "resurrected")
	require.ErrorIs(t, err, ErrNoRowsUpdated)
}

func TestTombstoneMessageIsIdempotent(t *testing.T) {
	repo := setupChatRepo(t)
	ctx := context.Background()
	seedRoom(t, repo)
	seedMessage(t, repo, "msg-1", models.SenderTypeCustomer, "remove me")

	first, err := repo.TombstoneMessage(ctx, "chat-1", "msg-1")
	require.NoError(t, err)
	require.True(t, first.IsDeleted)
	require.Equal(t, models.DeletedMessagePlaceholder, first.Content)

	second, err := repo.TombstoneMessage(ctx, "chat-1", "msg-1")
	require.NoError(t, err)
	require.Equal(t, first.Content, second.Content)
	require.Equal(t, first.IsDeleted, second.IsDeleted)

	_, err = repo.TombstoneMessage(ctx, "chat-1", "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTombstoneMessageRefusesSystemMessages(t *testing.T) {
	repo := setupChatRepo(t)
	ctx := context.Background()
	seedRoom(t, repo)
	seedMessage(t, repo, "sys-1", models.SenderTypeSystem, "Maya started a chat")

	_, err := repo.TombstoneMessage(ctx, "chat-1", "sys-1")
	require.ErrorIs(t, err, ErrNoRowsUpdated)

	intact, err := repo.GetMessage(ctx, "chat-1", "sys-1")
	require.NoError(t, err)
	require.False(t, intact.IsDeleted)
	require.Equal(t, "Maya started a chat", intact.Content)
}

func TestListMessagesReturnsChronologicalOrder(t *testing.T) {
	repo := setupChatRepo(t)
	ctx := context.Background()
	seedRoom(t, repo)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"msg-1", "msg-2", "msg-3"} {
		message := models.ChatMessage{
			MessageID:  id,
			ChatID:     "chat-1",
			Sender:     "Maya",
			SenderType: models.SenderTypeCustomer,
			Content:    id,
		}
		message.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveMessage(ctx, &message))
	}

	messages, err := repo.ListMessages(ctx, "chat-1", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "msg-1", messages[0].MessageID)
	require.Equal(t, "msg-3", messages[2].MessageID)

	// Pagination cursor excludes everything at or after the boundary.
	older, err := repo.ListMessages(ctx, "chat-1", base.Add(90*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, "msg-2", older[1].MessageID)
}
